package types

import (
	"errors"

	ssz "github.com/ferranbt/fastssz"
)

// errTooManyVotes guards the vote-list bounds during encode/decode.
var errTooManyVotes = errors.New("ssz: vote list exceeds maximum")

// Wire encoding for every gossiped/stored container. Offsets follow the
// SSZ convention: fixed-size fields first, variable-size fields appended
// behind 4-byte offsets.

const (
	voteMessageSize = 8 + 32 + 48 + 48
	signedVoteSize  = voteMessageSize + SignatureSize + 8
	blockFixedSize  = 32 + 8 + 4 + 4
)

func (m *VoteMessage) SizeSSZ() int { return voteMessageSize }

func (m *VoteMessage) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = ssz.MarshalUint64(buf, m.Slot)
	buf = append(buf, m.HeadHash[:]...)
	var err error
	if buf, err = m.FFGSource.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	if buf, err = m.FFGTarget.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *VoteMessage) MarshalSSZ() ([]byte, error) {
	return m.MarshalSSZTo(make([]byte, 0, m.SizeSSZ()))
}

func (m *VoteMessage) UnmarshalSSZ(buf []byte) error {
	if len(buf) != voteMessageSize {
		return ssz.ErrSize
	}
	m.Slot = ssz.UnmarshallUint64(buf[0:8])
	copy(m.HeadHash[:], buf[8:40])
	m.FFGSource = new(Checkpoint)
	if err := m.FFGSource.UnmarshalSSZ(buf[40:88]); err != nil {
		return err
	}
	m.FFGTarget = new(Checkpoint)
	return m.FFGTarget.UnmarshalSSZ(buf[88:136])
}

func (v *SignedVote) SizeSSZ() int { return signedVoteSize }

func (v *SignedVote) MarshalSSZTo(buf []byte) ([]byte, error) {
	var err error
	if buf, err = v.Message.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	buf = append(buf, v.Signature[:]...)
	buf = ssz.MarshalUint64(buf, uint64(v.Sender))
	return buf, nil
}

func (v *SignedVote) MarshalSSZ() ([]byte, error) {
	return v.MarshalSSZTo(make([]byte, 0, v.SizeSSZ()))
}

func (v *SignedVote) UnmarshalSSZ(buf []byte) error {
	if len(buf) != signedVoteSize {
		return ssz.ErrSize
	}
	v.Message = new(VoteMessage)
	if err := v.Message.UnmarshalSSZ(buf[0:voteMessageSize]); err != nil {
		return err
	}
	copy(v.Signature[:], buf[voteMessageSize:voteMessageSize+SignatureSize])
	v.Sender = NodeIdentity(ssz.UnmarshallUint64(buf[voteMessageSize+SignatureSize:]))
	return nil
}

func (bb *BlockBody) SizeSSZ() int { return len(bb.Payload) }

func (bb *BlockBody) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(bb.Payload) > MaxBodyPayloadBytes {
		return nil, ssz.ErrBytesLength
	}
	return append(buf, bb.Payload...), nil
}

func (bb *BlockBody) MarshalSSZ() ([]byte, error) {
	return bb.MarshalSSZTo(make([]byte, 0, bb.SizeSSZ()))
}

func (bb *BlockBody) UnmarshalSSZ(buf []byte) error {
	if len(buf) > MaxBodyPayloadBytes {
		return ssz.ErrBytesLength
	}
	bb.Payload = make([]byte, len(buf))
	copy(bb.Payload, buf)
	return nil
}

func (b *Block) SizeSSZ() int {
	return blockFixedSize + len(b.Votes)*signedVoteSize + b.Body.SizeSSZ()
}

// MarshalSSZTo encodes the block over its canonical byte image: votes are
// sorted by (sender, slot, head_hash) before encoding so that hashing and
// wire bytes agree.
func (b *Block) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(b.Votes) > MaxVotesPerBlock {
		return nil, errTooManyVotes
	}
	buf = append(buf, b.ParentHash[:]...)
	buf = ssz.MarshalUint64(buf, b.Slot)

	votesOffset := uint64(blockFixedSize)
	buf = ssz.WriteOffset(buf, int(votesOffset))
	bodyOffset := votesOffset + uint64(len(b.Votes)*signedVoteSize)
	buf = ssz.WriteOffset(buf, int(bodyOffset))

	var err error
	for _, v := range b.SortedVotes() {
		if buf, err = v.MarshalSSZTo(buf); err != nil {
			return nil, err
		}
	}
	return b.Body.MarshalSSZTo(buf)
}

func (b *Block) MarshalSSZ() ([]byte, error) {
	return b.MarshalSSZTo(make([]byte, 0, b.SizeSSZ()))
}

func (b *Block) UnmarshalSSZ(buf []byte) error {
	if len(buf) < blockFixedSize {
		return ssz.ErrSize
	}
	copy(b.ParentHash[:], buf[0:32])
	b.Slot = ssz.UnmarshallUint64(buf[32:40])

	votesOffset := ssz.ReadOffset(buf[40:44])
	bodyOffset := ssz.ReadOffset(buf[44:48])
	if votesOffset != blockFixedSize || bodyOffset < votesOffset || bodyOffset > uint64(len(buf)) {
		return ssz.ErrOffset
	}

	votesBytes := buf[votesOffset:bodyOffset]
	if len(votesBytes)%signedVoteSize != 0 {
		return ssz.ErrSize
	}
	count := len(votesBytes) / signedVoteSize
	if count > MaxVotesPerBlock {
		return errTooManyVotes
	}
	b.Votes = make([]*SignedVote, count)
	for i := 0; i < count; i++ {
		b.Votes[i] = new(SignedVote)
		if err := b.Votes[i].UnmarshalSSZ(votesBytes[i*signedVoteSize : (i+1)*signedVoteSize]); err != nil {
			return err
		}
	}

	b.Body = new(BlockBody)
	return b.Body.UnmarshalSSZ(buf[bodyOffset:])
}

func (p *ProposeMessage) SizeSSZ() int {
	return 8 + p.Block.SizeSSZ() + len(p.ProposerView)*signedVoteSize
}

func (p *ProposeMessage) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(p.ProposerView) > MaxProposerViewVotes {
		return nil, errTooManyVotes
	}
	blockOffset := uint64(8)
	buf = ssz.WriteOffset(buf, int(blockOffset))
	buf = ssz.WriteOffset(buf, int(blockOffset)+p.Block.SizeSSZ())

	var err error
	if buf, err = p.Block.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	for _, v := range p.ProposerView {
		if buf, err = v.MarshalSSZTo(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (p *ProposeMessage) MarshalSSZ() ([]byte, error) {
	return p.MarshalSSZTo(make([]byte, 0, p.SizeSSZ()))
}

func (p *ProposeMessage) UnmarshalSSZ(buf []byte) error {
	if len(buf) < 8 {
		return ssz.ErrSize
	}
	blockOffset := ssz.ReadOffset(buf[0:4])
	viewOffset := ssz.ReadOffset(buf[4:8])
	if blockOffset != 8 || viewOffset < blockOffset || viewOffset > uint64(len(buf)) {
		return ssz.ErrOffset
	}

	p.Block = new(Block)
	if err := p.Block.UnmarshalSSZ(buf[blockOffset:viewOffset]); err != nil {
		return err
	}

	viewBytes := buf[viewOffset:]
	if len(viewBytes)%signedVoteSize != 0 {
		return ssz.ErrSize
	}
	count := len(viewBytes) / signedVoteSize
	if count > MaxProposerViewVotes {
		return errTooManyVotes
	}
	p.ProposerView = make([]*SignedVote, count)
	for i := 0; i < count; i++ {
		p.ProposerView[i] = new(SignedVote)
		if err := p.ProposerView[i].UnmarshalSSZ(viewBytes[i*signedVoteSize : (i+1)*signedVoteSize]); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProposeMessage) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(p)
}

func (p *ProposeMessage) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	if err := p.Block.HashTreeRootWith(hh); err != nil {
		return err
	}
	viewIdx := hh.Index()
	for _, v := range p.ProposerView {
		if err := v.HashTreeRootWith(hh); err != nil {
			return err
		}
	}
	hh.MerkleizeWithMixin(viewIdx, uint64(len(p.ProposerView)), MaxProposerViewVotes)
	hh.Merkleize(indx)
	return nil
}

func (s *SignedProposeMessage) SizeSSZ() int {
	return 4 + SignatureSize + 8 + s.Message.SizeSSZ()
}

func (s *SignedProposeMessage) MarshalSSZTo(buf []byte) ([]byte, error) {
	msgOffset := 4 + SignatureSize + 8
	buf = ssz.WriteOffset(buf, msgOffset)
	buf = append(buf, s.Signature[:]...)
	buf = ssz.MarshalUint64(buf, uint64(s.Sender))
	return s.Message.MarshalSSZTo(buf)
}

func (s *SignedProposeMessage) MarshalSSZ() ([]byte, error) {
	return s.MarshalSSZTo(make([]byte, 0, s.SizeSSZ()))
}

func (s *SignedProposeMessage) UnmarshalSSZ(buf []byte) error {
	fixed := 4 + SignatureSize + 8
	if len(buf) < fixed {
		return ssz.ErrSize
	}
	msgOffset := ssz.ReadOffset(buf[0:4])
	if msgOffset != uint64(fixed) {
		return ssz.ErrOffset
	}
	copy(s.Signature[:], buf[4:4+SignatureSize])
	s.Sender = NodeIdentity(ssz.UnmarshallUint64(buf[4+SignatureSize : fixed]))
	s.Message = new(ProposeMessage)
	return s.Message.UnmarshalSSZ(buf[msgOffset:])
}
