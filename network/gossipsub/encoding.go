package gossipsub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"

	"github.com/rlmd-io/rlmdcore/types"
)

// Message domains for ID computation.
var (
	DomainValidSnappy   = []byte{0x01, 0x00, 0x00, 0x00}
	DomainInvalidSnappy = []byte{0x00, 0x00, 0x00, 0x00}
)

// PublishBlock SSZ-encodes, snappy-compresses, and publishes a block.
func PublishBlock(ctx context.Context, topic *pubsub.Topic, b *types.Block) error {
	data, err := b.MarshalSSZ()
	if err != nil {
		return err
	}
	return topic.Publish(ctx, snappy.Encode(nil, data))
}

// PublishVote SSZ-encodes, snappy-compresses, and publishes a signed vote.
func PublishVote(ctx context.Context, topic *pubsub.Topic, v *types.SignedVote) error {
	data, err := v.MarshalSSZ()
	if err != nil {
		return err
	}
	return topic.Publish(ctx, snappy.Encode(nil, data))
}

// PublishPropose SSZ-encodes, snappy-compresses, and publishes a signed
// propose message (block + proposer view).
func PublishPropose(ctx context.Context, topic *pubsub.Topic, msg *types.SignedProposeMessage) error {
	data, err := msg.MarshalSSZ()
	if err != nil {
		return err
	}
	return topic.Publish(ctx, snappy.Encode(nil, data))
}

// PublishAggregatedVote publishes an aggregated vote to gossip.
// Wire format: msg_ssz(136) + bits_len(4) + bits + agg_sig.
func PublishAggregatedVote(ctx context.Context, topic *pubsub.Topic, agg *types.AggregatedVote) error {
	msgSSZ, err := agg.Message.MarshalSSZ()
	if err != nil {
		return err
	}

	var buf []byte
	buf = append(buf, msgSSZ...)

	bitsLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(bitsLen, uint32(len(agg.AggregationBits)))
	buf = append(buf, bitsLen...)
	buf = append(buf, agg.AggregationBits...)

	buf = append(buf, agg.AggregatedSignature...)

	return topic.Publish(ctx, snappy.Encode(nil, buf))
}

// DecodeAggregatedVote decodes a raw aggregated vote message.
func DecodeAggregatedVote(data []byte) (*types.AggregatedVote, error) {
	const msgSize = 136
	if len(data) < msgSize+4 {
		return nil, fmt.Errorf("message too short: %d", len(data))
	}

	msg := new(types.VoteMessage)
	if err := msg.UnmarshalSSZ(data[:msgSize]); err != nil {
		return nil, fmt.Errorf("unmarshal vote message: %w", err)
	}
	offset := msgSize

	bitsLen := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if offset+bitsLen > len(data) {
		return nil, fmt.Errorf("bits length exceeds message")
	}
	bits := make([]byte, bitsLen)
	copy(bits, data[offset:offset+bitsLen])
	offset += bitsLen

	aggSig := make([]byte, len(data)-offset)
	copy(aggSig, data[offset:])

	return &types.AggregatedVote{
		Message:             msg,
		AggregationBits:     bits,
		AggregatedSignature: aggSig,
	}, nil
}

// ComputeMessageID computes SHA256(domain + uint64_le(topic_len) + topic + data)[:20].
func ComputeMessageID(pmsg *pb.Message) string {
	topic := pmsg.GetTopic()
	data := pmsg.GetData()

	// Try snappy decompress to determine domain.
	domain := DomainInvalidSnappy
	msgData := data
	if decoded, err := snappy.Decode(nil, data); err == nil {
		domain = DomainValidSnappy
		msgData = decoded
	}

	topicBytes := []byte(topic)
	var topicLen [8]byte
	binary.LittleEndian.PutUint64(topicLen[:], uint64(len(topicBytes)))

	h := sha256.New()
	h.Write(domain)
	h.Write(topicLen[:])
	h.Write(topicBytes)
	h.Write(msgData)
	digest := h.Sum(nil)

	return string(digest[:20])
}
