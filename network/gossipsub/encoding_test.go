package gossipsub

import (
	"encoding/binary"
	"testing"

	"github.com/golang/snappy"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"

	"github.com/rlmd-io/rlmdcore/types"
)

func sampleAggregate(t *testing.T) *types.AggregatedVote {
	t.Helper()
	src := types.Checkpoint{ChkpSlot: 0}
	tgt := types.Checkpoint{ChkpSlot: 1, BlockSlot: 1}
	msg := &types.VoteMessage{Slot: 1, FFGSource: &src, FFGTarget: &tgt}

	bits := []byte{0b00001011} // senders 0 and 1, sentinel at bit 3
	sigs := make([]byte, 2*types.SignatureSize)
	sigs[0] = 0xa0
	sigs[types.SignatureSize] = 0xa1

	return &types.AggregatedVote{Message: msg, AggregationBits: bits, AggregatedSignature: sigs}
}

func TestDecodeAggregatedVoteRoundTrip(t *testing.T) {
	agg := sampleAggregate(t)

	// Reproduce the publisher's wire layout: msg_ssz + bits_len + bits + sigs.
	msgSSZ, err := agg.Message.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var wire []byte
	wire = append(wire, msgSSZ...)
	bitsLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(bitsLen, uint32(len(agg.AggregationBits)))
	wire = append(wire, bitsLen...)
	wire = append(wire, agg.AggregationBits...)
	wire = append(wire, agg.AggregatedSignature...)

	out, err := DecodeAggregatedVote(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message.Slot != 1 {
		t.Fatal("message mismatch")
	}
	if len(out.AggregationBits) != 1 || out.AggregationBits[0] != agg.AggregationBits[0] {
		t.Fatal("bits mismatch")
	}
	if len(out.AggregatedSignature) != 2*types.SignatureSize {
		t.Fatal("signature blob mismatch")
	}
}

func TestDecodeAggregatedVoteRejectsShort(t *testing.T) {
	if _, err := DecodeAggregatedVote([]byte{1, 2, 3}); err == nil {
		t.Fatal("short message must be rejected")
	}
}

func TestComputeMessageIDDomains(t *testing.T) {
	topic := "/rlmdconsensus/test/block/ssz_snappy"
	payload := []byte("block bytes")

	compressed := &pb.Message{Topic: &topic, Data: snappy.Encode(nil, payload)}
	raw := &pb.Message{Topic: &topic, Data: payload}

	idCompressed := ComputeMessageID(compressed)
	idRaw := ComputeMessageID(raw)

	if len(idCompressed) != 20 || len(idRaw) != 20 {
		t.Fatal("message IDs must be 20 bytes")
	}
	if idCompressed == idRaw {
		t.Fatal("valid-snappy and invalid-snappy domains must separate IDs")
	}
	if ComputeMessageID(compressed) != idCompressed {
		t.Fatal("message ID must be deterministic")
	}
}
