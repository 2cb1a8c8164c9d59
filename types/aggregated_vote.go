package types

// AggregatedVote bundles every vote that shares the same VoteMessage into
// one gossip payload: a bitlist of sender identities plus their
// signatures concatenated in ascending sender order. Disaggregation must
// yield exactly the SignedVote set the vote view would have accepted one
// at a time.
type AggregatedVote struct {
	Message             *VoteMessage
	AggregationBits     []byte
	AggregatedSignature []byte
}
