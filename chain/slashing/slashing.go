// Package slashing detects the two slashable FFG offenses:
// equivocation and surround voting. Detection only; penalty accounting
// is out of scope.
package slashing

import "github.com/rlmd-io/rlmdcore/types"

// IsEquivocation reports whether v1 and v2 are distinct votes from the
// same sender targeting the same chkp_slot.
func IsEquivocation(v1, v2 *types.SignedVote) bool {
	if v1.Sender != v2.Sender {
		return false
	}
	if v1.Key() == v2.Key() {
		return false // same vote, not a pair
	}
	return v1.Message.FFGTarget.ChkpSlot == v2.Message.FFGTarget.ChkpSlot
}

// IsSurround reports whether v1's source/target range is surrounded by
// v2's, or vice versa; both argument orders are checked here.
func IsSurround(v1, v2 *types.SignedVote) bool {
	if v1.Sender != v2.Sender {
		return false
	}
	return surrounds(v1, v2) || surrounds(v2, v1)
}

// surrounds reports whether a's source/target range surrounds b's, i.e.
// a.source < b.source and b.target < a.target by chkp_slot ordering.
func surrounds(a, b *types.SignedVote) bool {
	as, at := a.Message.FFGSource, a.Message.FFGTarget
	bs, bt := b.Message.FFGSource, b.Message.FFGTarget
	sourceLess := lessSlotPair(as.ChkpSlot, as.BlockSlot, bs.ChkpSlot, bs.BlockSlot)
	targetLess := bt.ChkpSlot < at.ChkpSlot
	return sourceLess && targetLess
}

func lessSlotPair(aChkp, aBlock, bChkp, bBlock uint64) bool {
	if aChkp != bChkp {
		return aChkp < bChkp
	}
	return aBlock < bBlock
}

// IsSlashablePair reports whether v1, v2 together constitute a slashable
// offence.
func IsSlashablePair(v1, v2 *types.SignedVote) bool {
	return IsEquivocation(v1, v2) || IsSurround(v1, v2)
}

// SlashableNodes returns every sender implicated in at least one
// slashable pair within votes.
func SlashableNodes(votes []*types.SignedVote) map[types.NodeIdentity]bool {
	bySender := make(map[types.NodeIdentity][]*types.SignedVote)
	for _, v := range votes {
		bySender[v.Sender] = append(bySender[v.Sender], v)
	}

	slashable := make(map[types.NodeIdentity]bool)
	for sender, vs := range bySender {
		for i := 0; i < len(vs); i++ {
			for j := i + 1; j < len(vs); j++ {
				if IsSlashablePair(vs[i], vs[j]) {
					slashable[sender] = true
				}
			}
		}
	}
	return slashable
}
