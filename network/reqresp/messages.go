package reqresp

import (
	"time"

	"github.com/rlmd-io/rlmdcore/types"
)

// Protocol IDs (ssz_snappy encoding suffix).
const (
	StatusProtocol       = "/rlmdconsensus/req/status/1/ssz_snappy"
	BlocksByRootProtocol = "/rlmdconsensus/req/blocks_by_root/1/ssz_snappy"
)

// Response status codes.
const (
	ResponseSuccess             = 0x00
	ResponseInvalidRequest      = 0x01
	ResponseServerError         = 0x02
	ResponseResourceUnavailable = 0x03
)

const reqRespTimeout = 10 * time.Second

// Status is the status message exchanged between peers: greatest
// finalized checkpoint plus the current head as a checkpoint.
type Status struct {
	Finalized *types.Checkpoint
	Head      *types.Checkpoint
}

// ReqRespHandler processes incoming request/response messages.
type ReqRespHandler struct {
	OnStatus       func(Status) Status
	OnBlocksByRoot func([]types.Hash) []*types.Block
}
