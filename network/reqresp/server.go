package reqresp

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"

	"github.com/rlmd-io/rlmdcore/observability/logging"
)

var srvLog = logging.NewComponentLogger(logging.CompReqResp)

// RegisterReqResp installs the serving side of the status and
// blocks-by-root protocols. Handlers answer from the node's current
// view; a request that fails to decode gets an invalid-request code
// rather than a silently dropped stream.
func RegisterReqResp(h host.Host, handler *ReqRespHandler) {
	h.SetStreamHandler(StatusProtocol, func(s network.Stream) {
		defer s.Close()
		serveStatus(s, handler)
	})

	h.SetStreamHandler(BlocksByRootProtocol, func(s network.Stream) {
		defer s.Close()
		serveBlocksByRoot(s, handler)
	})
}

func serveStatus(s network.Stream, handler *ReqRespHandler) {
	if handler.OnStatus == nil {
		return
	}
	req, err := ReadStatus(s)
	if err != nil {
		srvLog.Debug("bad status request", "peer", s.Conn().RemotePeer().String()[:16], "err", err)
		_, _ = s.Write([]byte{ResponseInvalidRequest})
		return
	}

	resp := handler.OnStatus(req)
	srvLog.Debug("served status",
		"peer", s.Conn().RemotePeer().String()[:16],
		"peer_finalized_slot", req.Finalized.ChkpSlot,
		"our_finalized_slot", resp.Finalized.ChkpSlot,
		"our_head_slot", resp.Head.BlockSlot,
	)

	if _, err := s.Write([]byte{ResponseSuccess}); err != nil {
		return
	}
	if err := WriteStatus(s, resp); err != nil {
		srvLog.Debug("status response write failed", "err", err)
	}
}

func serveBlocksByRoot(s network.Stream, handler *ReqRespHandler) {
	if handler.OnBlocksByRoot == nil {
		return
	}
	roots, err := readBlocksByRootRequest(s)
	if err != nil {
		srvLog.Debug("bad blocks_by_root request", "peer", s.Conn().RemotePeer().String()[:16], "err", err)
		_, _ = s.Write([]byte{ResponseInvalidRequest})
		return
	}

	blocks := handler.OnBlocksByRoot(roots)
	served := 0
	for _, block := range blocks {
		if _, err := s.Write([]byte{ResponseSuccess}); err != nil {
			return
		}
		if err := writeBlock(s, block); err != nil {
			srvLog.Debug("block response write failed", "slot", block.Slot, "err", err)
			return
		}
		served++
	}
	srvLog.Debug("served blocks_by_root",
		"peer", s.Conn().RemotePeer().String()[:16],
		"requested", len(roots),
		"served", served,
	)
}
