package reqresp

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/rlmd-io/rlmdcore/types"
)

// RequestStatus sends our status to a peer and returns theirs. Status
// exchange is the cheap probe the sync path uses to decide whether a
// peer's view is ahead of ours.
func RequestStatus(ctx context.Context, h host.Host, pid peer.ID, status Status) (*Status, error) {
	ctx, cancel := context.WithTimeout(ctx, reqRespTimeout)
	defer cancel()

	s, err := h.NewStream(ctx, pid, protocol.ID(StatusProtocol))
	if err != nil {
		return nil, fmt.Errorf("open status stream: %w", err)
	}
	defer s.Close()

	if err := WriteStatus(s, status); err != nil {
		return nil, fmt.Errorf("write status: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	code, err := ReadResponseCode(s)
	if err != nil {
		return nil, fmt.Errorf("read response code: %w", err)
	}
	if code != ResponseSuccess {
		return nil, fmt.Errorf("peer answered status with code %d", code)
	}

	resp, err := ReadStatus(s)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	return &resp, nil
}

// RequestBlocksByRoot asks a peer for the blocks behind the given
// hashes. The peer streams success-prefixed blocks until it has served
// everything it knows; blocks it cannot decode on our side are skipped
// rather than aborting the whole response.
func RequestBlocksByRoot(ctx context.Context, h host.Host, pid peer.ID, roots []types.Hash) ([]*types.Block, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	if len(roots) > types.MaxRequestBlocks {
		roots = roots[:types.MaxRequestBlocks]
	}

	ctx, cancel := context.WithTimeout(ctx, reqRespTimeout)
	defer cancel()

	s, err := h.NewStream(ctx, pid, protocol.ID(BlocksByRootProtocol))
	if err != nil {
		return nil, fmt.Errorf("open blocks_by_root stream: %w", err)
	}
	defer s.Close()

	rootsBuf := make([]byte, 0, len(roots)*32)
	for _, r := range roots {
		rootsBuf = append(rootsBuf, r[:]...)
	}
	if err := WriteSnappyFrame(s, rootsBuf); err != nil {
		return nil, fmt.Errorf("write roots: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	// Responses arrive as (code, block) pairs until EOF or an error code.
	var blocks []*types.Block
	for {
		code, err := ReadResponseCode(s)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return blocks, nil
			}
			return blocks, fmt.Errorf("read response code: %w", err)
		}
		if code != ResponseSuccess {
			return blocks, nil
		}
		data, err := ReadSnappyFrame(s)
		if err != nil {
			return blocks, fmt.Errorf("read block frame: %w", err)
		}
		block := new(types.Block)
		if err := block.UnmarshalSSZ(data); err != nil {
			continue
		}
		blocks = append(blocks, block)
	}
}
