// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package eth

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/p2p"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ferrous-chain/core/chain"
	"github.com/ferrous-chain/core/wire"
)

// StateDataSource resolves state trie nodes for GET_NODE_DATA. The state
// trie itself is an external collaborator; when no source is configured,
// the server still answers with an explicit empty sequence but records
// the occurrence via Metrics.StateDataUnavailable rather than staying
// silent.
type StateDataSource interface {
	NodeData(hash common.Hash) ([]byte, bool)
}

// HeaderDeliverer receives BLOCK_HEADERS frames that arrive as a response
// to a request the local node issued (the header-sequence downloader),
// rather than as a request this server must answer. eth/63 carries no
// request ids, so the dispatch loop routes response codes here instead
// of treating them as further GET_* requests (classic old-geth
// ProtocolManager pattern).
type HeaderDeliverer interface {
	DeliverHeaders(peerID string, headers []*types.Header)
}

// Metrics counts events that must not pass silently.
type Metrics struct {
	StateDataUnavailable uint64
}

// Server dispatches inbound eth sub-protocol requests to the chain read
// model and owns NotifyMined, which fans a newly mined block out to
// every active session. Handlers run on a bounded I/O worker pool (the
// semaphore caps in-flight handlers; FIFO per peer is still guaranteed
// by PeerSession's own mailbox for writes).
type Server struct {
	Reader      chain.Reader
	Limits      RequestLimits
	Registry    *Registry
	StateSource StateDataSource
	Deliverer   HeaderDeliverer
	Metrics     *Metrics

	workers *semaphore.Weighted
}

// NewServer constructs a Server. parallelism bounds the number of
// concurrently executing request handlers (config's
// DownloaderParallelism doubles as the I/O worker pool width).
func NewServer(reader chain.Reader, registry *Registry, limits RequestLimits, parallelism int64) *Server {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Server{
		Reader:   reader,
		Limits:   limits,
		Registry: registry,
		Metrics:  &Metrics{},
		workers:  semaphore.NewWeighted(parallelism),
	}
}

// HandleMsg is the per-message entry point of the dispatch loop. It
// requires the session to have completed its handshake, acquires a
// worker slot, decodes, and routes to the handler for msg's code. A
// malformed frame disconnects the session with BreachOfProtocol; a
// peer-gone error surfacing from a send is treated as a silent no-op.
func (s *Server) HandleMsg(ctx context.Context, session *PeerSession, msg p2p.Msg) error {
	if session.State() != Active {
		return ErrNotActive
	}

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.workers.Release(1)

	switch msg.Code {
	case wire.GetBlockHeadersMsg:
		return s.handleGetBlockHeaders(session, msg)
	case wire.GetBlockBodiesMsg:
		return s.handleGetBlockBodies(session, msg)
	case wire.GetReceiptsMsg:
		return s.handleGetReceipts(session, msg)
	case wire.GetNodeDataMsg:
		return s.handleGetNodeData(session, msg)
	case wire.BlockHeadersMsg:
		return s.handleHeaderDelivery(session, msg)
	default:
		return nil
	}
}

func (s *Server) handleHeaderDelivery(session *PeerSession, msg p2p.Msg) error {
	var headers wire.BlockHeadersPacket
	if err := wire.Decode(msg, &headers); err != nil {
		session.Disconnect(ReasonBreachOfProtocol)
		return &malformedFrameError{peer: session.ID(), err: err}
	}
	if s.Deliverer != nil {
		s.Deliverer.DeliverHeaders(session.ID(), []*types.Header(headers))
	}
	return nil
}

// handleGetBlockHeaders resolves a GET_BLOCK_HEADERS request against the
// chain read model, bounding and truncating the traversal as needed.
func (s *Server) handleGetBlockHeaders(session *PeerSession, msg p2p.Msg) error {
	var req wire.GetBlockHeadersPacket
	if err := wire.Decode(msg, &req); err != nil {
		session.Disconnect(ReasonBreachOfProtocol)
		return &malformedFrameError{peer: session.ID(), err: err}
	}

	origin, found, err := s.resolveOrigin(req.Origin)
	if err != nil {
		return s.respondStorageFault(session)
	}
	headers := wire.BlockHeadersPacket{}
	if found {
		headers = s.collectHeaders(origin, req)
	}
	return s.sendOrDiscard(session, wire.BlockHeadersMsg, &headers)
}

func (s *Server) resolveOrigin(o wire.HashOrNumber) (*types.Header, bool, error) {
	if o.Hash != (common.Hash{}) {
		return s.Reader.HeaderByHash(o.Hash)
	}
	return s.Reader.HeaderByNumber(o.Number)
}

// collectHeaders walks the traversal sequence start, start+delta,
// start+2*delta, ... stopping at the first absent number, the first
// number below genesis, or an arithmetic overflow (treated identically
// to below-genesis), emitting at most min(max_headers, limit) headers.
func (s *Server) collectHeaders(origin *types.Header, req wire.GetBlockHeadersPacket) wire.BlockHeadersPacket {
	limit := s.Limits.clamp(req.Amount)
	out := make(wire.BlockHeadersPacket, 0, limit)

	sign := int64(1)
	if req.Reverse {
		sign = -1
	}
	stride := int64(req.Skip+1) * sign

	current := int64(origin.Number.Uint64())
	h := origin
	for uint64(len(out)) < limit {
		ok := true
		if h == nil {
			ok = false
		}
		if !ok {
			break
		}
		out = append(out, h)

		next, overflowed := addOverflowCheck(current, stride)
		if overflowed || next < 0 {
			break
		}
		current = next

		hdr, found, err := s.Reader.HeaderByNumber(uint64(current))
		if err != nil || !found {
			break
		}
		h = hdr
	}
	return out
}

// addOverflowCheck adds stride to current and reports whether the
// addition overflowed int64 range; overflow is treated identically to
// dropping below genesis.
func addOverflowCheck(current, stride int64) (int64, bool) {
	sum := current + stride
	if stride > 0 && sum < current {
		return 0, true
	}
	if stride < 0 && sum > current {
		return 0, true
	}
	return sum, false
}

// handleGetBlockBodies resolves a GET_BLOCK_BODIES request, silently
// skipping hashes that don't resolve to a stored body rather than
// emitting a gap marker or erroring -- the same absent-skip discipline
// handleGetReceipts and handleGetNodeData apply.
func (s *Server) handleGetBlockBodies(session *PeerSession, msg p2p.Msg) error {
	var req wire.GetBlockBodiesPacket
	if err := wire.Decode(msg, &req); err != nil {
		session.Disconnect(ReasonBreachOfProtocol)
		return &malformedFrameError{peer: session.ID(), err: err}
	}

	limit := s.Limits.clamp(uint64(len(req)))
	out := make(wire.BlockBodiesPacket, 0, limit)
	for _, hash := range req {
		if uint64(len(out)) >= limit {
			break
		}
		body, found, err := s.Reader.BodyByHash(hash)
		if err != nil {
			return s.respondStorageFault(session)
		}
		if !found {
			continue
		}
		out = append(out, body)
	}
	return s.sendOrDiscard(session, wire.BlockBodiesMsg, &out)
}

func (s *Server) handleGetReceipts(session *PeerSession, msg p2p.Msg) error {
	var req wire.GetReceiptsPacket
	if err := wire.Decode(msg, &req); err != nil {
		session.Disconnect(ReasonBreachOfProtocol)
		return &malformedFrameError{peer: session.ID(), err: err}
	}

	limit := s.Limits.clamp(uint64(len(req)))
	out := make(wire.ReceiptsPacket, 0, limit)
	for _, hash := range req {
		if uint64(len(out)) >= limit {
			break
		}
		receipts, found, err := s.Reader.ReceiptsByHash(hash)
		if err != nil {
			return s.respondStorageFault(session)
		}
		if !found {
			continue
		}
		out = append(out, receipts)
	}
	return s.sendOrDiscard(session, wire.ReceiptsMsg, &out)
}

// handleGetNodeData resolves GET_NODE_DATA against the injected
// StateDataSource. An unconfigured source answers empty and records the
// occurrence rather than staying silent.
func (s *Server) handleGetNodeData(session *PeerSession, msg p2p.Msg) error {
	var req wire.GetNodeDataPacket
	if err := wire.Decode(msg, &req); err != nil {
		session.Disconnect(ReasonBreachOfProtocol)
		return &malformedFrameError{peer: session.ID(), err: err}
	}

	if s.StateSource == nil {
		s.Metrics.StateDataUnavailable++
		empty := wire.NodeDataPacket{}
		return s.sendOrDiscard(session, wire.NodeDataMsg, &empty)
	}

	limit := s.Limits.clamp(uint64(len(req)))
	out := make(wire.NodeDataPacket, 0, limit)
	for _, hash := range req {
		if uint64(len(out)) >= limit {
			break
		}
		data, found := s.StateSource.NodeData(hash)
		if !found {
			continue
		}
		out = append(out, data)
	}
	return s.sendOrDiscard(session, wire.NodeDataMsg, &out)
}

// respondStorageFault closes the session with SubprotocolTriggered after
// a read fault that crossed the storage boundary. It sends nothing, even
// where the response schema could carry an empty sequence.
func (s *Server) respondStorageFault(session *PeerSession) error {
	session.Disconnect(ReasonSubprotocolTriggered)
	return ErrStorageUnavailable
}

// sendOrDiscard sends data to session, requiring it still be Active --
// a handler can run concurrently with the session disconnecting -- and
// silently discarding ErrPeerGone rather than letting it propagate to
// the caller.
func (s *Server) sendOrDiscard(session *PeerSession, code uint64, data interface{}) error {
	if session.State() != Active {
		return ErrNotActive
	}
	err := session.Send(code, data)
	if errors.Is(err, ErrPeerGone) {
		return nil
	}
	return err
}

// NotifyMined sends NEW_BLOCK to every Active session concurrently via an
// errgroup, so one slow or gone peer never delays delivery to the
// others; a per-peer send error is swallowed (already a no-op per
// sendOrDiscard) rather than aborting the remaining sends, matching
// errgroup.Wait's fail-fast semantics being intentionally unused here. A
// session already known to have the block (it sent or was sent this hash
// before) is skipped entirely; every session actually sent to has the
// hash marked known afterward, so a second NotifyMined for the same
// block is a no-op against the whole registry.
func (s *Server) NotifyMined(block *types.Block, totalDifficulty *big.Int) {
	pkt := wire.NewBlockPacket{Block: block, TD: new(big.Int).Set(totalDifficulty)}
	hash := block.Hash()
	var g errgroup.Group
	for _, session := range s.Registry.Active() {
		session := session
		if session.KnownBlock(hash) {
			continue
		}
		g.Go(func() error {
			if err := s.sendOrDiscard(session, wire.NewBlockMsg, &pkt); err == nil {
				session.MarkBlock(hash)
			}
			return nil
		})
	}
	_ = g.Wait()
}
