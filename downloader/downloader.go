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

package downloader

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pborman/uuid"

	"github.com/ferrous-chain/core/wire"
)

// Peer is the subset of a live session the downloader needs: enough to
// issue a GET_BLOCK_HEADERS request. eth.PeerSession satisfies this via
// a thin adapter in package eth (downloaderbridge.go).
type Peer interface {
	ID() string
	RequestHeaders(origin wire.HashOrNumber, amount, skip uint64, reverse bool) error
}

// PeerPool supplies the downloader with the currently usable peer set.
// Its composition (which peers count as eligible) is an external
// collaborator concern -- typically "every Active session."
type PeerPool interface {
	Candidates() []Peer
}

// pendingRequest is the per-peer slot the dispatch loop's HeaderDeliverer
// forwards BLOCK_HEADERS responses into. eth/63 has no request ids, so a
// response is routed purely by which peer sent it, the classic old-geth
// ProtocolManager pattern.
type pendingRequest struct {
	peerID string
	result chan []*types.Header
}

// Downloader drives header-sequence fetch tasks against a PeerPool,
// tracking per-peer failure counts in a bounded LRU cache so a
// repeatedly failing peer is pushed to the back of the candidate list.
type Downloader struct {
	pool       PeerPool
	reputation *lru.Cache
	timeout    time.Duration
	pacer      *RequestPacer

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New constructs a Downloader. reputationSize bounds the peer-failure
// LRU; requestTimeout is config.RequestTimeout(). Every GET_BLOCK_HEADERS
// dispatch is paced at perSecond requests with room for an initial burst,
// so a task retrying rapidly across a rotating peer set cannot flood the
// wire faster than the configured budget allows.
func New(pool PeerPool, reputationSize int, requestTimeout time.Duration, perSecond float64, burst int) *Downloader {
	cache, err := lru.New(reputationSize)
	if err != nil {
		// reputationSize <= 0 is a construction-time mistake, not a
		// runtime condition; fall back to a minimal cache rather than
		// propagating an error from a constructor with no error return.
		cache, _ = lru.New(1)
	}
	return &Downloader{
		pool:       pool,
		reputation: cache,
		timeout:    requestTimeout,
		pacer:      NewRequestPacer(perSecond, burst),
		pending:    make(map[string]*pendingRequest),
	}
}

// DeliverHeaders implements eth.HeaderDeliverer, routing an inbound
// BLOCK_HEADERS frame to whichever task is currently waiting on that
// peer. A delivery with no matching pending request (a stale or
// unsolicited response) is discarded.
func (d *Downloader) DeliverHeaders(peerID string, headers []*types.Header) {
	d.mu.Lock()
	req, ok := d.pending[peerID]
	if ok {
		delete(d.pending, peerID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	select {
	case req.result <- headers:
	default:
	}
}

func (d *Downloader) failureCount(peerID string) int {
	if v, ok := d.reputation.Get(peerID); ok {
		return v.(int)
	}
	return 0
}

func (d *Downloader) recordFailure(peerID string) {
	d.reputation.Add(peerID, d.failureCount(peerID)+1)
}

// selectPeer picks a candidate, preferring one other than exclude (the
// peer that just failed) when more than one is available, and breaking
// ties by ascending failure count.
func (d *Downloader) selectPeer(exclude string) (Peer, error) {
	candidates := d.pool.Candidates()
	if len(candidates) == 0 {
		return nil, ErrNoPeers
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return d.failureCount(candidates[i].ID()) < d.failureCount(candidates[j].ID())
	})
	if exclude == "" || len(candidates) == 1 {
		return candidates[0], nil
	}
	for _, c := range candidates {
		if c.ID() != exclude {
			return c, nil
		}
	}
	return candidates[0], nil
}

// Task is the mutable state of a single header-sequence download, owned
// exclusively by its caller.
type Task struct {
	ID                string
	Reference         *types.Header
	Count             uint32
	AttemptsRemaining uint16

	initialAttempts uint16
	cancel          chan struct{}
	once            sync.Once
}

// NewTask builds a task targeting count headers ending just below
// reference, with AttemptsRemaining seeded from maxRetries+1: the
// initial attempt plus maxRetries retries, so the task issues at most
// that many peer requests before failing.
func NewTask(reference *types.Header, count uint32, maxRetries uint16) *Task {
	attempts := maxRetries + 1
	return &Task{
		ID:                uuid.New(),
		Reference:         reference,
		Count:             count,
		AttemptsRemaining: attempts,
		initialAttempts:   attempts,
		cancel:            make(chan struct{}),
	}
}

// Cancel fires the task's cancellation signal. Cooperative: the state
// machine checks it before each new request and discards any response
// that arrives after it fires.
func (t *Task) Cancel() {
	t.once.Do(func() { close(t.cancel) })
}

// Fetch drives the task's state machine to completion, returning count
// headers in ascending number order (reference.Number-count ..
// reference.Number-1) linked by parent hash, or a typed failure.
func (d *Downloader) Fetch(ctx context.Context, t *Task) ([]*types.Header, error) {
	if t.Count == 0 {
		return nil, nil
	}

	var lastPeerID string
	for t.AttemptsRemaining > 0 {
		select {
		case <-t.cancel:
			return nil, ErrCancelled
		default:
		}

		peer, err := d.selectPeer(lastPeerID)
		if err != nil {
			return nil, err
		}
		lastPeerID = peer.ID()

		headers, err := d.attempt(ctx, t, peer)
		if err == nil {
			return headers, nil
		}
		if err == ErrCancelled {
			return nil, ErrCancelled
		}

		d.recordFailure(peer.ID())
		t.AttemptsRemaining--
	}
	return nil, &ErrMaxRetriesReached{Attempts: t.initialAttempts}
}

// attempt issues a single GET_BLOCK_HEADERS request to peer and validates
// the response. It returns (headers, nil) on success or a non-nil error
// counted as a failed attempt by the caller.
func (d *Downloader) attempt(ctx context.Context, t *Task, peer Peer) ([]*types.Header, error) {
	if err := d.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	result := make(chan []*types.Header, 1)
	d.mu.Lock()
	d.pending[peer.ID()] = &pendingRequest{peerID: peer.ID(), result: result}
	d.mu.Unlock()

	origin := t.Reference.Number.Uint64() - 1
	if err := peer.RequestHeaders(wire.HashOrNumber{Number: origin}, uint64(t.Count), 0, true); err != nil {
		d.clearPending(peer.ID())
		return nil, err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case headers := <-result:
		return d.validate(t, headers)
	case <-timer.C:
		d.clearPending(peer.ID())
		return nil, ErrRequestTimeout
	case <-t.cancel:
		d.clearPending(peer.ID())
		return nil, ErrCancelled
	case <-ctx.Done():
		d.clearPending(peer.ID())
		return nil, ctx.Err()
	}
}

func (d *Downloader) clearPending(peerID string) {
	d.mu.Lock()
	delete(d.pending, peerID)
	d.mu.Unlock()
}

// validate enforces exact count and pairwise parent-hash linkage, after
// reversing the wire order (descending, reference.Number-1 down to
// reference.Number-Count) into ascending order.
func (d *Downloader) validate(t *Task, headers []*types.Header) ([]*types.Header, error) {
	if uint32(len(headers)) != t.Count {
		return nil, ErrShortResponse
	}

	ascending := make([]*types.Header, len(headers))
	for i, h := range headers {
		ascending[len(headers)-1-i] = h
	}

	for i := 1; i < len(ascending); i++ {
		if ascending[i-1].Hash() != ascending[i].ParentHash {
			return nil, &ErrLinkageViolation{At: i}
		}
	}
	if len(ascending) > 0 && t.Reference.ParentHash != ascending[len(ascending)-1].Hash() {
		return nil, &ErrLinkageViolation{At: len(ascending) - 1}
	}
	return ascending, nil
}
