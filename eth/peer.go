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
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p"
	mapset "github.com/deckarep/golang-set"
)

// State is the lifecycle of a PeerSession, advanced strictly forward:
// Opened -> StatusSent -> StatusReceived -> Active -> Disconnected.
type State int

const (
	Opened State = iota
	StatusSent
	StatusReceived
	Active
	Disconnected
)

func (s State) String() string {
	switch s {
	case Opened:
		return "opened"
	case StatusSent:
		return "status-sent"
	case StatusReceived:
		return "status-received"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// protoVersion identifies a negotiated (name, version) capability pair.
type protoVersion struct {
	Name    string
	Version uint
}

const maxKnownItems = 32768

// PeerSession is the per-connection state machine for a single eth
// sub-protocol peer. It owns a single-goroutine outbound mailbox so that
// sends to this peer are strictly FIFO regardless of which goroutine (a
// request handler, the block-mined notifier, or the downloader) enqueues
// them, giving per-peer ordering without cross-peer contention.
type PeerSession struct {
	id  string
	rw  p2p.MsgReadWriter
	log log.Logger

	mu              sync.RWMutex
	state           State
	reason          DisconnectReason
	capabilities    []protoVersion
	chosenProtocol  protoVersion
	peerNetworkID   uint64
	peerGenesisHash common.Hash
	peerTD          *big.Int
	peerHead        common.Hash

	knownBlocks mapset.Set
	knownTxs    mapset.Set

	outbox    chan outboundMsg
	closeOnce sync.Once
	done      chan struct{}
}

type outboundMsg struct {
	code uint64
	data interface{}
	errc chan error
}

// NewPeerSession wraps a raw RLPx message stream in a PeerSession. The
// outbound mailbox goroutine is started immediately and runs until
// Disconnect is called.
func NewPeerSession(id string, rw p2p.MsgReadWriter, caps []p2p.Cap) *PeerSession {
	ps := &PeerSession{
		id:          id,
		rw:          rw,
		log:         log.New("peer", id),
		state:       Opened,
		peerTD:      new(big.Int),
		knownBlocks: mapset.NewSet(),
		knownTxs:    mapset.NewSet(),
		outbox:      make(chan outboundMsg, 128),
		done:        make(chan struct{}),
	}
	for _, c := range caps {
		ps.capabilities = append(ps.capabilities, protoVersion{Name: c.Name, Version: uint(c.Version)})
	}
	go ps.outboundLoop()
	return ps
}

// ID returns the opaque peer identifier. Sessions never hold a pointer
// back to the server that owns their registry entry (Design Notes:
// one-way references); callers that need to correlate a session with
// server-side bookkeeping do so by this id.
func (p *PeerSession) ID() string { return p.id }

func (p *PeerSession) Log() log.Logger { return p.log }

func (p *PeerSession) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *PeerSession) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// NegotiateProtocol picks the highest mutually supported version for the
// given protocol name out of the peer's advertised capabilities.
func (p *PeerSession) NegotiateProtocol(name string, localVersions ...uint) (uint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var best uint
	found := false
	for _, cap := range p.capabilities {
		if cap.Name != name {
			continue
		}
		for _, lv := range localVersions {
			if cap.Version == lv && (!found || lv > best) {
				best = lv
				found = true
			}
		}
	}
	if found {
		p.chosenProtocol = protoVersion{Name: name, Version: best}
	}
	return best, found
}

// SetStatus records the remote's STATUS fields after the handshake
// validates them.
func (p *PeerSession) SetStatus(networkID uint64, genesis common.Hash, td *big.Int, head common.Hash) {
	p.mu.Lock()
	p.peerNetworkID = networkID
	p.peerGenesisHash = genesis
	p.peerTD = new(big.Int).Set(td)
	p.peerHead = head
	p.mu.Unlock()
}

// Head returns a copy of the peer's last known head hash and total
// difficulty.
func (p *PeerSession) Head() (common.Hash, *big.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peerHead, new(big.Int).Set(p.peerTD)
}

// UpdateHead records a newly observed head for the peer (e.g. after
// successfully delivering a NEW_BLOCK).
func (p *PeerSession) UpdateHead(hash common.Hash, td *big.Int) {
	p.mu.Lock()
	p.peerHead = hash
	p.peerTD = new(big.Int).Set(td)
	p.mu.Unlock()
}

// KnownBlock reports whether the peer is already known to have a given
// block hash.
func (p *PeerSession) KnownBlock(hash common.Hash) bool {
	return p.knownBlocks.Contains(hash)
}

// MarkBlock records that the peer is now known to have a block hash,
// evicting an arbitrary entry once the known-set grows past maxKnownItems.
func (p *PeerSession) MarkBlock(hash common.Hash) {
	for p.knownBlocks.Cardinality() >= maxKnownItems {
		p.knownBlocks.Pop()
	}
	p.knownBlocks.Add(hash)
}

func (p *PeerSession) KnownTransaction(hash common.Hash) bool {
	return p.knownTxs.Contains(hash)
}

func (p *PeerSession) MarkTransaction(hash common.Hash) {
	for p.knownTxs.Cardinality() >= maxKnownItems {
		p.knownTxs.Pop()
	}
	p.knownTxs.Add(hash)
}

// Send enqueues an outbound message on the per-session mailbox and waits
// for it to be written, preserving FIFO order relative to any other
// pending sends on this session. A write failure is translated into
// ErrPeerGone and moves the session to Disconnected(RemoteConnectionReset)
// -- the "exception-for-disconnect" case handled explicitly at every send
// site (Design Notes).
func (p *PeerSession) Send(code uint64, data interface{}) error {
	errc := make(chan error, 1)
	select {
	case p.outbox <- outboundMsg{code: code, data: data, errc: errc}:
	case <-p.done:
		return ErrPeerGone
	}
	select {
	case err := <-errc:
		return err
	case <-p.done:
		return ErrPeerGone
	}
}

func (p *PeerSession) outboundLoop() {
	for {
		select {
		case m := <-p.outbox:
			err := p2p.Send(p.rw, m.code, m.data)
			if err != nil {
				p.Disconnect(ReasonRemoteConnectionReset)
				err = ErrPeerGone
			}
			m.errc <- err
		case <-p.done:
			// drain remaining sends as ErrPeerGone so no caller of Send
			// blocks forever against a closed mailbox.
			for {
				select {
				case m := <-p.outbox:
					m.errc <- ErrPeerGone
				default:
					return
				}
			}
		}
	}
}

// Disconnect idempotently moves the session to Disconnected(reason) and
// stops the outbound mailbox. Repeated calls are no-ops.
func (p *PeerSession) Disconnect(reason DisconnectReason) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.state = Disconnected
		p.reason = reason
		p.mu.Unlock()
		close(p.done)
		p.log.Debug("peer session disconnected", "reason", reason)
	})
}

// Reason returns the reason the session ended with, valid once State()
// reports Disconnected.
func (p *PeerSession) Reason() DisconnectReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reason
}

// ReadMsg proxies to the underlying transport. Exposed so that callers
// (Handshake, and whatever loop feeds Server.HandleMsg) own the read side
// while PeerSession owns writes.
func (p *PeerSession) ReadMsg() (p2p.Msg, error) {
	return p.rw.ReadMsg()
}
