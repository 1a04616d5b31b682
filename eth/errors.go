// Package eth implements the stateful per-peer eth sub-protocol server:
// handshake, capability negotiation, request dispatch and the block-mined
// notifier. The outer RLPx transport and the chain storage engine are
// external collaborators reached through p2p.MsgReadWriter and
// chain.Reader respectively.
package eth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/p2p"
)

// Sentinel errors forming the local error taxonomy. Each is handled at a
// specific site rather than allowed to propagate raw across a session
// boundary (Design Notes: "exception-for-disconnect" modeled as explicit
// handling, never an escaping panic).
var (
	// ErrIncompatibleStatus is returned by the handshake when the remote's
	// network id or genesis hash does not match the local node's.
	ErrIncompatibleStatus = errors.New("eth: incompatible status")

	// ErrPeerGone is returned by Send when the underlying connection can no
	// longer accept writes. Handlers treat it as a silent no-op; it never
	// escapes to the caller of a request handler.
	ErrPeerGone = errors.New("eth: peer gone")

	// ErrStorageUnavailable signals a fault crossing the chain store's
	// storage boundary, distinct from "not present" (chain.Reader's
	// found=false). The GET_BLOCK_HEADERS origin lookup and the
	// GET_BLOCK_BODIES and GET_RECEIPTS handlers disconnect the session
	// with SubprotocolTriggered on such a fault; none of them answers
	// with an empty response instead.
	ErrStorageUnavailable = errors.New("eth: storage unavailable")

	// ErrHandshakeTimeout is returned when the remote's STATUS never
	// arrives within the configured request timeout.
	ErrHandshakeTimeout = errors.New("eth: handshake timeout")

	// ErrNotActive is returned by any operation that requires an Active
	// session (dispatch, send) when the session has not completed its
	// handshake or has already disconnected.
	ErrNotActive = errors.New("eth: session not active")
)

// DisconnectReason is the closed set of reasons a session can end with,
// backed 1:1 by p2p.DiscReason since the underlying framing layer already
// enumerates exactly these reasons.
type DisconnectReason p2p.DiscReason

const (
	ReasonBreachOfProtocol      = DisconnectReason(p2p.DiscProtocolError)
	ReasonUselessPeer           = DisconnectReason(p2p.DiscUselessPeer)
	ReasonTooManyPeers          = DisconnectReason(p2p.DiscTooManyPeers)
	ReasonAlreadyConnected      = DisconnectReason(p2p.DiscAlreadyConnected)
	ReasonIncompatibleProtocol  = DisconnectReason(p2p.DiscIncompatibleVersion)
	ReasonNullNodeIdentity      = DisconnectReason(p2p.DiscInvalidIdentity)
	ReasonClientQuit            = DisconnectReason(p2p.DiscQuitting)
	ReasonUnexpectedIdentity    = DisconnectReason(p2p.DiscUnexpectedIdentity)
	ReasonRemoteConnectionReset = DisconnectReason(p2p.DiscNetworkError)
	ReasonSubprotocolTriggered  = DisconnectReason(p2p.DiscSubprotocolError)
)

func (r DisconnectReason) String() string {
	return p2p.DiscReason(r).String()
}

// malformedFrameError wraps wire.ErrMalformedFrame occurrences with the
// peer id that sent them, for logging at the disconnect site.
type malformedFrameError struct {
	peer string
	err  error
}

func (e *malformedFrameError) Error() string {
	return fmt.Sprintf("eth: malformed frame from %s: %v", e.peer, e.err)
}

func (e *malformedFrameError) Unwrap() error {
	return e.err
}
