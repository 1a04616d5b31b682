package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/p2p"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-chain/core/wire"
)

func newActiveSession(id string) (*PeerSession, *p2p.MsgPipeRW) {
	local, remote := p2p.MsgPipe()
	session := NewPeerSession(id, local, nil)
	session.setState(Active)
	return session, remote
}

func TestRegistryPeerPoolOnlySurfacesActiveSessions(t *testing.T) {
	registry := NewRegistry()

	active, activeRemote := newActiveSession("active")
	defer active.Disconnect(ReasonClientQuit)
	defer activeRemote.Close()

	localPending, remotePending := p2p.MsgPipe()
	defer localPending.Close()
	defer remotePending.Close()
	pending := NewPeerSession("pending", localPending, nil)

	registry.Register(active)
	registry.Register(pending)

	pool := RegistryPeerPool{Registry: registry}
	candidates := pool.Candidates()

	require.Len(t, candidates, 1)
	require.Equal(t, "active", candidates[0].ID())
}

func TestSessionPeerRequestHeadersSendsGetBlockHeaders(t *testing.T) {
	session, remote := newActiveSession("peer")
	defer session.Disconnect(ReasonClientQuit)
	defer remote.Close()

	peer := sessionPeer{session: session}
	errc := make(chan error, 1)
	go func() { errc <- peer.RequestHeaders(wire.HashOrNumber{Number: 42}, 10, 0, true) }()

	msg, err := remote.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, uint64(wire.GetBlockHeadersMsg), msg.Code)

	var got wire.GetBlockHeadersPacket
	require.NoError(t, msg.Decode(&got))
	require.Equal(t, uint64(42), got.Origin.Number)
	require.Equal(t, uint64(10), got.Amount)
	require.True(t, got.Reverse)
	require.NoError(t, <-errc)
}
