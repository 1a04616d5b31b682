package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-chain/core/wire"
)

func TestNegotiateProtocolPicksHighestMutualVersion(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, []p2p.Cap{
		{Name: "eth", Version: 63},
		{Name: "istanbul", Version: 64},
	})

	v, ok := session.NegotiateProtocol("istanbul", wire.IstanbulVersion64)
	require.True(t, ok)
	require.Equal(t, uint(64), v)

	_, ok = session.NegotiateProtocol("snap", 1)
	require.False(t, ok)
}

func TestSendDeliversEveryConcurrentSend(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)

	const n = 50
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			errc <- session.Send(wire.GetBlockHeadersMsg, &wire.GetBlockHeadersPacket{Amount: uint64(i)})
		}()
	}

	// each Send returns only once its write is consumed, so read first.
	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		msg, err := remote.ReadMsg()
		require.NoError(t, err)
		var pkt wire.GetBlockHeadersPacket
		require.NoError(t, wire.Decode(msg, &pkt))
		seen[pkt.Amount] = true
	}
	require.Len(t, seen, n)

	for i := 0; i < n; i++ {
		require.NoError(t, <-errc)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)
	session.Disconnect(ReasonUselessPeer)
	session.Disconnect(ReasonBreachOfProtocol)

	require.Equal(t, Disconnected, session.State())
	require.Equal(t, ReasonUselessPeer, session.Reason())
}

func TestSendAfterDisconnectReturnsPeerGone(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)
	session.Disconnect(ReasonClientQuit)

	err := session.Send(wire.GetBlockHeadersMsg, &wire.GetBlockHeadersPacket{Amount: 1})
	require.ErrorIs(t, err, ErrPeerGone)
}

func TestMarkBlockTracksKnownHashes(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)
	h := common.HexToHash("0x01")
	require.False(t, session.KnownBlock(h))
	session.MarkBlock(h)
	require.True(t, session.KnownBlock(h))
}
