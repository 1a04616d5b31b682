package eth

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-chain/core/wire"
)

func runRemoteStatus(t *testing.T, remote p2p.MsgReadWriter, status wire.StatusPacket) {
	t.Helper()
	// drain the local STATUS the handshake sends first.
	msg, err := remote.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, uint64(wire.StatusMsg), msg.Code)
	msg.Discard()

	require.NoError(t, p2p.Send(remote, wire.StatusMsg, &status))
}

func TestHandshakeAcceptsMatchingStatus(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	genesis := common.HexToHash("0x01")
	session := NewPeerSession("peer", local, nil)

	done := make(chan error, 1)
	go func() {
		done <- Handshake(session, LocalStatus{NetworkID: 7, Genesis: genesis, Version: wire.Version63, TD: big.NewInt(100)}, time.Second)
	}()

	runRemoteStatus(t, remote, wire.StatusPacket{
		ProtocolVersion: wire.Version63,
		NetworkID:       7,
		TD:              big.NewInt(50),
		Genesis:         genesis,
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handshake did not complete")
	}
	require.Equal(t, Active, session.State())
}

func TestHandshakeRejectsMismatchedGenesis(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)

	done := make(chan error, 1)
	go func() {
		done <- Handshake(session, LocalStatus{NetworkID: 7, Genesis: common.HexToHash("0x01"), Version: wire.Version63, TD: big.NewInt(0)}, time.Second)
	}()

	runRemoteStatus(t, remote, wire.StatusPacket{
		ProtocolVersion: wire.Version63,
		NetworkID:       7,
		TD:              big.NewInt(0),
		Genesis:         common.HexToHash("0x02"),
	})

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrIncompatibleStatus)
	case <-time.After(time.Second):
		t.Fatal("handshake did not complete")
	}
	require.Equal(t, Disconnected, session.State())
	require.Equal(t, ReasonBreachOfProtocol, session.Reason())
}

func TestHandshakeTimesOutWaitingForStatus(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)

	done := make(chan error, 1)
	go func() {
		done <- Handshake(session, LocalStatus{NetworkID: 1, Genesis: common.HexToHash("0x01"), Version: wire.Version63, TD: big.NewInt(0)}, 20*time.Millisecond)
	}()

	// drain the local STATUS but never reply, so the handshake's read
	// bound is the only thing that can end it.
	msg, err := remote.ReadMsg()
	require.NoError(t, err)
	msg.Discard()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrHandshakeTimeout)
	case <-time.After(time.Second):
		t.Fatal("handshake did not time out")
	}
	require.Equal(t, Disconnected, session.State())
	require.Equal(t, ReasonRemoteConnectionReset, session.Reason())
}

func TestHandshakeRejectsNonStatusFirstMessage(t *testing.T) {
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer", local, nil)

	done := make(chan error, 1)
	go func() {
		done <- Handshake(session, LocalStatus{NetworkID: 1, Genesis: common.HexToHash("0x01"), Version: wire.Version63, TD: big.NewInt(0)}, time.Second)
	}()

	msg, err := remote.ReadMsg()
	require.NoError(t, err)
	msg.Discard()

	require.NoError(t, p2p.Send(remote, wire.GetBlockHeadersMsg, &wire.GetBlockHeadersPacket{Amount: 1}))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("handshake did not complete")
	}
	require.Equal(t, Disconnected, session.State())
	require.Equal(t, ReasonBreachOfProtocol, session.Reason())
}
