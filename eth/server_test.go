package eth

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/ferrous-chain/core/chain"
	"github.com/ferrous-chain/core/wire"
)

// buildChain inserts blocks 1..n into a fresh store, each linked to its
// parent, returning the store rooted at block 0.
func buildChain(n uint64) *chain.Store {
	genesis := types.NewBlock(&types.Header{Number: big.NewInt(0), Difficulty: big.NewInt(1), GasLimit: 8_000_000}, nil, nil, nil, trie.NewStackTrie(nil))
	store := chain.NewStore(genesis, 1<<20)
	parent := genesis.Header()
	for i := uint64(1); i <= n; i++ {
		h := &types.Header{
			ParentHash: parent.Hash(),
			Number:     new(big.Int).SetUint64(i),
			Difficulty: big.NewInt(1),
			GasLimit:   8_000_000,
		}
		b := types.NewBlock(h, nil, nil, nil, trie.NewStackTrie(nil))
		store.Insert(b, types.Receipts{})
		parent = b.Header()
	}
	return store
}

func numbersOf(headers wire.BlockHeadersPacket) []uint64 {
	out := make([]uint64, len(headers))
	for i, h := range headers {
		out[i] = h.Number.Uint64()
	}
	return out
}

func headerAt(t *testing.T, s *chain.Store, n uint64) *types.Header {
	t.Helper()
	h, found, err := s.HeaderByNumber(n)
	require.NoError(t, err)
	require.True(t, found)
	return h
}

func TestCollectHeadersForwardRange(t *testing.T) {
	store := buildChain(20)
	s := &Server{Reader: store, Limits: RequestLimits{MaxItemsPerResponse: 192}}

	req := wire.GetBlockHeadersPacket{Origin: wire.HashOrNumber{Number: 5}, Amount: 5, Skip: 0, Reverse: false}
	out := s.collectHeaders(headerAt(t, store, 5), req)
	require.Equal(t, []uint64{5, 6, 7, 8, 9}, numbersOf(out))
}

func TestCollectHeadersRequestLimitClamp(t *testing.T) {
	store := buildChain(20)
	s := &Server{Reader: store, Limits: RequestLimits{MaxItemsPerResponse: 5}}

	req := wire.GetBlockHeadersPacket{Origin: wire.HashOrNumber{Number: 5}, Amount: 10, Skip: 0, Reverse: false}
	out := s.collectHeaders(headerAt(t, store, 5), req)
	require.Equal(t, []uint64{5, 6, 7, 8, 9}, numbersOf(out))
}

func TestCollectHeadersReversedWithSkip(t *testing.T) {
	store := buildChain(20)
	s := &Server{Reader: store, Limits: RequestLimits{MaxItemsPerResponse: 192}}

	req := wire.GetBlockHeadersPacket{Origin: wire.HashOrNumber{Number: 10}, Amount: 5, Skip: 1, Reverse: true}
	out := s.collectHeaders(headerAt(t, store, 10), req)
	require.Equal(t, []uint64{10, 8, 6, 4, 2}, numbersOf(out))
}

func TestCollectHeadersPartialAtTip(t *testing.T) {
	store := buildChain(20)
	s := &Server{Reader: store, Limits: RequestLimits{MaxItemsPerResponse: 192}}

	req := wire.GetBlockHeadersPacket{Origin: wire.HashOrNumber{Number: 19}, Amount: 5, Skip: 0, Reverse: false}
	out := s.collectHeaders(headerAt(t, store, 19), req)
	require.Equal(t, []uint64{19, 20}, numbersOf(out))
}

func TestCollectHeadersBelowGenesisTruncation(t *testing.T) {
	store := buildChain(20)
	s := &Server{Reader: store, Limits: RequestLimits{MaxItemsPerResponse: 192}}

	req := wire.GetBlockHeadersPacket{Origin: wire.HashOrNumber{Number: 1}, Amount: 13, Skip: 0, Reverse: true}
	out := s.collectHeaders(headerAt(t, store, 1), req)
	require.Equal(t, []uint64{1, 0}, numbersOf(out))
}

func TestHandleGetBlockBodiesSkipsAbsentHashes(t *testing.T) {
	store := buildChain(3)
	s := NewServer(store, NewRegistry(), RequestLimits{MaxItemsPerResponse: 192}, 4)

	known := headerAt(t, store, 1)
	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer-bodies", local, nil)
	session.setState(Active)

	req := wire.GetBlockBodiesPacket{common.HexToHash("0xaa"), known.Hash(), common.HexToHash("0xbb")}
	go func() {
		_ = p2p.Send(remote, wire.GetBlockBodiesMsg, &req)
	}()

	// remote's write is delivered on local's receive side.
	msg, err := local.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, uint64(wire.GetBlockBodiesMsg), msg.Code)

	errc := make(chan error, 1)
	go func() { errc <- s.HandleMsg(context.Background(), session, msg) }()

	// the session's response, written via its own rw (local), is
	// delivered on remote's receive side; HandleMsg returns only once
	// that write has been consumed.
	resp, err := remote.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, uint64(wire.BlockBodiesMsg), resp.Code)

	var bodies wire.BlockBodiesPacket
	require.NoError(t, wire.Decode(resp, &bodies))
	require.Len(t, bodies, 1)
	require.NoError(t, <-errc)
}

func TestNotifyMinedSkipsPeersAlreadyKnownToHaveBlock(t *testing.T) {
	store := buildChain(1)
	registry := NewRegistry()
	s := NewServer(store, registry, RequestLimits{MaxItemsPerResponse: 192}, 4)

	localKnown, remoteKnown := p2p.MsgPipe()
	defer localKnown.Close()
	defer remoteKnown.Close()
	known := NewPeerSession("known", localKnown, nil)
	known.setState(Active)
	registry.Register(known)

	localFresh, remoteFresh := p2p.MsgPipe()
	defer localFresh.Close()
	defer remoteFresh.Close()
	fresh := NewPeerSession("fresh", localFresh, nil)
	fresh.setState(Active)
	registry.Register(fresh)

	_, headHeader, td := store.ChainHead()
	blk := types.NewBlock(headHeader, nil, nil, nil, trie.NewStackTrie(nil))
	known.MarkBlock(blk.Hash())

	notified := make(chan struct{})
	go func() {
		s.NotifyMined(blk, td)
		close(notified)
	}()

	msg, err := remoteFresh.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, uint64(wire.NewBlockMsg), msg.Code)
	msg.Discard()
	<-notified
	require.True(t, fresh.KnownBlock(blk.Hash()))

	errc := make(chan error, 1)
	go func() {
		_, err := remoteKnown.ReadMsg()
		errc <- err
	}()
	select {
	case <-errc:
		t.Fatal("known peer should not have received NEW_BLOCK")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleMsgRejectsNonActiveSession(t *testing.T) {
	store := buildChain(3)
	s := NewServer(store, NewRegistry(), RequestLimits{MaxItemsPerResponse: 192}, 4)

	local, remote := p2p.MsgPipe()
	defer local.Close()
	defer remote.Close()

	session := NewPeerSession("peer-not-active", local, nil)
	// left at its zero-value Opened state, never handshaked.

	req := wire.GetBlockBodiesPacket{}
	go func() { _ = p2p.Send(remote, wire.GetBlockBodiesMsg, &req) }()

	msg, err := local.ReadMsg()
	require.NoError(t, err)

	err = s.HandleMsg(context.Background(), session, msg)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestServerNotifyMinedReachesAllActivePeers(t *testing.T) {
	store := buildChain(1)
	registry := NewRegistry()
	s := NewServer(store, registry, RequestLimits{MaxItemsPerResponse: 192}, 4)

	const peerCount = 5
	type endpoint struct {
		local, remote p2p.MsgReadWriter
	}
	endpoints := make([]endpoint, peerCount)
	for i := 0; i < peerCount; i++ {
		local, remote := p2p.MsgPipe()
		endpoints[i] = endpoint{local: local, remote: remote}
		session := NewPeerSession(fmt.Sprintf("peer-%d", i), local, nil)
		session.setState(Active)
		registry.Register(session)
	}

	head, headHeader, td := store.ChainHead()
	require.NotEqual(t, common.Hash{}, head)

	blk := types.NewBlock(headHeader, nil, nil, nil, trie.NewStackTrie(nil))
	notified := make(chan struct{})
	go func() {
		s.NotifyMined(blk, td)
		close(notified)
	}()

	for _, ep := range endpoints {
		msg, err := ep.remote.ReadMsg()
		require.NoError(t, err)
		require.Equal(t, uint64(wire.NewBlockMsg), msg.Code)
		ep.local.Close()
		ep.remote.Close()
	}
	<-notified
}

