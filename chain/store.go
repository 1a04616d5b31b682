package chain

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// snapshot is an immutable view of the chain store. Store swaps in a new
// snapshot on every Insert via atomic.Value, so reads never take a lock
// and are always consistent with a single point in time.
type snapshot struct {
	byHash   map[common.Hash]*types.Header
	byNumber map[uint64]*types.Header
	bodies   map[common.Hash]*types.Body
	receipts map[common.Hash]types.Receipts
	headHash common.Hash
	header   *types.Header
	td       *big.Int
}

// Store is a process-local, in-memory implementation of Reader and
// Watcher. It is the default chain store used in tests and in any
// deployment that layers persistence underneath it; the wire format for
// cached blobs is RLP, and encoded body bytes are pooled in a bounded
// fastcache.Cache so repeated serving of the same body (BodyRLP) doesn't
// repeatedly pay RLP-encoding cost. Headers are not cached in encoded form.
type Store struct {
	genesis common.Hash
	current atomic.Value // *snapshot

	encodeCache *fastcache.Cache

	mu      sync.Mutex // serializes Insert; reads never take it
	watchMu sync.Mutex
	subs    []chan Event
}

// NewStore creates an empty store rooted at the given genesis block.
// cacheBytes bounds the memory used by the RLP-encoding cache.
func NewStore(genesisBlock *types.Block, cacheBytes int) *Store {
	s := &Store{
		genesis:     genesisBlock.Hash(),
		encodeCache: fastcache.New(cacheBytes),
	}
	snap := &snapshot{
		byHash:   map[common.Hash]*types.Header{genesisBlock.Hash(): genesisBlock.Header()},
		byNumber: map[uint64]*types.Header{genesisBlock.NumberU64(): genesisBlock.Header()},
		bodies:   map[common.Hash]*types.Body{genesisBlock.Hash(): genesisBlock.Body()},
		receipts: map[common.Hash]types.Receipts{},
		headHash: genesisBlock.Hash(),
		header:   genesisBlock.Header(),
		td:       new(big.Int).Set(genesisBlock.Difficulty()),
	}
	s.current.Store(snap)
	return s
}

func (s *Store) snap() *snapshot {
	return s.current.Load().(*snapshot)
}

// HeaderByHash implements Reader.
func (s *Store) HeaderByHash(hash common.Hash) (*types.Header, bool, error) {
	h, ok := s.snap().byHash[hash]
	return h, ok, nil
}

// HeaderByNumber implements Reader.
func (s *Store) HeaderByNumber(number uint64) (*types.Header, bool, error) {
	h, ok := s.snap().byNumber[number]
	return h, ok, nil
}

// BodyByHash implements Reader.
func (s *Store) BodyByHash(hash common.Hash) (*types.Body, bool, error) {
	b, ok := s.snap().bodies[hash]
	return b, ok, nil
}

// ReceiptsByHash implements Reader.
func (s *Store) ReceiptsByHash(hash common.Hash) (types.Receipts, bool, error) {
	r, ok := s.snap().receipts[hash]
	return r, ok, nil
}

// ChainHead implements Reader.
func (s *Store) ChainHead() (common.Hash, *types.Header, *big.Int) {
	snap := s.snap()
	return snap.headHash, snap.header, new(big.Int).Set(snap.td)
}

// GenesisHash implements Reader.
func (s *Store) GenesisHash() common.Hash {
	return s.genesis
}

// BodyRLP returns the RLP encoding of a block's body, caching the result
// so that serving the same body to many peers only encodes it once.
func (s *Store) BodyRLP(hash common.Hash) (rlp.RawValue, bool) {
	if cached, ok := s.encodeCache.HasGet(nil, hash[:]); ok {
		return rlp.RawValue(cached), true
	}
	body, found, _ := s.BodyByHash(hash)
	if !found {
		return nil, false
	}
	encoded, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, false
	}
	s.encodeCache.Set(hash[:], encoded)
	return rlp.RawValue(encoded), true
}

// Insert appends a new canonical block to the store and fans the event
// out to every Watch subscriber, growing the total difficulty by the
// block's own difficulty.
func (s *Store) Insert(block *types.Block, receipts types.Receipts) {
	s.mu.Lock()
	prev := s.snap()
	next := &snapshot{
		byHash:   copyHeaders(prev.byHash),
		byNumber: copyByNumber(prev.byNumber),
		bodies:   copyBodies(prev.bodies),
		receipts: copyReceipts(prev.receipts),
	}
	next.byHash[block.Hash()] = block.Header()
	next.byNumber[block.NumberU64()] = block.Header()
	next.bodies[block.Hash()] = block.Body()
	next.receipts[block.Hash()] = receipts
	next.headHash = block.Hash()
	next.header = block.Header()
	next.td = new(big.Int).Add(prev.td, block.Difficulty())
	s.current.Store(next)
	s.mu.Unlock()

	s.publish(Event{Block: block, Receipts: receipts, TotalDifficulty: new(big.Int).Set(next.td)})
}

// Watch implements Watcher. Each call creates a new subscription with a
// buffered channel; a slow subscriber has events dropped rather than
// blocking Insert, the same non-blocking discipline the consensus event
// queue in package bridge applies on its own overflow.
func (s *Store) Watch() <-chan Event {
	ch := make(chan Event, 64)
	s.watchMu.Lock()
	s.subs = append(s.subs, ch)
	s.watchMu.Unlock()
	return ch
}

func (s *Store) publish(ev Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop rather than block Insert.
		}
	}
}

func copyHeaders(m map[common.Hash]*types.Header) map[common.Hash]*types.Header {
	out := make(map[common.Hash]*types.Header, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyByNumber(m map[uint64]*types.Header) map[uint64]*types.Header {
	out := make(map[uint64]*types.Header, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBodies(m map[common.Hash]*types.Body) map[common.Hash]*types.Body {
	out := make(map[common.Hash]*types.Body, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyReceipts(m map[common.Hash]types.Receipts) map[common.Hash]types.Receipts {
	out := make(map[common.Hash]types.Receipts, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
