// Package chain defines the read-only chain projection (spec component A)
// that the eth server, the downloader and the proposer glue all read from,
// plus the ChainAdded event stream the blockchain observer bridge
// consumes. The concrete chain/state/storage engine backing it is an
// external collaborator; this package only fixes the surface.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Reader is the non-blocking, snapshot-consistent read surface over the
// local chain store. Absent entries return found=false; they never error.
// A non-nil error signals a fault crossing the storage boundary itself
// (disk I/O, corruption) distinct from "not present".
type Reader interface {
	HeaderByHash(hash common.Hash) (header *types.Header, found bool, err error)
	HeaderByNumber(number uint64) (header *types.Header, found bool, err error)
	BodyByHash(hash common.Hash) (body *types.Body, found bool, err error)
	ReceiptsByHash(hash common.Hash) (receipts types.Receipts, found bool, err error)
	ChainHead() (hash common.Hash, header *types.Header, totalDifficulty *big.Int)
	GenesisHash() common.Hash
}

// Event is delivered on a Watcher's channel whenever a new block is added
// to the canonical chain.
type Event struct {
	Block           *types.Block
	Receipts        types.Receipts
	TotalDifficulty *big.Int
}

// Watcher is the event-stream half of the chain store collaborator (§6).
type Watcher interface {
	Watch() <-chan Event
}
