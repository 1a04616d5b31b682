// Package chainhash defines a chain-hash function type, Func, and its two
// variants: the plain header hash and the IBFT-legacy hash, which strips
// the proposer seal from extra-data before hashing. No other package in
// this module takes a Func: the chain store, the eth server and the
// downloader identify headers by header.Hash(), and the IBFT-legacy
// proposer calls ibftlegacy.HeaderHash directly.
package chainhash

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ferrous-chain/core/consensus/ibftlegacy"
)

// Func computes the canonical identity hash of a header.
type Func func(h *types.Header) common.Hash

// Standard returns the plain go-ethereum header hash (keccak of the full
// RLP-encoded header, extra-data included as-is). Used outside IBFT-legacy
// contexts and in tests that don't care about seal stripping.
func Standard() Func {
	return func(h *types.Header) common.Hash {
		return h.Hash()
	}
}

// IBFTLegacy returns the seal-stripping hash function, ibftlegacy.HeaderHash,
// which the IBFT-legacy proposer signs and RecoverProposer verifies.
func IBFTLegacy() Func {
	return ibftlegacy.HeaderHash
}
