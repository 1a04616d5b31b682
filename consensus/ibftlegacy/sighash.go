package ibftlegacy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// HeaderHash computes the IBFT-legacy header identity hash: the keccak
// of the RLP encoding of the header with its proposer seal stripped from
// extra-data. Propose signs it and RecoverProposer verifies against it;
// chainhash.IBFTLegacy returns it as a chainhash.Func.
//
// The vanity prefix and committed seals ARE included; only the
// proposer's own signature is excluded, so every validator signs an
// identical pre-image regardless of what's already in the seal field.
func HeaderHash(h *types.Header) common.Hash {
	cleaned := cleanHeaderForSigning(h)
	encoded, err := rlp.EncodeToBytes(cleaned)
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(encoded)
}

// cleanHeaderForSigning returns a shallow copy of h with extra-data
// rewritten to omit the proposer seal.
func cleanHeaderForSigning(h *types.Header) *types.Header {
	vanity, extra, err := DecodeExtra(h.Extra)
	if err != nil {
		// header.Extra hasn't been populated with IBFT extra-data yet
		// (e.g. mid-construction in Propose); hash it as-is.
		return h
	}
	stripped, encodeErr := EncodeExtra(vanity, withoutProposerSeal(extra))
	if encodeErr != nil {
		return h
	}
	cp := types.CopyHeader(h)
	cp.Extra = stripped
	return cp
}
