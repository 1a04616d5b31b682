package ibftlegacy

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
)

// GasLimitPolicy computes the next block's gas limit from its parent, an
// injected collaborator the proposer calls rather than hard-coding a
// gas-limit adjustment rule.
type GasLimitPolicy func(parentGasLimit uint64) uint64

// Signer produces an ECDSA signature over a digest. Proposer calls it
// with the IBFT-legacy signature-free header hash.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// EpochValidatorSource resolves the active validator set at a given
// block number, letting the proposer be driven across epoch boundaries
// without the caller hand-computing the set.
type EpochValidatorSource interface {
	ValidatorsAt(blockNumber uint64) []common.Address
}

// Proposer assembles candidate blocks for the IBFT-legacy engine.
type Proposer struct {
	GasLimit   GasLimitPolicy
	Validators EpochValidatorSource
	Signer     Signer
	Vanity     [ExtraVanity]byte
	Clock      func() time.Time
}

// Propose builds a candidate block atop parent whose header embeds a
// well-formed ExtraData (validator set, empty committed seals, and a
// proposer signature over the signature-free hash) and an empty body.
// Transaction execution is out of scope here; an empty body is
// sufficient for the header to pass validation.
func (p *Proposer) Propose(parent *types.Header) (*types.Block, error) {
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).Add(parent.Number, big.NewInt(1)),
		GasLimit:   p.GasLimit(parent.GasLimit),
		Time:       p.timestamp(parent),
		Difficulty: big.NewInt(1),
	}

	validators := p.Validators.ValidatorsAt(header.Number.Uint64())
	extra, err := EncodeExtra(p.Vanity, ExtraData{
		Validators:     validators,
		CommittedSeals: [][]byte{},
	})
	if err != nil {
		return nil, err
	}
	header.Extra = extra

	digest := HeaderHash(header)
	seal, err := p.Signer.Sign(digest.Bytes())
	if err != nil {
		return nil, err
	}

	_, signed, decodeErr := DecodeExtra(header.Extra)
	if decodeErr != nil {
		return nil, decodeErr
	}
	signed.ProposerSeal = seal
	finalExtra, err := EncodeExtra(p.Vanity, signed)
	if err != nil {
		return nil, err
	}
	header.Extra = finalExtra

	return types.NewBlock(header, nil, nil, nil, trie.NewStackTrie(nil)), nil
}

func (p *Proposer) timestamp(parent *types.Header) uint64 {
	now := uint64(0)
	if p.Clock != nil {
		now = uint64(p.Clock().Unix())
	}
	if now <= parent.Time {
		return parent.Time + 1
	}
	return now
}
