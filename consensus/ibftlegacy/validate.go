package ibftlegacy

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrEmptyValidatorSet      = errors.New("ibftlegacy: empty validator set")
	ErrNonMonotonicTimestamp  = errors.New("ibftlegacy: timestamp not after parent")
	ErrGasLimitOutOfBounds    = errors.New("ibftlegacy: gas limit out of bounds")
	ErrProposerNotValidator   = errors.New("ibftlegacy: proposer is not a member of the validator set")
	ErrMissingActivationBlock = errors.New("ibftlegacy: ruleset requires an explicit activation block")

	// gasLimitBoundDivisor matches go-ethereum's own header validation:
	// consecutive gas limits must differ by less than parent/1024.
	gasLimitBoundDivisor uint64 = 1024
	minGasLimit          uint64 = 5000
)

// Ruleset is the IBFT-legacy validation gate a proposed header must pass
// against its parent. An unset activation block is only valid in test
// rulesets, constructed via NewTestRuleset; NewRuleset requires an
// explicit block.
type Ruleset struct {
	activation *uint64
	recovered  *lru.ARCCache
}

// NewRuleset builds a production ruleset active from the given block
// number onward. Omitting activation (the zero value) is a construction
// error -- production code must say explicitly when IBFT-legacy engages;
// activating from genesis on purpose goes through NewTestRuleset instead.
func NewRuleset(activationBlock uint64) (*Ruleset, error) {
	if activationBlock == 0 {
		return nil, ErrMissingActivationBlock
	}
	cache, err := lru.NewARC(256)
	if err != nil {
		return nil, err
	}
	return &Ruleset{activation: &activationBlock, recovered: cache}, nil
}

// NewTestRuleset builds a ruleset active from block 0, for use only in
// tests where naming a real fork block would be noise.
func NewTestRuleset() *Ruleset {
	cache, _ := lru.NewARC(256)
	zero := uint64(0)
	return &Ruleset{activation: &zero, recovered: cache}
}

// Active reports whether the ruleset applies at blockNumber.
func (r *Ruleset) Active(blockNumber uint64) bool {
	return r.activation != nil && blockNumber >= *r.activation
}

// Validate checks header against parent: non-empty validator list,
// extra-data round-trips, timestamp strictly after the parent's, gas
// limit within the bound-divisor envelope, and the recovered proposer is
// a member of the embedded validator set.
func (r *Ruleset) Validate(header, parent *types.Header) error {
	if r.activation == nil {
		return ErrMissingActivationBlock
	}

	_, extra, err := DecodeExtra(header.Extra)
	if err != nil {
		return fmt.Errorf("ibftlegacy: %w", err)
	}
	if len(extra.Validators) == 0 {
		return ErrEmptyValidatorSet
	}
	if err := validateCommittedSealLengths(extra.CommittedSeals); err != nil {
		return err
	}

	if header.Time <= parent.Time {
		return ErrNonMonotonicTimestamp
	}

	if err := r.validateGasLimit(header.GasLimit, parent.GasLimit); err != nil {
		return err
	}

	proposer, err := r.RecoverProposer(header)
	if err != nil {
		return err
	}
	if !containsAddress(extra.Validators, proposer) {
		return ErrProposerNotValidator
	}
	return nil
}

func (r *Ruleset) validateGasLimit(gasLimit, parentGasLimit uint64) error {
	if gasLimit < minGasLimit {
		return ErrGasLimitOutOfBounds
	}
	diff := int64(gasLimit) - int64(parentGasLimit)
	if diff < 0 {
		diff = -diff
	}
	limit := parentGasLimit / gasLimitBoundDivisor
	if uint64(diff) >= limit {
		return ErrGasLimitOutOfBounds
	}
	return nil
}

// RecoverProposer recovers the signing address from header's proposer
// seal, memoized by header hash in a bounded ARC cache so repeated
// validation of the same header never re-runs ecrecover.
func (r *Ruleset) RecoverProposer(header *types.Header) (common.Address, error) {
	key := header.Hash()
	if cached, ok := r.recovered.Get(key); ok {
		return cached.(common.Address), nil
	}

	_, extra, err := DecodeExtra(header.Extra)
	if err != nil {
		return common.Address{}, err
	}
	if len(extra.ProposerSeal) == 0 {
		return common.Address{}, errors.New("ibftlegacy: header carries no proposer seal")
	}

	digest := HeaderHash(header)
	pubkey, err := crypto.SigToPub(digest.Bytes(), extra.ProposerSeal)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.PubkeyToAddress(*pubkey)
	r.recovered.Add(key, addr)
	return addr, nil
}

func containsAddress(set []common.Address, addr common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}
