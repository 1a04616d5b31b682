package ibftlegacy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNewRulesetRequiresExplicitActivation(t *testing.T) {
	r, err := NewRuleset(100)
	require.NoError(t, err)
	require.False(t, r.Active(50))
	require.True(t, r.Active(100))
	require.True(t, r.Active(200))

	_, err = NewRuleset(0)
	require.ErrorIs(t, err, ErrMissingActivationBlock)
}

func TestNewTestRulesetActivatesFromGenesis(t *testing.T) {
	r := NewTestRuleset()
	require.True(t, r.Active(0))
	require.True(t, r.Active(1))
}

func TestValidateRejectsEmptyValidatorSet(t *testing.T) {
	proposer, _ := newTestProposer(t)
	proposer.Validators = &fixedValidatorSource{validators: nil}

	parent := &types.Header{Number: big.NewInt(0), GasLimit: 8_000_000, Time: 900}
	block, err := proposer.Propose(parent)
	require.NoError(t, err)

	ruleset := NewTestRuleset()
	err = ruleset.Validate(block.Header(), parent)
	require.ErrorIs(t, err, ErrEmptyValidatorSet)
}

func TestValidateRejectsNonMonotonicTimestamp(t *testing.T) {
	proposer, _ := newTestProposer(t)
	parent := &types.Header{Number: big.NewInt(0), GasLimit: 8_000_000, Time: 900}

	block, err := proposer.Propose(parent)
	require.NoError(t, err)

	tampered := types.CopyHeader(block.Header())
	tampered.Time = parent.Time

	ruleset := NewTestRuleset()
	err = ruleset.Validate(tampered, parent)
	require.ErrorIs(t, err, ErrNonMonotonicTimestamp)
}

func TestValidateRejectsProposerOutsideValidatorSet(t *testing.T) {
	proposer, _ := newTestProposer(t)
	decoy, err := crypto.GenerateKey()
	require.NoError(t, err)
	proposer.Validators = &fixedValidatorSource{validators: []common.Address{crypto.PubkeyToAddress(decoy.PublicKey)}}

	parent := &types.Header{Number: big.NewInt(0), GasLimit: 8_000_000, Time: 900}
	block, err := proposer.Propose(parent)
	require.NoError(t, err)

	ruleset := NewTestRuleset()
	err = ruleset.Validate(block.Header(), parent)
	require.ErrorIs(t, err, ErrProposerNotValidator)
}
