package ibftlegacy

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeExtraRoundTrips(t *testing.T) {
	vanity := PadVanity([]byte("hello"))
	in := ExtraData{
		Validators:     []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")},
		ProposerSeal:   make([]byte, SealLength),
		CommittedSeals: [][]byte{make([]byte, SealLength)},
	}

	raw, err := EncodeExtra(vanity, in)
	require.NoError(t, err)

	gotVanity, out, err := DecodeExtra(raw)
	require.NoError(t, err)
	require.Equal(t, vanity, gotVanity)
	require.Equal(t, in.Validators, out.Validators)
	require.Equal(t, in.ProposerSeal, out.ProposerSeal)
	require.Equal(t, in.CommittedSeals, out.CommittedSeals)
}

func TestDecodeExtraRejectsShortInput(t *testing.T) {
	_, _, err := DecodeExtra(make([]byte, ExtraVanity-1))
	require.ErrorIs(t, err, ErrInvalidExtraDataFormat)
}

func TestPadVanityTruncatesLongInput(t *testing.T) {
	long := make([]byte, ExtraVanity+10)
	for i := range long {
		long[i] = byte(i)
	}
	out := PadVanity(long)
	require.Equal(t, long[:ExtraVanity], out[:])
}

func TestWithoutProposerSealClearsOnlySeal(t *testing.T) {
	in := ExtraData{
		Validators:   []common.Address{common.HexToAddress("0x01")},
		ProposerSeal: []byte{1, 2, 3},
	}
	out := withoutProposerSeal(in)
	require.Nil(t, out.ProposerSeal)
	require.Equal(t, in.Validators, out.Validators)
}
