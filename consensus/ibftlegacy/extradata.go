// Package ibftlegacy implements the IBFT-legacy proposer glue: extra-data
// encoding, the signature-free header hash, candidate block assembly and
// the validation ruleset a proposed header must satisfy against its
// parent. The consensus state machine itself (round/view/message-quorum
// logic) is an external collaborator; this package only specifies the
// data it signs and checks.
package ibftlegacy

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// ExtraVanity is the fixed-size vanity prefix at the start of
// header.Extra, ahead of the RLP-encoded ExtraData payload.
const ExtraVanity = 32

// SealLength is the byte length of a single ECDSA seal (r, s, v packed
// the way crypto.Sign returns it).
const SealLength = 65

var (
	// ErrInvalidExtraDataFormat is returned when header.Extra is shorter
	// than ExtraVanity or its payload fails to RLP-decode.
	ErrInvalidExtraDataFormat = errors.New("ibftlegacy: invalid extra data format")

	// ErrInvalidCommittedSeals is returned when a committed seal isn't
	// exactly SealLength bytes.
	ErrInvalidCommittedSeals = errors.New("ibftlegacy: invalid committed seal length")
)

// ExtraData is the legacy IBFT payload embedded in header.Extra: a
// vanity prefix the wire format carries separately, the epoch's
// validator set, already-collected committed seals, and the proposer's
// own seal over the signature-free hash.
type ExtraData struct {
	Validators     []common.Address
	ProposerSeal   []byte
	CommittedSeals [][]byte
}

// extraDataRLP is the wire shape of ExtraData; kept distinct from the
// exported type so the vanity prefix never leaks into the RLP payload
// itself -- it is concatenated ahead of it in header.Extra.
type extraDataRLP struct {
	Validators     []common.Address
	ProposerSeal   []byte
	CommittedSeals [][]byte
}

// EncodeExtra assembles a full header.Extra value: the vanity bytes
// (padded/truncated to ExtraVanity) followed by the RLP encoding of
// extra's remaining fields.
func EncodeExtra(vanity [ExtraVanity]byte, extra ExtraData) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(&extraDataRLP{
		Validators:     extra.Validators,
		ProposerSeal:   extra.ProposerSeal,
		CommittedSeals: extra.CommittedSeals,
	})
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, vanity[:]...), payload...), nil
}

// DecodeExtra splits raw header.Extra back into its vanity prefix and
// decoded ExtraData payload.
func DecodeExtra(raw []byte) ([ExtraVanity]byte, ExtraData, error) {
	var vanity [ExtraVanity]byte
	if len(raw) < ExtraVanity {
		return vanity, ExtraData{}, ErrInvalidExtraDataFormat
	}
	copy(vanity[:], raw[:ExtraVanity])

	var decoded extraDataRLP
	if err := rlp.DecodeBytes(raw[ExtraVanity:], &decoded); err != nil {
		return vanity, ExtraData{}, ErrInvalidExtraDataFormat
	}
	return vanity, ExtraData{
		Validators:     decoded.Validators,
		ProposerSeal:   decoded.ProposerSeal,
		CommittedSeals: decoded.CommittedSeals,
	}, nil
}

// withoutProposerSeal returns extra with ProposerSeal cleared, the form
// used as input to the signature-free header hash (sighash.go).
func withoutProposerSeal(extra ExtraData) ExtraData {
	stripped := extra
	stripped.ProposerSeal = nil
	return stripped
}

func validateCommittedSealLengths(seals [][]byte) error {
	for _, seal := range seals {
		if len(seal) != SealLength {
			return ErrInvalidCommittedSeals
		}
	}
	return nil
}

// PadVanity truncates or zero-pads an arbitrary vanity string to
// ExtraVanity bytes.
func PadVanity(vanity []byte) [ExtraVanity]byte {
	var out [ExtraVanity]byte
	n := len(vanity)
	if n > ExtraVanity {
		n = ExtraVanity
	}
	copy(out[:], vanity[:n])
	return out
}
