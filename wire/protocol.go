// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package wire frames the ten eth sub-protocol messages this core
// speaks: decoding inbound requests and encoding outbound responses. The
// outer RLPx transport that carries these frames is an external
// collaborator (see p2p.MsgReadWriter); this package only owns the
// message schema.
package wire

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/p2p"
)

// Name is the sub-protocol name advertised during the p2p capability
// handshake for the plain eth wire protocol.
const Name = "eth"

// Version63 is the only eth protocol version this core speaks.
const Version63 = 63

// IstanbulCapabilityName and IstanbulVersion64 are the capability name and
// version advertised by the Istanbul64 variant, which reuses the eth/63
// message codes and schema verbatim.
const (
	IstanbulCapabilityName = "istanbul"
	IstanbulVersion64      = 64
)

// Message codes for the ten message kinds this core speaks.
const (
	StatusMsg          = 0x00
	GetBlockHeadersMsg = 0x03
	BlockHeadersMsg    = 0x04
	GetBlockBodiesMsg  = 0x05
	BlockBodiesMsg     = 0x06
	NewBlockMsg        = 0x07
	GetNodeDataMsg     = 0x0d
	NodeDataMsg        = 0x0e
	GetReceiptsMsg     = 0x0f
	ReceiptsMsg        = 0x10
)

// ProtocolMaxMsgSize bounds a single decoded frame; anything larger is
// rejected before RLP decoding is even attempted.
const ProtocolMaxMsgSize = 10 * 1024 * 1024

// ErrMalformedFrame is returned whenever a frame's RLP structure or field
// widths violate the schema for its message code.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// ErrMsgTooLarge is returned when a frame exceeds ProtocolMaxMsgSize.
var ErrMsgTooLarge = errors.New("wire: message too large")

// CheckSize rejects oversized frames before decoding.
func CheckSize(msg p2p.Msg) error {
	if msg.Size > ProtocolMaxMsgSize {
		return fmt.Errorf("%w: %d > %d", ErrMsgTooLarge, msg.Size, ProtocolMaxMsgSize)
	}
	return nil
}

// Decode unmarshals msg into val, guaranteeing the backing buffer behind
// msg.Payload is released (via msg.Discard) on both the success and the
// failure path, and normalizing any decode error into ErrMalformedFrame.
func Decode(msg p2p.Msg, val interface{}) error {
	defer msg.Discard()
	if err := CheckSize(msg); err != nil {
		return err
	}
	if err := msg.Decode(val); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
