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

package wire

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// StatusPacket is the STATUS (0x00) handshake payload.
type StatusPacket struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              *big.Int
	Head            common.Hash
	Genesis         common.Hash
}

// NewBlockPacket is the NEW_BLOCK (0x07) payload: a freshly sealed block
// together with the chain's cumulative difficulty through it.
type NewBlockPacket struct {
	Block *types.Block
	TD    *big.Int
}

// HashOrNumber is a two-case wire value: either an origin hash or an
// origin block number, never both. It mirrors the real eth/62+ encoding
// where the two forms are distinguished purely by RLP payload length (a
// hash is exactly 32 bytes; a number is a variable-length integer).
type HashOrNumber struct {
	Hash   common.Hash
	Number uint64
}

// EncodeRLP implements rlp.Encoder.
func (hn *HashOrNumber) EncodeRLP(w io.Writer) error {
	if hn.Hash == (common.Hash{}) {
		return rlp.Encode(w, hn.Number)
	}
	if hn.Number != 0 {
		return fmt.Errorf("wire: both origin hash (%x) and number (%d) provided", hn.Hash, hn.Number)
	}
	return rlp.Encode(w, hn.Hash)
}

// DecodeRLP implements rlp.Decoder, distinguishing a hash from a number by
// the encoded payload length.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	_, size, err := s.Kind()
	if err != nil {
		return err
	}
	origin, err := s.Raw()
	if err != nil {
		return err
	}
	if size == 32 {
		hn.Number = 0
		return rlp.DecodeBytes(origin, &hn.Hash)
	}
	hn.Hash = common.Hash{}
	return rlp.DecodeBytes(origin, &hn.Number)
}

// GetBlockHeadersPacket is the GET_BLOCK_HEADERS (0x03) request payload.
type GetBlockHeadersPacket struct {
	Origin  HashOrNumber
	Amount  uint64
	Skip    uint64
	Reverse bool
}

// BlockHeadersPacket is the BLOCK_HEADERS (0x04) response payload.
type BlockHeadersPacket []*types.Header

// GetBlockBodiesPacket is the GET_BLOCK_BODIES (0x05) request payload.
type GetBlockBodiesPacket []common.Hash

// BlockBodiesPacket is the BLOCK_BODIES (0x06) response payload.
type BlockBodiesPacket []*types.Body

// GetReceiptsPacket is the GET_RECEIPTS (0x0f) request payload.
type GetReceiptsPacket []common.Hash

// ReceiptsPacket is the RECEIPTS (0x10) response payload.
type ReceiptsPacket []types.Receipts

// GetNodeDataPacket is the GET_NODE_DATA (0x0d) request payload.
type GetNodeDataPacket []common.Hash

// NodeDataPacket is the NODE_DATA (0x0e) response payload.
type NodeDataPacket [][]byte
