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

package eth

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/p2p"

	"github.com/ferrous-chain/core/wire"
)

// LocalStatus describes this node's identity for the STATUS handshake.
type LocalStatus struct {
	NetworkID   uint64
	Genesis     common.Hash
	Head        common.Hash
	TD          *big.Int
	Version     uint32
}

// Handshake performs the STATUS exchange: the local STATUS is sent
// immediately, then the first inbound frame on the sub-protocol MUST be
// STATUS with a matching network id and genesis hash, arriving within
// timeout. Any other inbound frame, or a STATUS that fails to decode or
// does not match, disconnects with BreachOfProtocol, deliberately never a
// softer reason; a timed-out wait disconnects with RemoteConnectionReset
// and returns ErrHandshakeTimeout, and a failed read disconnects with
// RemoteConnectionReset and returns ErrPeerGone.
func Handshake(p *PeerSession, local LocalStatus, timeout time.Duration) error {
	p.setState(StatusSent)
	status := wire.StatusPacket{
		ProtocolVersion: local.Version,
		NetworkID:       local.NetworkID,
		TD:              new(big.Int).Set(local.TD),
		Head:            local.Head,
		Genesis:         local.Genesis,
	}
	if err := p.Send(wire.StatusMsg, &status); err != nil {
		return err
	}

	msg, err := readMsgWithTimeout(p, timeout)
	if err == errHandshakeReadTimeout {
		p.Disconnect(ReasonRemoteConnectionReset)
		return ErrHandshakeTimeout
	}
	if err != nil {
		p.Disconnect(ReasonRemoteConnectionReset)
		return ErrPeerGone
	}
	if msg.Code != wire.StatusMsg {
		msg.Discard()
		p.Disconnect(ReasonBreachOfProtocol)
		return fmt.Errorf("eth: first message was code %#x, want STATUS", msg.Code)
	}

	var remote wire.StatusPacket
	if err := wire.Decode(msg, &remote); err != nil {
		p.Disconnect(ReasonBreachOfProtocol)
		return err
	}
	p.setState(StatusReceived)

	if remote.NetworkID != local.NetworkID || remote.Genesis != local.Genesis {
		p.Disconnect(ReasonBreachOfProtocol)
		return ErrIncompatibleStatus
	}

	p.SetStatus(remote.NetworkID, remote.Genesis, remote.TD, remote.Head)
	p.setState(Active)
	return nil
}

var errHandshakeReadTimeout = errors.New("eth: handshake read timed out")

// readMsgWithTimeout reads a single message off p, bounding the wait by
// timeout. p2p.MsgReadWriter has no deadline of its own, so the read runs
// on its own goroutine and is raced against a timer; a message that
// arrives after the timeout fires is discarded rather than delivered, and
// the goroutine is left to exit on its own once the read eventually
// returns.
func readMsgWithTimeout(p *PeerSession, timeout time.Duration) (p2p.Msg, error) {
	type result struct {
		msg p2p.Msg
		err error
	}
	resultc := make(chan result, 1)
	go func() {
		msg, err := p.ReadMsg()
		resultc <- result{msg: msg, err: err}
	}()

	select {
	case r := <-resultc:
		return r.msg, r.err
	case <-time.After(timeout):
		return p2p.Msg{}, errHandshakeReadTimeout
	}
}

// negotiateCapability is a thin helper over PeerSession.NegotiateProtocol
// that picks between the plain eth capability and the Istanbul64 variant,
// which share the same message codes and schema, preferring Istanbul64.
// Neither Server nor Handshake calls it.
func negotiateCapability(p *PeerSession) (string, uint, error) {
	if v, ok := p.NegotiateProtocol(wire.IstanbulCapabilityName, wire.IstanbulVersion64); ok {
		return wire.IstanbulCapabilityName, v, nil
	}
	if v, ok := p.NegotiateProtocol(wire.Name, wire.Version63); ok {
		return wire.Name, v, nil
	}
	return "", 0, fmt.Errorf("eth: no mutually supported capability (p2p caps %v)", p.capabilities)
}
