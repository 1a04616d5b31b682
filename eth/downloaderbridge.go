package eth

import (
	"github.com/ferrous-chain/core/downloader"
	"github.com/ferrous-chain/core/wire"
)

// sessionPeer adapts a PeerSession to downloader.Peer, turning the
// downloader's origin/amount/skip/reverse parameters into a
// GET_BLOCK_HEADERS frame sent through the session's own mailbox.
type sessionPeer struct {
	session *PeerSession
}

func (p sessionPeer) ID() string { return p.session.ID() }

func (p sessionPeer) RequestHeaders(origin wire.HashOrNumber, amount, skip uint64, reverse bool) error {
	return p.session.Send(wire.GetBlockHeadersMsg, &wire.GetBlockHeadersPacket{
		Origin:  origin,
		Amount:  amount,
		Skip:    skip,
		Reverse: reverse,
	})
}

// RegistryPeerPool adapts a Registry to downloader.PeerPool: every
// session that has completed the STATUS handshake (State == Active) is a
// download candidate.
type RegistryPeerPool struct {
	Registry *Registry
}

// Candidates implements downloader.PeerPool.
func (r RegistryPeerPool) Candidates() []downloader.Peer {
	active := r.Registry.Active()
	out := make([]downloader.Peer, 0, len(active))
	for _, session := range active {
		if session.State() != Active {
			continue
		}
		out = append(out, sessionPeer{session: session})
	}
	return out
}
