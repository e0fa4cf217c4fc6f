package protocol

import (
	"fmt"
	"net/netip"

	"github.com/a7g4/warp/internal/wire"
)

// PeerAddressOverride is sent peer-to-peer, outside the rendezvous, to tell
// the other side "address X stopped working, use Y instead" (spec §5.4). It
// rides the same peer cipher as TunnelPayload but carries no tracer of its
// own: overrides are infrequent enough that a random nonce is fine.
type PeerAddressOverride struct {
	Replace netip.AddrPort
}

func (PeerAddressOverride) MessageID() wire.MessageID { return IDPeerAddressOverride }

func (PeerAddressOverride) PublicBytes() ([]byte, error) { return nil, nil }

func (o PeerAddressOverride) SecretBytes() ([]byte, error) {
	return EncodeSocketAddress(nil, o.Replace), nil
}

func DecodePeerAddressOverride(secret []byte) (PeerAddressOverride, error) {
	addr, rest, err := DecodeSocketAddress(secret)
	if err != nil {
		return PeerAddressOverride{}, fmt.Errorf("peer address override replace: %w", err)
	}
	if len(rest) != 0 {
		return PeerAddressOverride{}, fmt.Errorf("peer address override: trailing bytes")
	}
	return PeerAddressOverride{Replace: addr}, nil
}
