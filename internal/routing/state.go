// Package routing holds the hot-path routing state shared between the RX
// processor, the warp accelerator, and the interface manager: the current
// peer address list learned from the rendezvous, and the per-interface
// address overrides learned from direct peer traffic (spec.md §4.4).
package routing

import (
	"net/netip"

	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/watch"
)

// overrideKey scopes an override to the local interface it was learned on:
// multi-homed NATs rewrite source addresses differently per egress path, so
// the same logical peer address can need a different override per interface.
type overrideKey struct {
	interfaceName string
	addr          netip.AddrPort
}

// snapshot is the immutable value type published through the watch channel.
// handle_mapping_response and handle_peer_address_override both touch it, so
// it is published as one unit: resolve_peer_addresses must never observe a
// peer-address list from one update paired with overrides from another.
type snapshot struct {
	peerAddresses []netip.AddrPort
	overrides     map[overrideKey]netip.AddrPort
}

// State is the routing state described by spec.md §4.4.
type State struct {
	w *watch.Watch[snapshot]
}

// New constructs an empty State.
func New() *State {
	return &State{w: watch.New(snapshot{overrides: map[overrideKey]netip.AddrPort{}})}
}

// PeerAddresses returns the most recently learned peer address list.
func (s *State) PeerAddresses() []netip.AddrPort {
	return append([]netip.AddrPort(nil), s.w.Get().peerAddresses...)
}

// ActiveOverridesCount reports the number of active address overrides.
func (s *State) ActiveOverridesCount() int {
	return len(s.w.Get().overrides)
}

// HandleMappingResponse replaces the peer address list with resp's endpoints
// and prunes every override whose key is no longer among them.
func (s *State) HandleMappingResponse(resp protocol.MappingResponse) {
	s.w.Modify(func(cur snapshot) snapshot {
		stillKnown := make(map[netip.AddrPort]struct{}, len(resp.Endpoints))
		for _, a := range resp.Endpoints {
			stillKnown[a] = struct{}{}
		}

		next := snapshot{
			peerAddresses: append([]netip.AddrPort(nil), resp.Endpoints...),
			overrides:     make(map[overrideKey]netip.AddrPort, len(cur.overrides)),
		}
		for k, v := range cur.overrides {
			if _, ok := stillKnown[k.addr]; ok {
				next.overrides[k] = v
			}
		}
		return next
	})
}

// ResolvePeerAddresses returns, for each known peer address, the override
// address for interfaceName if one exists, else the address unchanged.
func (s *State) ResolvePeerAddresses(interfaceName string) []netip.AddrPort {
	cur := s.w.Get()
	out := make([]netip.AddrPort, len(cur.peerAddresses))
	for i, a := range cur.peerAddresses {
		if replacement, ok := cur.overrides[overrideKey{interfaceName: interfaceName, addr: a}]; ok {
			out[i] = replacement
		} else {
			out[i] = a
		}
	}
	return out
}

// HandlePeerAddressOverride records that, on interfaceName, msg.Replace
// should actually be reached at observedFrom.
func (s *State) HandlePeerAddressOverride(msg protocol.PeerAddressOverride, observedFrom netip.AddrPort, interfaceName string) {
	s.w.Modify(func(cur snapshot) snapshot {
		next := snapshot{
			peerAddresses: cur.peerAddresses,
			overrides:     make(map[overrideKey]netip.AddrPort, len(cur.overrides)+1),
		}
		for k, v := range cur.overrides {
			next.overrides[k] = v
		}
		next.overrides[overrideKey{interfaceName: interfaceName, addr: msg.Replace}] = observedFrom
		return next
	})
}
