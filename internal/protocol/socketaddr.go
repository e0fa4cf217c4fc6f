// Package protocol defines the rendezvous and tunnel wire message set (spec §6):
// each type implements wire.Message (and wire.NonceSourced when it designates a
// nonce-source field), classifying its fields into associated-data and
// encrypted groups the way the teacher's serviceframe/header codecs hand-roll
// length-prefixed binary layouts.
package protocol

import (
	"fmt"
	"net/netip"

	"github.com/a7g4/warp/internal/wire"
)

const (
	socketAddrFamilyV4 = 4
	socketAddrFamilyV6 = 6
)

// EncodeSocketAddress appends addr as: [1B family][4 or 16B IP][2B BE port].
// IPv6 is scaffolded but untested end-to-end (spec §1 Non-goals).
func EncodeSocketAddress(dst []byte, addr netip.AddrPort) []byte {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		ip4 := ip.As4()
		dst = wire.PutUint8(dst, socketAddrFamilyV4)
		dst = append(dst, ip4[:]...)
	} else {
		ip16 := ip.As16()
		dst = wire.PutUint8(dst, socketAddrFamilyV6)
		dst = append(dst, ip16[:]...)
	}
	return wire.PutUint16(dst, addr.Port())
}

// DecodeSocketAddress reverses EncodeSocketAddress.
func DecodeSocketAddress(src []byte) (netip.AddrPort, []byte, error) {
	family, rest, err := wire.TakeUint8(src)
	if err != nil {
		return netip.AddrPort{}, nil, fmt.Errorf("socket address family: %w", err)
	}

	var ip netip.Addr
	switch family {
	case socketAddrFamilyV4:
		if len(rest) < 4 {
			return netip.AddrPort{}, nil, fmt.Errorf("truncated IPv4 address")
		}
		var b [4]byte
		copy(b[:], rest[:4])
		ip = netip.AddrFrom4(b)
		rest = rest[4:]
	case socketAddrFamilyV6:
		if len(rest) < 16 {
			return netip.AddrPort{}, nil, fmt.Errorf("truncated IPv6 address")
		}
		var b [16]byte
		copy(b[:], rest[:16])
		ip = netip.AddrFrom16(b)
		rest = rest[16:]
	default:
		return netip.AddrPort{}, nil, fmt.Errorf("unknown socket address family %d", family)
	}

	port, rest, err := wire.TakeUint16(rest)
	if err != nil {
		return netip.AddrPort{}, nil, fmt.Errorf("socket address port: %w", err)
	}
	return netip.AddrPortFrom(ip, port), rest, nil
}

// EncodeSocketAddressList appends an 8-byte count followed by each address.
func EncodeSocketAddressList(dst []byte, addrs []netip.AddrPort) []byte {
	dst = wire.PutUint64(dst, uint64(len(addrs)))
	for _, a := range addrs {
		dst = EncodeSocketAddress(dst, a)
	}
	return dst
}

// DecodeSocketAddressList reverses EncodeSocketAddressList.
func DecodeSocketAddressList(src []byte) ([]netip.AddrPort, []byte, error) {
	count, rest, err := wire.TakeUint64(src)
	if err != nil {
		return nil, nil, fmt.Errorf("socket address list count: %w", err)
	}
	addrs := make([]netip.AddrPort, 0, count)
	for i := uint64(0); i < count; i++ {
		var a netip.AddrPort
		a, rest, err = DecodeSocketAddress(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("socket address list entry %d: %w", i, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rest, nil
}
