package protocol

import (
	"fmt"

	"github.com/a7g4/warp/internal/wire"
)

const (
	tunnelIDKindName = 0
	tunnelIDKindID   = 1
)

// TunnelID identifies a tunnel either by its configured name or by a numeric
// id (spec §3, "TunnelPayload"). Exactly one of Name/ID is meaningful,
// selected by IsName.
type TunnelID struct {
	IsName bool
	Name   string
	ID     uint64
}

// TunnelName constructs a name-addressed TunnelID.
func TunnelName(name string) TunnelID {
	return TunnelID{IsName: true, Name: name}
}

// TunnelByID constructs an id-addressed TunnelID.
func TunnelByID(id uint64) TunnelID {
	return TunnelID{IsName: false, ID: id}
}

func (t TunnelID) String() string {
	if t.IsName {
		return t.Name
	}
	return fmt.Sprintf("#%d", t.ID)
}

func encodeTunnelID(dst []byte, t TunnelID) []byte {
	if t.IsName {
		dst = wire.PutUint8(dst, tunnelIDKindName)
		return wire.PutString(dst, t.Name)
	}
	dst = wire.PutUint8(dst, tunnelIDKindID)
	return wire.PutUint64(dst, t.ID)
}

func decodeTunnelID(src []byte) (TunnelID, []byte, error) {
	kind, rest, err := wire.TakeUint8(src)
	if err != nil {
		return TunnelID{}, nil, fmt.Errorf("tunnel id kind: %w", err)
	}
	switch kind {
	case tunnelIDKindName:
		name, rest, err := wire.TakeString(rest)
		if err != nil {
			return TunnelID{}, nil, fmt.Errorf("tunnel id name: %w", err)
		}
		return TunnelName(name), rest, nil
	case tunnelIDKindID:
		id, rest, err := wire.TakeUint64(rest)
		if err != nil {
			return TunnelID{}, nil, fmt.Errorf("tunnel id value: %w", err)
		}
		return TunnelByID(id), rest, nil
	default:
		return TunnelID{}, nil, fmt.Errorf("unknown tunnel id kind %d", kind)
	}
}
