package protocol

import (
	"fmt"

	"github.com/a7g4/warp/internal/wire"
)

// ReconstructionKind tags a TunnelPayload's redundancy/multipart scheme. Only
// Plain is acted upon by the ingress path; the other values are reserved wire
// slots for a future XOR-redundancy/reassembly scheme (spec §9, open question)
// and are never produced by this revision's accelerator.
type ReconstructionKind uint8

const (
	ReconstructionPlain ReconstructionKind = 0
)

// ReconstructionTag carries the kind plus reserved bytes for whatever metadata
// a future multipart scheme needs (shard index, group id, parity count, ...).
// This revision only ever produces ReconstructionPlain with empty Reserved.
type ReconstructionTag struct {
	Kind     ReconstructionKind
	Reserved []byte
}

// Plain is the tag every TunnelPayload egress currently uses.
func Plain() ReconstructionTag {
	return ReconstructionTag{Kind: ReconstructionPlain}
}

func encodeReconstructionTag(dst []byte, tag ReconstructionTag) []byte {
	dst = wire.PutUint8(dst, uint8(tag.Kind))
	return wire.PutBytes(dst, tag.Reserved)
}

func decodeReconstructionTag(src []byte) (ReconstructionTag, []byte, error) {
	kind, rest, err := wire.TakeUint8(src)
	if err != nil {
		return ReconstructionTag{}, nil, fmt.Errorf("reconstruction tag kind: %w", err)
	}
	reserved, rest, err := wire.TakeBytes(rest)
	if err != nil {
		return ReconstructionTag{}, nil, fmt.Errorf("reconstruction tag reserved bytes: %w", err)
	}
	return ReconstructionTag{Kind: ReconstructionKind(kind), Reserved: reserved}, rest, nil
}
