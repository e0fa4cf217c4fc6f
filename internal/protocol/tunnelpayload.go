package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/a7g4/warp/internal/wire"
)

// TunnelPayload carries application bytes read off a gate. Its tracer seeds
// the AEAD nonce directly (spec §4.6) instead of drawing one at random: this
// lets the receiver's de-duplication/replay bookkeeping key off the nonce
// without decrypting first, and is why TunnelPayload implements
// wire.NonceSourced while every other message type in this package does not.
type TunnelPayload struct {
	TunnelID          TunnelID
	Tracer            uint64
	ReconstructionTag ReconstructionTag
	Data              []byte
}

func (TunnelPayload) MessageID() wire.MessageID { return IDTunnelPayload }

func (TunnelPayload) PublicBytes() ([]byte, error) { return nil, nil }

// SecretBytes omits Tracer: it is the message's nonce-source field (see
// NonceBytes) and so must never also appear in the ciphertext body.
func (p TunnelPayload) SecretBytes() ([]byte, error) {
	dst := encodeTunnelID(nil, p.TunnelID)
	dst = encodeReconstructionTag(dst, p.ReconstructionTag)
	dst = wire.PutBytes(dst, p.Data)
	return dst, nil
}

// NonceBytes seeds the low 8 bytes of the AEAD nonce with the tracer, little
// endian. Encrypt fills the remaining nonce bytes with randomness.
func (p TunnelPayload) NonceBytes() []byte {
	return binary.LittleEndian.AppendUint64(nil, p.Tracer)
}

// DecodeTunnelPayload recovers Tracer from nonce (the on-the-wire nonce
// Decrypt returned) rather than from secret, since SecretBytes never encodes
// it.
func DecodeTunnelPayload(nonce, secret []byte) (TunnelPayload, error) {
	if len(nonce) < 8 {
		return TunnelPayload{}, fmt.Errorf("tunnel payload tracer: %w", &wire.InvalidFormatError{Reason: "truncated uint64"})
	}
	tracer := binary.LittleEndian.Uint64(nonce[:8])
	tunnelID, rest, err := decodeTunnelID(secret)
	if err != nil {
		return TunnelPayload{}, fmt.Errorf("tunnel payload tunnel_id: %w", err)
	}
	tag, rest, err := decodeReconstructionTag(rest)
	if err != nil {
		return TunnelPayload{}, fmt.Errorf("tunnel payload reconstruction_tag: %w", err)
	}
	data, rest, err := wire.TakeBytes(rest)
	if err != nil {
		return TunnelPayload{}, fmt.Errorf("tunnel payload data: %w", err)
	}
	if len(rest) != 0 {
		return TunnelPayload{}, fmt.Errorf("tunnel payload: trailing bytes")
	}
	return TunnelPayload{
		TunnelID:          tunnelID,
		Tracer:            tracer,
		ReconstructionTag: tag,
		Data:              data,
	}, nil
}
