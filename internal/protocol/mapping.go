package protocol

import (
	"fmt"
	"net/netip"

	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// MappingRequest asks the rendezvous for a peer's currently known endpoints.
type MappingRequest struct {
	PeerPubKey wirecrypto.PublicKey
	Timestamp  Timestamp
}

func (MappingRequest) MessageID() wire.MessageID { return IDMappingRequest }

func (MappingRequest) PublicBytes() ([]byte, error) { return nil, nil }

func (r MappingRequest) SecretBytes() ([]byte, error) {
	dst := wire.PutBytes(nil, r.PeerPubKey.Bytes())
	dst = encodeTimestamp(dst, r.Timestamp)
	return dst, nil
}

func DecodeMappingRequest(secret []byte) (MappingRequest, error) {
	keyBytes, rest, err := wire.TakeBytes(secret)
	if err != nil {
		return MappingRequest{}, fmt.Errorf("mapping request peer_pubkey: %w", err)
	}
	pub, err := wirecrypto.PublicKeyFromBytes(keyBytes)
	if err != nil {
		return MappingRequest{}, fmt.Errorf("mapping request peer_pubkey: %w", err)
	}
	ts, rest, err := decodeTimestamp(rest)
	if err != nil {
		return MappingRequest{}, fmt.Errorf("mapping request timestamp: %w", err)
	}
	if len(rest) != 0 {
		return MappingRequest{}, fmt.Errorf("mapping request: trailing bytes")
	}
	return MappingRequest{PeerPubKey: pub, Timestamp: ts}, nil
}

// MappingResponse lists a peer's currently known public endpoints.
type MappingResponse struct {
	PeerPubKey wirecrypto.PublicKey
	Endpoints  []netip.AddrPort
	Timestamp  Timestamp
}

func (MappingResponse) MessageID() wire.MessageID { return IDMappingResponse }

func (MappingResponse) PublicBytes() ([]byte, error) { return nil, nil }

func (r MappingResponse) SecretBytes() ([]byte, error) {
	dst := wire.PutBytes(nil, r.PeerPubKey.Bytes())
	dst = EncodeSocketAddressList(dst, r.Endpoints)
	dst = encodeTimestamp(dst, r.Timestamp)
	return dst, nil
}

func DecodeMappingResponse(secret []byte) (MappingResponse, error) {
	keyBytes, rest, err := wire.TakeBytes(secret)
	if err != nil {
		return MappingResponse{}, fmt.Errorf("mapping response peer_pubkey: %w", err)
	}
	pub, err := wirecrypto.PublicKeyFromBytes(keyBytes)
	if err != nil {
		return MappingResponse{}, fmt.Errorf("mapping response peer_pubkey: %w", err)
	}
	endpoints, rest, err := DecodeSocketAddressList(rest)
	if err != nil {
		return MappingResponse{}, fmt.Errorf("mapping response endpoints: %w", err)
	}
	ts, rest, err := decodeTimestamp(rest)
	if err != nil {
		return MappingResponse{}, fmt.Errorf("mapping response timestamp: %w", err)
	}
	if len(rest) != 0 {
		return MappingResponse{}, fmt.Errorf("mapping response: trailing bytes")
	}
	return MappingResponse{PeerPubKey: pub, Endpoints: endpoints, Timestamp: ts}, nil
}
