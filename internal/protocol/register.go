package protocol

import (
	"fmt"
	"net/netip"

	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// RegisterRequest is the only message in the protocol that carries its sender's
// public key in the clear (spec §6): the rendezvous server uses it to bootstrap
// the per-peer cipher for a client it has never seen before.
type RegisterRequest struct {
	PubKey    wirecrypto.PublicKey
	Timestamp Timestamp
}

func (RegisterRequest) MessageID() wire.MessageID { return IDRegisterRequest }

func (r RegisterRequest) PublicBytes() ([]byte, error) {
	return wire.PutBytes(nil, r.PubKey.Bytes()), nil
}

func (r RegisterRequest) SecretBytes() ([]byte, error) {
	return encodeTimestamp(nil, r.Timestamp), nil
}

// PeekRegisterRequestPubKey extracts the sender's pubkey from a RegisterRequest's
// associated-data without decrypting the message. The rendezvous receive loop
// uses this to derive the per-peer cipher before it can call wire.Decrypt.
func PeekRegisterRequestPubKey(public []byte) (wirecrypto.PublicKey, error) {
	keyBytes, rest, err := wire.TakeBytes(public)
	if err != nil {
		return wirecrypto.PublicKey{}, fmt.Errorf("register request pubkey: %w", err)
	}
	if len(rest) != 0 {
		return wirecrypto.PublicKey{}, fmt.Errorf("register request: trailing public bytes")
	}
	return wirecrypto.PublicKeyFromBytes(keyBytes)
}

func DecodeRegisterRequest(public, secret []byte) (RegisterRequest, error) {
	keyBytes, rest, err := wire.TakeBytes(public)
	if err != nil {
		return RegisterRequest{}, fmt.Errorf("register request pubkey: %w", err)
	}
	if len(rest) != 0 {
		return RegisterRequest{}, fmt.Errorf("register request: trailing public bytes")
	}
	pub, err := wirecrypto.PublicKeyFromBytes(keyBytes)
	if err != nil {
		return RegisterRequest{}, fmt.Errorf("register request pubkey: %w", err)
	}
	ts, rest, err := decodeTimestamp(secret)
	if err != nil {
		return RegisterRequest{}, fmt.Errorf("register request timestamp: %w", err)
	}
	if len(rest) != 0 {
		return RegisterRequest{}, fmt.Errorf("register request: trailing secret bytes")
	}
	return RegisterRequest{PubKey: pub, Timestamp: ts}, nil
}

// RegisterResponse acknowledges a RegisterRequest with the address the
// rendezvous observed the request arriving from.
type RegisterResponse struct {
	Address          netip.AddrPort
	Timestamp        Timestamp
	RequestTimestamp Timestamp
}

func (RegisterResponse) MessageID() wire.MessageID { return IDRegisterResponse }

func (RegisterResponse) PublicBytes() ([]byte, error) { return nil, nil }

func (r RegisterResponse) SecretBytes() ([]byte, error) {
	dst := EncodeSocketAddress(nil, r.Address)
	dst = encodeTimestamp(dst, r.Timestamp)
	dst = encodeTimestamp(dst, r.RequestTimestamp)
	return dst, nil
}

func DecodeRegisterResponse(secret []byte) (RegisterResponse, error) {
	addr, rest, err := DecodeSocketAddress(secret)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("register response address: %w", err)
	}
	ts, rest, err := decodeTimestamp(rest)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("register response timestamp: %w", err)
	}
	reqTs, rest, err := decodeTimestamp(rest)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("register response request_timestamp: %w", err)
	}
	if len(rest) != 0 {
		return RegisterResponse{}, fmt.Errorf("register response: trailing bytes")
	}
	return RegisterResponse{Address: addr, Timestamp: ts, RequestTimestamp: reqTs}, nil
}

// DeregisterRequest asks the rendezvous to drop an address from a pubkey's set.
type DeregisterRequest struct {
	PubKey    wirecrypto.PublicKey
	Timestamp Timestamp
}

func (DeregisterRequest) MessageID() wire.MessageID { return IDDeregisterRequest }

func (r DeregisterRequest) PublicBytes() ([]byte, error) {
	return wire.PutBytes(nil, r.PubKey.Bytes()), nil
}

func (r DeregisterRequest) SecretBytes() ([]byte, error) {
	return encodeTimestamp(nil, r.Timestamp), nil
}

func DecodeDeregisterRequest(public, secret []byte) (DeregisterRequest, error) {
	keyBytes, rest, err := wire.TakeBytes(public)
	if err != nil {
		return DeregisterRequest{}, fmt.Errorf("deregister request pubkey: %w", err)
	}
	if len(rest) != 0 {
		return DeregisterRequest{}, fmt.Errorf("deregister request: trailing public bytes")
	}
	pub, err := wirecrypto.PublicKeyFromBytes(keyBytes)
	if err != nil {
		return DeregisterRequest{}, fmt.Errorf("deregister request pubkey: %w", err)
	}
	ts, rest, err := decodeTimestamp(secret)
	if err != nil {
		return DeregisterRequest{}, fmt.Errorf("deregister request timestamp: %w", err)
	}
	if len(rest) != 0 {
		return DeregisterRequest{}, fmt.Errorf("deregister request: trailing secret bytes")
	}
	return DeregisterRequest{PubKey: pub, Timestamp: ts}, nil
}

// DeregisterResponse acknowledges a DeregisterRequest.
type DeregisterResponse struct {
	Timestamp        Timestamp
	RequestTimestamp Timestamp
}

func (DeregisterResponse) MessageID() wire.MessageID { return IDDeregisterResponse }

func (DeregisterResponse) PublicBytes() ([]byte, error) { return nil, nil }

func (r DeregisterResponse) SecretBytes() ([]byte, error) {
	dst := encodeTimestamp(nil, r.Timestamp)
	dst = encodeTimestamp(dst, r.RequestTimestamp)
	return dst, nil
}

func DecodeDeregisterResponse(secret []byte) (DeregisterResponse, error) {
	ts, rest, err := decodeTimestamp(secret)
	if err != nil {
		return DeregisterResponse{}, fmt.Errorf("deregister response timestamp: %w", err)
	}
	reqTs, rest, err := decodeTimestamp(rest)
	if err != nil {
		return DeregisterResponse{}, fmt.Errorf("deregister response request_timestamp: %w", err)
	}
	if len(rest) != 0 {
		return DeregisterResponse{}, fmt.Errorf("deregister response: trailing bytes")
	}
	return DeregisterResponse{Timestamp: ts, RequestTimestamp: reqTs}, nil
}
