package wire

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Encrypt implements the encryption operation of spec §4.1: serialize the
// associated-data and encrypted field groups, build a nonce (seeded from the
// message's nonce-source field when one is declared, otherwise fully random),
// seal secret||message_id under AEAD with aad as associated data, and return
// the resulting WireMessage.
func Encrypt(c cipher.AEAD, m Message) (WireMessage, error) {
	public, err := m.PublicBytes()
	if err != nil {
		return WireMessage{}, fmt.Errorf("encode public fields: %w", err)
	}
	secret, err := m.SecretBytes()
	if err != nil {
		return WireMessage{}, fmt.Errorf("encode secret fields: %w", err)
	}
	if len(public) == 0 && len(secret) == 0 {
		return WireMessage{}, &InvalidFormatError{Reason: "message has neither public nor secret fields"}
	}

	nonce := make([]byte, c.NonceSize())
	if src, ok := HasNonceSource(m); ok {
		n := copy(nonce, src)
		if n < len(nonce) {
			if _, err := io.ReadFull(rand.Reader, nonce[n:]); err != nil {
				return WireMessage{}, fmt.Errorf("fill nonce randomness: %w", err)
			}
		}
	} else {
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return WireMessage{}, fmt.Errorf("draw random nonce: %w", err)
		}
	}

	plaintext := make([]byte, 0, len(secret)+1)
	plaintext = append(plaintext, secret...)
	plaintext = append(plaintext, byte(m.MessageID()))

	ciphertext := c.Seal(nil, nonce, plaintext, public)

	return WireMessage{Nonce: nonce, Ciphertext: ciphertext, AssociatedData: public}, nil
}

// Decrypted holds the result of opening a WireMessage before any particular
// message type's field parsing has run.
type Decrypted struct {
	ID     MessageID
	Public []byte
	Secret []byte
	Nonce  []byte
}

// Decrypt implements the decryption operation of spec §4.1: open the AEAD
// ciphertext under aad, pop the trailing message-id byte, and return the
// remaining parts for field-level decoding by the caller.
func Decrypt(c cipher.AEAD, wm WireMessage) (Decrypted, error) {
	if len(wm.Nonce) != c.NonceSize() {
		return Decrypted{}, &InvalidFormatError{Reason: "wrong nonce size"}
	}
	plaintext, err := c.Open(nil, wm.Nonce, wm.Ciphertext, wm.AssociatedData)
	if err != nil {
		return Decrypted{}, &DecryptionError{Cause: err}
	}
	if len(plaintext) == 0 {
		return Decrypted{}, &InvalidFormatError{Reason: "empty plaintext: missing message id"}
	}
	id := MessageID(plaintext[len(plaintext)-1])
	secret := plaintext[:len(plaintext)-1]
	return Decrypted{ID: id, Public: wm.AssociatedData, Secret: secret, Nonce: wm.Nonce}, nil
}

// Expect verifies d carries the expected message ID, returning
// *UnexpectedMessageIDError otherwise.
func (d Decrypted) Expect(want MessageID) error {
	if d.ID != want {
		return &UnexpectedMessageIDError{Got: d.ID, Want: want}
	}
	return nil
}
