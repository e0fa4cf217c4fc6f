package wirecrypto

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the private key as its Base32-Crockford string, matching
// the teacher's convention of JSON-marshalling value objects as plain strings
// (infrastructure/settings.Host, infrastructure/settings.Encryption).
func (k PrivateKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PrivateKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid private key JSON: %w", err)
	}
	parsed, err := ParsePrivateKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(k.String())
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid public key JSON: %w", err)
	}
	if s == "" {
		*k = PublicKey{}
		return nil
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
