package config

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// DecodePrivateKey accepts a 64-byte ed25519 secret key encoded as base58 or
// as a JSON array of bytes, the format written by solana-keygen.
func DecodePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty key")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse key as json byte array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("key byte %d out of range: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode key as base58: %w", err)
		}
		raw = b
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	key := solana.PrivateKey(raw)
	// The trailing 32 bytes must be the public key derived from the seed.
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !solana.PublicKeyFromBytes(derived.Public().(ed25519.PublicKey)).Equals(key.PublicKey()) {
		return nil, errors.New("key public half does not match its seed")
	}
	return key, nil
}

// LoadKeypairFile reads a solana-keygen keypair file.
func LoadKeypairFile(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	return DecodePrivateKey(string(data))
}
