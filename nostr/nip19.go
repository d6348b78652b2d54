package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	prefixPublicKey = "npub"
	prefixSecretKey = "nsec"
)

// EncodePublicKey renders a hex public key as npub1...
func EncodePublicKey(pubHex string) (string, error) {
	return encodeKey(prefixPublicKey, pubHex)
}

// EncodeSecretKey renders a hex secret key as nsec1...
func EncodeSecretKey(secretHex string) (string, error) {
	return encodeKey(prefixSecretKey, secretHex)
}

func DecodePublicKey(code string) (string, error) {
	return decodeKey(prefixPublicKey, code)
}

func DecodeSecretKey(code string) (string, error) {
	return decodeKey(prefixSecretKey, code)
}

func encodeKey(hrp, keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("%s: %w", hrp, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%s: want 32 bytes, got %d", hrp, len(raw))
	}
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%s: %w", hrp, err)
	}
	return bech32.Encode(hrp, data)
}

func decodeKey(want, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("empty code")
	}
	hrp, data, err := bech32.Decode(strings.ToLower(code))
	if err != nil {
		return "", fmt.Errorf("bech32: %w", err)
	}
	if hrp != want {
		return "", fmt.Errorf("expected %s prefix, got %s", want, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("bech32: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%s: want 32 bytes, got %d", want, len(raw))
	}
	return hex.EncodeToString(raw), nil
}
