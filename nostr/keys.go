package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer produces signatures over event ids on behalf of one author key.
type Signer interface {
	PublicKey() string
	Sign(hash []byte) ([]byte, error)
}

// Keypair is a secp256k1 key used for BIP-340 Schnorr signatures.
type Keypair struct {
	priv   *btcec.PrivateKey
	pubHex string
}

func GenerateKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeypair(priv), nil
}

// ParseKeypair accepts a 64 character hex secret or an nsec1 string.
func ParseKeypair(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, prefixSecretKey) {
		decoded, err := DecodeSecretKey(secret)
		if err != nil {
			return nil, err
		}
		secret = decoded
	}

	raw, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret key: want 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return newKeypair(priv), nil
}

func newKeypair(priv *btcec.PrivateKey) *Keypair {
	return &Keypair{
		priv:   priv,
		pubHex: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// PublicKey returns the x-only public key in hex.
func (k *Keypair) PublicKey() string {
	return k.pubHex
}

func (k *Keypair) SecretHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

func (k *Keypair) Sign(hash []byte) ([]byte, error) {
	sig, err := schnorr.Sign(k.priv, hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifySignature checks a hex Schnorr signature of hash by the hex x-only key.
func VerifySignature(pubkey string, hash []byte, sigHex string) error {
	pubRaw, err := hex.DecodeString(pubkey)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrBadSignature, err)
	}
	pub, err := schnorr.ParsePubKey(pubRaw)
	if err != nil {
		return fmt.Errorf("%w: pubkey: %v", ErrBadSignature, err)
	}
	sigRaw, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("%w: sig: %v", ErrBadSignature, err)
	}
	sig, err := schnorr.ParseSignature(sigRaw)
	if err != nil {
		return fmt.Errorf("%w: sig: %v", ErrBadSignature, err)
	}
	if !sig.Verify(hash, pub) {
		return ErrBadSignature
	}
	return nil
}

// Sign fills in the author, id and signature of u.
func Sign(u UnsignedEvent, signer Signer) (Event, error) {
	tags := u.Tags
	if tags == nil {
		tags = Tags{}
	}
	ev := Event{
		PubKey:    signer.PublicKey(),
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      tags,
		Content:   u.Content,
	}
	id := ComputeID(ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content)
	sig, err := signer.Sign(id[:])
	if err != nil {
		return Event{}, fmt.Errorf("sign event: %w", err)
	}
	ev.ID = hex.EncodeToString(id[:])
	ev.Sig = hex.EncodeToString(sig)
	return ev, nil
}
