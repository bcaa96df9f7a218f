// Package crypto holds the per-connection key material: the ephemeral ECDH
// handshake state, the HKDF key schedule and the directional AES-GCM session.
package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"lansync/internel/sas"
)

const (
	SaltSize  = 32
	KeySize   = 32
	NonceSize = 12
	SasSize   = 4
)

// HKDF info labels. These are protocol constants shared by both peers.
const (
	infoKeyC2S   = "local-p2p v1.1 key c2s"
	infoKeyS2C   = "local-p2p v1.1 key s2c"
	infoNonceC2S = "local-p2p v1.1 nonce c2s"
	infoNonceS2C = "local-p2p v1.1 nonce s2c"
	infoSas      = "local-p2p v1.1 sas"
)

var (
	// ErrCurveMismatch reports a peer key on anything but P-256.
	ErrCurveMismatch = errors.New("peer public key is not on curve P-256")
	// ErrAlreadyDerived reports a second Derive on the same session.
	ErrAlreadyDerived = errors.New("session keys already derived")
)

// Directional is the derived key material, already assigned to this side's
// transmit and receive slots. Every field is an exclusively owned copy.
type Directional struct {
	TxKey       []byte
	RxKey       []byte
	TxBaseNonce []byte
	RxBaseNonce []byte
}

// Close zeroes the directional material.
func (d *Directional) Close() {
	Zero(d.TxKey)
	Zero(d.RxKey)
	Zero(d.TxBaseNonce)
	Zero(d.RxBaseNonce)
}

// Session owns one ephemeral ECDH keypair and one 32-byte salt. Derive may
// be called exactly once; all intermediate material is zeroed before it
// returns.
type Session struct {
	priv    *ecdh.PrivateKey
	pubSPKI []byte
	salt    []byte
	derived bool
}

// NewSession generates a fresh P-256 keypair and random salt.
func NewSession() (*Session, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed generating ecdh keypair")
	}
	spki, err := x509.MarshalPKIXPublicKey(priv.PublicKey())
	if err != nil {
		return nil, errors.Wrapf(err, "failed exporting public key")
	}
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrapf(err, "failed drawing salt")
	}
	return &Session{
		priv:    priv,
		pubSPKI: spki,
		salt:    salt,
	}, nil
}

// PublicKey returns the SPKI DER encoding of the local public key.
func (s *Session) PublicKey() []byte {
	return s.pubSPKI
}

// Salt returns the local 32-byte salt.
func (s *Session) Salt() []byte {
	return s.salt
}

// Derive runs ECDH against the peer key, feeds the shared secret through
// HKDF-SHA256 and hands back the directionally assigned keys plus the SAS
// tokens. The client's salt goes first in the combined salt no matter which
// side derives.
func (s *Session) Derive(peerSPKI, peerSalt []byte, isServer bool) (*Directional, []string, error) {
	if s.derived {
		return nil, nil, ErrAlreadyDerived
	}
	s.derived = true

	peerPub, err := parsePeerKey(peerSPKI)
	if err != nil {
		return nil, nil, err
	}
	if len(peerSalt) != SaltSize {
		return nil, nil, errors.Errorf("peer salt must be %d bytes, got %d", SaltSize, len(peerSalt))
	}

	shared, err := s.priv.ECDH(peerPub)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "ecdh failed")
	}
	defer Zero(shared)

	combined := make([]byte, 0, 2*SaltSize)
	if isServer {
		combined = append(combined, peerSalt...)
		combined = append(combined, s.salt...)
	} else {
		combined = append(combined, s.salt...)
		combined = append(combined, peerSalt...)
	}
	defer Zero(combined)

	keyC2S, err := expand(shared, combined, infoKeyC2S, KeySize)
	if err != nil {
		return nil, nil, err
	}
	defer Zero(keyC2S)
	keyS2C, err := expand(shared, combined, infoKeyS2C, KeySize)
	if err != nil {
		return nil, nil, err
	}
	defer Zero(keyS2C)
	nonceC2S, err := expand(shared, combined, infoNonceC2S, NonceSize)
	if err != nil {
		return nil, nil, err
	}
	defer Zero(nonceC2S)
	nonceS2C, err := expand(shared, combined, infoNonceS2C, NonceSize)
	if err != nil {
		return nil, nil, err
	}
	defer Zero(nonceS2C)
	sasBytes, err := expand(shared, combined, infoSas, SasSize)
	if err != nil {
		return nil, nil, err
	}
	defer Zero(sasBytes)

	dir := &Directional{}
	if isServer {
		dir.TxKey = clone(keyS2C)
		dir.RxKey = clone(keyC2S)
		dir.TxBaseNonce = clone(nonceS2C)
		dir.RxBaseNonce = clone(nonceC2S)
	} else {
		dir.TxKey = clone(keyC2S)
		dir.RxKey = clone(keyS2C)
		dir.TxBaseNonce = clone(nonceC2S)
		dir.RxBaseNonce = clone(nonceS2C)
	}

	return dir, sas.Tokens(sasBytes), nil
}

// Close zeroes the salt and drops the private key.
func (s *Session) Close() {
	Zero(s.salt)
	s.priv = nil
}

func parsePeerKey(spki []byte) (*ecdh.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(spki)
	if err != nil {
		return nil, errors.Wrapf(err, "failed parsing peer public key")
	}
	switch pub := parsed.(type) {
	case *ecdsa.PublicKey:
		if pub.Curve != elliptic.P256() {
			return nil, ErrCurveMismatch
		}
		ecdhPub, err := pub.ECDH()
		if err != nil {
			return nil, errors.Wrapf(err, "failed converting peer public key")
		}
		return ecdhPub, nil
	case *ecdh.PublicKey:
		if pub.Curve() != ecdh.P256() {
			return nil, ErrCurveMismatch
		}
		return pub, nil
	default:
		return nil, ErrCurveMismatch
	}
}

func expand(ikm, salt []byte, info string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrapf(err, "hkdf read for %q", info)
	}
	return out, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
