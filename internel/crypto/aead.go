package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	TagSize = 16

	seqMax = ^uint64(0)
)

var (
	// ErrAuthFail reports an AEAD tag verification failure. Fatal; the
	// frame must not be delivered.
	ErrAuthFail = errors.New("authentication failed")
	// ErrSeqExhausted reports a saturated sequence counter.
	ErrSeqExhausted = errors.New("sequence exhausted")
)

// Aead is the established AES-256-GCM session. The nonce for frame n in a
// direction is that direction's base nonce with the trailing 8 bytes XORed
// against big_endian_u64(n). Counters advance exactly once per successful
// call, matching the paired counters on the peer.
type Aead struct {
	dir    *Directional
	sealer cipher.AEAD
	opener cipher.AEAD
	txSeq  uint64
	rxSeq  uint64
}

// NewAead takes ownership of the directional key material.
func NewAead(dir *Directional) (*Aead, error) {
	sealer, err := newGCM(dir.TxKey)
	if err != nil {
		return nil, err
	}
	opener, err := newGCM(dir.RxKey)
	if err != nil {
		return nil, err
	}
	return &Aead{
		dir:    dir,
		sealer: sealer,
		opener: opener,
	}, nil
}

// Encrypt seals plaintext under the next transmit nonce and returns
// ciphertext||tag.
func (a *Aead) Encrypt(plaintext, aad []byte) ([]byte, error) {
	if a.txSeq == seqMax {
		return nil, ErrSeqExhausted
	}
	nonce := nonceFor(a.dir.TxBaseNonce, a.txSeq)
	out := a.sealer.Seal(nil, nonce[:], plaintext, aad)
	a.txSeq++
	return out, nil
}

// Decrypt verifies and opens ciphertext||tag under the next receive nonce.
func (a *Aead) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, errors.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}
	if a.rxSeq == seqMax {
		return nil, ErrSeqExhausted
	}
	nonce := nonceFor(a.dir.RxBaseNonce, a.rxSeq)
	plain, err := a.opener.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFail
	}
	a.rxSeq++
	return plain, nil
}

// Close zeroes the key material.
func (a *Aead) Close() {
	if a.dir != nil {
		a.dir.Close()
	}
}

func nonceFor(base []byte, seq uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:], base)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], seq)
	for i := 0; i < 8; i++ {
		nonce[NonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed building aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrapf(err, "failed building gcm")
	}
	return gcm, nil
}
