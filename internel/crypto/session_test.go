package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/pkg/errors"
)

// handshakePair derives both sides of a handshake and returns their
// directional material plus SAS tokens.
func handshakePair(t *testing.T) (client, server *Directional, clientSas, serverSas []string) {
	t.Helper()
	c, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	s, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	client, clientSas, err = c.Derive(s.PublicKey(), s.Salt(), false)
	if err != nil {
		t.Fatalf("client derive failed: %v", err)
	}
	server, serverSas, err = s.Derive(c.PublicKey(), c.Salt(), true)
	if err != nil {
		t.Fatalf("server derive failed: %v", err)
	}
	return client, server, clientSas, serverSas
}

func TestDerive_DirectionalKeyAlignment(t *testing.T) {
	client, server, _, _ := handshakePair(t)

	if !bytes.Equal(client.TxKey, server.RxKey) {
		t.Errorf("client tx key != server rx key")
	}
	if !bytes.Equal(client.RxKey, server.TxKey) {
		t.Errorf("client rx key != server tx key")
	}
	if !bytes.Equal(client.TxBaseNonce, server.RxBaseNonce) {
		t.Errorf("client tx nonce != server rx nonce")
	}
	if !bytes.Equal(client.RxBaseNonce, server.TxBaseNonce) {
		t.Errorf("client rx nonce != server tx nonce")
	}
	if bytes.Equal(client.TxKey, client.RxKey) {
		t.Errorf("tx and rx keys must differ")
	}
	if bytes.Equal(client.TxBaseNonce, client.RxBaseNonce) {
		t.Errorf("tx and rx nonces must differ")
	}
}

func TestDerive_SasAgreement(t *testing.T) {
	_, _, clientSas, serverSas := handshakePair(t)

	if len(clientSas) != SasSize {
		t.Fatalf("sas has %d tokens, want %d", len(clientSas), SasSize)
	}
	for i := range clientSas {
		if clientSas[i] != serverSas[i] {
			t.Errorf("sas token %d differs: %q vs %q", i, clientSas[i], serverSas[i])
		}
	}
}

func TestDerive_OnlyOnce(t *testing.T) {
	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	b, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if _, _, err := a.Derive(b.PublicKey(), b.Salt(), false); err != nil {
		t.Fatalf("first derive failed: %v", err)
	}
	if _, _, err := a.Derive(b.PublicKey(), b.Salt(), false); !errors.Is(err, ErrAlreadyDerived) {
		t.Errorf("second derive err = %v, want ErrAlreadyDerived", err)
	}
}

func TestDerive_RejectsForeignCurve(t *testing.T) {
	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("p384 keygen failed: %v", err)
	}
	spki, err := x509.MarshalPKIXPublicKey(&p384.PublicKey)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	salt := make([]byte, SaltSize)
	if _, _, err := a.Derive(spki, salt, false); !errors.Is(err, ErrCurveMismatch) {
		t.Errorf("derive err = %v, want ErrCurveMismatch", err)
	}
}

func TestDerive_RejectsBadSalt(t *testing.T) {
	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	b, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if _, _, err := a.Derive(b.PublicKey(), make([]byte, 16), false); err == nil {
		t.Errorf("derive accepted a 16-byte salt")
	}
}

func TestDerive_RejectsGarbageKey(t *testing.T) {
	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	salt := make([]byte, SaltSize)
	if _, _, err := a.Derive([]byte("not a key"), salt, false); err == nil {
		t.Errorf("derive accepted garbage spki")
	}
}

func TestDirectional_CloseZeroes(t *testing.T) {
	client, _, _, _ := handshakePair(t)
	key := client.TxKey
	client.Close()
	for i, b := range key {
		if b != 0 {
			t.Fatalf("key byte %d not zeroed", i)
		}
	}
}
