package crypto

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

// aeadPair builds two linked AEAD sessions out of a real handshake.
func aeadPair(t *testing.T) (client, server *Aead) {
	t.Helper()
	c, s, _, _ := handshakePair(t)
	client, err := NewAead(c)
	if err != nil {
		t.Fatalf("NewAead failed: %v", err)
	}
	server, err = NewAead(s)
	if err != nil {
		t.Fatalf("NewAead failed: %v", err)
	}
	return client, server
}

func TestAead_RoundTrip(t *testing.T) {
	client, server := aeadPair(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		plain := make([]byte, 1+rng.Intn(4096))
		rng.Read(plain)
		aad := []byte{byte(1 + rng.Intn(8))}

		ct, err := client.Encrypt(plain, aad)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if len(ct) != len(plain)+TagSize {
			t.Fatalf("ciphertext length %d, want %d", len(ct), len(plain)+TagSize)
		}
		got, err := server.Decrypt(ct, aad)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("round trip %d corrupted", i)
		}
	}
}

func TestAead_AadBinding(t *testing.T) {
	client, server := aeadPair(t)

	ct, err := client.Encrypt([]byte("Data Payload"), []byte{0x05})
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := server.Decrypt(ct, []byte{0x06}); !errors.Is(err, ErrAuthFail) {
		t.Errorf("decrypt with wrong aad err = %v, want ErrAuthFail", err)
	}
}

func TestAead_DroppedFrameDesynchronizes(t *testing.T) {
	client, server := aeadPair(t)
	aad := []byte{0x07}

	if _, err := client.Encrypt([]byte("first"), aad); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := client.Encrypt([]byte("second"), aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	// The receiver never saw the first frame; its counter is behind.
	if _, err := server.Decrypt(second, aad); !errors.Is(err, ErrAuthFail) {
		t.Errorf("decrypt after drop err = %v, want ErrAuthFail", err)
	}
}

func TestAead_DuplicatedFrameDesynchronizes(t *testing.T) {
	client, server := aeadPair(t)
	aad := []byte{0x07}

	ct, err := client.Encrypt([]byte("payload"), aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := server.Decrypt(ct, aad); err != nil {
		t.Fatalf("first decrypt failed: %v", err)
	}
	if _, err := server.Decrypt(ct, aad); !errors.Is(err, ErrAuthFail) {
		t.Errorf("replayed decrypt err = %v, want ErrAuthFail", err)
	}
}

func TestAead_TamperedCiphertextRejected(t *testing.T) {
	client, server := aeadPair(t)
	aad := []byte{0x05}

	ct, err := client.Encrypt([]byte("payload"), aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ct[0] ^= 0x01
	if _, err := server.Decrypt(ct, aad); !errors.Is(err, ErrAuthFail) {
		t.Errorf("tampered decrypt err = %v, want ErrAuthFail", err)
	}
	// The failed attempt must not have advanced the receive counter.
	ct[0] ^= 0x01
	if _, err := server.Decrypt(ct, aad); err != nil {
		t.Errorf("decrypt after failed attempt: %v", err)
	}
}

func TestAead_ShortCiphertextRejected(t *testing.T) {
	client, _ := aeadPair(t)
	if _, err := client.Decrypt(make([]byte, TagSize-1), []byte{0x05}); err == nil {
		t.Errorf("short ciphertext accepted")
	}
}

func TestAead_BothDirectionsIndependent(t *testing.T) {
	client, server := aeadPair(t)
	aad := []byte{0x04}

	c2s, err := client.Encrypt([]byte("from client"), aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	s2c, err := server.Encrypt([]byte("from server"), aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if got, err := server.Decrypt(c2s, aad); err != nil || string(got) != "from client" {
		t.Errorf("server decrypt: %q %v", got, err)
	}
	if got, err := client.Decrypt(s2c, aad); err != nil || string(got) != "from server" {
		t.Errorf("client decrypt: %q %v", got, err)
	}
}

func TestNonceFor(t *testing.T) {
	base := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	n0 := nonceFor(base, 0)
	if !bytes.Equal(n0[:], base) {
		t.Errorf("nonce 0 must equal the base")
	}
	n1 := nonceFor(base, 1)
	if n1[11] != base[11]^1 {
		t.Errorf("nonce 1 last byte = %#x, want %#x", n1[11], base[11]^1)
	}
	if !bytes.Equal(n0[:4], n1[:4]) {
		t.Errorf("leading 4 bytes must never change")
	}
}
