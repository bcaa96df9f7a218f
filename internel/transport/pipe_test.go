package transport

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

type sink struct {
	mu        sync.Mutex
	connected chan struct{}
	gone      chan struct{}
	received  []byte
}

func newSink() *sink {
	return &sink{
		connected: make(chan struct{}, 1),
		gone:      make(chan struct{}),
	}
}

func (s *sink) OnConnected() { s.connected <- struct{}{} }
func (s *sink) OnBytesReceived(chunk []byte) {
	s.mu.Lock()
	s.received = append(s.received, chunk...)
	s.mu.Unlock()
}
func (s *sink) OnDisconnected() { close(s.gone) }

func (s *sink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.received))
	copy(out, s.received)
	return out
}

func TestPipe_PreservesByteOrder(t *testing.T) {
	a, b := NewPair()
	sa, sb := newSink(), newSink()
	a.SetHandler(sa)
	b.SetHandler(sb)
	a.Connect()
	b.Connect()
	<-sa.connected
	<-sb.connected

	var want []byte
	for i := 0; i < 100; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 1+i%37)
		want = append(want, chunk...)
		if err := a.Send(chunk); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if bytes.Equal(sb.bytes(), want) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("received %d bytes, want %d", len(sb.bytes()), len(want))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPipe_SplitterRefragments(t *testing.T) {
	a, b := NewPair()
	sa, sb := newSink(), newSink()
	a.SetHandler(sa)
	b.SetHandler(sb)
	a.Splitter = func(p []byte) [][]byte {
		var out [][]byte
		for len(p) > 0 {
			n := 3
			if n > len(p) {
				n = len(p)
			}
			out = append(out, p[:n])
			p = p[n:]
		}
		return out
	}
	a.Connect()
	b.Connect()
	<-sa.connected
	<-sb.connected

	payload := []byte("0123456789abcdef")
	if err := a.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if bytes.Equal(sb.bytes(), payload) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("splitter lost bytes: %q", sb.bytes())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPipe_DisconnectSignalsBothEnds(t *testing.T) {
	a, b := NewPair()
	sa, sb := newSink(), newSink()
	a.SetHandler(sa)
	b.SetHandler(sb)
	a.Connect()
	b.Connect()
	<-sa.connected
	<-sb.connected

	a.Disconnect()

	select {
	case <-sa.gone:
	case <-time.After(5 * time.Second):
		t.Fatalf("local end not signalled")
	}
	select {
	case <-sb.gone:
	case <-time.After(5 * time.Second):
		t.Fatalf("peer end not signalled")
	}
}
