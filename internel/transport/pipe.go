package transport

import (
	"sync"
)

// Pipe is an in-process loopback transport: two ends joined by FIFOs. It
// satisfies the same contract as the socket transports and exists for tests.
// A Splitter can be installed to refragment outgoing bytes so that codec
// reassembly is actually exercised.
type Pipe struct {
	peer    *Pipe
	handler Handler

	// Splitter, when set, breaks each Send into smaller chunks before
	// delivery. Chunk boundaries carry no meaning to the receiver.
	Splitter func(b []byte) [][]byte

	in     chan []byte
	quit   chan struct{}
	mu     sync.Mutex
	closed bool
	down   sync.Once
}

// NewPair returns two connected pipe ends. Handlers must be installed with
// SetHandler before Connect.
func NewPair() (*Pipe, *Pipe) {
	a := &Pipe{in: make(chan []byte, 4096), quit: make(chan struct{})}
	b := &Pipe{in: make(chan []byte, 4096), quit: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *Pipe) SetHandler(h Handler) {
	p.handler = h
}

func (p *Pipe) Connect() {
	go func() {
		p.handler.OnConnected()
		for {
			select {
			case chunk := <-p.in:
				p.handler.OnBytesReceived(chunk)
			case <-p.quit:
				// Drain what was already accepted for delivery so a
				// graceful peer shutdown does not drop trailing frames.
				for {
					select {
					case chunk := <-p.in:
						p.handler.OnBytesReceived(chunk)
					default:
						p.disconnected()
						return
					}
				}
			}
		}
	}()
}

func (p *Pipe) Send(b []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}

	chunks := [][]byte{b}
	if p.Splitter != nil {
		chunks = p.Splitter(b)
	}
	for _, c := range chunks {
		select {
		case p.peer.in <- c:
		case <-p.peer.quit:
			return nil
		}
	}
	return nil
}

func (p *Pipe) Disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	p.peer.shutdown()
	p.disconnected()
}

func (p *Pipe) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
}

func (p *Pipe) disconnected() {
	p.down.Do(func() {
		p.handler.OnDisconnected()
	})
}
