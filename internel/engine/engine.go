// Package engine runs the session state machine as a message-passing actor.
// A single consumer goroutine drains the command queue in FIFO order; every
// state transition and every encrypt/decrypt happens on that consumer.
// Transport callbacks and application callers only ever enqueue.
package engine

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"lansync/internel/codec"
	"lansync/internel/crypto"
	. "lansync/internel/log"
	"lansync/internel/shared"
	"lansync/internel/transport"
	"lansync/internel/wire"
)

// Observer receives the engine's application events. All invocations happen
// on the consumer goroutine; implementations must return quickly or hand off.
type Observer interface {
	OnSasGenerated(sas []string)
	OnSessionSecured()
	OnError(msg string)
	OnRemoteTreeRequested()
	OnRemoteTreeReceived(files []shared.FileEntry)
	OnFileRequested(path string)
	OnFileChunkReceived(path string, offset uint64, data []byte)
	OnFileCompleteReceived(path string)
}

// Engine drives one secure session over one transport connection.
type Engine struct {
	id         string
	deviceName string
	isServer   bool

	transport transport.Conn
	observer  Observer
	q         *cmdQueue

	// Consumer-owned. state mirrors stateAtomic for cheap external reads.
	state       State
	stateAtomic atomic.Int32
	reasm       *codec.Reassembler
	session     *crypto.Session
	aead        *crypto.Aead
	peerName    string

	done chan struct{}
}

// New builds an engine. The transport must route its events into this engine
// (for socket transports, pass the engine as the transport handler). Set the
// observer before issuing the first command.
func New(deviceName string, isServer bool) *Engine {
	return &Engine{
		id:         ksuid.New().String(),
		deviceName: deviceName,
		isServer:   isServer,
		q:          newCmdQueue(),
		reasm:      codec.NewReassembler(),
		done:       make(chan struct{}),
	}
}

// Bind attaches the transport and starts the consumer.
func (e *Engine) Bind(t transport.Conn) {
	e.transport = t
	go e.consume()
}

func (e *Engine) SetObserver(obs Observer) {
	e.observer = obs
}

// CurrentState is safe to call from any goroutine.
func (e *Engine) CurrentState() State {
	return State(e.stateAtomic.Load())
}

// Done closes when the engine reaches Terminated and the consumer exits.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Id returns the per-connection session id stamped into logs.
func (e *Engine) Id() string {
	return e.id
}

// PeerName reports the device name from the peer's Hello, once seen.
func (e *Engine) PeerName() string {
	return e.peerName
}

// Public operations. Each enqueues a command and returns immediately.

func (e *Engine) StartConnection() {
	e.q.push(command{kind: cmdStartConnection})
}

func (e *Engine) ConfirmSas(accepted bool) {
	e.q.push(command{kind: cmdConfirmSas, accepted: accepted})
}

func (e *Engine) RequestRemoteTree() {
	e.q.push(command{kind: cmdRequestTree})
}

func (e *Engine) SendFileTree(files []shared.FileEntry) {
	e.q.push(command{kind: cmdSendTree, files: files})
}

func (e *Engine) RequestFile(path string) {
	e.q.push(command{kind: cmdRequestFile, path: path})
}

func (e *Engine) SendFileChunk(path string, offset uint64, data []byte) {
	e.q.push(command{kind: cmdSendFileChunk, path: path, offset: offset, data: data})
}

func (e *Engine) SendFileComplete(path string) {
	e.q.push(command{kind: cmdSendFileComplete, path: path})
}

// Transport handler. The reassembler runs on the transport's reader
// goroutine, which is the only caller of OnBytesReceived.

func (e *Engine) OnConnected() {
	e.q.push(command{kind: cmdTransportConnected})
}

func (e *Engine) OnBytesReceived(chunk []byte) {
	frames, err := e.reasm.Feed(chunk)
	if err != nil {
		e.q.push(command{kind: cmdFatal, msg: err.Error()})
		return
	}
	for _, f := range frames {
		e.q.push(command{kind: cmdNetworkFrame, payload: f})
	}
}

func (e *Engine) OnDisconnected() {
	e.q.push(command{kind: cmdTransportDisconnected})
}

// consume is the single consumer. It never yields inside a handler, which
// makes each state transition atomic.
func (e *Engine) consume() {
	for {
		c, ok := e.q.pop()
		if !ok {
			return
		}
		if e.state == Terminated {
			continue
		}
		if c.kind == cmdTransportDisconnected {
			Log.Debugf("[%v] transport disconnected", e.id)
			e.terminate()
			return
		}
		if err := e.handle(c); err != nil {
			Log.Errorf("[%v] fatal in %v: %v", e.id, c.kind, err)
			msg := err.Error()
			e.terminate()
			if e.observer != nil {
				e.observer.OnError(msg)
			}
			return
		}
	}
}

func (e *Engine) handle(c command) error {
	switch c.kind {
	case cmdStartConnection:
		if e.state != Idle {
			Log.Debugf("[%v] StartConnection ignored in %v", e.id, e.state)
			return nil
		}
		e.transport.Connect()
		return nil

	case cmdTransportConnected:
		if e.state >= HandshakingCrypto {
			return nil
		}
		e.setState(TcpConnected)
		if err := e.sendHello(); err != nil {
			return err
		}
		e.setState(HandshakingCrypto)
		return nil

	case cmdNetworkFrame:
		return e.processFrame(c.payload)

	case cmdConfirmSas:
		// The peer's AuthVerify may land before the local user answers,
		// so the session can already be secured here.
		if e.state != AwaitingSas && e.state != SessionSecured {
			return errors.Errorf("ConfirmSas in state %v", e.state)
		}
		if !c.accepted {
			return errors.New("user rejected sas")
		}
		return e.sendFrame(shared.AUTH, wire.EncodeAuthVerify(true))

	case cmdRequestTree:
		if err := e.requireSecured(c.kind); err != nil {
			return err
		}
		return e.sendFrame(shared.REQTREE, nil)

	case cmdSendTree:
		if err := e.requireSecured(c.kind); err != nil {
			return err
		}
		payload, err := wire.EncodeFileTree(c.files)
		if err != nil {
			return err
		}
		return e.sendFrame(shared.TREE, payload)

	case cmdRequestFile:
		if err := e.requireSecured(c.kind); err != nil {
			return err
		}
		payload, err := wire.EncodeFileRequest(c.path)
		if err != nil {
			return err
		}
		return e.sendFrame(shared.FILEREQ, payload)

	case cmdSendFileChunk:
		if err := e.requireSecured(c.kind); err != nil {
			return err
		}
		payload, err := wire.EncodeFileChunk(c.path, c.offset, c.data)
		if err != nil {
			return err
		}
		return e.sendFrame(shared.CHUNK, payload)

	case cmdSendFileComplete:
		if err := e.requireSecured(c.kind); err != nil {
			return err
		}
		payload, err := wire.EncodeFileComplete(c.path)
		if err != nil {
			return err
		}
		return e.sendFrame(shared.COMPLETE, payload)

	case cmdFatal:
		return errors.New(c.msg)

	default:
		return errors.Errorf("unknown command %d", c.kind)
	}
}

func (e *Engine) processFrame(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("empty frame")
	}
	msgType := payload[0]
	body := payload[1:]

	// Crypto cutover: from AwaitingSas on, every incoming body is AEAD
	// ciphertext bound to its tag.
	if e.state >= AwaitingSas {
		plain, err := e.aead.Decrypt(body, []byte{msgType})
		if err != nil {
			return err
		}
		body = plain
	}

	switch msgType {
	case shared.HELLO:
		return e.handleHello(body)
	case shared.KEYX:
		return e.handleKeyExchange(body)
	case shared.AUTH:
		return e.handleAuthVerify(body)
	case shared.REQTREE:
		if err := e.requireSecuredFrame(msgType); err != nil {
			return err
		}
		e.observer.OnRemoteTreeRequested()
		return nil
	case shared.TREE:
		if err := e.requireSecuredFrame(msgType); err != nil {
			return err
		}
		files, err := wire.DecodeFileTree(body)
		if err != nil {
			return err
		}
		e.observer.OnRemoteTreeReceived(files)
		return nil
	case shared.FILEREQ:
		if err := e.requireSecuredFrame(msgType); err != nil {
			return err
		}
		path, err := wire.DecodeFileRequest(body)
		if err != nil {
			return err
		}
		e.observer.OnFileRequested(path)
		return nil
	case shared.CHUNK:
		if err := e.requireSecuredFrame(msgType); err != nil {
			return err
		}
		path, offset, data, err := wire.DecodeFileChunk(body)
		if err != nil {
			return err
		}
		e.observer.OnFileChunkReceived(path, offset, data)
		return nil
	case shared.COMPLETE:
		if err := e.requireSecuredFrame(msgType); err != nil {
			return err
		}
		path, err := wire.DecodeFileComplete(body)
		if err != nil {
			return err
		}
		e.observer.OnFileCompleteReceived(path)
		return nil
	default:
		return errors.Errorf("unknown message tag 0x%02x", msgType)
	}
}

func (e *Engine) handleHello(body []byte) error {
	// The passive side answers a first Hello with its own before replying.
	if e.state < HandshakingCrypto {
		if err := e.sendHello(); err != nil {
			return err
		}
		e.setState(HandshakingCrypto)
	}
	if e.state != HandshakingCrypto {
		return errors.Errorf("HELLO in state %v", e.state)
	}

	hello, err := wire.DecodeHello(body)
	if err != nil {
		return err
	}
	if hello.Version != shared.ProtocolVersion {
		return errors.Errorf("version mismatch: peer %q, local %q", hello.Version, shared.ProtocolVersion)
	}
	e.peerName = hello.DeviceName
	Log.Debugf("[%v] hello from %q", e.id, hello.DeviceName)

	if e.session == nil {
		s, err := crypto.NewSession()
		if err != nil {
			return err
		}
		e.session = s
	}
	payload, err := wire.EncodeKeyExchange(e.session.PublicKey(), e.session.Salt())
	if err != nil {
		return err
	}
	return e.sendFrame(shared.KEYX, payload)
}

func (e *Engine) handleKeyExchange(body []byte) error {
	if e.state != HandshakingCrypto {
		return errors.Errorf("KEYX in state %v", e.state)
	}
	peerPub, peerSalt, err := wire.DecodeKeyExchange(body)
	if err != nil {
		return err
	}
	if e.session == nil {
		s, err := crypto.NewSession()
		if err != nil {
			return err
		}
		e.session = s
	}
	dir, sasTokens, err := e.session.Derive(peerPub, peerSalt, e.isServer)
	if err != nil {
		return err
	}
	aead, err := crypto.NewAead(dir)
	if err != nil {
		dir.Close()
		return err
	}
	e.aead = aead
	e.setState(AwaitingSas)
	e.observer.OnSasGenerated(sasTokens)
	return nil
}

func (e *Engine) handleAuthVerify(body []byte) error {
	if e.state == SessionSecured {
		// An in-flight duplicate; tolerated.
		Log.Debugf("[%v] duplicate AUTH ignored", e.id)
		return nil
	}
	if e.state != AwaitingSas {
		return errors.Errorf("AUTH in state %v", e.state)
	}
	accepted, err := wire.DecodeAuthVerify(body)
	if err != nil {
		return err
	}
	if !accepted {
		return errors.New("peer rejected sas")
	}
	e.setState(SessionSecured)
	e.observer.OnSessionSecured()
	return nil
}

func (e *Engine) sendHello() error {
	payload, err := wire.EncodeHello(e.deviceName)
	if err != nil {
		return err
	}
	return e.sendFrame(shared.HELLO, payload)
}

// sendFrame encodes, encrypts past the cutover and hands the framed bytes to
// the transport. Hello and KeyExchange always travel in the clear.
func (e *Engine) sendFrame(msgType byte, payload []byte) error {
	body := payload
	if msgType >= shared.AUTH && e.state >= AwaitingSas {
		enc, err := e.aead.Encrypt(payload, []byte{msgType})
		if err != nil {
			return err
		}
		body = enc
	}
	return e.transport.Send(codec.Encode(msgType, body))
}

func (e *Engine) requireSecured(k cmdKind) error {
	if e.state != SessionSecured {
		return errors.Errorf("%v in state %v", k, e.state)
	}
	return nil
}

func (e *Engine) requireSecuredFrame(msgType byte) error {
	if e.state != SessionSecured {
		return errors.Errorf("%v frame in state %v", shared.GetTypeName(msgType), e.state)
	}
	return nil
}

func (e *Engine) setState(s State) {
	e.state = s
	e.stateAtomic.Store(int32(s))
}

func (e *Engine) terminate() {
	e.setState(Terminated)
	if e.aead != nil {
		e.aead.Close()
	}
	if e.session != nil {
		e.session.Close()
	}
	e.q.close()
	e.transport.Disconnect()
	close(e.done)
}
