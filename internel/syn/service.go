// Package syn drives the application layer on top of the engine: the
// responder hooks that serve tree and file requests, and the one-shot pull
// that mirrors the peer's root into the local root.
package syn

import (
	"os"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"

	"lansync/internel/engine"
	"lansync/internel/fs"
	. "lansync/internel/log"
	"lansync/internel/shared"
)

const workerPoolSize = 16

// Service is the engine observer wiring both roles together. The responder
// hooks are registered unconditionally on both sides; only the client runs
// the pull. Session-level events are re-exposed on channels for the caller.
type Service struct {
	Puller *Puller

	// HashManifest asks serveTree to fill content hashes into the manifest
	// it sends. Off by default; hash.StartHash must have been called.
	HashManifest bool

	eng  *engine.Engine
	root string
	pool *ants.Pool

	sasCh     chan []string
	securedCh chan struct{}
	errCh     chan string
}

func NewService(eng *engine.Engine, root string) (*Service, error) {
	pool, err := ants.NewPool(workerPoolSize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed building worker pool")
	}
	s := &Service{
		eng:       eng,
		root:      root,
		pool:      pool,
		sasCh:     make(chan []string, 1),
		securedCh: make(chan struct{}, 1),
		errCh:     make(chan string, 1),
	}
	s.Puller = newPuller(eng, root)
	return s, nil
}

// Sas delivers the SAS tokens once the handshake derives them.
func (s *Service) Sas() <-chan []string {
	return s.sasCh
}

// Secured signals once the session reaches SessionSecured.
func (s *Service) Secured() <-chan struct{} {
	return s.securedCh
}

// Errors delivers the engine's fatal report, if any.
func (s *Service) Errors() <-chan string {
	return s.errCh
}

func (s *Service) Release() {
	s.pool.Release()
}

// engine.Observer. All of these fire on the engine consumer; anything that
// touches the disk for reading is handed to the pool so the consumer stays
// responsive.

func (s *Service) OnSasGenerated(sas []string) {
	select {
	case s.sasCh <- sas:
	default:
	}
}

func (s *Service) OnSessionSecured() {
	select {
	case s.securedCh <- struct{}{}:
	default:
	}
}

func (s *Service) OnError(msg string) {
	s.Puller.fail(errors.New(msg))
	select {
	case s.errCh <- msg:
	default:
	}
}

func (s *Service) OnRemoteTreeRequested() {
	if err := s.pool.Submit(s.serveTree); err != nil {
		Log.Errorln("submit tree scan", err)
	}
}

func (s *Service) OnFileRequested(path string) {
	if err := s.pool.Submit(func() { s.serveFile(path) }); err != nil {
		Log.Errorln("submit file stream", err)
	}
}

func (s *Service) OnRemoteTreeReceived(files []shared.FileEntry) {
	s.Puller.handleTree(files)
}

func (s *Service) OnFileChunkReceived(path string, offset uint64, data []byte) {
	s.Puller.handleChunk(path, offset, data)
}

func (s *Service) OnFileCompleteReceived(path string) {
	s.Puller.handleComplete(path)
}

func (s *Service) serveTree() {
	m, err := fs.Scan(s.root)
	if err != nil {
		Log.Errorln("scan error", err)
		s.eng.SendFileTree(nil)
		return
	}
	if s.HashManifest {
		if err := fs.FillHashes(s.root, m); err != nil {
			Log.Errorln("hash error", err)
		}
	}
	s.eng.SendFileTree(m.Entries)
}

// serveFile streams one file in fixed-size chunks with monotonically
// increasing offsets, then signals completion. Reads happen here, off the
// engine consumer.
func (s *Service) serveFile(path string) {
	full, err := fs.SecureJoin(s.root, path)
	if err != nil {
		Log.Errorln("refusing file request:", err)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		// Manifest paths are case-folded; fall back to a scan for the
		// on-disk spelling.
		m, scanErr := fs.Scan(s.root)
		if scanErr != nil {
			Log.Errorln("open file error", err)
			return
		}
		real, ok := m.Resolve(path)
		if !ok {
			Log.Errorln("open file error", err)
			return
		}
		full, err = fs.SecureJoin(s.root, real)
		if err != nil {
			Log.Errorln("refusing file request:", err)
			return
		}
		f, err = os.Open(full)
		if err != nil {
			Log.Errorln("open file error", err)
			return
		}
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			Log.Warn("Close File Error")
		}
	}(f)

	var offset uint64
	for {
		buf := make([]byte, shared.ChunkSize)
		n, err := f.Read(buf)
		if n > 0 {
			s.eng.SendFileChunk(path, offset, buf[:n])
			offset += uint64(n)
		}
		if err != nil {
			break
		}
	}
	s.eng.SendFileComplete(path)
	Log.Debugf("served %v (%v bytes)", path, offset)
}
