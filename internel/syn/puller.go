package syn

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"lansync/internel/engine"
	"lansync/internel/fs"
	. "lansync/internel/log"
	"lansync/internel/shared"
)

// TreeTimeout bounds the wait for the peer's manifest.
const TreeTimeout = 30 * time.Second

// Progress reports pump state: the file in flight, completed and total
// counts, and bytes written for the active file.
type Progress func(path string, completed, total int, written uint64)

// incomingTransfer is the single file in flight. The pump is strictly
// sequential, so there is at most one.
type incomingTransfer struct {
	tempPath       string
	finalPath      string
	relative       string
	ticks          int64
	expectedOffset uint64
	w              *os.File
}

// Puller runs the client's server-authoritative one-shot pull: request the
// remote tree, diff against a local scan, delete what the remote no longer
// has, then download the plan one file at a time with strict offset ordering
// and rename-on-complete.
type Puller struct {
	// Delete controls whether local files absent from the remote manifest
	// are removed. On by default; the plan is remote-wins either way.
	Delete bool

	// OnProgress, when set, is called as the pump advances.
	OnProgress Progress

	// TreeTimeout bounds the wait for the remote manifest.
	TreeTimeout time.Duration

	eng  *engine.Engine
	root string

	mu        sync.Mutex
	treeCh    chan []shared.FileEntry
	queue     []shared.FileEntry
	active    *incomingTransfer
	total     int
	completed int
	pumping   bool
	doneCh    chan error
}

func newPuller(eng *engine.Engine, root string) *Puller {
	return &Puller{
		Delete:      true,
		TreeTimeout: TreeTimeout,
		eng:         eng,
		root:        root,
	}
}

// Sync performs one pull. It returns once every planned file has been
// downloaded and renamed into place, or with the first error. Requires
// SessionSecured.
func (p *Puller) Sync(ctx context.Context) error {
	remote, err := p.fetchTree(ctx)
	if err != nil {
		return err
	}

	local, err := fs.Scan(p.root)
	if err != nil {
		return err
	}
	plan := fs.Diff(local.Entries, remote)
	Log.Infof("plan: %v to download, %v to delete", len(plan.ToDownload), len(plan.ToDelete))

	if p.Delete {
		if err := p.clear(plan.ToDelete); err != nil {
			return err
		}
	}

	if len(plan.ToDownload) == 0 {
		return nil
	}

	p.mu.Lock()
	p.queue = plan.ToDownload
	p.total = len(plan.ToDownload)
	p.completed = 0
	p.pumping = true
	p.doneCh = make(chan error, 1)
	done := p.doneCh
	if err := p.startNextLocked(); err != nil {
		p.pumping = false
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.fail(ctx.Err())
		return ctx.Err()
	case <-p.eng.Done():
		return errors.New("engine terminated during sync")
	}
}

// fetchTree subscribes a one-shot tree handler, issues the request and waits.
func (p *Puller) fetchTree(ctx context.Context) ([]shared.FileEntry, error) {
	ch := make(chan []shared.FileEntry, 1)
	p.mu.Lock()
	p.treeCh = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.treeCh = nil
		p.mu.Unlock()
	}()

	p.eng.RequestRemoteTree()

	select {
	case files := <-ch:
		return files, nil
	case <-time.After(p.TreeTimeout):
		return nil, errors.New("timed out waiting for remote tree")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.eng.Done():
		return nil, errors.New("engine terminated during sync")
	}
}

func (p *Puller) handleTree(files []shared.FileEntry) {
	p.mu.Lock()
	ch := p.treeCh
	p.treeCh = nil
	p.mu.Unlock()
	if ch != nil {
		ch <- files
	}
}

func (p *Puller) handleChunk(path string, offset uint64, data []byte) {
	p.mu.Lock()
	if !p.pumping || p.active == nil || p.active.relative != path {
		// Stray chunk; tolerated.
		p.mu.Unlock()
		return
	}
	t := p.active
	if offset != t.expectedOffset {
		p.mu.Unlock()
		p.fail(errors.Errorf("chunk offset %d for %v, expected %d", offset, path, t.expectedOffset))
		return
	}
	if _, err := t.w.Write(data); err != nil {
		p.mu.Unlock()
		p.fail(errors.Wrapf(err, "failed writing %v", t.tempPath))
		return
	}
	t.expectedOffset += uint64(len(data))
	written := t.expectedOffset
	completed, total := p.completed, p.total
	p.mu.Unlock()

	p.progress(path, completed, total, written)
}

func (p *Puller) handleComplete(path string) {
	p.mu.Lock()
	if !p.pumping || p.active == nil || p.active.relative != path {
		// Stray completion; tolerated.
		p.mu.Unlock()
		return
	}
	t := p.active
	p.active = nil
	p.mu.Unlock()

	if err := finalize(t); err != nil {
		p.fail(err)
		return
	}

	p.mu.Lock()
	p.completed++
	completed, total := p.completed, p.total
	err := p.startNextLocked()
	p.mu.Unlock()

	p.progress(path, completed, total, 0)
	if err != nil {
		p.fail(err)
	}
}

// startNextLocked opens the next transfer and issues its request, or
// resolves the sync when the queue is empty. Caller holds p.mu.
func (p *Puller) startNextLocked() error {
	if len(p.queue) == 0 {
		p.pumping = false
		p.doneCh <- nil
		return nil
	}
	next := p.queue[0]
	p.queue = p.queue[1:]

	final, err := fs.SecureJoin(p.root, next.RelativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(final), os.ModePerm); err != nil {
		return errors.Wrapf(err, "failed creating parent for %v", final)
	}
	temp := final + ".tmp"
	w, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed opening %v", temp)
	}
	p.active = &incomingTransfer{
		tempPath:  temp,
		finalPath: final,
		relative:  next.RelativePath,
		ticks:     next.LastWriteTicks,
		w:         w,
	}
	p.eng.RequestFile(next.RelativePath)
	return nil
}

// finalize flushes and fsyncs the temp file, removes any existing final file,
// then atomically renames the temp file to the final path.
func finalize(t *incomingTransfer) error {
	if err := t.w.Sync(); err != nil {
		_ = t.w.Close()
		_ = os.Remove(t.tempPath)
		return errors.Wrapf(err, "failed syncing %v", t.tempPath)
	}
	if err := t.w.Close(); err != nil {
		_ = os.Remove(t.tempPath)
		return errors.Wrapf(err, "failed closing %v", t.tempPath)
	}
	if err := os.Remove(t.finalPath); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(t.tempPath)
		return errors.Wrapf(err, "failed removing %v", t.finalPath)
	}
	if err := os.Rename(t.tempPath, t.finalPath); err != nil {
		_ = os.Remove(t.tempPath)
		return errors.Wrapf(err, "failed renaming %v", t.tempPath)
	}
	// Carry the remote mtime so the next diff sees the file as in sync.
	if err := os.Chtimes(t.finalPath, time.Time{}, time.Unix(0, t.ticks)); err != nil {
		return errors.Wrapf(err, "failed setting mtime on %v", t.finalPath)
	}
	return nil
}

func (p *Puller) clear(paths []string) error {
	for _, rel := range paths {
		full, err := fs.SecureJoin(p.root, rel)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(full); err != nil {
			return errors.Wrapf(err, "failed deleting %v", full)
		}
		Log.Debugln("deleted", rel)
	}
	return nil
}

// fail aborts the sync in flight: the temp file is closed and deleted, and
// the sync future resolves with err.
func (p *Puller) fail(err error) {
	p.mu.Lock()
	if !p.pumping {
		p.mu.Unlock()
		return
	}
	p.pumping = false
	t := p.active
	p.active = nil
	done := p.doneCh
	p.mu.Unlock()

	if t != nil {
		_ = t.w.Close()
		_ = os.Remove(t.tempPath)
	}
	select {
	case done <- err:
	default:
	}
}

func (p *Puller) progress(path string, completed, total int, written uint64) {
	if p.OnProgress != nil {
		p.OnProgress(path, completed, total, written)
	}
}
