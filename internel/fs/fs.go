package fs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"lansync/internel/shared"
)

// Manifest is the result of one directory scan. Entries carry folded
// (lower-case, forward-slash) relative paths; the fold is a comparison
// decision, so the manifest also remembers each entry's on-disk path for
// callers that actually open files.
type Manifest struct {
	Entries []shared.FileEntry

	paths map[string]string
}

// Resolve maps a folded relative path back to the on-disk relative path.
func (m *Manifest) Resolve(rel string) (string, bool) {
	p, ok := m.paths[Fold(rel)]
	return p, ok
}

// Fold normalizes a relative path for manifest comparison: forward slashes,
// lower case.
func Fold(rel string) string {
	return strings.ToLower(filepath.ToSlash(rel))
}

// Scan walks root and produces a FileEntry per regular file. Symlinks,
// directories and other non-regular files are skipped. Entries come back
// sorted by folded path so manifests are deterministic.
func Scan(root string) (*Manifest, error) {
	m := &Manifest{paths: make(map[string]string)}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		folded := Fold(rel)
		m.Entries = append(m.Entries, shared.FileEntry{
			RelativePath:   folded,
			Size:           uint64(info.Size()),
			LastWriteTicks: info.ModTime().UnixNano(),
		})
		m.paths[folded] = rel
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed scanning %v", root)
	}
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].RelativePath < m.Entries[j].RelativePath
	})
	return m, nil
}

// Diff computes the remote-wins plan: download every remote entry missing
// locally or differing in size or mtime, delete every local path absent from
// remote. Purely functional; deterministic in its inputs.
func Diff(local, remote []shared.FileEntry) shared.SyncPlan {
	byPath := make(map[string]shared.FileEntry, len(local))
	for _, e := range local {
		byPath[e.RelativePath] = e
	}

	plan := shared.SyncPlan{}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		remoteSet[r.RelativePath] = struct{}{}
		l, ok := byPath[r.RelativePath]
		if !ok || l.Size != r.Size || l.LastWriteTicks != r.LastWriteTicks {
			plan.ToDownload = append(plan.ToDownload, r)
		}
	}
	for _, l := range local {
		if _, ok := remoteSet[l.RelativePath]; !ok {
			plan.ToDelete = append(plan.ToDelete, l.RelativePath)
		}
	}
	return plan
}

// SecureJoin resolves rel against root and rejects anything that escapes it.
func SecureJoin(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, "failed resolving root %v", root)
	}
	joined := filepath.Join(absRoot, filepath.FromSlash(rel))
	cleaned := filepath.Clean(joined)
	if cleaned != absRoot && !strings.HasPrefix(cleaned, absRoot+string(filepath.Separator)) {
		return "", errors.Errorf("path %q escapes the sync root", rel)
	}
	return cleaned, nil
}
