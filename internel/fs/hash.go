package fs

import (
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	h "lansync/internel/hash"
	. "lansync/internel/log"
)

const hashWorkers = 10

// FillHashes computes content hashes for every entry in the manifest. The
// Hash field is reserved in the manifest format, so this runs only when a
// caller asks for it. Hashing is bounded-parallel; hash.StartHash must have
// been called.
func FillHashes(root string, m *Manifest) error {
	group := errgroup.Group{}
	group.SetLimit(hashWorkers)

	for i := range m.Entries {
		i := i
		group.Go(func() error {
			e := &m.Entries[i]
			rel, ok := m.Resolve(e.RelativePath)
			if !ok {
				return nil
			}
			f, err := os.Open(filepath.Join(root, rel))
			if err != nil {
				Log.Errorln("Open File Error", err)
				return err
			}
			defer func(f *os.File) {
				if err := f.Close(); err != nil {
					Log.Warn("Close File Error")
				}
			}(f)

			sum, err := h.Sum(f)
			if err != nil {
				return err
			}
			e.Hash = sum
			return nil
		})
	}
	return group.Wait()
}
