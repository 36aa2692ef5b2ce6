package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrCorrupt  = errors.New("blob is corrupt")
)

type Path struct {
	Path     string
	Filename string
}

func (p Path) FullPath() string {
	return filepath.Join(p.Path, p.Filename)
}

// Store is a content-addressed blob store on disk.
// Blobs live under their hex content hash split into a 4-level directory tree,
// which keeps any single directory from holding too many entries.
type Store struct {
	RootDir string
	sealer  *Sealer
}

// NewStore creates a store rooted at rootDir. sealer may be nil to keep blobs in the clear.
func NewStore(rootDir string, sealer *Sealer) *Store {
	return &Store{
		RootDir: rootDir,
		sealer:  sealer,
	}
}

func (s *Store) GetCASPath(h Hash) Path {
	key := h.String()
	return Path{
		Path:     filepath.Join(s.RootDir, key[0:8], key[8:16], key[16:24], key[24:32]),
		Filename: key,
	}
}

// WriteRaw writes a blob under its own content hash. Writing an existing blob is a no-op.
func (s *Store) WriteRaw(h Hash, data []byte) error {
	if s.Has(h) {
		return nil
	}
	cas := s.GetCASPath(h)
	if err := os.MkdirAll(cas.Path, 0755); err != nil {
		return err
	}

	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to seal blob %s: %w", h, err)
		}
		data = sealed
	}

	// each writer gets its own temp file; the rename publishes a complete blob
	tmp, err := os.CreateTemp(cas.Path, cas.Filename+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), cas.FullPath()); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// ReadChunk reads a blob back and checks it still hashes to its key.
func (s *Store) ReadChunk(h Hash) ([]byte, error) {
	data, err := os.ReadFile(s.GetCASPath(h).FullPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return nil, err
	}

	if s.sealer != nil {
		if data, err = s.sealer.Open(data); err != nil {
			return nil, fmt.Errorf("failed to open blob %s: %w", h, err)
		}
	}

	if Sum(data) != h {
		return nil, fmt.Errorf("%w: %s hashes to %s", ErrCorrupt, h, Sum(data))
	}
	return data, nil
}

func (s *Store) Delete(h Hash) error {
	return os.Remove(s.GetCASPath(h).FullPath())
}

func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.GetCASPath(h).FullPath())
	return err == nil
}

func (s *Store) Wipe() error {
	return os.RemoveAll(s.RootDir)
}
