package storage

import (
	"regexp"
	"sort"
	"sync"
)

// File is one stored file: its name, whole-content hash and ordered chunk buffers.
type File struct {
	Name   string
	Hash   Hash
	Chunks [][]byte
}

// Size is the sum of the chunk sizes.
func (f File) Size() int {
	size := 0
	for _, c := range f.Chunks {
		size += len(c)
	}
	return size
}

// Backend receives every newly committed file, e.g. to persist it.
type Backend interface {
	Save(f File) error
}

// FileStore is the node's in-memory file table:
//   - chunksByHash: content hash -> ordered chunk buffers (the authoritative data)
//   - hashByName:   filename -> content hash
//
// Every method holds mu for its whole check-and-act sequence and never across I/O.
// Chunk buffers are never mutated once stored, so callers may read returned slices freely.
type FileStore struct {
	mu           sync.RWMutex
	chunksByHash map[Hash][][]byte
	hashByName   map[string]Hash

	backend Backend
}

// NewFileStore creates an empty store. backend may be nil.
func NewFileStore(backend Backend) *FileStore {
	return &FileStore{
		chunksByHash: make(map[Hash][][]byte),
		hashByName:   make(map[string]Hash),
		backend:      backend,
	}
}

// Chunks returns the chunk list for h, or false if the file is unknown or empty.
func (s *FileStore) Chunks(h Hash) ([][]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.chunksByHash[h]
	if !ok || len(chunks) == 0 {
		return nil, false
	}
	return chunks, true
}

// HashOf looks up the hash bound to a filename.
func (s *FileStore) HashOf(name string) (Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hashByName[name]
	return h, ok
}

// Knows reports whether either the name or the hash is already stored.
func (s *FileStore) Knows(name string, h Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.hashByName[name]; ok {
		return true
	}
	_, ok := s.chunksByHash[h]
	return ok
}

// Put binds name to h and stores chunks under h unless h already has data.
// It is a no-op returning false when name is already bound: a name maps to one hash for
// the lifetime of the store.
func (s *FileStore) Put(name string, h Hash, chunks [][]byte) (bool, error) {
	s.mu.Lock()
	if _, ok := s.hashByName[name]; ok {
		s.mu.Unlock()
		return false, nil
	}
	if existing, ok := s.chunksByHash[h]; ok && len(existing) > 0 {
		chunks = existing
	} else {
		s.chunksByHash[h] = chunks
	}
	s.hashByName[name] = h
	s.mu.Unlock()

	return true, s.save(File{Name: name, Hash: h, Chunks: chunks})
}

// PutIfUnknown stores the file only if neither name nor h is known yet.
func (s *FileStore) PutIfUnknown(name string, h Hash, chunks [][]byte) (bool, error) {
	s.mu.Lock()
	_, nameKnown := s.hashByName[name]
	_, hashKnown := s.chunksByHash[h]
	if nameKnown || hashKnown {
		s.mu.Unlock()
		return false, nil
	}
	s.chunksByHash[h] = chunks
	s.hashByName[name] = h
	s.mu.Unlock()

	return true, s.save(File{Name: name, Hash: h, Chunks: chunks})
}

// Match returns every file whose whole name matches re, ordered by name.
func (s *FileStore) Match(re *regexp.Regexp) []File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var files []File
	for name, h := range s.hashByName {
		if !re.MatchString(name) {
			continue
		}
		files = append(files, File{Name: name, Hash: h, Chunks: s.chunksByHash[h]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files
}

// Restore loads previously persisted files without writing them back to the backend.
func (s *FileStore) Restore(files []File) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, f := range files {
		if len(f.Chunks) == 0 {
			continue
		}
		if _, ok := s.hashByName[f.Name]; ok {
			continue
		}
		if _, ok := s.chunksByHash[f.Hash]; !ok {
			s.chunksByHash[f.Hash] = f.Chunks
		}
		s.hashByName[f.Name] = f.Hash
		restored++
	}
	return restored
}

// Len returns the number of named files.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashByName)
}

func (s *FileStore) save(f File) error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Save(f)
}
