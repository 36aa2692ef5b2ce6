package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// IndexEntry holds what is needed to rebuild one file from its chunk blobs.
type IndexEntry struct {
	Name     string   `json:"name"`
	Hash     string   `json:"hash"`   // hex MD5 of the whole file
	Chunks   []string `json:"chunks"` // hex chunk hashes in index order
	Size     int      `json:"size"`
	StoredAt string   `json:"stored_at"` // RFC3339 timestamp
}

// FileIndex is a file-backed index from filename to file layout.
// It lives in the node's data directory next to the chunk blobs.
type FileIndex struct {
	path    string
	mu      sync.Mutex
	entries map[string]IndexEntry // keyed by filename
}

// NewFileIndex loads (or creates) the index file at <rootDir>/files.json.
func NewFileIndex(rootDir string) (*FileIndex, error) {
	idx := &FileIndex{
		path:    filepath.Join(rootDir, "files.json"),
		entries: make(map[string]IndexEntry),
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Add records an entry and persists the index.
func (idx *FileIndex) Add(entry IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry.StoredAt = time.Now().UTC().Format(time.RFC3339)
	idx.entries[entry.Name] = entry
	return idx.save()
}

// List returns all entries ordered by filename.
func (idx *FileIndex) List() []IndexEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	result := make([]IndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// load reads the index from disk. A missing file means an empty index.
func (idx *FileIndex) load() error {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		idx.entries[e.Name] = e
	}
	return nil
}

// save rewrites the full index through a temp file.
func (idx *FileIndex) save() error {
	entries := make([]IndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0755); err != nil {
		return err
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, idx.path)
}

func (idx *FileIndex) wipe() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]IndexEntry)
	if err := os.Remove(idx.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
