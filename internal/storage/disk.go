package storage

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Disk persists committed files as chunk blobs plus a filename index.
//
//	<dataDir>/files.json        filename -> file hash, chunk hashes
//	<dataDir>/chunks/<a>/<b>/.. one blob per distinct chunk
type Disk struct {
	blobs *Store
	index *FileIndex
}

// OpenDisk opens (or creates) persistent storage under dataDir. sealer may be nil.
func OpenDisk(dataDir string, sealer *Sealer) (*Disk, error) {
	index, err := NewFileIndex(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load file index: %w", err)
	}
	return &Disk{
		blobs: NewStore(filepath.Join(dataDir, "chunks"), sealer),
		index: index,
	}, nil
}

// Save implements Backend.
func (d *Disk) Save(f File) error {
	entry := IndexEntry{
		Name:   f.Name,
		Hash:   f.Hash.String(),
		Chunks: make([]string, len(f.Chunks)),
		Size:   f.Size(),
	}
	for i, chunk := range f.Chunks {
		h := Sum(chunk)
		if err := d.blobs.WriteRaw(h, chunk); err != nil {
			return fmt.Errorf("failed to write chunk %d of %s: %w", i, f.Name, err)
		}
		entry.Chunks[i] = h.String()
	}
	return d.index.Add(entry)
}

// Load rebuilds every indexed file. Files that cannot be rebuilt intact are
// reported in skipped and left out of files.
func (d *Disk) Load() (files []File, skipped []error) {
	for _, e := range d.index.List() {
		f, err := d.loadEntry(e)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		files = append(files, f)
	}
	return files, skipped
}

func (d *Disk) loadEntry(e IndexEntry) (File, error) {
	fileHash, err := HashFromHex(e.Hash)
	if err != nil {
		return File{}, err
	}
	if len(e.Chunks) == 0 {
		return File{}, fmt.Errorf("no chunks recorded")
	}

	chunks := make([][]byte, len(e.Chunks))
	for i, hexHash := range e.Chunks {
		h, err := HashFromHex(hexHash)
		if err != nil {
			return File{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		if chunks[i], err = d.blobs.ReadChunk(h); err != nil {
			// a bad blob would otherwise block every later write of the same chunk
			if errors.Is(err, ErrCorrupt) {
				d.blobs.Delete(h)
			}
			return File{}, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	if got := Sum(Join(chunks)); got != fileHash {
		return File{}, fmt.Errorf("reassembled content hashes to %s, index says %s", got, fileHash)
	}
	return File{Name: e.Name, Hash: fileHash, Chunks: chunks}, nil
}

// Wipe deletes all persisted data.
func (d *Disk) Wipe() error {
	if err := d.blobs.Wipe(); err != nil {
		return err
	}
	return d.index.wipe()
}
