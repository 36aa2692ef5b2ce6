package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// ChunkSize is the fixed block size files are split into. Only a file's last
// chunk may be shorter.
const ChunkSize = 1024

// HashSize is the length of a content hash (MD5).
const HashSize = md5.Size

// Hash identifies the exact content of a file or chunk.
type Hash [HashSize]byte

// Sum hashes data.
func Sum(data []byte) Hash {
	return md5.Sum(data)
}

// HashFromBytes converts a wire hash, rejecting anything that is not exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash length: expected %d, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(b)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a fresh slice holding the hash.
func (h Hash) Bytes() []byte {
	return bytes.Clone(h[:])
}

// ChunkMeta describes one chunk of a file.
type ChunkMeta struct {
	Index int  // position in the file (0-based)
	Size  int  // byte length, ChunkSize for all but possibly the last
	Hash  Hash // MD5 of the chunk bytes
}

// Chunk splits data into ChunkSize blocks and hashes each one.
// Empty input yields a single zero-size chunk, so every stored file has at least one chunk.
// The returned buffers share one private copy of data.
func Chunk(data []byte) ([]ChunkMeta, [][]byte) {
	if len(data) == 0 {
		empty := []byte{}
		return []ChunkMeta{{Index: 0, Size: 0, Hash: Sum(empty)}}, [][]byte{empty}
	}

	owned := bytes.Clone(data)
	count := (len(owned) + ChunkSize - 1) / ChunkSize
	metas := make([]ChunkMeta, 0, count)
	buffers := make([][]byte, 0, count)

	for i := 0; i < count; i++ {
		start := i * ChunkSize
		end := min(start+ChunkSize, len(owned))
		// cap the slice so an append on one chunk can never spill into the next
		chunk := owned[start:end:end]

		buffers = append(buffers, chunk)
		metas = append(metas, ChunkMeta{Index: i, Size: len(chunk), Hash: Sum(chunk)})
	}
	return metas, buffers
}

// MetadataFromBuffers re-derives chunk metadata from an already chunked file.
func MetadataFromBuffers(buffers [][]byte) []ChunkMeta {
	metas := make([]ChunkMeta, len(buffers))
	for i, chunk := range buffers {
		metas[i] = ChunkMeta{Index: i, Size: len(chunk), Hash: Sum(chunk)}
	}
	return metas
}

// Join concatenates chunk buffers in index order.
func Join(buffers [][]byte) []byte {
	size := 0
	for _, b := range buffers {
		size += len(b)
	}
	out := make([]byte, 0, size)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}
