package storage

import (
	"bytes"
	"crypto/rand"
	"os"
	"testing"
)

func TestDiskSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 3*ChunkSize+17)
	rand.Read(data)
	_, chunks := Chunk(data)
	h := Sum(data)

	s := NewFileStore(d)
	if _, err := s.Put("big.bin", h, chunks); err != nil {
		t.Fatal(err)
	}
	emptyHash, emptyChunks := Sum(nil), [][]byte{{}}
	if _, err := s.Put("empty.bin", emptyHash, emptyChunks); err != nil {
		t.Fatal(err)
	}

	// reopen from scratch, as a restarted node would
	d2, err := OpenDisk(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	files, skipped := d2.Load()
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped files: %v", skipped)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	restored := NewFileStore(nil)
	restored.Restore(files)
	got, ok := restored.HashOf("big.bin")
	if !ok || got != h {
		t.Fatal("big.bin not restored under its hash")
	}
	back, _ := restored.Chunks(h)
	if !bytes.Equal(Join(back), data) {
		t.Fatal("restored content mismatch")
	}
	if _, ok := restored.Chunks(emptyHash); !ok {
		t.Fatal("empty file not restored")
	}
}

func TestDiskLoadSkipsDamagedFiles(t *testing.T) {
	dir := t.TempDir()
	key := bytes.Repeat([]byte{1}, KeySize)
	sealer, _ := NewSealer(key)
	d, err := OpenDisk(dir, sealer)
	if err != nil {
		t.Fatal(err)
	}

	good := []byte("good file")
	bad := []byte("bad file")
	_, goodChunks := Chunk(good)
	_, badChunks := Chunk(bad)
	d.Save(File{Name: "good", Hash: Sum(good), Chunks: goodChunks})
	d.Save(File{Name: "bad", Hash: Sum(bad), Chunks: badChunks})

	if err := d.blobs.Delete(Sum(bad)); err != nil {
		t.Fatal(err)
	}

	files, skipped := d.Load()
	if len(files) != 1 || files[0].Name != "good" {
		t.Fatalf("expected only the good file, got %+v", files)
	}
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped file, got %d", len(skipped))
	}

	if err := d.Wipe(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir + "/files.json"); !os.IsNotExist(err) {
		t.Fatal("index should be gone after wipe")
	}
}

func TestDiskLoadDropsCorruptBlob(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDisk(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("will be damaged on disk")
	_, chunks := Chunk(data)
	f := File{Name: "damaged", Hash: Sum(data), Chunks: chunks}
	if err := d.Save(f); err != nil {
		t.Fatal(err)
	}
	blob := d.blobs.GetCASPath(Sum(chunks[0])).FullPath()
	if err := os.WriteFile(blob, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	files, skipped := d.Load()
	if len(files) != 0 || len(skipped) != 1 {
		t.Fatalf("expected the damaged file to be skipped, got %d files, %d skipped", len(files), len(skipped))
	}
	if d.blobs.Has(Sum(chunks[0])) {
		t.Fatal("corrupt blob was kept")
	}

	// saving again rewrites the blob instead of trusting the damaged one
	if err := d.Save(f); err != nil {
		t.Fatal(err)
	}
	files, skipped = d.Load()
	if len(files) != 1 || len(skipped) != 0 {
		t.Fatalf("expected the file back after re-saving, got %d files, %d skipped", len(files), len(skipped))
	}
}
