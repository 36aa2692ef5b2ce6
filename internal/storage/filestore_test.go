package storage

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
)

type recordingBackend struct {
	mu    sync.Mutex
	saved []File
}

func (b *recordingBackend) Save(f File) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, f)
	return nil
}

func chunked(s string) (Hash, [][]byte) {
	_, chunks := Chunk([]byte(s))
	return Sum([]byte(s)), chunks
}

func TestPutIsIdempotentByName(t *testing.T) {
	backend := &recordingBackend{}
	s := NewFileStore(backend)

	h1, c1 := chunked("first version")
	h2, c2 := chunked("second version")

	stored, err := s.Put("a.txt", h1, c1)
	if err != nil || !stored {
		t.Fatalf("first put: stored=%v err=%v", stored, err)
	}
	stored, err = s.Put("a.txt", h2, c2)
	if err != nil || stored {
		t.Fatalf("second put must be a no-op: stored=%v err=%v", stored, err)
	}

	got, ok := s.HashOf("a.txt")
	if !ok || got != h1 {
		t.Fatal("name must keep its original hash")
	}
	if _, ok := s.Chunks(h2); ok {
		t.Fatal("second upload must not store its chunks")
	}
	if len(backend.saved) != 1 {
		t.Fatalf("expected 1 persisted file, got %d", len(backend.saved))
	}
}

func TestPutSameContentUnderTwoNames(t *testing.T) {
	s := NewFileStore(nil)
	h, c := chunked("shared content")

	s.Put("a.txt", h, c)
	stored, _ := s.Put("b.txt", h, c)
	if !stored {
		t.Fatal("a new name for known content should be bound")
	}
	if ha, _ := s.HashOf("a.txt"); ha != h {
		t.Fatal("a.txt lost its hash")
	}
	if hb, _ := s.HashOf("b.txt"); hb != h {
		t.Fatal("b.txt not bound")
	}
}

func TestPutIfUnknown(t *testing.T) {
	s := NewFileStore(nil)
	h, c := chunked("payload")

	if stored, _ := s.PutIfUnknown("x", h, c); !stored {
		t.Fatal("expected first insert to succeed")
	}
	if stored, _ := s.PutIfUnknown("y", h, c); stored {
		t.Fatal("known hash must block the insert")
	}
	h2, c2 := chunked("other")
	if stored, _ := s.PutIfUnknown("x", h2, c2); stored {
		t.Fatal("known name must block the insert")
	}
	if !s.Knows("x", Hash{}) || !s.Knows("", h) || s.Knows("z", h2) {
		t.Fatal("Knows reports the wrong state")
	}
}

func TestMatchWholeName(t *testing.T) {
	s := NewFileStore(nil)
	for _, name := range []string{"b.txt", "a.txt", "a.txt.bak"} {
		h, c := chunked(name)
		s.Put(name, h, c)
	}

	re := regexp.MustCompile(`^(?:a\.txt)$`)
	files := s.Match(re)
	if len(files) != 1 || files[0].Name != "a.txt" {
		t.Fatalf("expected only a.txt, got %+v", files)
	}

	all := s.Match(regexp.MustCompile(`^(?:.*)$`))
	if len(all) != 3 || all[0].Name != "a.txt" || all[2].Name != "b.txt" {
		t.Fatalf("expected all files ordered by name, got %d", len(all))
	}
	if all[0].Size() != len("a.txt") {
		t.Fatalf("unexpected size %d", all[0].Size())
	}
}

func TestConcurrentPutsSameName(t *testing.T) {
	s := NewFileStore(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, c := chunked(fmt.Sprintf("version %d", i))
			if stored, _ := s.Put("race.txt", h, c); stored {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winning upload, got %d", winners)
	}
	h, _ := s.HashOf("race.txt")
	if _, ok := s.Chunks(h); !ok {
		t.Fatal("winning hash has no chunks")
	}
}

func TestRestore(t *testing.T) {
	s := NewFileStore(nil)
	h, c := chunked("persisted")

	n := s.Restore([]File{{Name: "p.txt", Hash: h, Chunks: c}, {Name: "empty", Hash: Hash{}, Chunks: nil}})
	if n != 1 || s.Len() != 1 {
		t.Fatalf("expected 1 restored file, got %d", n)
	}
}
