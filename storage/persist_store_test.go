package storage

import (
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/il"
)

func sampleDoc(t *testing.T) *il.Document {
	t.Helper()
	a, err := il.NewAssignment(il.Reg("v", 32), il.Reg("a", 32), il.Reg("b", 32), il.Tag(il.OpAdd, 32))
	if err != nil {
		t.Fatalf("NewAssignment: %v", err)
	}
	doc := &il.Document{Arguments: []string{"a", "b"}}
	doc.Append(a)
	return doc
}

func smallOptions() bytecode.Options {
	return bytecode.Options{
		ALU:  alu.Options{NumALUs: 6, Reserved: 2, MinSemantics: 3, MaxSemantics: 5, Shuffle: true},
		Seed: 4,
	}
}

func TestArtifactStore_BasicOperations(t *testing.T) {
	s, err := NewMemoryArtifactStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer s.Close()

	if err := s.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := s.Get([]byte("k"))
	if err != nil || !found || string(got) != "v" {
		t.Fatalf("Get = %q, %v, %v", got, found, err)
	}
	if err := s.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := s.Get([]byte("k")); found {
		t.Error("Expected key to be deleted")
	}
}

func TestArtifactStore_Documents(t *testing.T) {
	s, err := NewMemoryArtifactStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer s.Close()

	doc := sampleDoc(t)
	h, err := s.PutDocument(doc)
	if err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	back, found, err := s.GetDocument(h)
	if err != nil || !found {
		t.Fatalf("GetDocument: %v %v", found, err)
	}
	if back.String() != doc.String() {
		t.Errorf("document changed:\n%s\nvs\n%s", back, doc)
	}
	docs, err := s.Documents()
	if err != nil || len(docs) != 1 || docs[0] != h {
		t.Errorf("Documents() = %v, %v", docs, err)
	}
}

func TestArtifactStore_BuildCache(t *testing.T) {
	dir := t.TempDir()
	s, err := NewArtifactStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	doc := sampleDoc(t)
	dh, err := doc.Digest()
	if err != nil {
		t.Fatal(err)
	}
	opts := smallOptions()
	if _, found, err := s.LookupBuild(dh, opts); err != nil || found {
		t.Fatalf("unexpected cache hit: %v %v", found, err)
	}

	em, err := bytecode.NewEmitter(opts)
	if err != nil {
		t.Fatal(err)
	}
	img, err := em.Emit(doc)
	if err != nil {
		t.Fatal(err)
	}
	ih, err := s.PutBuild(dh, opts, img)
	if err != nil {
		t.Fatalf("PutBuild: %v", err)
	}
	s.Close()

	// reopen from disk
	s, err = NewArtifactStore(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	cached, found, err := s.LookupBuild(dh, opts)
	if err != nil || !found {
		t.Fatalf("LookupBuild: %v %v", found, err)
	}
	ch, err := cached.Digest()
	if err != nil || ch != ih {
		t.Errorf("cached digest %s, stored %s", ch, ih)
	}

	other := opts
	other.Seed++
	if _, found, _ := s.LookupBuild(dh, other); found {
		t.Error("build cache ignored the options")
	}
}
