package pager

import (
	"path/filepath"
	"testing"

	"github.com/oda/bptreestore/internal/codec"
)

func TestOpenCreatesEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	if p.Degree() != 4 {
		t.Errorf("Degree() = %d, want 4", p.Degree())
	}
	if p.NumberOfPages() != 0 {
		t.Errorf("NumberOfPages() = %d, want 0", p.NumberOfPages())
	}
	if _, ok := p.RootPageID(); ok {
		t.Error("expected no root page on a fresh store")
	}
}

func TestOpenHonorsStoredDegree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	p1, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := p1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	p2, err := Open(path, 8)
	if err != nil {
		t.Fatalf("reopening with a different degree failed: %v", err)
	}
	defer p2.Close()
	if p2.Degree() != 4 {
		t.Errorf("Degree() after reopen = %d, want the stored 4", p2.Degree())
	}
}

func TestAllocateReadWritePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	n, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	if n.PageID != 0 {
		t.Errorf("first allocated page id = %d, want 0", n.PageID)
	}

	n.Keys = []uint32{5}
	n.Values = []uint32{50}
	if err := p.WritePage(n); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	got, err := p.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if len(got.Keys) != 1 || got.Keys[0] != 5 {
		t.Errorf("read back keys = %v, want [5]", got.Keys)
	}
	if len(got.Values) != 1 || got.Values[0] != 50 {
		t.Errorf("read back values = %v, want [50]", got.Values)
	}
}

func TestAllocateGrowsFileWhenCapacityExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	for i := 0; i < initialPageCapacity+10; i++ {
		n, err := p.AllocatePage()
		if err != nil {
			t.Fatalf("AllocatePage failed at %d: %v", i, err)
		}
		if n.PageID != uint32(i) {
			t.Fatalf("page %d got id %d", i, n.PageID)
		}
	}
	if p.NumberOfPages() != initialPageCapacity+10 {
		t.Errorf("NumberOfPages() = %d, want %d", p.NumberOfPages(), initialPageCapacity+10)
	}
}

func TestDeletePageRecyclesSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	first, _ := p.AllocatePage()
	second, _ := p.AllocatePage()

	if err := p.DeletePage(first.PageID); err != nil {
		t.Fatalf("DeletePage failed: %v", err)
	}

	recycled, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage after delete failed: %v", err)
	}
	if recycled.PageID != first.PageID {
		t.Errorf("recycled page id = %d, want %d (the freed one)", recycled.PageID, first.PageID)
	}

	third, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	if third.PageID != second.PageID+1 {
		t.Errorf("next fresh page id = %d, want %d", third.PageID, second.PageID+1)
	}
}

func TestWritePageRejectsDeletedNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	n, _ := p.AllocatePage()
	n.Deleted = true
	if err := p.WritePage(n); err == nil {
		t.Fatal("expected WritePage to refuse a deleted node")
	}
}

func TestSetAndReadRootPageID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	n, _ := p.AllocatePage()
	if err := p.SetRootPageID(n.PageID); err != nil {
		t.Fatalf("SetRootPageID failed: %v", err)
	}

	got, ok := p.RootPageID()
	if !ok || got != n.PageID {
		t.Errorf("RootPageID() = (%d, %v), want (%d, true)", got, ok, n.PageID)
	}
}

func TestReopenPersistsPagesAndRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	p1, err := Open(path, 6)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	n, _ := p1.AllocatePage()
	n.Keys = []uint32{1, 2, 3}
	n.Values = []uint32{10, 20, 30}
	if err := p1.WritePage(n); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	if err := p1.SetRootPageID(n.PageID); err != nil {
		t.Fatalf("SetRootPageID failed: %v", err)
	}
	if err := p1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	p2, err := Open(path, 6)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer p2.Close()

	root, ok := p2.RootPageID()
	if !ok || root != n.PageID {
		t.Fatalf("RootPageID() after reopen = (%d, %v)", root, ok)
	}

	got, err := p2.ReadPage(root)
	if err != nil {
		t.Fatalf("ReadPage after reopen failed: %v", err)
	}
	if len(got.Keys) != 3 || got.Keys[2] != 3 {
		t.Errorf("keys after reopen = %v", got.Keys)
	}
}

func TestReadPageRejectsOutOfRangeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	if _, err := p.ReadPage(0); err == nil {
		t.Fatal("expected error reading an unallocated page id")
	}
	if _, err := p.ReadPage(codec.Sentinel); err == nil {
		t.Fatal("expected error reading the sentinel page id")
	}
}
