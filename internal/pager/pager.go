// Package pager turns the mapped file maintained by mmapfile into a
// dense array of fixed-size node pages behind a metadata header,
// decoding and encoding through codec and handing the tree engine
// detached *node.Node values plus a free-list-aware allocator.
package pager

import (
	"fmt"

	"github.com/oda/bptreestore/internal/codec"
	"github.com/oda/bptreestore/internal/dberr"
	"github.com/oda/bptreestore/internal/mmapfile"
	"github.com/oda/bptreestore/internal/node"
)

// initialPageCapacity is how many node-page slots the file is
// pre-sized for on first creation, before any growth.
const initialPageCapacity = 64

// Pager owns the memory-mapped backing file and the metadata/page-array
// layout codec describes. It has no notion of B+ tree structure; the
// tree engine interprets the *node.Node values it hands back.
type Pager struct {
	mm     *mmapfile.File
	meta   codec.Meta
	degree uint16
}

// Open opens or creates path as a page store of the given degree.
// Degree must already have been validated by the caller (the facade).
// If path already holds a store, the degree recorded in its metadata
// header is used and the degree argument is ignored.
func Open(path string, degree uint16) (*Pager, error) {
	mm, err := mmapfile.Open(path, degree, initialPageCapacity)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindIO, fmt.Errorf("opening store file: %w", err))
	}

	p := &Pager{mm: mm, degree: degree}

	metaBuf := mm.MetaBytes()
	meta := codec.DecodeMeta(metaBuf)

	if meta.MaxDegree == 0 {
		// A zero max_degree can never be a legitimately-configured
		// store (degree must be at least 4), so it marks a freshly
		// created, all-zero file rather than an existing one.
		p.meta = codec.Meta{
			MaxDegree:        degree,
			NumberOfPages:    0,
			FirstDeletedPage: codec.Sentinel,
			RootPageID:       codec.Sentinel,
		}
		if err := p.writeMeta(); err != nil {
			mm.Close()
			return nil, err
		}
		return p, nil
	}

	if meta.MaxDegree != degree {
		// An existing store keeps the degree in its header; remap with it.
		mm.Close()
		if mm, err = mmapfile.Open(path, meta.MaxDegree, initialPageCapacity); err != nil {
			return nil, dberr.Wrap(dberr.KindIO, fmt.Errorf("opening store file: %w", err))
		}
		p.mm, p.degree = mm, meta.MaxDegree
	}

	p.meta = meta
	return p, nil
}

func (p *Pager) writeMeta() error {
	buf := p.mm.MetaBytes()
	if buf == nil {
		return dberr.New(dberr.KindIO, "cannot reach metadata region")
	}
	copy(buf, codec.EncodeMeta(p.meta))
	return nil
}

// Degree returns the store's fixed page degree.
func (p *Pager) Degree() uint16 { return p.degree }

// NumberOfPages returns the number of page slots ever allocated,
// including freed-but-retained slots.
func (p *Pager) NumberOfPages() uint32 { return p.meta.NumberOfPages }

// RootPageID returns the current root page id, or false if none has
// ever been assigned.
func (p *Pager) RootPageID() (uint32, bool) {
	return codec.DecodeOptional(p.meta.RootPageID)
}

// SetRootPageID records the store's root page id and persists the
// metadata header immediately.
func (p *Pager) SetRootPageID(id uint32) error {
	p.meta.RootPageID = codec.EncodeOptional(id, true)
	return p.writeMeta()
}

// ReadPage decodes and returns the node stored at id.
func (p *Pager) ReadPage(id uint32) (*node.Node, error) {
	if id == codec.Sentinel || id >= p.meta.NumberOfPages {
		return nil, dberr.New(dberr.KindMisuse, "page id %d out of range", id)
	}

	buf := p.mm.PageBytes(id)
	if buf == nil {
		return nil, dberr.New(dberr.KindIO, "cannot reach page %d", id)
	}

	np, err := codec.DecodeNodePage(buf, p.degree)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindCorruption, fmt.Errorf("decoding page %d: %w", id, err))
	}

	return &node.Node{
		PageID:          np.PageID,
		Deleted:         np.Deleted,
		NextDeletedPage: np.NextDeletedPage,
		Keys:            np.Keys,
		Children:        np.Children,
		Values:          np.Values,
		Degree:          p.degree,
	}, nil
}

// WritePage is a no-op if n's dirty flag is false, so read-only
// descents never trigger a write. Otherwise it encodes n and writes it
// back to its slot, refusing a sentinel id or a page marked deleted;
// DeletePage uses writeRaw to bypass this when it marks a slot free.
func (p *Pager) WritePage(n *node.Node) error {
	if !n.Dirty {
		return nil
	}
	if n.PageID == codec.Sentinel || n.Deleted {
		return dberr.New(dberr.KindMisuse, "cannot write page %d: sentinel id or marked deleted", n.PageID)
	}
	return p.writeRaw(n)
}

func (p *Pager) writeRaw(n *node.Node) error {
	np := codec.NodePage{
		PageID:          n.PageID,
		Deleted:         n.Deleted,
		NextDeletedPage: n.NextDeletedPage,
		Keys:            n.Keys,
		Children:        n.Children,
		Values:          n.Values,
	}

	buf, err := codec.EncodeNodePage(np, p.degree)
	if err != nil {
		return dberr.Wrap(dberr.KindMisuse, fmt.Errorf("encoding page %d: %w", n.PageID, err))
	}

	dst := p.mm.PageBytes(n.PageID)
	if dst == nil {
		return dberr.New(dberr.KindIO, "cannot reach page %d", n.PageID)
	}
	copy(dst, buf)
	n.Dirty = false
	return nil
}

// AllocatePage returns a fresh, empty, live node: the head of the
// free list if one exists, otherwise a newly grown slot. Page ids are
// never reused across the store's lifetime except via this free list,
// and a recycled slot keeps its old id.
func (p *Pager) AllocatePage() (*node.Node, error) {
	if head, ok := codec.DecodeOptional(p.meta.FirstDeletedPage); ok {
		freed, err := p.ReadPage(head)
		if err != nil {
			return nil, err
		}

		p.meta.FirstDeletedPage = freed.NextDeletedPage
		if err := p.writeMeta(); err != nil {
			return nil, err
		}

		fresh := node.New(head, p.degree)
		// The recycled slot is written once here to clear stale
		// contents, then written again by the caller once it has
		// populated the node: this lineage's allocator re-marks a
		// reused page dirty after its initial clear too.
		if err := p.writeRaw(fresh); err != nil {
			return nil, err
		}
		fresh.Dirty = true
		return fresh, nil
	}

	id := p.meta.NumberOfPages
	if err := p.mm.GrowForPage(id); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, fmt.Errorf("growing store file: %w", err))
	}

	p.meta.NumberOfPages++
	if err := p.writeMeta(); err != nil {
		return nil, err
	}

	fresh := node.New(id, p.degree)
	// Write the empty page into its new slot before handing it out.
	if err := p.writeRaw(fresh); err != nil {
		return nil, err
	}
	fresh.Dirty = true
	return fresh, nil
}

// DeletePage marks id's slot as deleted and threads it onto the head
// of the free list. The slot's storage is retained, never compacted:
// other nodes may still cite this id until the caller has finished
// rewriting their child/parent pointers.
func (p *Pager) DeletePage(id uint32) error {
	freed := &node.Node{
		PageID:          id,
		Deleted:         true,
		NextDeletedPage: p.meta.FirstDeletedPage,
		Degree:          p.degree,
	}
	// Marking a page deleted is itself a write of a "deleted" page, so
	// it must bypass WritePage's misuse guard.
	if err := p.writeRaw(freed); err != nil {
		return err
	}

	p.meta.FirstDeletedPage = codec.EncodeOptional(id, true)
	return p.writeMeta()
}

// Flush syncs the mapped file to durable storage.
func (p *Pager) Flush() error {
	if err := p.mm.Sync(); err != nil {
		return dberr.Wrap(dberr.KindIO, err)
	}
	return nil
}

// Close flushes and unmaps the backing file.
func (p *Pager) Close() error {
	if err := p.mm.Close(); err != nil {
		return dberr.Wrap(dberr.KindIO, err)
	}
	return nil
}
