// Package mmapfile memory-maps a page store's backing file and exposes
// it through the degree-derived layout internal/codec and internal/pager
// describe, rather than a generic byte-range API: a fixed metadata
// header at offset 0 followed by a dense array of fixed-size node
// pages. This package owns the page-offset arithmetic and the
// grow-by-doubling policy that keeps a page's slot mapped; internal/pager
// never computes an offset itself.
package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/oda/bptreestore/internal/codec"
)

// growthFactor is how much the backing file is enlarged each time a
// page write runs past the mapped region, mirroring this lineage's
// double-on-grow pager sizing.
const growthFactor = 2

// File is a memory-mapped metadata-header-plus-page-array store file,
// sized and indexed according to the degree it was opened with.
type File struct {
	file     *os.File
	data     []byte
	size     int64
	pageSize int64
}

// Open opens or creates path as a page store for degree, pre-sized to
// hold the metadata header plus at least initialPageCapacity pages.
// If the file already exists and is smaller, it is extended; an
// existing larger file is left at its current size.
func Open(path string, degree uint16, initialPageCapacity int) (*File, error) {
	pageSize := int64(codec.PageSize(degree))
	minSize := int64(codec.MetaSize) + int64(initialPageCapacity)*pageSize

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmapfile: failed to stat file: %w", err)
	}

	currentSize := info.Size()
	if currentSize < minSize {
		if err := file.Truncate(minSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("mmapfile: failed to extend file: %w", err)
		}
		currentSize = minSize
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(currentSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmapfile: failed to mmap: %w", err)
	}

	return &File{
		file:     file,
		data:     data,
		size:     currentSize,
		pageSize: pageSize,
	}, nil
}

// Close syncs, unmaps, and closes the file.
func (m *File) Close() error {
	if m.data != nil {
		if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("mmapfile: failed to sync on close: %w", err)
		}
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("mmapfile: failed to munmap: %w", err)
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil {
			return fmt.Errorf("mmapfile: failed to close: %w", err)
		}
		m.file = nil
	}
	return nil
}

// Sync flushes changes to disk.
func (m *File) Sync() error {
	if m.data == nil {
		return fmt.Errorf("mmapfile: file is closed")
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Size returns the current mapped size, metadata header included.
func (m *File) Size() int64 {
	return m.size
}

// MetaBytes returns the live byte range backing the codec.MetaSize-byte
// metadata header at the start of the file, or nil if the file is
// closed or (should never happen past Open) too small to hold it.
func (m *File) MetaBytes() []byte {
	if m.data == nil || int64(codec.MetaSize) > m.size {
		return nil
	}
	return m.data[0:codec.MetaSize]
}

// PageBytes returns the live byte range backing page id's slot, at the
// offset this file's degree-derived page size places it. It returns
// nil if id's slot lies beyond the currently mapped region; the caller
// must GrowForPage first.
func (m *File) PageBytes(id uint32) []byte {
	if m.data == nil {
		return nil
	}
	off := m.pageOffset(id)
	if off < 0 || off+m.pageSize > m.size {
		return nil
	}
	return m.data[off : off+m.pageSize]
}

func (m *File) pageOffset(id uint32) int64 {
	return int64(codec.MetaSize) + int64(id)*m.pageSize
}

// GrowForPage ensures page id's slot is mapped, doubling the file's
// size as many times as needed rather than growing exactly to fit,
// mirroring this lineage's double-on-grow pager sizing. It is a no-op
// if id's slot is already mapped.
func (m *File) GrowForPage(id uint32) error {
	requiredEnd := m.pageOffset(id) + m.pageSize
	if requiredEnd <= m.size {
		return nil
	}

	newSize := m.size * growthFactor
	for newSize < requiredEnd {
		newSize *= growthFactor
	}
	return m.grow(newSize)
}

// grow extends the file and remaps it at newSize. This invalidates any
// byte slices MetaBytes/PageBytes previously returned.
func (m *File) grow(newSize int64) error {
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("mmapfile: failed to munmap during grow: %w", err)
	}

	if err := m.file.Truncate(newSize); err != nil {
		return fmt.Errorf("mmapfile: failed to extend file during grow: %w", err)
	}

	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmapfile: failed to remap during grow: %w", err)
	}

	m.data = data
	m.size = newSize
	return nil
}
