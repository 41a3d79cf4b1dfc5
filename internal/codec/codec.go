// Package codec encodes and decodes the store metadata header and node
// pages to and from their fixed-size, big-endian binary representation.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Sentinel is the wire value meaning "absent/none" for any optional
// 32-bit field: next-deleted-page, root id, and unused key/child/value
// array slots.
const Sentinel uint32 = 0xFFFFFFFF

// MetaSize is the size in bytes of the serialized store metadata header.
const MetaSize = 14

// PageHeaderSize is the size in bytes of a node page's header
// (page_id + deleted + next_deleted_page), before the keys/children/values
// arrays.
const PageHeaderSize = 9

// Meta is the decoded store metadata header.
type Meta struct {
	MaxDegree        uint16
	NumberOfPages    uint32
	FirstDeletedPage uint32 // Sentinel means empty free-list
	RootPageID       uint32 // Sentinel means no root yet
}

// EncodeMeta serializes m into a freshly allocated MetaSize-byte buffer.
func EncodeMeta(m Meta) []byte {
	buf := make([]byte, MetaSize)
	binary.BigEndian.PutUint16(buf[0:2], m.MaxDegree)
	binary.BigEndian.PutUint32(buf[2:6], m.NumberOfPages)
	binary.BigEndian.PutUint32(buf[6:10], m.FirstDeletedPage)
	binary.BigEndian.PutUint32(buf[10:14], m.RootPageID)
	return buf
}

// DecodeMeta decodes a MetaSize-byte buffer into a Meta.
func DecodeMeta(buf []byte) Meta {
	return Meta{
		MaxDegree:        binary.BigEndian.Uint16(buf[0:2]),
		NumberOfPages:    binary.BigEndian.Uint32(buf[2:6]),
		FirstDeletedPage: binary.BigEndian.Uint32(buf[6:10]),
		RootPageID:       binary.BigEndian.Uint32(buf[10:14]),
	}
}

// KeyArraySize returns the byte size of the keys array for the given degree.
func KeyArraySize(degree uint16) int {
	return (int(degree) - 1) * 4
}

// ChildArraySize returns the byte size of the children array for the given degree.
func ChildArraySize(degree uint16) int {
	return int(degree) * 4
}

// ValueArraySize returns the byte size of the values array for the given degree.
func ValueArraySize(degree uint16) int {
	return (int(degree) - 1) * 4
}

// KeyOffset returns the byte offset of the keys array within a page.
func KeyOffset() int {
	return PageHeaderSize
}

// ChildOffset returns the byte offset of the children array within a page.
func ChildOffset(degree uint16) int {
	return KeyOffset() + KeyArraySize(degree)
}

// ValueOffset returns the byte offset of the values array within a page.
func ValueOffset(degree uint16) int {
	return ChildOffset(degree) + ChildArraySize(degree)
}

// PageSize returns the fixed size in bytes of a node page for the given degree.
func PageSize(degree uint16) int {
	return ValueOffset(degree) + ValueArraySize(degree)
}

// NodePage is the raw decoded form of a node page, prior to being wrapped
// by the node package's richer operations. It is kept primitive (plain
// slices of uint32, no behavior) so that this package never imports the
// node package and stays a leaf dependency.
type NodePage struct {
	PageID          uint32
	Deleted         bool
	NextDeletedPage uint32 // Sentinel means none
	Keys            []uint32
	Children        []uint32
	Values          []uint32
}

// EncodeNodePage serializes page into a freshly allocated PageSize(degree)-byte
// buffer. Fails (returns an error) if PageID is the sentinel, matching the
// codec's "writing a node whose page_id is the sentinel fails with a
// recoverable error" rule.
func EncodeNodePage(page NodePage, degree uint16) ([]byte, error) {
	if page.PageID == Sentinel {
		return nil, fmt.Errorf("codec: cannot encode page with sentinel id")
	}

	buf := make([]byte, PageSize(degree))
	for i := range buf {
		buf[i] = 0xFF
	}

	binary.BigEndian.PutUint32(buf[0:4], page.PageID)
	if page.Deleted {
		buf[4] = 1
	} else {
		buf[4] = 0
	}
	binary.BigEndian.PutUint32(buf[5:9], page.NextDeletedPage)

	keyOff := KeyOffset()
	for i, k := range page.Keys {
		off := keyOff + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], k)
	}

	childOff := ChildOffset(degree)
	for i, c := range page.Children {
		off := childOff + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], c)
	}

	valOff := ValueOffset(degree)
	for i, v := range page.Values {
		off := valOff + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], v)
	}

	return buf, nil
}

// DecodeNodePage decodes a PageSize(degree)-byte buffer into a NodePage.
// Fails with a corruption error if the decoded page_id is the sentinel.
func DecodeNodePage(buf []byte, degree uint16) (NodePage, error) {
	pageID := binary.BigEndian.Uint32(buf[0:4])
	if pageID == Sentinel {
		return NodePage{}, fmt.Errorf("codec: page has sentinel id, corrupt page")
	}

	deleted := buf[4] != 0
	nextDeleted := binary.BigEndian.Uint32(buf[5:9])

	keys := readSentinelTerminated(buf, KeyOffset(), int(degree)-1)
	children := readSentinelTerminated(buf, ChildOffset(degree), int(degree))
	values := readSentinelTerminated(buf, ValueOffset(degree), int(degree)-1)

	return NodePage{
		PageID:          pageID,
		Deleted:         deleted,
		NextDeletedPage: nextDeleted,
		Keys:            keys,
		Children:        children,
		Values:          values,
	}, nil
}

// readSentinelTerminated reads up to count uint32 slots starting at offset,
// stopping at the first sentinel value.
func readSentinelTerminated(buf []byte, offset, count int) []uint32 {
	var out []uint32
	for i := 0; i < count; i++ {
		off := offset + i*4
		v := binary.BigEndian.Uint32(buf[off : off+4])
		if v == Sentinel {
			break
		}
		out = append(out, v)
	}
	return out
}

// EncodeOptional encodes an optional 32-bit value: absent (ok=false) becomes
// the sentinel.
func EncodeOptional(value uint32, ok bool) uint32 {
	if !ok {
		return Sentinel
	}
	return value
}

// DecodeOptional decodes a wire value into (value, ok): the sentinel decodes
// to (0, false).
func DecodeOptional(raw uint32) (uint32, bool) {
	if raw == Sentinel {
		return 0, false
	}
	return raw, true
}
