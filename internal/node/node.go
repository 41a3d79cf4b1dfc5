// Package node models a single B+ tree page as a detached, decoded value
// object (identity, deleted flag, free-list link, keys/children/values,
// and a dirty flag) and implements the node-local mutations the tree
// engine drives: key search, leaf put/delete, preemptive split, and the
// borrow/merge repair primitives. It holds no pager reference and issues
// no I/O; the tree engine reads and writes pages around these calls.
package node

import "sort"

// Sentinel is the wire value meaning "absent" for an optional page id.
// Kept here (rather than imported from codec) so this package stays a
// leaf dependency with nothing importing back up from internal/codec.
const Sentinel uint32 = 0xFFFFFFFF

// Node is the in-memory, detached form of a page: mutations here are
// only durable once the pager writes the node back through WritePage.
type Node struct {
	PageID          uint32
	Deleted         bool
	NextDeletedPage uint32 // Sentinel means none
	Keys            []uint32
	Children        []uint32
	Values          []uint32
	Degree          uint16
	Dirty           bool
}

// New returns an empty live node for id, ready for the caller to
// populate before writing it back.
func New(id uint32, degree uint16) *Node {
	return &Node{PageID: id, Degree: degree}
}

// IsLeaf reports whether this node holds key/value pairs directly
// rather than separators over children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// MaxKeys is D-1.
func (n *Node) MaxKeys() int { return int(n.Degree) - 1 }

// MinKeys is ceil((D-1)/2), computed as the equivalent integer division
// D/2 (identical for both parities of D).
func (n *Node) MinKeys() int { return int(n.Degree) / 2 }

// IsFull reports whether this node has no room for another key without
// splitting.
func (n *Node) IsFull() bool { return len(n.Keys) >= n.MaxKeys() }

// CanLendKeys reports whether a sibling may borrow a key from this node
// without driving it below MinKeys.
func (n *Node) CanLendKeys() bool { return len(n.Keys) > n.MinKeys() }

// IsLessThanMinimal reports whether this node has fewer than MinKeys,
// the trigger for delete-side repair on a non-root node.
func (n *Node) IsLessThanMinimal() bool { return len(n.Keys) < n.MinKeys() }

// FindKind is the three-way outcome of a key-position search.
type FindKind int

const (
	// LessThan means the first key strictly greater than the search key
	// sits at Index.
	LessThan FindKind = iota
	// Equal means Keys[Index] == the search key.
	Equal
	// GreaterThanLast means every key is less than the search key;
	// Index is len(Keys)-1, saturating at 0 for an empty node. This
	// index is only meaningful for a non-empty leaf.
	GreaterThanLast
)

// FindResult is the outcome of Find.
type FindResult struct {
	Kind  FindKind
	Index int
}

// Find performs the node's key-position search via binary search,
// matching this lineage's sort.Search-based node lookup idiom.
func (n *Node) Find(key uint32) FindResult {
	count := len(n.Keys)
	i := sort.Search(count, func(i int) bool { return n.Keys[i] >= key })
	if i < count && n.Keys[i] == key {
		return FindResult{Equal, i}
	}
	if i < count {
		return FindResult{LessThan, i}
	}
	idx := count - 1
	if idx < 0 {
		idx = 0
	}
	return FindResult{GreaterThanLast, idx}
}

// ChildIndex returns the index of the child subtree covering key: the
// first i with key < Keys[i], else len(Children)-1.
func (n *Node) ChildIndex(key uint32) int {
	for i, k := range n.Keys {
		if key < k {
			return i
		}
	}
	return len(n.Children) - 1
}

// InsertLeaf inserts key/value into a leaf node. Returns false without
// modifying anything if key already exists, per the duplicate-key policy.
func (n *Node) InsertLeaf(key, value uint32) bool {
	res := n.Find(key)
	switch res.Kind {
	case Equal:
		return false
	case LessThan:
		n.Keys = insertAt(n.Keys, res.Index, key)
		n.Values = insertAt(n.Values, res.Index, value)
	case GreaterThanLast:
		n.Keys = append(n.Keys, key)
		n.Values = append(n.Values, value)
	}
	n.Dirty = true
	return true
}

// DeleteLeaf removes key and its co-indexed value from a leaf node,
// returning the removed value.
func (n *Node) DeleteLeaf(key uint32) (uint32, bool) {
	res := n.Find(key)
	if res.Kind != Equal {
		return 0, false
	}
	v := n.Values[res.Index]
	n.Keys = removeAt(n.Keys, res.Index)
	n.Values = removeAt(n.Values, res.Index)
	n.Dirty = true
	return v, true
}

// SplitHalves computes the two halves of a full node under the
// preemptive split rule: a leaf preserves the promoted key in the right
// half (B+ semantics — leaf keys are never consumed), an internal node
// consumes the middle key as the separator. It returns plain slices
// rather than allocated Nodes, since only the tree engine (via the
// pager) knows the fresh page ids the halves will live at.
func (n *Node) SplitHalves() (leftKeys, leftChildren, leftValues, rightKeys, rightChildren, rightValues []uint32, promoted uint32) {
	mid := len(n.Keys) / 2

	if n.IsLeaf() {
		leftKeys = cloneSlice(n.Keys[:mid])
		leftValues = cloneSlice(n.Values[:mid])
		rightKeys = cloneSlice(n.Keys[mid:])
		rightValues = cloneSlice(n.Values[mid:])
		promoted = rightKeys[0]
		return
	}

	leftKeys = cloneSlice(n.Keys[:mid])
	leftChildren = cloneSlice(n.Children[:mid+1])
	promoted = n.Keys[mid]
	rightKeys = cloneSlice(n.Keys[mid+1:])
	rightChildren = cloneSlice(n.Children[mid+1:])
	return
}

// SpliceSplitChild splices a child's split outcome into this internal
// node: the old child id at index is replaced by leftID, rightID is
// inserted immediately after, and promoted becomes the new separator
// key at index. It returns the descent index adjusted for key: stay at
// index if key falls in the left half, otherwise advance by one.
func (n *Node) SpliceSplitChild(index int, leftID, rightID uint32, promoted, key uint32) int {
	n.Children[index] = leftID
	n.Keys = insertAt(n.Keys, index, promoted)
	n.Children = insertAt(n.Children, index+1, rightID)
	n.Dirty = true

	if key < promoted {
		return index
	}
	return index + 1
}

// BorrowLeafFromLeft moves left's last (key, value) onto target's
// front, returning the new separator (target's new first key).
func BorrowLeafFromLeft(target, left *Node) uint32 {
	li := len(left.Keys) - 1
	k, v := left.Keys[li], left.Values[li]
	left.Keys = left.Keys[:li]
	left.Values = left.Values[:li]

	target.Keys = insertAt(target.Keys, 0, k)
	target.Values = insertAt(target.Values, 0, v)

	target.Dirty = true
	left.Dirty = true
	return target.Keys[0]
}

// BorrowInternalFromLeft moves the parent separator into target's keys
// at the front and left's last child onto target's children front,
// returning left's popped last key as the new parent separator.
func BorrowInternalFromLeft(target, left *Node, parentSeparator uint32) uint32 {
	lk := len(left.Keys) - 1
	lc := len(left.Children) - 1
	poppedKey := left.Keys[lk]
	poppedChild := left.Children[lc]
	left.Keys = left.Keys[:lk]
	left.Children = left.Children[:lc]

	target.Keys = insertAt(target.Keys, 0, parentSeparator)
	target.Children = insertAt(target.Children, 0, poppedChild)

	target.Dirty = true
	left.Dirty = true
	return poppedKey
}

// BorrowLeafFromRight moves right's first (key, value) onto target's
// tail, returning the new separator (right's new first key).
func BorrowLeafFromRight(target, right *Node) uint32 {
	k, v := right.Keys[0], right.Values[0]
	right.Keys = removeAt(right.Keys, 0)
	right.Values = removeAt(right.Values, 0)

	target.Keys = append(target.Keys, k)
	target.Values = append(target.Values, v)

	target.Dirty = true
	right.Dirty = true
	return right.Keys[0]
}

// BorrowInternalFromRight moves the parent separator into target's keys
// at the tail and right's first child onto target's children tail,
// returning right's popped first key as the new parent separator.
func BorrowInternalFromRight(target, right *Node, parentSeparator uint32) uint32 {
	poppedKey := right.Keys[0]
	poppedChild := right.Children[0]
	right.Keys = removeAt(right.Keys, 0)
	right.Children = removeAt(right.Children, 0)

	target.Keys = append(target.Keys, parentSeparator)
	target.Children = append(target.Children, poppedChild)

	target.Dirty = true
	right.Dirty = true
	return poppedKey
}

// MergeIntoLeft absorbs target's contents into left. For a leaf, keys
// and values are appended directly; for an internal node, separator is
// pushed onto left's keys first since it becomes the boundary between
// left's own subtrees and target's former subtrees. The caller is
// responsible for removing the separator and target's child pointer
// from the parent and freeing target's page.
func MergeIntoLeft(left, target *Node, separator uint32) {
	if target.IsLeaf() {
		left.Keys = append(left.Keys, target.Keys...)
		left.Values = append(left.Values, target.Values...)
	} else {
		left.Keys = append(left.Keys, separator)
		left.Keys = append(left.Keys, target.Keys...)
		left.Children = append(left.Children, target.Children...)
	}
	left.Dirty = true
}

// MergeRightIntoTarget absorbs right's contents into target, symmetric
// to MergeIntoLeft. The caller removes the separator and right's child
// pointer from the parent and frees right's page.
func MergeRightIntoTarget(target, right *Node, separator uint32) {
	if target.IsLeaf() {
		target.Keys = append(target.Keys, right.Keys...)
		target.Values = append(target.Values, right.Values...)
	} else {
		target.Keys = append(target.Keys, separator)
		target.Keys = append(target.Keys, right.Keys...)
		target.Children = append(target.Children, right.Children...)
	}
	target.Dirty = true
}

// InsertAt inserts v at index i in s, shifting the tail right, using
// the same slice-insert helper nodes use internally.
func InsertAt(s []uint32, i int, v uint32) []uint32 {
	return insertAt(s, i, v)
}

// RemoveAt removes the element at index i from s, shifting the tail left.
// The tree engine uses it to drop a parent's separator and child pointer
// during merge repair.
func RemoveAt(s []uint32, i int) []uint32 {
	return removeAt(s, i)
}

func insertAt(s []uint32, i int, v uint32) []uint32 {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s []uint32, i int) []uint32 {
	return append(s[:i], s[i+1:]...)
}

func cloneSlice(s []uint32) []uint32 {
	if len(s) == 0 {
		return nil
	}
	out := make([]uint32, len(s))
	copy(out, s)
	return out
}
