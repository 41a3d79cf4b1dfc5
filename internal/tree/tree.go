// Package tree implements the B+ tree algorithms — find, preemptive
// top-down insert splitting, and preemptive (repair-before-descent)
// delete repair — entirely in terms of the pager's
// AllocatePage/ReadPage/WritePage/DeletePage and the node package's
// node-local mutations. It never touches the backing file directly.
package tree

import (
	"github.com/oda/bptreestore/internal/node"
	"github.com/oda/bptreestore/internal/pager"
)

// Tree drives the page store's pager through the B+ tree operations.
type Tree struct {
	pager *pager.Pager
}

// New returns a Tree backed by p.
func New(p *pager.Pager) *Tree {
	return &Tree{pager: p}
}

// root returns the current root page id, lazily allocating and
// persisting an empty root page if the store has never had one. This
// runs even for Find on an empty store, so a lookup against a brand
// new store still materializes a root page on disk.
func (t *Tree) root() (uint32, error) {
	if id, ok := t.pager.RootPageID(); ok {
		return id, nil
	}

	n, err := t.pager.AllocatePage()
	if err != nil {
		return 0, err
	}
	if err := t.pager.WritePage(n); err != nil {
		return 0, err
	}
	if err := t.pager.SetRootPageID(n.PageID); err != nil {
		return 0, err
	}
	return n.PageID, nil
}

// Find descends from the root to the leaf that would hold key and
// reports its value, if present.
func (t *Tree) Find(key uint32) (uint32, bool, error) {
	rootID, err := t.root()
	if err != nil {
		return 0, false, err
	}

	n, err := t.pager.ReadPage(rootID)
	if err != nil {
		return 0, false, err
	}
	for !n.IsLeaf() {
		idx := n.ChildIndex(key)
		n, err = t.pager.ReadPage(n.Children[idx])
		if err != nil {
			return 0, false, err
		}
	}

	res := n.Find(key)
	if res.Kind != node.Equal {
		return 0, false, nil
	}
	return n.Values[res.Index], true, nil
}

// Insert places key/value into the tree, splitting full nodes
// preemptively on the way down. It reports false if key already exists,
// leaving the stored value unchanged; a full node on the path may still
// have been split on the way down.
func (t *Tree) Insert(key, value uint32) (bool, error) {
	rootID, err := t.root()
	if err != nil {
		return false, err
	}

	root, err := t.pager.ReadPage(rootID)
	if err != nil {
		return false, err
	}

	if root.IsFull() {
		newRootID, err := t.splitRoot(root)
		if err != nil {
			return false, err
		}
		root, err = t.pager.ReadPage(newRootID)
		if err != nil {
			return false, err
		}
	}

	return t.insertNonFull(root, key, value)
}

// splitRoot splits a full root into two fresh pages under a fresh
// root page holding a single separator key. The old root's page slot
// is left allocated and orphaned — both split halves are always
// freshly allocated, the pre-split page's slot is never reused or
// freed.
func (t *Tree) splitRoot(oldRoot *node.Node) (uint32, error) {
	left, right, promoted, err := t.materializeSplit(oldRoot)
	if err != nil {
		return 0, err
	}

	newRoot, err := t.pager.AllocatePage()
	if err != nil {
		return 0, err
	}
	newRoot.Keys = []uint32{promoted}
	newRoot.Children = []uint32{left.PageID, right.PageID}
	if err := t.pager.WritePage(newRoot); err != nil {
		return 0, err
	}

	if err := t.pager.SetRootPageID(newRoot.PageID); err != nil {
		return 0, err
	}
	return newRoot.PageID, nil
}

// materializeSplit allocates and writes the two fresh halves of a full
// node's split, returning the already-decoded halves themselves (not
// just their ids) and the promoted separator, so a caller that needs
// to keep working on one of them does not have to read it back.
func (t *Tree) materializeSplit(full *node.Node) (left, right *node.Node, promoted uint32, err error) {
	lk, lc, lv, rk, rc, rv, sep := full.SplitHalves()

	left, err = t.pager.AllocatePage()
	if err != nil {
		return nil, nil, 0, err
	}
	left.Keys, left.Children, left.Values = lk, lc, lv
	if err := t.pager.WritePage(left); err != nil {
		return nil, nil, 0, err
	}

	right, err = t.pager.AllocatePage()
	if err != nil {
		return nil, nil, 0, err
	}
	right.Keys, right.Children, right.Values = rk, rc, rv
	if err := t.pager.WritePage(right); err != nil {
		return nil, nil, 0, err
	}

	return left, right, sep, nil
}

// insertNonFull inserts key/value into the subtree rooted at n, which
// the caller guarantees is not itself full. A full child is split
// before descending into it.
func (t *Tree) insertNonFull(n *node.Node, key, value uint32) (bool, error) {
	if n.IsLeaf() {
		inserted := n.InsertLeaf(key, value)
		if !inserted {
			return false, nil
		}
		return true, t.pager.WritePage(n)
	}

	idx := n.ChildIndex(key)
	child, err := t.pager.ReadPage(n.Children[idx])
	if err != nil {
		return false, err
	}

	if child.IsFull() {
		left, right, promoted, err := t.materializeSplit(child)
		if err != nil {
			return false, err
		}

		descendIdx := n.SpliceSplitChild(idx, left.PageID, right.PageID, promoted, key)
		if err := t.pager.WritePage(n); err != nil {
			return false, err
		}

		// SpliceSplitChild's returned index is idx (descend left) or
		// idx+1 (descend right); either way the resolved child is
		// already in hand from the split, so no re-read is needed.
		if descendIdx == idx {
			child = left
		} else {
			child = right
		}
	}

	return t.insertNonFull(child, key, value)
}

// Delete removes key from the tree, repairing any underflow along the
// way down rather than back up: a child found below its minimum key
// count is repaired before the deletion descends into it, not after.
// A node that falls below minimum this call is left on disk as-is and
// only gets repaired the next time a delete happens to route through
// its parent. It reports false, without repairing or writing any
// existing page, if key is absent.
func (t *Tree) Delete(key uint32) (uint32, bool, error) {
	if _, found, err := t.Find(key); err != nil || !found {
		return 0, false, err
	}

	rootID, err := t.root()
	if err != nil {
		return 0, false, err
	}

	root, err := t.pager.ReadPage(rootID)
	if err != nil {
		return 0, false, err
	}

	value, found, err := t.deleteNode(root, key)
	if err != nil {
		return 0, false, err
	}

	if !root.IsLeaf() && len(root.Keys) == 0 {
		// The root collapsed to its single remaining child. The old
		// root's page slot is left allocated and orphaned, matching
		// the same never-free rule split uses for its orphaned slot.
		if err := t.pager.SetRootPageID(root.Children[0]); err != nil {
			return value, found, err
		}
	}

	if err := t.pager.WritePage(root); err != nil {
		return value, found, err
	}

	return value, found, nil
}

// deleteNode removes key from the subtree rooted at n. For an internal
// node, the child it is about to descend into is repaired first if it
// is already below its minimum key count — the repair uses the
// child's state as found, before this call's own deletion happens —
// and only then does the deletion recurse into it. The child (or, if
// a left-merge absorbed it, the sibling it was merged into) is written
// back unconditionally once the recursive call returns; WritePage is a
// no-op if nothing below ended up dirty.
func (t *Tree) deleteNode(n *node.Node, key uint32) (uint32, bool, error) {
	if n.IsLeaf() {
		v, ok := n.DeleteLeaf(key)
		return v, ok, nil
	}

	idx := n.ChildIndex(key)
	target, err := t.pager.ReadPage(n.Children[idx])
	if err != nil {
		return 0, false, err
	}

	if target.IsLessThanMinimal() {
		target, err = t.repairUnderflow(n, idx, target)
		if err != nil {
			return 0, false, err
		}
	}

	value, found, err := t.deleteNode(target, key)
	if err != nil {
		return 0, false, err
	}

	if err := t.pager.WritePage(target); err != nil {
		return 0, false, err
	}

	return value, found, nil
}

// repairUnderflow restores target (at parent.Children[idx]) to at
// least its minimum key count, trying in order: borrow from the left
// sibling, borrow from the right sibling, merge into the left
// sibling, merge the right sibling into target. Borrowing is preferred
// over merging whenever a sibling can spare a key, and left is always
// tried before right. It returns the node the caller should continue
// the deletion in: target itself, unless a left-merge absorbed target
// into its left sibling, in which case the left sibling is returned.
func (t *Tree) repairUnderflow(parent *node.Node, idx int, target *node.Node) (*node.Node, error) {
	var left, right *node.Node
	var err error

	if idx > 0 {
		left, err = t.pager.ReadPage(parent.Children[idx-1])
		if err != nil {
			return nil, err
		}
	}
	if idx < len(parent.Children)-1 {
		right, err = t.pager.ReadPage(parent.Children[idx+1])
		if err != nil {
			return nil, err
		}
	}

	switch {
	case left != nil && left.CanLendKeys():
		t.borrowFromLeft(parent, idx, target, left)
		if err := t.writeAll(target, left); err != nil {
			return nil, err
		}
		return target, nil

	case right != nil && right.CanLendKeys():
		t.borrowFromRight(parent, idx, target, right)
		if err := t.writeAll(target, right); err != nil {
			return nil, err
		}
		return target, nil

	case left != nil:
		// Merge target into left and drop target's child pointer and
		// the separator from parent; the deletion continues in left,
		// not in a node read a second time.
		t.mergeLeft(parent, idx, target, left)
		if err := t.pager.WritePage(left); err != nil {
			return nil, err
		}
		if err := t.pager.DeletePage(target.PageID); err != nil {
			return nil, err
		}
		return left, nil

	default:
		t.mergeRight(parent, idx, target, right)
		if err := t.pager.WritePage(target); err != nil {
			return nil, err
		}
		if err := t.pager.DeletePage(right.PageID); err != nil {
			return nil, err
		}
		return target, nil
	}
}

func (t *Tree) borrowFromLeft(parent *node.Node, idx int, target, left *node.Node) {
	if target.IsLeaf() {
		parent.Keys[idx-1] = node.BorrowLeafFromLeft(target, left)
	} else {
		parent.Keys[idx-1] = node.BorrowInternalFromLeft(target, left, parent.Keys[idx-1])
	}
	parent.Dirty = true
}

func (t *Tree) borrowFromRight(parent *node.Node, idx int, target, right *node.Node) {
	if target.IsLeaf() {
		parent.Keys[idx] = node.BorrowLeafFromRight(target, right)
	} else {
		parent.Keys[idx] = node.BorrowInternalFromRight(target, right, parent.Keys[idx])
	}
	parent.Dirty = true
}

func (t *Tree) mergeLeft(parent *node.Node, idx int, target, left *node.Node) {
	separator := parent.Keys[idx-1]
	node.MergeIntoLeft(left, target, separator)
	parent.Keys = node.RemoveAt(parent.Keys, idx-1)
	parent.Children = node.RemoveAt(parent.Children, idx)
	parent.Dirty = true
}

func (t *Tree) mergeRight(parent *node.Node, idx int, target, right *node.Node) {
	separator := parent.Keys[idx]
	node.MergeRightIntoTarget(target, right, separator)
	parent.Keys = node.RemoveAt(parent.Keys, idx)
	parent.Children = node.RemoveAt(parent.Children, idx+1)
	parent.Dirty = true
}

func (t *Tree) writeAll(nodes ...*node.Node) error {
	for _, n := range nodes {
		if err := t.pager.WritePage(n); err != nil {
			return err
		}
	}
	return nil
}
