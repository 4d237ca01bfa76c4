package trie

import (
	"slices"
)

// Node is one tree node. Each node is owned by its parent, the root by the
// Index.
type Node[T any] struct {
	Key   Key
	Value T
	Left  *Node[T]
	Right *Node[T]
}

// Entry is a key/value pair handed to Build.
type Entry[T any] struct {
	Key   Key
	Value T
}

// Index is a read-only prefix index over a prebuilt tree.
type Index[T any] struct {
	root *Node[T]
	size int
}

// New wraps an externally built tree.
func New[T any](root *Node[T]) *Index[T] {
	return &Index[T]{root: root, size: count(root)}
}

// Build sorts entries and assembles a tree from them, balanced except
// where stored keys prefix one another: a prefix always sits above the keys
// it prefixes. Wildcards sort after every byte value for construction
// purposes.
func Build[T any](entries []Entry[T]) *Index[T] {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry[T]) int {
		return buildOrder(a.Key, b.Key)
	})
	return &Index[T]{root: assemble(sorted), size: len(sorted)}
}

// Len returns the number of stored keys.
func (ix *Index[T]) Len() int {
	return ix.size
}

// Height returns the length of the longest root-to-leaf path.
func (ix *Index[T]) Height() int {
	return height(ix.root)
}

// Get returns the value stored under a key of identical length that equals
// key modulo wildcard positions.
func (ix *Index[T]) Get(key Key) (T, bool) {
	n := ix.root
	for n != nil {
		c := Compare(key, n.Key)
		switch {
		case c == 0 && len(key) == len(n.Key):
			return n.Value, true
		case c < 0:
			n = n.Left
		default:
			n = n.Right
		}
	}

	var zero T
	return zero, false
}

// GetFirstPrefixMatch returns the value of the first node on the descent
// path whose key is a prefix of key.
func (ix *Index[T]) GetFirstPrefixMatch(key Key) (T, bool) {
	n := ix.root
	for n != nil {
		c := ComparePrefix(key, n.Key)
		switch {
		case c == 0:
			return n.Value, true
		case c < 0:
			n = n.Left
		default:
			n = n.Right
		}
	}

	var zero T
	return zero, false
}

// GetAllPrefixMatches returns the values of every stored key that is a
// prefix of key. Results follow descent order, not key length.
func (ix *Index[T]) GetAllPrefixMatches(key Key) []T {
	var out []T
	collect(ix.root, key, &out)
	return out
}

// collect walks one descent path. A match may have prefixes of either
// length on both sides, so it forks: left recursively, right in the loop.
func collect[T any](n *Node[T], key Key, out *[]T) {
	for n != nil {
		c := ComparePrefix(key, n.Key)
		switch {
		case c < 0:
			n = n.Left
		case c > 0:
			n = n.Right
		default:
			*out = append(*out, n.Value)
			switch {
			case n.Left != nil && n.Right != nil:
				collect(n.Left, key, out)
				n = n.Right
			case n.Left != nil:
				n = n.Left
			default:
				n = n.Right
			}
		}
	}
}

// assemble roots each subtree at a key none of its siblings prefixes, so a
// query extending a stored prefix never leaves the subtree holding it.
func assemble[T any](sorted []Entry[T]) *Node[T] {
	if len(sorted) == 0 {
		return nil
	}
	root := prefixRoot(sorted, len(sorted)/2)
	return &Node[T]{
		Key:   sorted[root].Key,
		Value: sorted[root].Value,
		Left:  assemble(sorted[:root]),
		Right: assemble(sorted[root+1:]),
	}
}

// prefixRoot walks from sorted[at] to its shortest stored prefix until no
// shorter key in sorted prefixes the candidate.
func prefixRoot[T any](sorted []Entry[T], at int) int {
	for {
		next := at
		for i := range sorted {
			if len(sorted[i].Key) < len(sorted[next].Key) && isPrefix(sorted[i].Key, sorted[at].Key) {
				next = i
			}
		}
		if next == at {
			return at
		}
		at = next
	}
}

// isPrefix reports whether p prefixes k under the wildcard rule.
func isPrefix(p, k Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if compareSymbol(p[i], k[i]) != 0 {
			return false
		}
	}
	return true
}

// buildOrder is a total order used only for construction.
func buildOrder(a, b Key) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func count[T any](n *Node[T]) int {
	if n == nil {
		return 0
	}
	return 1 + count(n.Left) + count(n.Right)
}

func height[T any](n *Node[T]) int {
	if n == nil {
		return 0
	}
	return 1 + max(height(n.Left), height(n.Right))
}
