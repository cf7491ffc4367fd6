// Package trie implements an arena-based path trie used for ignore-path
// matching. Nodes live in one contiguous slice and reference each other by
// index instead of pointer, which keeps allocations down and traversal
// cache-friendly when a scan checks thousands of paths against the same
// small ignore set.
package trie

import (
	"sort"
	"strings"
)

// NodeIndex represents the index of a trie node.
type NodeIndex int

// Arena is a memory pool that stores all trie nodes.
type Arena struct {
	// nodes is a slice that stores all trie nodes.
	nodes []arenaNode
}

// arenaNode is the internal representation of a trie node stored in the arena.
type arenaNode struct {
	// children stores child nodes. key is the path segment, value is the index of the child node.
	children map[string]NodeIndex
	// isEnd indicates whether this node is the end of an inserted path.
	isEnd bool
}

// NewArena creates a new arena.
func NewArena() *Arena {
	arena := &Arena{
		nodes: make([]arenaNode, 0, 1024), // Set initial capacity
	}
	// root node (index 0)
	arena.nodes = append(arena.nodes, arenaNode{
		children: make(map[string]NodeIndex),
		isEnd:    false,
	})
	return arena
}

// newNode adds a new node to the arena and returns its index.
func (a *Arena) newNode() NodeIndex {
	idx := NodeIndex(len(a.nodes))
	a.nodes = append(a.nodes, arenaNode{
		children: make(map[string]NodeIndex),
		isEnd:    false,
	})
	return idx
}

// Insert inserts a sequence of path segments into the trie.
func (a *Arena) Insert(sequence []string) {
	current := NodeIndex(0) // root node

	for _, part := range sequence {
		node := &a.nodes[current]
		childIdx, exists := node.children[part]

		if !exists {
			childIdx = a.newNode()
			node.children[part] = childIdx
		}

		current = childIdx
	}

	a.nodes[current].isEnd = true
}

// HasPrefix reports whether any inserted path is a prefix of the given
// segment sequence. The sequence itself counts as its own prefix.
func (a *Arena) HasPrefix(sequence []string) bool {
	current := NodeIndex(0)

	for _, part := range sequence {
		node := a.nodes[current]
		if node.isEnd {
			return true
		}
		childIdx, exists := node.children[part]
		if !exists {
			return false
		}
		current = childIdx
	}

	return a.nodes[current].isEnd
}

// Empty reports whether the trie holds no paths.
func (a *Arena) Empty() bool {
	return len(a.nodes) == 1 && !a.nodes[0].isEnd
}

// DebugString returns a string representation of the trie for debugging purposes.
func (a *Arena) DebugString() string {
	return a.debugStringNode(NodeIndex(0))
}

// debugStringNode recursively generates a string representation of a specific node (and its subtree).
func (a *Arena) debugStringNode(idx NodeIndex) string {
	node := a.nodes[idx]
	var sb strings.Builder

	if node.isEnd {
		sb.WriteString("*")
	}

	// Sort keys for consistent order
	keys := make([]string, 0, len(node.children))
	for key := range node.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteString("(")
		sb.WriteString(a.debugStringNode(node.children[key]))
		sb.WriteString(")")
	}

	return sb.String()
}

// Trie is a wrapper for compatibility with existing API.
type Trie struct {
	arena *Arena
}

// New returns an initialized Trie.
func New() *Trie {
	return &Trie{
		arena: NewArena(),
	}
}

// Insert inserts a sequence of path segments into the trie.
func (t *Trie) Insert(sequence []string) {
	t.arena.Insert(sequence)
}

// HasPrefix reports whether any inserted path is a prefix of the sequence.
func (t *Trie) HasPrefix(sequence []string) bool {
	return t.arena.HasPrefix(sequence)
}

// Empty reports whether the trie holds no paths.
func (t *Trie) Empty() bool {
	return t.arena.Empty()
}

// DebugString returns a string representation of the trie for debugging purposes.
func (t *Trie) DebugString() string {
	return t.arena.DebugString()
}
