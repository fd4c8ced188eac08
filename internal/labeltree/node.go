// Package labeltree reconciles nested label breakdowns against the previously
// published state of a gauge metric.
//
// A metric with N labels is represented as a tree of depth N: every branch
// level is keyed by one label value and the leaves hold the gauge values.
// Each poll produces a fresh tree (a snapshot); the Reconciler merges it into
// the tree it already knows, zeroes label paths that disappeared, and emits one
// (label path, value) pair per leaf to a GaugeSink.
package labeltree

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the two node variants.
type Kind int

const (
	// KindBranch is an interior node keyed by label value.
	KindBranch Kind = iota
	// KindLeaf is a numeric value terminating a label path.
	KindLeaf
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// Node is either a leaf carrying a value or a branch of child nodes.
// The zero value is an empty branch.
type Node struct {
	kind     Kind
	value    float64
	children map[string]*Node
}

// Leaf returns a leaf node holding v.
func Leaf(v float64) *Node {
	return &Node{kind: KindLeaf, value: v}
}

// Branch returns a branch node with the given children.
// The map is owned by the returned node.
func Branch(children map[string]*Node) *Node {
	if children == nil {
		children = make(map[string]*Node)
	}
	return &Node{kind: KindBranch, children: children}
}

// NewTree returns an empty root.
func NewTree() *Node {
	return Branch(nil)
}

// Kind reports whether n is a leaf or a branch.
func (n *Node) Kind() Kind {
	return n.kind
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool {
	return n.kind == KindLeaf
}

// Value returns the leaf value. Branches return 0.
func (n *Node) Value() float64 {
	if n.kind != KindLeaf {
		return 0
	}
	return n.value
}

// Child returns the child stored under key.
func (n *Node) Child(key string) (*Node, bool) {
	if n.kind != KindBranch {
		return nil, false
	}
	c, ok := n.children[key]
	return c, ok
}

// Len returns the number of direct children.
func (n *Node) Len() int {
	if n.kind != KindBranch {
		return 0
	}
	return len(n.children)
}

// Keys returns the child keys in sorted order.
func (n *Node) Keys() []string {
	if n.kind != KindBranch {
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores child under key, turning n into a branch if needed.
func (n *Node) Set(key string, child *Node) {
	if n.kind != KindBranch || n.children == nil {
		n.kind = KindBranch
		n.value = 0
		n.children = make(map[string]*Node)
	}
	n.children[key] = child
}

// Lookup follows path from n and returns the node at its end.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	cur := n
	for _, key := range path {
		next, ok := cur.Child(key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	switch n.kind {
	case KindLeaf:
		return Leaf(n.value)
	case KindBranch:
		children := make(map[string]*Node, len(n.children))
		for k, c := range n.children {
			children[k] = c.Clone()
		}
		return Branch(children)
	default:
		panic(fmt.Sprintf("labeltree: unknown node kind %d", n.kind))
	}
}

// Leaves returns the number of leaves below n.
func (n *Node) Leaves() int {
	switch n.kind {
	case KindLeaf:
		return 1
	case KindBranch:
		total := 0
		for _, c := range n.children {
			total += c.Leaves()
		}
		return total
	default:
		return 0
	}
}

// Equal reports whether a and b have the same shape and values.
func Equal(a, b *Node) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindLeaf:
		return a.value == b.value
	case KindBranch:
		if len(a.children) != len(b.children) {
			return false
		}
		for k, ac := range a.children {
			bc, ok := b.children[k]
			if !ok || !Equal(ac, bc) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders n like {a: {x: 2}}, keys sorted.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.kind {
	case KindLeaf:
		fmt.Fprintf(b, "%g", n.value)
	case KindBranch:
		b.WriteByte('{')
		for i, k := range n.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			n.children[k].write(b)
		}
		b.WriteByte('}')
	}
}
