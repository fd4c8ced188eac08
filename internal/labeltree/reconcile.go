package labeltree

import (
	"fmt"
	"strings"
)

// Emission is one series update produced by a reconcile.
type Emission struct {
	Path  []string
	Value float64
}

// String renders the emission as (a,b)->v.
func (e Emission) String() string {
	return fmt.Sprintf("(%s)->%g", strings.Join(e.Path, ","), e.Value)
}

// Anomaly records a key whose shape changed between polls.
// The new shape was kept and the old value discarded.
type Anomaly struct {
	Path []string
	Was  Kind
	Now  Kind
}

// Reconcile merges next into stored and returns the merged tree, the
// emissions for every leaf of it, and any shape anomalies found on the way.
//
// Keys present in next replace their stored counterpart (each snapshot is
// absolute). Keys only present in stored are kept with every leaf below them
// set to 0. Neither input is modified; the result shares no nodes with them.
//
// A leaf root is a metric without labels: it emits once with an empty path.
// An empty next zeroes a stored leaf root; a root that changes shape is
// reported with a nil path.
func Reconcile(stored, next *Node) (*Node, []Emission, []Anomaly) {
	if stored == nil {
		stored = NewTree()
	}
	if next == nil {
		next = NewTree()
	}

	var anomalies []Anomaly
	var merged *Node
	switch {
	case next.kind == KindLeaf:
		if stored.kind == KindBranch && len(stored.children) > 0 {
			anomalies = append(anomalies, Anomaly{Was: KindBranch, Now: KindLeaf})
		}
		merged = Leaf(next.value)
	case stored.kind == KindLeaf && len(next.children) == 0:
		merged = Leaf(0)
	case stored.kind == KindLeaf:
		anomalies = append(anomalies, Anomaly{Was: KindLeaf, Now: KindBranch})
		merged = merge(NewTree(), next, nil, &anomalies)
	default:
		merged = merge(stored, next, nil, &anomalies)
	}
	return merged, Emissions(merged), anomalies
}

// merge combines two branches. path is the label path of the branches.
func merge(stored, next *Node, path []string, anomalies *[]Anomaly) *Node {
	out := make(map[string]*Node, len(stored.children)+len(next.children))

	for key, nc := range next.children {
		sc, known := stored.children[key]
		if known && sc.kind != nc.kind {
			*anomalies = append(*anomalies, Anomaly{
				Path: appendPath(path, key),
				Was:  sc.kind,
				Now:  nc.kind,
			})
			known = false
		}

		switch nc.kind {
		case KindLeaf:
			out[key] = Leaf(nc.value)
		case KindBranch:
			if known {
				out[key] = merge(sc, nc, appendPath(path, key), anomalies)
			} else {
				out[key] = nc.Clone()
			}
		}
	}

	for key, sc := range stored.children {
		if _, ok := next.children[key]; ok {
			continue
		}
		out[key] = zero(sc)
	}

	return Branch(out)
}

// zero returns a copy of n with every leaf set to 0.
func zero(n *Node) *Node {
	switch n.kind {
	case KindLeaf:
		return Leaf(0)
	case KindBranch:
		children := make(map[string]*Node, len(n.children))
		for k, c := range n.children {
			children[k] = zero(c)
		}
		return Branch(children)
	default:
		panic(fmt.Sprintf("labeltree: unknown node kind %d", n.kind))
	}
}

// Emissions walks n depth first in key order and returns one emission per leaf.
func Emissions(n *Node) []Emission {
	var out []Emission
	walk(n, make([]string, 0, 8), func(path []string, v float64) {
		out = append(out, Emission{Path: append([]string(nil), path...), Value: v})
	})
	return out
}

func walk(n *Node, path []string, visit func([]string, float64)) {
	switch n.kind {
	case KindLeaf:
		visit(path, n.value)
	case KindBranch:
		for _, key := range n.Keys() {
			walk(n.children[key], append(path, key), visit)
		}
	}
}

// appendPath returns path+key without aliasing path's backing array.
func appendPath(path []string, key string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}
