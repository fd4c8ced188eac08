package labeltree

import (
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is returned when a snapshot does not fit the metric's
// label arity.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// MalformedError describes why a snapshot was rejected.
// It matches ErrMalformedSnapshot with errors.Is.
type MalformedError struct {
	Index  int // tuple index for flat snapshots, -1 otherwise
	Arity  int
	Got    int
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: tuple %d has %d labels, want %d", ErrMalformedSnapshot, e.Index, e.Got, e.Arity)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedSnapshot, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedSnapshot
}

// Snapshot is the current-state count structure of one poll.
// It is implemented by *Node (already nested) and Flat.
type Snapshot interface {
	snapshot()
}

func (*Node) snapshot() {}

// Tuple is one flat snapshot row: a label path and its value.
type Tuple struct {
	Labels []string
	Value  float64
}

// T is shorthand for building a Tuple.
func T(value float64, labels ...string) Tuple {
	return Tuple{Labels: labels, Value: value}
}

// Flat is a snapshot expressed as a list of label tuples.
type Flat []Tuple

func (Flat) snapshot() {}

// Normalize turns s into a nested tree of depth arity.
//
// Nested snapshots are returned as they are once their depth has been checked.
// Flat snapshots are folded into a new tree, one level per label; when two
// tuples share a label path the later one wins. Neither form is modified.
func Normalize(arity int, s Snapshot) (*Node, error) {
	if arity < 1 {
		return nil, &MalformedError{Index: -1, Arity: arity, Reason: fmt.Sprintf("arity %d", arity)}
	}

	switch s := s.(type) {
	case *Node:
		if s == nil {
			return NewTree(), nil
		}
		if err := checkDepth(s, arity, 0); err != nil {
			return nil, err
		}
		return s, nil
	case Flat:
		return fold(arity, s)
	case nil:
		return NewTree(), nil
	default:
		return nil, &MalformedError{Index: -1, Arity: arity, Reason: fmt.Sprintf("unsupported snapshot %T", s)}
	}
}

func fold(arity int, rows Flat) (*Node, error) {
	root := NewTree()
	for i, row := range rows {
		if len(row.Labels) != arity {
			return nil, &MalformedError{Index: i, Arity: arity, Got: len(row.Labels)}
		}

		cur := root
		last := len(row.Labels) - 1
		for _, key := range row.Labels[:last] {
			next, ok := cur.children[key]
			if !ok {
				next = NewTree()
				cur.children[key] = next
			}
			cur = next
		}
		cur.children[row.Labels[last]] = Leaf(row.Value)
	}
	return root, nil
}

// checkDepth verifies that every leaf below n sits at depth arity.
// Empty branches are allowed above the leaf level.
func checkDepth(n *Node, arity, depth int) error {
	switch n.kind {
	case KindLeaf:
		if depth != arity {
			return &MalformedError{Index: -1, Arity: arity, Got: depth,
				Reason: fmt.Sprintf("leaf at depth %d, want %d", depth, arity)}
		}
		return nil
	case KindBranch:
		if depth >= arity {
			return &MalformedError{Index: -1, Arity: arity, Got: depth + 1,
				Reason: fmt.Sprintf("branch at leaf depth %d", depth)}
		}
		for _, c := range n.children {
			if err := checkDepth(c, arity, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return &MalformedError{Index: -1, Arity: arity, Reason: "unknown node kind"}
	}
}
