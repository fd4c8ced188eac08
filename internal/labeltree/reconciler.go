package labeltree

import (
	"log/slog"
	"strings"
)

// GaugeSink receives the series updates of one metric.
// Set must create the series on first use and must never remove one.
type GaugeSink interface {
	Set(path []string, value float64) error
}

// SinkFunc adapts a function to GaugeSink.
type SinkFunc func(path []string, value float64) error

// Set calls f.
func (f SinkFunc) Set(path []string, value float64) error {
	return f(path, value)
}

// Result summarizes one Apply.
type Result struct {
	Emitted   int // series written to the sink
	Zeroed    int // leaves reset to 0 this time because their path disappeared
	Anomalies int // keys whose shape changed
	SinkErrs  int // series the sink refused
}

// Reconciler keeps the published tree of one metric and applies snapshots
// to it. It is not safe for concurrent use; one poll loop owns it.
type Reconciler struct {
	name   string
	arity  int
	sink   GaugeSink
	logger *slog.Logger

	stored *Node
}

// NewReconciler creates a reconciler for a metric with arity labels.
func NewReconciler(name string, arity int, sink GaugeSink, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		name:   name,
		arity:  arity,
		sink:   sink,
		logger: logger,
		stored: NewTree(),
	}
}

// Name returns the metric name.
func (r *Reconciler) Name() string {
	return r.name
}

// Arity returns the number of labels of the metric.
func (r *Reconciler) Arity() int {
	return r.arity
}

// Apply normalizes s, merges it into the stored tree and writes every leaf
// of the merged tree to the sink.
//
// A malformed snapshot leaves the stored tree and the sink untouched.
func (r *Reconciler) Apply(s Snapshot) (Result, error) {
	next, err := Normalize(r.arity, s)
	if err != nil {
		return Result{}, err
	}

	merged, emissions, anomalies := Reconcile(r.stored, next)
	for _, a := range anomalies {
		r.logger.Warn("label_tree_shape_mismatch",
			"metric", r.name,
			"path", strings.Join(a.Path, "/"),
			"was", a.Was.String(),
			"now", a.Now.String(),
		)
	}

	res := Result{Anomalies: len(anomalies)}
	for _, e := range emissions {
		if e.Value == 0 && absent(next, e.Path) && wasSet(r.stored, e.Path) {
			res.Zeroed++
		}
		if err := r.sink.Set(e.Path, e.Value); err != nil {
			res.SinkErrs++
			r.logger.Warn("gauge_set_failed",
				"metric", r.name,
				"path", strings.Join(e.Path, "/"),
				"error", err,
			)
			continue
		}
		res.Emitted++
	}

	r.stored = merged
	return res, nil
}

// Tree returns a copy of the stored tree.
func (r *Reconciler) Tree() *Node {
	return r.stored.Clone()
}

// Series returns the number of label paths published so far.
func (r *Reconciler) Series() int {
	return r.stored.Leaves()
}

// wasSet reports whether path held a non-zero leaf in n.
func wasSet(n *Node, path []string) bool {
	leaf, ok := n.Lookup(path...)
	return ok && leaf.IsLeaf() && leaf.Value() != 0
}

// absent reports whether path has no leaf in n.
func absent(n *Node, path []string) bool {
	leaf, ok := n.Lookup(path...)
	return !ok || !leaf.IsLeaf()
}
