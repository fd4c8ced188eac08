package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/emby-exporter/internal/labeltree"
)

// Definition declares one labeled gauge.
type Definition struct {
	Name   string
	Help   string
	Labels []string
}

// Arity returns the number of labels.
func (d Definition) Arity() int {
	return len(d.Labels)
}

// Registry holds the labeled gauges published by the exporter.
// Every metric is registered up front; only label values appear lazily.
type Registry struct {
	registerer prometheus.Registerer

	mu     sync.RWMutex
	gauges map[string]*prometheus.GaugeVec
	defs   map[string]Definition
	order  []string
}

// NewRegistry creates a registry on top of registerer.
func NewRegistry(registerer prometheus.Registerer) *Registry {
	return &Registry{
		registerer: registerer,
		gauges:     make(map[string]*prometheus.GaugeVec),
		defs:       make(map[string]Definition),
	}
}

// Register creates the gauge for def and registers it.
// The name is lower-cased; an empty help text is derived from the name.
func (r *Registry) Register(def Definition) (labeltree.GaugeSink, error) {
	def.Name = strings.ToLower(def.Name)
	if def.Help == "" {
		def.Help = strings.ReplaceAll(def.Name, "_", " ")
	}
	if len(def.Labels) == 0 {
		return nil, fmt.Errorf("metric %s: at least one label is required", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gauges[def.Name]; ok {
		return nil, fmt.Errorf("metric %s: already registered", def.Name)
	}

	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: def.Name,
			Help: def.Help,
		},
		def.Labels,
	)
	if err := r.registerer.Register(vec); err != nil {
		return nil, fmt.Errorf("metric %s: %w", def.Name, err)
	}

	r.gauges[def.Name] = vec
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return &gaugeSink{vec: vec}, nil
}

// MustRegister is Register for static definitions; it panics on error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, d := range defs {
		if _, err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Sink returns the GaugeSink of a registered metric.
func (r *Registry) Sink(name string) (labeltree.GaugeSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vec, ok := r.gauges[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &gaugeSink{vec: vec}, true
}

// Set writes one series of a registered metric.
func (r *Registry) Set(name string, labels []string, value float64) error {
	sink, ok := r.Sink(name)
	if !ok {
		return fmt.Errorf("metric %s: not registered", name)
	}
	return sink.Set(labels, value)
}

// Definition returns the definition a metric was registered with.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[strings.ToLower(name)]
	return d, ok
}

// Names returns registered metric names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// gaugeSink writes label paths into a GaugeVec.
type gaugeSink struct {
	vec *prometheus.GaugeVec
}

// Set creates the series on first use. GaugeVec never drops it on its own.
func (s *gaugeSink) Set(path []string, value float64) error {
	g, err := s.vec.GetMetricWithLabelValues(path...)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}
