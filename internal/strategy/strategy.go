// Package strategy defines the signal provider interface used by the simulator and a
// Registry of the built-in strategies that backtests and sweeps can reference by name.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourorg/backtest-service/internal/model"
)

// Strategy turns the bars seen so far into a trading signal.
type Strategy interface {
	// Name returns the registry key of the strategy.
	Name() string

	// Lookback is the number of bars required before Signal is first called.
	Lookback() int

	// Signal is called once per bar with every bar up to and including the
	// current one. The slice must not be retained or modified.
	Signal(window []model.Bar) model.Signal
}

// ParamSpec documents one tunable parameter of a strategy.
type ParamSpec struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max,omitempty"`
	Integer     bool    `json:"integer"`
	Description string  `json:"description"`
}

// Factory builds a fresh strategy instance from resolved parameters.
type Factory func(params map[string]float64) (Strategy, error)

// Descriptor is what gets registered under a strategy name.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	Build       Factory     `json:"-"`
}

// Registry holds a named collection of strategy descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// DefaultRegistry returns a Registry with every built-in strategy registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(smaCrossoverDescriptor())
	r.Register(rsiMeanReversionDescriptor())
	r.Register(donchianBreakoutDescriptor())
	r.Register(buyAndHoldDescriptor())
	return r
}

// Register adds a descriptor, replacing any previous one with the same name.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Name] = d
}

// Get retrieves a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build resolves parameters against the descriptor's defaults and constructs a
// new strategy instance. Unknown parameter names are rejected.
func (r *Registry) Build(spec model.StrategySpec) (Strategy, error) {
	d, ok := r.Get(spec.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStrategy, spec.Name)
	}
	params, err := d.Resolve(spec.Params)
	if err != nil {
		return nil, err
	}
	return d.Build(params)
}

// Resolve merges supplied parameters over defaults and checks bounds.
func (d Descriptor) Resolve(supplied map[string]float64) (map[string]float64, error) {
	known := make(map[string]ParamSpec, len(d.Params))
	out := make(map[string]float64, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = p
		out[p.Name] = p.Default
	}
	for name, v := range supplied {
		p, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("strategy %s has no parameter %q", d.Name, name)
		}
		if v < p.Min || (p.Max > 0 && v > p.Max) {
			return nil, fmt.Errorf("strategy %s parameter %s=%v out of range", d.Name, name, v)
		}
		if p.Integer && v != float64(int(v)) {
			return nil, fmt.Errorf("strategy %s parameter %s must be an integer", d.Name, name)
		}
		out[name] = v
	}
	return out, nil
}
