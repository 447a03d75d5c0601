// Package estimator is a registry of named statistics read out of a gorgonia
// graph. Nodes are registered per (metric, layer) while the graph is built;
// after every run of the machine, Collect snapshots their values into bounded
// or infinite histories that formatters summarize for printing.
package estimator

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// History is how many values of a statistic are kept.
type History int

const (
	// Bounded keeps the latest DefaultHistory values.
	Bounded History = 0
	// Infinite keeps every value.
	Infinite History = -1
)

// DefaultHistory is the length of a Bounded history.
const DefaultHistory = 100

// Value is a snapshot of a registered node after a run.
type Value struct {
	Shape tensor.Shape
	Data  []float32
}

// Scalar is the first element of the value.
func (v Value) Scalar() float32 {
	if len(v.Data) == 0 {
		return 0
	}
	return v.Data[0]
}

// Reader is the read side of the registry. Formatters are given one.
type Reader interface {
	Histories(metric string) map[string][]Value
	Values(metric string) map[string]Value
}

// Formatter summarizes statistics for printing.
type Formatter func(r Reader) string

type entry struct {
	layer   string
	history History
	slot    G.Value // written by the read op of the graph
	values  []Value
}

type namedFormatter struct {
	name string
	f    Formatter
}

// Estimator is the registry. The zero value is not usable; use New.
type Estimator struct {
	sync.Mutex
	metrics    map[string]map[string]*entry
	order      []string // layers, in registration order
	formatters []namedFormatter
}

// New creates an empty registry.
func New() *Estimator {
	return &Estimator{
		metrics: make(map[string]map[string]*entry),
	}
}

// Register reads n into the metric of the layer every time the graph is run.
// Registering the same (metric, layer) again replaces the earlier node and
// clears its history.
func (e *Estimator) Register(n *G.Node, metric, layer string, history History) error {
	if n == nil {
		return errors.Errorf("cannot register a nil node as %q of %q", metric, layer)
	}
	if history < Infinite {
		return errors.Errorf("invalid history %d for %q of %q", history, metric, layer)
	}
	e.Lock()
	defer e.Unlock()

	layers, ok := e.metrics[metric]
	if !ok {
		layers = make(map[string]*entry)
		e.metrics[metric] = layers
	}
	en := &entry{layer: layer, history: history}
	G.Read(n, &en.slot)
	layers[layer] = en
	e.addLayer(layer)
	return nil
}

func (e *Estimator) addLayer(layer string) {
	for _, l := range e.order {
		if l == layer {
			return
		}
	}
	e.order = append(e.order, layer)
}

// Collect snapshots every registered value. Call it after each run of the machine.
func (e *Estimator) Collect() error {
	e.Lock()
	defer e.Unlock()
	for metric, layers := range e.metrics {
		for layer, en := range layers {
			if en.slot == nil {
				continue
			}
			v, err := snapshot(en.slot)
			if err != nil {
				return errors.Wrapf(err, "collecting %q of %q", metric, layer)
			}
			en.values = append(en.values, v)
			limit := DefaultHistory
			if en.history > 0 {
				limit = int(en.history)
			}
			if en.history != Infinite && len(en.values) > limit {
				en.values = en.values[len(en.values)-limit:]
			}
		}
	}
	return nil
}

// Histories returns the collected values of a metric, per layer.
func (e *Estimator) Histories(metric string) map[string][]Value {
	e.Lock()
	defer e.Unlock()
	retVal := make(map[string][]Value)
	for layer, en := range e.metrics[metric] {
		retVal[layer] = append([]Value(nil), en.values...)
	}
	return retVal
}

// Values returns the latest collected value of a metric, per layer. Layers
// that have not been collected yet are left out.
func (e *Estimator) Values(metric string) map[string]Value {
	e.Lock()
	defer e.Unlock()
	retVal := make(map[string]Value)
	for layer, en := range e.metrics[metric] {
		if len(en.values) > 0 {
			retVal[layer] = en.values[len(en.values)-1]
		}
	}
	return retVal
}

// Layers returns the layers that registered the metric, in registration order.
func (e *Estimator) Layers(metric string) []string {
	e.Lock()
	defer e.Unlock()
	var retVal []string
	for _, l := range e.order {
		if _, ok := e.metrics[metric][l]; ok {
			retVal = append(retVal, l)
		}
	}
	return retVal
}

// RegisterFormatter adds a formatter under a name. It returns false, and does
// nothing, if the name is taken.
func (e *Estimator) RegisterFormatter(name string, f Formatter) bool {
	e.Lock()
	defer e.Unlock()
	for _, nf := range e.formatters {
		if nf.name == name {
			return false
		}
	}
	e.formatters = append(e.formatters, namedFormatter{name, f})
	return true
}

// Format joins the output of the formatters, in registration order.
func (e *Estimator) Format() string {
	e.Lock()
	formatters := append([]namedFormatter(nil), e.formatters...)
	e.Unlock()

	outputs := make([]string, 0, len(formatters))
	for _, nf := range formatters {
		outputs = append(outputs, nf.f(e))
	}
	return strings.Join(outputs, ", ")
}

// Reset forgets the collected values, keeping the registrations.
func (e *Estimator) Reset() {
	e.Lock()
	defer e.Unlock()
	for _, layers := range e.metrics {
		for _, en := range layers {
			en.values = nil
		}
	}
}

func snapshot(v G.Value) (Value, error) {
	shape := v.Shape().Clone()
	switch data := v.Data().(type) {
	case []float32:
		return Value{Shape: shape, Data: append([]float32(nil), data...)}, nil
	case []float64:
		retVal := Value{Shape: shape, Data: make([]float32, len(data))}
		for i, d := range data {
			retVal.Data[i] = float32(d)
		}
		return retVal, nil
	case float32:
		return Value{Shape: shape, Data: []float32{data}}, nil
	case float64:
		return Value{Shape: shape, Data: []float32{float32(data)}}, nil
	}
	return Value{}, errors.Errorf("cannot collect a value of dtype %v", v.Dtype())
}
