// Package gating sparsifies the outputs of convolutions with dynamic gates.
//
// A gate is a mask over the output channels (or the output row vectors) of a
// convolution. It is predicted by a small gate network from a subsampled
// summary of the convolution's input, and only the top density portion of the
// predictions is kept active. Online gates are trained jointly with the network
// through a regularization loss that matches the prediction to the subsampled
// output of the convolution.
//
// Everything here builds gorgonia graphs; nothing is computed until a machine
// runs the graph.
package gating

import (
	"fmt"
	"log"

	"github.com/gorgonia/gating/estimator"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/vecf32"
)

// Layers builds gated layers.
type Layers struct {
	Constructor
	Registry

	// Training selects bounded histories for the gate statistics. Outside of
	// training every gate value is kept.
	Training bool
	Logger   *log.Logger // optional

	losses     G.Nodes
	gates      map[string]*G.Node
	formatters struct{ loss, density bool }
}

// NewLayers creates gated layers built by c that report into r.
func NewLayers(c Constructor, r Registry, training bool) *Layers {
	return &Layers{
		Constructor: c,
		Registry:    r,
		Training:    training,
		gates:       make(map[string]*G.Node),
	}
}

// GatedConvolution convolves x and multiplies the output with its regularized
// gate. If conf.ShouldGate is false the convolution output is returned as is;
// the gate is still built for its statistics and, online, its loss.
func (l *Layers) GatedConvolution(layer string, x *G.Node, conf Config) (retVal *G.Node, err error) {
	if err = conf.Validate(); err != nil {
		return nil, errors.Wrapf(err, "gated convolution %q", layer)
	}
	if conf.Conv.Scope == "" {
		conf.Conv.Scope = layer
	}

	var output, gate *G.Node
	if output, err = l.Convolution(x, conf.Conv); err != nil {
		return nil, err
	}
	if gate, err = l.regularizedGate(layer, x, output, conf); err != nil {
		return nil, errors.Wrapf(err, "gated convolution %q", layer)
	}
	// register gate sparsity for printing
	if err = l.registerGateDensity(layer, gate); err != nil {
		return nil, err
	}
	l.registerFormatters(conf.Online)
	l.logf("gated convolution %q: %v granularity, %v extraction, density %v, online %t, gating %t",
		layer, conf.Granularity, conf.FeatureExtraction, conf.Density, conf.Online, conf.ShouldGate)

	if !conf.ShouldGate {
		return output, nil
	}
	l.setGate(layer, gate)
	return applyGate(output, gate)
}

// Gate gates x directly: x is subsampled, the top density portion of the
// summary is marked active, and x is multiplied with the resulting {0, 1} mask.
// If conf.ShouldGate is false x is returned as is, and the mask is only
// computed for its statistics.
func (l *Layers) Gate(layer string, x *G.Node, conf Config) (retVal *G.Node, err error) {
	if err = conf.Validate(); err != nil {
		return nil, errors.Wrapf(err, "gate %q", layer)
	}
	scope := layer + "/gate"
	var subsampled, gate *G.Node
	if subsampled, err = subsample(l.Constructor, x, conf.Granularity, conf.FeatureExtraction, scope+"/subsample"); err != nil {
		return nil, errors.Wrapf(err, "gate %q", layer)
	}
	if gate, err = discriminateByDensity(subsampled, conf.Density, conf.Granularity, true); err != nil {
		return nil, errors.Wrapf(err, "gate %q", layer)
	}
	if err = l.registerGateDensity(layer, gate); err != nil {
		return nil, err
	}
	l.registerFormatters(false)
	l.logf("gate %q: %v granularity, %v extraction, density %v, gating %t",
		layer, conf.Granularity, conf.FeatureExtraction, conf.Density, conf.ShouldGate)

	if !conf.ShouldGate {
		// the mask is read by the registry, so it is computed whenever the graph runs
		return x, nil
	}
	l.setGate(layer, gate)
	return applyGate(x, gate)
}

// RegularizationLosses returns the losses of the online gates built so far.
func (l *Layers) RegularizationLosses() G.Nodes { return l.losses }

// Gates returns the gates applied so far, per layer.
func (l *Layers) Gates() map[string]*G.Node {
	retVal := make(map[string]*G.Node, len(l.gates))
	for k, v := range l.gates {
		retVal[k] = v
	}
	return retVal
}

func (l *Layers) setGate(layer string, gate *G.Node) {
	if l.gates == nil {
		l.gates = make(map[string]*G.Node)
	}
	l.gates[layer] = gate
}

func (l *Layers) registerGateDensity(layer string, gate *G.Node) error {
	history := estimator.Bounded
	if !l.Training {
		history = estimator.Infinite
	}
	if err := l.Register(gate, GateMetric, layer, history); err != nil {
		return errors.Wrapf(err, "registering the gate of %q", layer)
	}
	return nil
}

// registerFormatters registers each formatter once. The loss formatter is only
// needed once an online gate exists.
func (l *Layers) registerFormatters(online bool) {
	if online && !l.formatters.loss {
		l.RegisterFormatter(GateLossMetric, gateLossFormatter)
		l.formatters.loss = true
	}
	if !l.formatters.density {
		l.RegisterFormatter(GateMetric, gateDensityFormatter)
		l.formatters.density = true
	}
}

func (l *Layers) logf(format string, args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

// applyGate multiplies x with a gate whose collapsed axes are broadcast.
func applyGate(x, gate *G.Node) (*G.Node, error) {
	xs, gs := x.Shape(), gate.Shape()
	if len(xs) != len(gs) {
		return nil, errors.Errorf("cannot gate a tensor of shape %v with a gate of shape %v", xs, gs)
	}
	var pattern []byte
	for i := range xs {
		switch {
		case gs[i] == xs[i]:
		case gs[i] == 1:
			pattern = append(pattern, byte(i))
		default:
			return nil, errors.Errorf("cannot gate a tensor of shape %v with a gate of shape %v", xs, gs)
		}
	}
	var retVal *G.Node
	var err error
	if len(pattern) == 0 {
		retVal, err = G.HadamardProd(x, gate)
	} else {
		retVal, err = G.BroadcastHadamardProd(x, gate, nil, pattern)
	}
	return retVal, errors.WithStack(err)
}

// gateLossFormatter prints the mean and relative spread of the total gate loss.
// The loss histories of the layers are summed step by step.
func gateLossFormatter(r estimator.Reader) string {
	var total []float32
	for _, history := range r.Histories(GateLossMetric) {
		losses := make([]float32, len(history))
		for i, v := range history {
			losses[i] = v.Scalar()
		}
		if total == nil {
			total = losses
			continue
		}
		if len(losses) < len(total) {
			total = total[:len(losses)]
		}
		vecf32.Add(total, losses[:len(total)])
	}
	mean, std := estimator.MeanStd(total)
	return fmt.Sprintf("gate.loss: %.5f±%v", mean, estimator.Percent(std/mean))
}

// gateDensityFormatter prints the fraction of active gate entries over all layers.
func gateDensityFormatter(r estimator.Reader) string {
	var valid, total int
	for _, gate := range r.Values(GateMetric) {
		for _, v := range gate.Data {
			if v != 0 {
				valid++
			}
		}
		total += len(gate.Data)
	}
	return fmt.Sprintf("gate: %v", estimator.Percent(float32(valid)/float32(total)))
}
