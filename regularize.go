package gating

import (
	"github.com/gorgonia/gating/estimator"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Metric names under which the gates report.
const (
	GateMetric     = "gate"
	GateLossMetric = "gate.loss"
)

// regularizedGate builds the gate of a convolution and returns it
// (1: enable, 0: disable).
//
// Online, the gate network is regularized to predict the subsampled output of
// the convolution: the weighted mean squared error between the two is
// registered under GateLossMetric and collected as a regularization loss, and
// the returned gate is the gradient-free {0, 1} mask of the top density
// predictions.
//
// Offline, the gate network is linear and the returned gate is its top density
// predictions with their magnitudes. No loss is built here.
func (l *Layers) regularizedGate(layer string, convInput, convOutput *G.Node, conf Config) (*G.Node, error) {
	conv := conf.Conv
	conv.NumOutputs = convOutput.Shape()[1]
	gateScope := conv.Scope + "/gate"
	activation := conv.Activation
	if !conf.Online {
		activation = nil
	}
	gateOutput, err := gateNetwork(l.Constructor, convInput, conf.Granularity, conf.FeatureExtraction, conv, activation, gateScope)
	if err != nil {
		return nil, err
	}
	if !conf.Online {
		// offline discriminator: the top predictions are kept as they are
		return discriminateByDensity(gateOutput, conf.Density, conf.Granularity, false)
	}

	// online discriminator: we simply match max values in each channel
	match, err := subsample(l.Constructor, convOutput, conf.Granularity, conf.FeatureExtraction, conv.Scope+"/subsample")
	if err != nil {
		return nil, err
	}
	if !match.Shape().Eq(gateOutput.Shape()) {
		return nil, errors.WithStack(paramErrorf("gate prediction of shape %v does not match subsampled output of shape %v; check the kernel geometry of %q", gateOutput.Shape(), match.Shape(), layer))
	}
	loss, err := meanSquaredError(match, gateOutput, conf.Weight)
	if err != nil {
		return nil, err
	}
	if err = l.Register(loss, GateLossMetric, layer, estimator.Bounded); err != nil {
		return nil, errors.Wrapf(err, "registering the gate loss of %q", layer)
	}
	l.losses = append(l.losses, loss)
	return discriminateByDensity(gateOutput, conf.Density, conf.Granularity, true)
}

// meanSquaredError is weight * mean((target - pred)²).
func meanSquaredError(target, pred *G.Node, weight float64) (retVal *G.Node, err error) {
	var diff, sq, mean *G.Node
	if diff, err = G.Sub(target, pred); err != nil {
		return nil, errors.WithStack(err)
	}
	if sq, err = G.Square(diff); err != nil {
		return nil, errors.WithStack(err)
	}
	if mean, err = G.Mean(sq); err != nil {
		return nil, errors.WithStack(err)
	}
	if retVal, err = G.Mul(mean, scalarLike(mean, weight)); err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}
