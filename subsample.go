package gating

import (
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// subsample summarizes a BCHW tensor per granularity: over (height, width) for
// Channel, over width for Vector. The summary is a descriptive statistic, so
// no gradient flows back through it, online or not.
func subsample(c Constructor, x *G.Node, granularity Granularity, fe FeatureExtraction, scope string) (retVal *G.Node, err error) {
	if x.Dims() != 4 {
		return nil, errors.Errorf("subsample %q expects a BCHW tensor. Got shape %v", scope, x.Shape())
	}
	height, width := x.Shape()[2], x.Shape()[3]
	var kernel [2]int
	switch granularity {
	case Channel:
		kernel = [2]int{height, width}
	case Vector:
		kernel = [2]int{1, width}
	default:
		return nil, errors.WithStack(GranularityTypeError{granularity.String()})
	}
	params := layers.PoolParams{
		KernelSize: kernel,
		Stride:     layers.Square(1),
		Padding:    layers.ValidPadding,
		Scope:      scope,
	}

	switch fe {
	case Max:
		retVal, err = c.MaxPool(x, params)
	case L2:
		var squared *G.Node
		if squared, err = G.Square(x); err != nil {
			return nil, errors.WithStack(err)
		}
		retVal, err = c.AveragePool(squared, params)
	case Avg:
		retVal, err = c.AveragePool(x, params)
	default:
		return nil, errors.WithStack(paramErrorf("feature extract type %v not supported.", fe))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "subsample %q", scope)
	}

	s := retVal.Shape()
	if granularity == Channel && !(s[2] == 1 && s[3] == 1) {
		return nil, errors.WithStack(paramErrorf("We expect subsampled image for channel granularity to be 1x1. Got %v", s))
	}
	if granularity == Vector && s[3] != 1 {
		return nil, errors.WithStack(paramErrorf("We expect subsampled width for vector granularity to be 1. Got %v", s))
	}
	return stopGradient(retVal)
}
