package gating

import (
	"math"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// discriminateByDensity marks the top density portion of each sample of a BCHW
// tensor as active.
//
// The number of active elements is ceil(n * density), where n is the channel
// count for Channel and width * channels for Vector, so at least one element
// stays active. Online, the input is treated as a fixed reference and the
// result is a {0, 1} mask without gradient. Offline, the active entries keep
// their values and everything else is zeroed.
func discriminateByDensity(x *G.Node, density float64, granularity Granularity, online bool) (retVal *G.Node, err error) {
	if err = checkDensity(density); err != nil {
		return nil, err
	}
	if x.Dims() != 4 {
		return nil, errors.Errorf("discriminateByDensity expects a BCHW tensor. Got shape %v", x.Shape())
	}
	// not training with the output as we train the predictor
	if online {
		if x, err = stopGradient(x); err != nil {
			return nil, err
		}
	}

	shape := x.Shape().Clone()
	num, channels, width := shape[0], shape[1], shape[3]
	var numElements int
	switch granularity {
	case Channel:
		numElements = channels
	case Vector:
		numElements = width * channels
	default:
		return nil, errors.WithStack(GranularityTypeError{granularity.String()})
	}
	numActive := int(math.Ceil(float64(numElements) * density))

	var reshaped, active *G.Node
	if reshaped, err = G.Reshape(x, tensor.Shape{num, shape.TotalSize() / num}); err != nil {
		return nil, errors.WithStack(err)
	}
	if active, err = densityMask(reshaped, numActive); err != nil {
		return nil, err
	}
	if !online {
		if active, err = G.HadamardProd(active, reshaped); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if retVal, err = G.Reshape(active, shape); err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}
