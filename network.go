package gating

import (
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// gateNetwork predicts, from the input of a convolution, one score per output
// channel (Channel) or per output row vector (Vector) of that convolution.
//
// The gate convolution starts with biases of 1 and weights of low variance, so
// that the early predictions are all active and do not collapse to zero.
func gateNetwork(c Constructor, x *G.Node, granularity Granularity, fe FeatureExtraction, conv layers.ConvParams, activation layers.ActivationFn, scope string) (*G.Node, error) {
	subsampled, err := subsample(c, x, granularity, fe, scope)
	if err != nil {
		return nil, err
	}

	params := layers.ConvParams{
		NumOutputs:  conv.NumOutputs,
		BiasInit:    layers.Constant(1.0),
		WeightsInit: layers.TruncatedNormal(0, 0.01),
		Activation:  activation,
		Scope:       scope,
	}
	switch granularity {
	case Channel:
		params.KernelSize = layers.Square(1)
		params.Stride = layers.Square(1)
		params.Padding = layers.ValidPadding
	case Vector:
		params.KernelSize = [2]int{conv.KernelSize[0], 1}
		params.Stride = [2]int{conv.Stride[0], 1}
		params.Padding = conv.Padding
		if conv.Padding.Mode == layers.Explicit {
			params.Padding = layers.Pad(conv.Padding.H, 0)
		}
	default:
		return nil, errors.WithStack(GranularityTypeError{granularity.String()})
	}

	padded, params, err := c.NumericPadding(subsampled, params)
	if err != nil {
		return nil, errors.Wrapf(err, "gate network %q", scope)
	}
	retVal, err := c.Convolution(padded, params)
	if err != nil {
		return nil, errors.Wrapf(err, "gate network %q", scope)
	}
	return retVal, nil
}
