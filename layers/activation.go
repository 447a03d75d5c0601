package layers

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// ActivationFn is applied to the output of a convolution. A nil ActivationFn is linear.
type ActivationFn func(x *G.Node) (*G.Node, error)

// Rectify is max(x, 0).
func Rectify(x *G.Node) (*G.Node, error) { return nnops.Rectify(x) }

// Relu6 is min(max(x, 0), 6), written as relu(x) - relu(x - 6).
func Relu6(x *G.Node) (retVal *G.Node, err error) {
	var m maebe
	six := scalar(x.Dtype(), 6)
	hi := m.rectify(m.do(func() (*G.Node, error) { return G.Sub(x, six) }))
	lo := m.rectify(x)
	retVal = m.do(func() (*G.Node, error) { return G.Sub(lo, hi) })
	return retVal, m.err
}

// scalar is a constant of the given dtype.
func scalar(dt tensor.Dtype, v float64) *G.Node {
	switch dt {
	case tensor.Float64:
		return G.NewConstant(v)
	case tensor.Float32:
		return G.NewConstant(float32(v))
	}
	panic(errors.Errorf("unsupported dtype %v", dt))
}
