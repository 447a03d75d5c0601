package layers

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// MaxPool max-pools x over windows of p.KernelSize.
func (b Builder) MaxPool(x *G.Node, p PoolParams) (*G.Node, error) {
	if x.Dims() != 4 {
		return nil, errors.Errorf("max pool %q expects a BCHW tensor. Got shape %v", p.Scope, x.Shape())
	}
	p = reduceKernelSizeForSmallInput(p, x.Shape())
	if err := p.validate(); err != nil {
		return nil, errors.Wrapf(err, "max pool %q", p.Scope)
	}
	if shouldPoolNothing(p) {
		return x, nil
	}
	pad, err := poolPads(x.Shape(), p)
	if err != nil {
		return nil, err
	}
	retVal, err := nnops.MaxPool2D(x, tensor.Shape{p.KernelSize[0], p.KernelSize[1]}, pad, []int{p.Stride[0], p.Stride[1]})
	if err != nil {
		return nil, errors.Wrapf(err, "max pool %q", p.Scope)
	}
	return retVal, nil
}

// AveragePool averages x over windows of p.KernelSize. Windows spanning a whole
// spatial axis are computed as a mean reduction, anything else as a
// convolution with a constant averaging filter.
func (b Builder) AveragePool(x *G.Node, p PoolParams) (retVal *G.Node, err error) {
	if x.Dims() != 4 {
		return nil, errors.Errorf("average pool %q expects a BCHW tensor. Got shape %v", p.Scope, x.Shape())
	}
	s := x.Shape()
	p = reduceKernelSizeForSmallInput(p, s)
	if err = p.validate(); err != nil {
		return nil, errors.Wrapf(err, "average pool %q", p.Scope)
	}
	if shouldPoolNothing(p) {
		return x, nil
	}
	var pad []int
	if pad, err = poolPads(s, p); err != nil {
		return nil, err
	}

	var m maebe
	kh, kw := p.KernelSize[0], p.KernelSize[1]
	fullH := kh == s[2] && pad[0] == 0
	fullW := kw == s[3] && pad[1] == 0
	switch {
	case fullH && fullW:
		retVal = m.mean(x, 2, 3)
	case fullW && kh == 1 && p.Stride[0] == 1:
		retVal = m.mean(x, 3)
	case fullH && kw == 1 && p.Stride[1] == 1:
		retVal = m.mean(x, 2)
	default:
		filter := averagingFilter(x.Graph(), x.Dtype(), s[1], kh, kw)
		retVal = m.do(func() (*G.Node, error) {
			return nnops.Conv2d(x, filter, tensor.Shape{kh, kw}, pad, []int{p.Stride[0], p.Stride[1]}, []int{1, 1})
		})
	}
	if m.err != nil {
		return nil, errors.Wrapf(m.err, "average pool %q", p.Scope)
	}
	return retVal, nil
}

// averagingFilter is a (c, c, kh, kw) constant of g that averages each channel on its own.
func averagingFilter(g *G.ExprGraph, dt tensor.Dtype, c, kh, kw int) *G.Node {
	window := kh * kw
	size := c * c * window
	var backing interface{}
	switch dt {
	case tensor.Float64:
		data := make([]float64, size)
		for i := 0; i < c; i++ {
			start := (i*c + i) * window
			for j := start; j < start+window; j++ {
				data[j] = 1 / float64(window)
			}
		}
		backing = data
	default:
		data := make([]float32, size)
		for i := 0; i < c; i++ {
			start := (i*c + i) * window
			for j := start; j < start+window; j++ {
				data[j] = 1 / float32(window)
			}
		}
		backing = data
	}
	return G.NewConstant(tensor.New(tensor.WithShape(c, c, kh, kw), tensor.WithBacking(backing)), G.In(g))
}

// reduceKernelSizeForSmallInput shrinks the window to the statically known
// input size. Stride may not exceed the window.
func reduceKernelSizeForSmallInput(p PoolParams, s tensor.Shape) PoolParams {
	for i := range p.Stride {
		if p.Stride[i] == 0 {
			p.Stride[i] = 1
		}
	}
	p.KernelSize[0] = minInt(p.KernelSize[0], s[2])
	p.KernelSize[1] = minInt(p.KernelSize[1], s[3])
	p.Stride[0] = minInt(p.Stride[0], p.KernelSize[0])
	p.Stride[1] = minInt(p.Stride[1], p.KernelSize[1])
	return p
}

// shouldPoolNothing reports whether p is a 1x1 window at stride 1, which is a no-op.
func shouldPoolNothing(p PoolParams) bool {
	return p.KernelSize == Square(1) && p.Stride == Square(1) && p.Padding.Mode != Explicit
}

func poolPads(s tensor.Shape, p PoolParams) ([]int, error) {
	switch p.Padding.Mode {
	case Valid:
		return []int{0, 0}, nil
	case Explicit:
		return []int{p.Padding.H, p.Padding.W}, nil
	case Same:
		top, bottom := samePads(s[2], p.KernelSize[0], p.Stride[0])
		left, right := samePads(s[3], p.KernelSize[1], p.Stride[1])
		if top != bottom || left != right {
			return nil, errors.Errorf("pool %q: asymmetric SAME padding (%d, %d, %d, %d) is not supported", p.Scope, top, bottom, left, right)
		}
		return []int{top, left}, nil
	}
	return nil, errors.Errorf("pool %q: unknown padding mode %v", p.Scope, p.Padding.Mode)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
