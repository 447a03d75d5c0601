package layers

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// Builder builds convolutions, pools and paddings on the graph of the tensor it
// is given. Tensors are laid out BCHW, because Gorgonia only supports doing
// convolutions on BCHW format.
type Builder struct{}

// Convolution convolves x, adds the biases and applies the activation.
func (b Builder) Convolution(x *G.Node, p ConvParams) (retVal *G.Node, err error) {
	if err = p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "convolution %q", p.Scope)
	}
	if x.Dims() != 4 {
		return nil, errors.Errorf("convolution %q expects a BCHW tensor. Got shape %v", p.Scope, x.Shape())
	}
	winit := p.WeightsInit
	if winit == nil {
		winit = G.GlorotU(1.0)
	}

	var m maebe
	kh, kw := p.KernelSize[0], p.KernelSize[1]
	input, pad := m.pad(x, p.Padding, p.KernelSize, p.Stride)
	if m.err != nil {
		return nil, m.err
	}
	inChannels := input.Shape()[1]
	filter := G.NewTensor(x.Graph(), x.Dtype(), 4, G.WithShape(p.NumOutputs, inChannels, kh, kw), G.WithName(scoped(p.Scope, "weights")), G.WithInit(winit))
	retVal = m.do(func() (*G.Node, error) {
		return nnops.Conv2d(input, filter, tensor.Shape{kh, kw}, pad, []int{p.Stride[0], p.Stride[1]}, []int{1, 1})
	})
	if p.BiasInit != nil && m.err == nil {
		bias := G.NewTensor(x.Graph(), x.Dtype(), 4, G.WithShape(1, p.NumOutputs, 1, 1), G.WithName(scoped(p.Scope, "biases")), G.WithInit(p.BiasInit))
		conv := retVal
		retVal = m.do(func() (*G.Node, error) { return G.BroadcastAdd(conv, bias, nil, []byte{0, 2, 3}) })
	}
	if p.Activation != nil {
		preact := retVal
		retVal = m.do(func() (*G.Node, error) { return p.Activation(preact) })
	}
	if m.err != nil {
		return nil, errors.Wrapf(m.err, "convolution %q", p.Scope)
	}
	return retVal, nil
}

// NumericPadding realises an explicit padding as zeros around x. The returned
// params are switched to VALID so the convolution does not pad again. Any other
// padding is left to the convolution.
func (b Builder) NumericPadding(x *G.Node, p ConvParams) (*G.Node, ConvParams, error) {
	if p.Padding.Mode != Explicit {
		return x, p, nil
	}
	if p.Padding.H < 0 || p.Padding.W < 0 {
		return nil, p, errors.Errorf("invalid padding %v for %q", p.Padding, p.Scope)
	}
	var m maebe
	padded := m.padZeros(x, p.Padding.H, p.Padding.H, p.Padding.W, p.Padding.W)
	p.Padding = ValidPadding
	return padded, p, m.err
}

// pad returns the (possibly zero-padded) input and the symmetric padding the
// convolution still has to apply.
func (m *maebe) pad(x *G.Node, p Padding, kernel, stride [2]int) (*G.Node, []int) {
	if m.err != nil {
		return nil, nil
	}
	switch p.Mode {
	case Valid:
		return x, []int{0, 0}
	case Explicit:
		return x, []int{p.H, p.W}
	case Same:
		s := x.Shape()
		top, bottom := samePads(s[2], kernel[0], stride[0])
		left, right := samePads(s[3], kernel[1], stride[1])
		if top == bottom && left == right {
			return x, []int{top, left}
		}
		return m.padZeros(x, top, bottom, left, right), []int{0, 0}
	}
	m.err = errors.Errorf("unknown padding mode %v", p.Mode)
	return nil, nil
}

// samePads splits the SAME padding of one axis the way TensorFlow does: the
// extra row or column goes after.
func samePads(in, kernel, stride int) (lo, hi int) {
	out := (in + stride - 1) / stride
	total := (out-1)*stride + kernel - in
	if total < 0 {
		total = 0
	}
	lo = total / 2
	return lo, total - lo
}

func scoped(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "/" + name
}
