package layers

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// PaddingMode is how a convolution or a pool pads its input.
type PaddingMode int

const (
	Same PaddingMode = iota // output size is ceil(input / stride)
	Valid                   // no padding
	Explicit                // H and W zeros on each side
)

func (m PaddingMode) String() string {
	switch m {
	case Same:
		return "SAME"
	case Valid:
		return "VALID"
	case Explicit:
		return "EXPLICIT"
	}
	return fmt.Sprintf("PaddingMode(%d)", int(m))
}

// Padding describes the padding of the two spatial axes. H and W are only read
// when Mode is Explicit.
type Padding struct {
	Mode PaddingMode
	H, W int
}

var (
	SamePadding  = Padding{Mode: Same}
	ValidPadding = Padding{Mode: Valid}
)

// Pad returns an explicit padding of h rows and w columns on each side.
func Pad(h, w int) Padding { return Padding{Mode: Explicit, H: h, W: w} }

func (p Padding) String() string {
	if p.Mode == Explicit {
		return fmt.Sprintf("(%d, %d)", p.H, p.W)
	}
	return p.Mode.String()
}

// Square is a (n, n) kernel or stride.
func Square(n int) [2]int { return [2]int{n, n} }

// ConvParams configures a 2D convolution. Sizes are (height, width).
type ConvParams struct {
	KernelSize [2]int
	Stride     [2]int
	Padding    Padding
	NumOutputs int

	WeightsInit G.InitWFn
	BiasInit    G.InitWFn // nil means no bias
	Activation  ActivationFn

	Scope string
}

// DefaultConvParams returns a stride 1, SAME padded convolution with relu6 activation.
func DefaultConvParams(numOutputs, kernel int) ConvParams {
	return ConvParams{
		KernelSize:  Square(kernel),
		Stride:      Square(1),
		Padding:     SamePadding,
		NumOutputs:  numOutputs,
		WeightsInit: G.GlorotU(1.0),
		BiasInit:    G.Zeroes(),
		Activation:  Relu6,
	}
}

// Validate checks the geometry of the convolution.
func (p ConvParams) Validate() error {
	if p.KernelSize[0] < 1 || p.KernelSize[1] < 1 {
		return errors.Errorf("invalid kernel size %v", p.KernelSize)
	}
	if p.Stride[0] < 1 || p.Stride[1] < 1 {
		return errors.Errorf("invalid stride %v", p.Stride)
	}
	if p.NumOutputs < 1 {
		return errors.Errorf("invalid number of outputs %d", p.NumOutputs)
	}
	if p.Padding.Mode == Explicit && (p.Padding.H < 0 || p.Padding.W < 0) {
		return errors.Errorf("invalid padding %v", p.Padding)
	}
	return nil
}

// PoolParams configures a 2D pooling window. Sizes are (height, width).
type PoolParams struct {
	KernelSize [2]int
	Stride     [2]int
	Padding    Padding
	Scope      string
}

func (p PoolParams) validate() error {
	if p.KernelSize[0] < 1 || p.KernelSize[1] < 1 {
		return errors.Errorf("invalid pool kernel size %v", p.KernelSize)
	}
	if p.Stride[0] < 1 || p.Stride[1] < 1 {
		return errors.Errorf("invalid pool stride %v", p.Stride)
	}
	return nil
}
