package gating

import (
	"testing"

	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var gateNetworkShapes = []struct {
	name        string
	granularity Granularity
	conv        layers.ConvParams
	in          tensor.Shape
	correct     tensor.Shape
}{
	{"channel", Channel, layers.DefaultConvParams(8, 3), tensor.Shape{2, 3, 5, 5}, tensor.Shape{2, 8, 1, 1}},
	{"channel, strided", Channel, layers.ConvParams{KernelSize: layers.Square(3), Stride: layers.Square(2), NumOutputs: 4}, tensor.Shape{1, 3, 6, 6}, tensor.Shape{1, 4, 1, 1}},
	{"vector, same", Vector, layers.DefaultConvParams(8, 3), tensor.Shape{2, 3, 5, 5}, tensor.Shape{2, 8, 5, 1}},
	{"vector, same strided", Vector, layers.ConvParams{KernelSize: layers.Square(3), Stride: layers.Square(2), NumOutputs: 8}, tensor.Shape{2, 3, 5, 5}, tensor.Shape{2, 8, 3, 1}},
	{"vector, valid", Vector, layers.ConvParams{KernelSize: layers.Square(3), Stride: layers.Square(1), Padding: layers.ValidPadding, NumOutputs: 2}, tensor.Shape{2, 3, 5, 5}, tensor.Shape{2, 2, 3, 1}},
	{"vector, explicit", Vector, layers.ConvParams{KernelSize: layers.Square(3), Stride: layers.Square(1), Padding: layers.Pad(1, 1), NumOutputs: 8}, tensor.Shape{2, 3, 5, 5}, tensor.Shape{2, 8, 5, 1}},
}

func TestGateNetworkShapes(t *testing.T) {
	for _, c := range gateNetworkShapes {
		g := G.NewGraph()
		x := input(g, "x", distinct(8, c.in.TotalSize()), c.in...)
		pred, err := gateNetwork(layers.Builder{}, x, c.granularity, Max, c.conv, nil, "gate")
		if err != nil {
			t.Errorf("%v: %+v", c.name, err)
			continue
		}
		assert.Equal(t, c.correct, pred.Shape(), c.name)

		// the gate prediction has the shape of the subsampled convolution output
		conv := c.conv
		conv.Scope = "conv"
		out, err := layers.Builder{}.Convolution(x, conv)
		if err != nil {
			t.Errorf("%v: %+v", c.name, err)
			continue
		}
		sub, err := subsample(layers.Builder{}, out, c.granularity, Max, "sub")
		if err != nil {
			t.Errorf("%v: %+v", c.name, err)
			continue
		}
		assert.Equal(t, sub.Shape(), pred.Shape(), c.name)
	}
}

func TestGateNetworkInitiallyActive(t *testing.T) {
	g := G.NewGraph()
	x := input(g, "x", distinct(9, 2*3*4*4), 2, 3, 4, 4)
	pred, err := gateNetwork(layers.Builder{}, x, Channel, Avg, layers.DefaultConvParams(6, 3), nil, "gate")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	v := read(pred)
	run(t, g)
	// biases start at 1 and the weights are within 0.02 of 0, over 3 inputs in (0, 1]
	for i, p := range floats(t, v) {
		assert.InDelta(t, 1, p, 0.061, "prediction %d", i)
	}
}

func TestGateNetworkVariables(t *testing.T) {
	g := G.NewGraph()
	x := input(g, "x", distinct(10, 2*3*4*4), 2, 3, 4, 4)
	if _, err := gateNetwork(layers.Builder{}, x, Vector, Max, layers.DefaultConvParams(6, 3), nil, "conv/gate"); err != nil {
		t.Fatalf("%+v", err)
	}
	weights := g.ByName("conv/gate/weights")
	if assert.Len(t, weights, 1) {
		assert.Equal(t, tensor.Shape{6, 3, 3, 1}, weights[0].Shape())
	}
	biases := g.ByName("conv/gate/biases")
	if assert.Len(t, biases, 1) {
		assert.Equal(t, tensor.Shape{1, 6, 1, 1}, biases[0].Shape())
	}
}

func TestGateNetworkErrors(t *testing.T) {
	g := G.NewGraph()
	x := input(g, "x", distinct(11, 2*3*4*4), 2, 3, 4, 4)
	_, err := gateNetwork(layers.Builder{}, x, Granularity(3), Max, layers.DefaultConvParams(6, 3), nil, "gate")
	var gte GranularityTypeError
	assert.True(t, errors.As(err, &gte), "expected a GranularityTypeError. Got %v", err)
}
