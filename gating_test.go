package gating

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"

	"github.com/gorgonia/gating/estimator"
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func newTestLayers(training bool) (*Layers, *estimator.Estimator) {
	est := estimator.New()
	return NewLayers(layers.Builder{}, est, training), est
}

func TestGatedConvolutionOffline(t *testing.T) {
	rec := newRecorder()
	est := estimator.New()
	l := NewLayers(rec, est, true)
	g := G.NewGraph()
	x := input(g, "x", distinct(12, 2*3*5*5), 2, 3, 5, 5)

	conf := DefaultConfig(0.25)
	conf.Conv = layers.DefaultConvParams(64, 3)
	out, err := l.GatedConvolution("conv", x, conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 64, 5, 5}, out.Shape())

	gate, ok := l.Gates()["conv"]
	if !ok {
		t.Fatal("expected the gate of conv to be recorded")
	}
	assert.Equal(t, tensor.Shape{2, 64, 1, 1}, gate.Shape())
	assert.Empty(t, l.RegularizationLosses())
	assert.Equal(t, []string{"conv"}, est.Layers(GateMetric))
	assert.Empty(t, est.Layers(GateLossMetric))

	conv, prediction := rec.convs["conv"], rec.convs["conv/gate"]
	if conv == nil || prediction == nil {
		t.Fatalf("expected the convolution and its gate network. Got %v", rec.convs)
	}
	assert.Equal(t, gate.Shape(), prediction.Shape())

	gv, ov, cv, pv := read(gate), read(out), read(conv), read(prediction)
	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}

	mask, output := floats(t, gv), floats(t, ov)
	convolved, predicted := floats(t, cv), floats(t, pv)
	assert.Equal(t, []int{16, 16}, nonzeroPerRow(mask, 2))
	for i, m := range mask {
		if m != 0 {
			// an active gate keeps the magnitude of its prediction
			assert.InDelta(t, predicted[i], m, 1e-6, "channel %d", i)
		}
		for j := i * 25; j < (i+1)*25; j++ {
			assert.InDelta(t, convolved[j]*m, output[j], 1e-5, "channel %d", i)
		}
	}
	assert.Equal(t, "gate: 25.00%", est.Format())
}

func TestGatedConvolutionOnline(t *testing.T) {
	l, est := newTestLayers(true)
	g := G.NewGraph()
	x := input(g, "x", distinct(13, 2*3*6*6), 2, 3, 6, 6)

	conf := DefaultConfig(0.5)
	conf.Online = true
	conf.Conv = layers.DefaultConvParams(8, 3)
	out, err := l.GatedConvolution("conv1", x, conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 8, 6, 6}, out.Shape())
	assert.Len(t, l.RegularizationLosses(), 1)
	assert.Equal(t, []string{"conv1"}, est.Layers(GateLossMetric))
	assert.Equal(t, []string{"conv1"}, est.Layers(GateMetric))

	gv := read(l.Gates()["conv1"])
	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	mask := floats(t, gv)
	assert.Equal(t, []int{4, 4}, nonzeroPerRow(mask, 2))
	for _, m := range mask {
		assert.True(t, m == 0 || m == 1, "online gates are {0, 1}. Got %v", m)
	}

	loss := est.Values(GateLossMetric)["conv1"]
	assert.True(t, loss.Scalar() >= 0)
	formatted := est.Format()
	assert.True(t, strings.HasPrefix(formatted, "gate.loss: "), formatted)
	assert.True(t, strings.HasSuffix(formatted, ", gate: 50.00%"), formatted)
}

func TestGatedConvolutionVector(t *testing.T) {
	l, est := newTestLayers(false)
	g := G.NewGraph()
	x := input(g, "x", distinct(14, 2*3*6*6), 2, 3, 6, 6)

	conf := DefaultConfig(0.5)
	conf.Online = true
	conf.Granularity = Vector
	conf.FeatureExtraction = L2
	conf.Conv = layers.DefaultConvParams(4, 3)
	out, err := l.GatedConvolution("conv", x, conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 4, 6, 6}, out.Shape())
	gate := l.Gates()["conv"]
	assert.Equal(t, tensor.Shape{2, 4, 6, 1}, gate.Shape())

	gv := read(gate)
	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	// ceil(width * channels * density) = ceil(1 * 4 * 0.5) of the 24 vectors of a sample
	assert.Equal(t, []int{2, 2}, nonzeroPerRow(floats(t, gv), 2))
}

func TestGatedConvolutionNoGating(t *testing.T) {
	l, est := newTestLayers(true)
	g := G.NewGraph()
	x := input(g, "x", distinct(15, 1*2*4*4), 1, 2, 4, 4)

	conv := layers.DefaultConvParams(4, 3)
	conv.WeightsInit = layers.Constant(0.1)
	conf := DefaultConfig(0.5)
	conf.ShouldGate = false
	conf.Conv = conv
	out, err := l.GatedConvolution("gated", x, conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	conv.Scope = "plain"
	plain, err := layers.Builder{}.Convolution(x, conv)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Empty(t, l.Gates())
	assert.Equal(t, []string{"gated"}, est.Layers(GateMetric))

	ov, pv := read(out), read(plain)
	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDeltaSlice(t, floats(t, pv), floats(t, ov), 1e-6)
	// the gate is computed anyway
	assert.Equal(t, "gate: 50.00%", est.Format())
}

func TestGate(t *testing.T) {
	l, est := newTestLayers(false)
	var buf bytes.Buffer
	l.Logger = log.New(&buf, "", 0)

	g := G.NewGraph()
	data := distinct(16, 2*8*3*3)
	x := input(g, "x", data, 2, 8, 3, 3)
	out, err := l.Gate("gate", x, DefaultGateConfig(0.5))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, x.Shape(), out.Shape())
	assert.Empty(t, l.RegularizationLosses())
	assert.Contains(t, buf.String(), `gate "gate"`)

	gv, ov := read(l.Gates()["gate"]), read(out)
	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	mask, output := floats(t, gv), floats(t, ov)
	assert.Equal(t, []int{4, 4}, nonzeroPerRow(mask, 2))
	for i, m := range mask {
		for j := i * 9; j < (i+1)*9; j++ {
			assert.Equal(t, data[j]*m, output[j])
		}
	}
	assert.Equal(t, "gate: 50.00%", est.Format())
}

func TestGateNoGating(t *testing.T) {
	l, est := newTestLayers(false)
	g := G.NewGraph()
	x := input(g, "x", distinct(17, 2*8*3*3), 2, 8, 3, 3)
	conf := DefaultGateConfig(0.25)
	conf.ShouldGate = false
	out, err := l.Gate("gate", x, conf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.True(t, out == x)

	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	// the mask is still computed for its statistics
	v, ok := est.Values(GateMetric)["gate"]
	if assert.True(t, ok) {
		assert.Equal(t, float32(0.25), estimator.Density(v))
	}
}

func TestFormattersRegisteredOnce(t *testing.T) {
	l, est := newTestLayers(true)
	g := G.NewGraph()
	x := input(g, "x", distinct(18, 2*3*4*4), 2, 3, 4, 4)

	conf := DefaultGateConfig(0.5)
	conf.Conv = layers.DefaultConvParams(4, 3)
	var err error
	for _, name := range []string{"a", "b", "c"} {
		if x, err = l.GatedConvolution(name, x, conf); err != nil {
			t.Fatalf("%v: %+v", name, err)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, est.Layers(GateLossMetric))
	assert.Len(t, l.RegularizationLosses(), 3)

	run(t, g)
	if err := est.Collect(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, 1, strings.Count(est.Format(), "gate.loss:"))
	assert.Equal(t, 2, strings.Count(est.Format(), "gate"))
}

func TestGatedConvolutionErrors(t *testing.T) {
	l, _ := newTestLayers(true)
	g := G.NewGraph()
	x := input(g, "x", distinct(19, 2*3*4*4), 2, 3, 4, 4)

	var pve ParameterValueError
	var gte GranularityTypeError
	var ge GateError

	conf := DefaultConfig(0)
	conf.Conv = layers.DefaultConvParams(4, 3)
	_, err := l.GatedConvolution("conv", x, conf)
	assert.True(t, errors.As(err, &pve), "expected a ParameterValueError. Got %v", err)
	assert.True(t, errors.As(err, &ge), "expected a GateError. Got %v", err)

	conf.Density = 0.5
	conf.Granularity = Granularity(5)
	_, err = l.GatedConvolution("conv", x, conf)
	assert.True(t, errors.As(err, &gte), "expected a GranularityTypeError. Got %v", err)

	_, err = l.Gate("gate", x, conf)
	assert.True(t, errors.As(err, &gte), "expected a GranularityTypeError. Got %v", err)

	conf.Granularity = Channel
	conf.FeatureExtraction = FeatureExtraction(5)
	_, err = l.Gate("gate", x, conf)
	assert.True(t, errors.As(err, &pve), "expected a ParameterValueError. Got %v", err)
}

func TestApplyGate(t *testing.T) {
	g := G.NewGraph()
	x := input(g, "x", distinct(20, 2*3*4*5), 2, 3, 4, 5)
	for _, s := range []tensor.Shape{{2, 3, 1, 1}, {2, 3, 4, 1}, {2, 3, 4, 5}} {
		gate := input(g, fmt.Sprintf("gate%v", s), distinct(21, s.TotalSize()), s...)
		out, err := applyGate(x, gate)
		if assert.NoError(t, err, "%v", s) {
			assert.Equal(t, x.Shape(), out.Shape())
		}
	}
	bad := input(g, "bad", distinct(22, 2*2), 2, 2, 1, 1)
	_, err := applyGate(x, bad)
	assert.Error(t, err)
}
