package gatednet

import (
	"github.com/gorgonia/gating"
	"github.com/gorgonia/gating/estimator"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// LayerCost is the per example cost of a gated convolution.
type LayerCost struct {
	Layer   string
	MACs    int     // multiply-accumulates of the dense convolution
	Weights int     // convolution weights and biases
	Density float32 // fraction of active gate entries
}

// EffectiveMACs scales the MACs by the gate density.
func (c LayerCost) EffectiveMACs() float64 { return float64(c.MACs) * float64(c.Density) }

// EffectiveWeights scales the weights by the gate density.
func (c LayerCost) EffectiveWeights() float64 { return float64(c.Weights) * float64(c.Density) }

// Costs are the costs of every gated convolution of a net.
type Costs []LayerCost

// MACs sums the dense and the effective MACs.
func (cs Costs) MACs() (dense, effective float64) {
	for _, c := range cs {
		dense += float64(c.MACs)
		effective += c.EffectiveMACs()
	}
	return
}

// Weights sums the dense and the effective weights.
func (cs Costs) Weights() (dense, effective float64) {
	for _, c := range cs {
		dense += float64(c.Weights)
		effective += c.EffectiveWeights()
	}
	return
}

// Costs returns the cost of every gated convolution. The density of a layer is
// measured on its last collected gate; a layer that has none counts as dense.
func (n *Net) Costs() Costs {
	gates := n.est.Values(gating.GateMetric)
	retVal := make(Costs, 0, n.Layers)
	in := n.Features
	for i := 0; i < n.Layers; i++ {
		name := layerName(i)
		window := n.Kernel * n.Kernel * in
		c := LayerCost{
			Layer:   name,
			MACs:    n.Height * n.Width * n.K * window, // SAME padding at stride 1
			Weights: n.K*window + n.K,
			Density: 1,
		}
		if v, ok := gates[name]; ok && len(v.Data) > 0 {
			c.Density = estimator.Density(v)
		}
		retVal = append(retVal, c)
		in = n.K
	}
	return retVal
}

// Accuracy is the top-k accuracy of the inferencer over Xs and the one hot ys.
// Examples left over after the last whole batch are not counted.
func (m *Inferencer) Accuracy(Xs, ys *tensor.Dense, k int) (float64, error) {
	bs, classes := m.n.BatchSize, m.n.Classes
	if k < 1 {
		return 0, errors.Errorf("top-%d accuracy", k)
	}
	examples := Xs.Shape()[0]
	if ys.Shape()[0] != examples || ys.Shape().TotalSize() != examples*classes {
		return 0, errors.Errorf("labels of shape %v do not match %d examples of %d classes", ys.Shape(), examples, classes)
	}
	batches := examples / bs
	if batches == 0 {
		return 0, errors.Errorf("%d examples do not fill a batch of %d", examples, bs)
	}
	planes, ok := Xs.Data().([]float32)
	if !ok {
		return 0, errors.Errorf("expected []float32 examples. Got %T", Xs.Data())
	}
	labels, ok := ys.Data().([]float32)
	if !ok {
		return 0, errors.Errorf("expected []float32 labels. Got %T", ys.Data())
	}
	per := Xs.Shape().TotalSize() / examples

	var correct int
	for b := 0; b < batches; b++ {
		output, err := m.Infer(planes[b*bs*per : (b+1)*bs*per])
		if err != nil {
			return 0, err
		}
		for i := 0; i < bs; i++ {
			row := b*bs + i
			label := vecf32.Argmax(labels[row*classes : (row+1)*classes])
			if rank(output[i*classes:(i+1)*classes], label) < k {
				correct++
			}
		}
	}
	return float64(correct) / float64(batches*bs), nil
}

// rank is the number of predictions strictly above the one of class.
func rank(predictions []float32, class int) int {
	var retVal int
	for _, p := range predictions {
		if p > predictions[class] {
			retVal++
		}
	}
	return retVal
}
