package gatednet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type maebe struct {
	err error
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// linear is input × w + b. The biases are broadcast over the batch.
func (m *maebe) linear(input *G.Node, units int, name string) *G.Node {
	if m.err != nil {
		return nil
	}
	w := G.NewTensor(input.Graph(), Float, 2, G.WithShape(input.Shape()[1], units), G.WithInit(G.GlorotN(1.0)), G.WithName(name+"_w"))
	xw := m.do(func() (*G.Node, error) { return G.Mul(input, w) })
	b := G.NewTensor(input.Graph(), Float, 2, G.WithShape(1, units), G.WithName(name+"_b"), G.WithInit(G.Zeroes()))
	return m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, b, nil, []byte{0}) })
}

func (m *maebe) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Reshape(input, to); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// xent is the mean of -(y·p + (1-y)·(1-p)).
func (m *maebe) xent(output, target *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	var one *G.Node
	switch Float {
	case G.Float32:
		one = G.NewConstant(float32(1))
	case G.Float64:
		one = G.NewConstant(float64(1))
	}
	omy := m.do(func() (*G.Node, error) { return G.Sub(one, target) })
	omout := m.do(func() (*G.Node, error) { return G.Sub(one, output) })
	fst := m.do(func() (*G.Node, error) { return G.HadamardProd(target, output) })
	snd := m.do(func() (*G.Node, error) { return G.HadamardProd(omy, omout) })
	retVal = m.do(func() (*G.Node, error) { return G.Add(fst, snd) })
	retVal = m.do(func() (*G.Node, error) { return G.Neg(retVal) })
	return m.do(func() (*G.Node, error) { return G.Mean(retVal) })
}
