package layers

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// maebe carries the first error of a chain of graph constructions.
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

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = nnops.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
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

// mean averages input along the given axes and keeps them as axes of size 1.
// Axes are reduced one at a time: G.Mean over several axes of a 4D tensor
// averages the wrong elements.
func (m *maebe) mean(input *G.Node, along ...int) (retVal *G.Node) {
	retVal = input
	for _, a := range along {
		if m.err != nil {
			return nil
		}
		kept := retVal.Shape().Clone()
		kept[a] = 1
		axis, in := a, retVal
		reduced := m.do(func() (*G.Node, error) { return G.Mean(in, axis) })
		retVal = m.reshape(reduced, kept)
	}
	return
}

// padZeros surrounds the spatial axes of a BCHW input with zeros.
func (m *maebe) padZeros(input *G.Node, top, bottom, left, right int) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	s := input.Shape()
	n, c, h, w := s[0], s[1], s[2], s[3]

	retVal = input
	if top > 0 || bottom > 0 {
		var parts G.Nodes
		if top > 0 {
			parts = append(parts, zeros(input.Dtype(), n, c, top, w))
		}
		parts = append(parts, retVal)
		if bottom > 0 {
			parts = append(parts, zeros(input.Dtype(), n, c, bottom, w))
		}
		retVal = m.do(func() (*G.Node, error) { return G.Concat(2, parts...) })
		h += top + bottom
	}
	if left > 0 || right > 0 {
		var parts G.Nodes
		if left > 0 {
			parts = append(parts, zeros(input.Dtype(), n, c, h, left))
		}
		parts = append(parts, retVal)
		if right > 0 {
			parts = append(parts, zeros(input.Dtype(), n, c, h, right))
		}
		retVal = m.do(func() (*G.Node, error) { return G.Concat(3, parts...) })
	}
	return
}

func zeros(dt tensor.Dtype, shape ...int) *G.Node {
	return G.NewConstant(tensor.New(tensor.Of(dt), tensor.WithShape(shape...)))
}
