package gating

import (
	"fmt"
	"hash"
	"hash/fnv"
	"sort"

	"github.com/chewxy/hm"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// stopGradient marks the value of x as fixed: it is the identity going forward
// and backpropagates a zero gradient.
func stopGradient(x *G.Node) (*G.Node, error) {
	retVal, err := G.ApplyOp(stopGradOp{}, x)
	return retVal, errors.WithStack(err)
}

// densityMask marks with 1 the k largest entries of each row of a matrix. Ties
// at the threshold are all marked. No gradient flows through it.
func densityMask(x *G.Node, k int) (*G.Node, error) {
	if x.Dims() != 2 {
		return nil, errors.Errorf("densityMask expects a matrix. Got shape %v", x.Shape())
	}
	if cols := x.Shape()[1]; k < 1 || k > cols {
		return nil, errors.WithStack(paramErrorf("cannot keep %d active elements out of %d.", k, cols))
	}
	retVal, err := G.ApplyOp(densityMaskOp{k: k}, x)
	return retVal, errors.WithStack(err)
}

type stopGradOp struct{}

func (op stopGradOp) Arity() int { return 1 }

func (op stopGradOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op stopGradOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	return sameShape(op, inputs)
}

func (op stopGradOp) Do(inputs ...G.Value) (G.Value, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("%v expects 1 input. Got %d", op, len(inputs))
	}
	t, ok := inputs[0].(tensor.Tensor)
	if !ok {
		return nil, errors.Errorf("%v expects a tensor. Got %T", op, inputs[0])
	}
	retVal, ok := t.Clone().(G.Value)
	if !ok {
		return nil, errors.Errorf("%v cannot clone %T", op, t)
	}
	return retVal, nil
}

func (op stopGradOp) ReturnsPtr() bool      { return false }
func (op stopGradOp) CallsExtern() bool     { return false }
func (op stopGradOp) OverwritesInput() int  { return -1 }
func (op stopGradOp) WriteHash(h hash.Hash) { fmt.Fprint(h, op.String()) }
func (op stopGradOp) Hashcode() uint32      { return hashOp(op) }
func (op stopGradOp) String() string        { return "StopGradient" }

func (op stopGradOp) DiffWRT(inputs int) []bool { return allTrue(inputs) }

func (op stopGradOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes, error) {
	return zeroGrads(inputs, grad)
}

type densityMaskOp struct {
	k int // number of active elements per row
}

func (op densityMaskOp) Arity() int { return 1 }

func (op densityMaskOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

func (op densityMaskOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	return sameShape(op, inputs)
}

func (op densityMaskOp) Do(inputs ...G.Value) (G.Value, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("%v expects 1 input. Got %d", op, len(inputs))
	}
	t, ok := inputs[0].(tensor.Tensor)
	if !ok || t.Dims() != 2 {
		return nil, errors.Errorf("%v expects a matrix. Got %v", op, inputs[0].Shape())
	}
	rows, cols := t.Shape()[0], t.Shape()[1]
	if op.k < 1 || op.k > cols {
		return nil, errors.Errorf("%v: cannot keep %d of %d elements", op, op.k, cols)
	}

	buf := make([]float64, cols)
	switch data := t.Data().(type) {
	case []float32:
		mask := make([]float32, len(data))
		for r := 0; r < rows; r++ {
			row := data[r*cols : (r+1)*cols]
			for i, v := range row {
				buf[i] = float64(v)
			}
			threshold := kthLargest(buf, op.k)
			for i, v := range row {
				if float64(v) >= threshold {
					mask[r*cols+i] = 1
				}
			}
		}
		return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(mask)), nil
	case []float64:
		mask := make([]float64, len(data))
		for r := 0; r < rows; r++ {
			row := data[r*cols : (r+1)*cols]
			copy(buf, row)
			threshold := kthLargest(buf, op.k)
			for i, v := range row {
				if v >= threshold {
					mask[r*cols+i] = 1
				}
			}
		}
		return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(mask)), nil
	}
	return nil, errors.Errorf("%v: unsupported dtype %v", op, t.Dtype())
}

func (op densityMaskOp) ReturnsPtr() bool      { return false }
func (op densityMaskOp) CallsExtern() bool     { return false }
func (op densityMaskOp) OverwritesInput() int  { return -1 }
func (op densityMaskOp) WriteHash(h hash.Hash) { fmt.Fprint(h, op.String()) }
func (op densityMaskOp) Hashcode() uint32      { return hashOp(op) }
func (op densityMaskOp) String() string        { return fmt.Sprintf("DensityMask{k=%d}", op.k) }

func (op densityMaskOp) DiffWRT(inputs int) []bool { return allTrue(inputs) }

func (op densityMaskOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes, error) {
	return zeroGrads(inputs, grad)
}

// kthLargest returns the minimum of the k largest values. vals is sorted in place.
func kthLargest(vals []float64, k int) float64 {
	sort.Float64s(vals)
	return vals[len(vals)-k]
}

func sameShape(op fmt.Stringer, inputs []G.DimSizer) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("%v expects 1 input. Got %d", op, len(inputs))
	}
	switch s := inputs[0].(type) {
	case tensor.Shape:
		return s.Clone(), nil
	case interface{ Shape() tensor.Shape }:
		return s.Shape().Clone(), nil
	}
	return nil, errors.Errorf("%v cannot infer a shape from %T", op, inputs[0])
}

// zeroGrads is the gradient of an op that blocks backpropagation.
func zeroGrads(inputs G.Nodes, grad *G.Node) (G.Nodes, error) {
	retVal := make(G.Nodes, len(inputs))
	for i := range inputs {
		zero, err := G.Mul(grad, scalarLike(grad, 0))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		retVal[i] = zero
	}
	return retVal, nil
}

func allTrue(n int) []bool {
	retVal := make([]bool, n)
	for i := range retVal {
		retVal[i] = true
	}
	return retVal
}

func hashOp(op G.Op) uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

// scalarLike is a constant v of the dtype of n.
func scalarLike(n *G.Node, v float64) *G.Node {
	if n.Dtype() == tensor.Float64 {
		return G.NewConstant(v)
	}
	return G.NewConstant(float32(v))
}
