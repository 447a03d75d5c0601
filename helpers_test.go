package gating

import (
	"math/rand"
	"testing"

	"github.com/gorgonia/gating/layers"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// distinct returns size distinct values in (0, 1], shuffled.
func distinct(seed int64, size int) []float32 {
	perm := rand.New(rand.NewSource(seed)).Perm(size)
	retVal := make([]float32, size)
	for i, p := range perm {
		retVal[i] = float32(p+1) / float32(size)
	}
	return retVal
}

func input(g *G.ExprGraph, name string, backing []float32, shape ...int) *G.Node {
	v := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	return G.NewTensor(g, G.Float32, len(shape), G.WithShape(shape...), G.WithName(name), G.WithValue(v))
}

// read arranges for the value of n to be available after the graph runs.
func read(n *G.Node) *G.Value {
	v := new(G.Value)
	G.Read(n, v)
	return v
}

func run(t *testing.T, g *G.ExprGraph) {
	t.Helper()
	m := G.NewTapeMachine(g)
	defer m.Close()
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}
}

func floats(t *testing.T, v *G.Value) []float32 {
	t.Helper()
	if *v == nil {
		t.Fatal("value was not computed")
	}
	data, ok := (*v).Data().([]float32)
	if !ok {
		t.Fatalf("expected []float32. Got %T", (*v).Data())
	}
	return data
}

// nonzeroPerRow counts the nonzero values of each of the rows of data.
func nonzeroPerRow(data []float32, rows int) []int {
	cols := len(data) / rows
	retVal := make([]int, rows)
	for r := 0; r < rows; r++ {
		for _, v := range data[r*cols : (r+1)*cols] {
			if v != 0 {
				retVal[r]++
			}
		}
	}
	return retVal
}

// shapeless pools do not reduce anything, to break the subsampling postconditions.
type shapeless struct {
	layers.Builder
}

func (shapeless) MaxPool(x *G.Node, p layers.PoolParams) (*G.Node, error)     { return x, nil }
func (shapeless) AveragePool(x *G.Node, p layers.PoolParams) (*G.Node, error) { return x, nil }

// recorder keeps the output of every convolution it builds, by scope.
type recorder struct {
	layers.Builder
	convs map[string]*G.Node
}

func newRecorder() *recorder { return &recorder{convs: make(map[string]*G.Node)} }

func (r *recorder) Convolution(x *G.Node, p layers.ConvParams) (*G.Node, error) {
	retVal, err := r.Builder.Convolution(x, p)
	if err == nil {
		r.convs[p.Scope] = retVal
	}
	return retVal, err
}
