package gatednet

import (
	"bytes"
	"log"
	"math/rand"
	"time"

	"github.com/gorgonia/gating/estimator"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Train is a basic trainer. Xs are (examples, features, height, width) and ys
// are one hot (examples, classes). The gate statistics are collected after
// every batch.
func Train(n *Net, Xs, ys *tensor.Dense, batches, iterations int) error {
	if n.FwdOnly {
		return errors.New("cannot train a fwd only network")
	}
	if need := batches * n.BatchSize; Xs.Shape()[0] < need || ys.Shape()[0] < need {
		return errors.Errorf("%d batches of %d need %d examples. Got %v and %v", batches, n.BatchSize, need, Xs.Shape(), ys.Shape())
	}
	m := G.NewTapeMachine(n.g, G.BindDualValues(n.trainable()...))
	defer m.Close()
	model := G.NodesToValueGrads(n.trainable())
	solver := G.NewVanillaSolver(G.WithLearnRate(n.LearnRate), G.WithBatchSize(float64(n.BatchSize)))

	var s slicer
	for i := 0; i < iterations; i++ {
		var cost float32
		for bat := 0; bat < batches; bat++ {
			batchStart := bat * n.BatchSize
			batchEnd := batchStart + n.BatchSize

			Xs2 := s.Slice(Xs, sli(batchStart, batchEnd))
			ys2 := s.Slice(ys, sli(batchStart, batchEnd))
			if s.err != nil {
				return s.err
			}

			G.Let(n.planes, Xs2)
			G.Let(n.labels, ys2)
			if err := m.RunAll(); err != nil {
				return err
			}
			if err := solver.Step(model); err != nil {
				return err
			}
			if err := n.est.Collect(); err != nil {
				return err
			}
			cost += n.cost.Data().(float32)
			m.Reset()
		}
		if err := shuffleBatch(Xs, ys); err != nil {
			return err
		}
		if n.Logger != nil {
			n.Logger.Printf("%d\t%v\t%v", i, cost/float32(batches), n.est.Format())
		}
	}
	return nil
}

// shuffleBatch shuffles the examples.
func shuffleBatch(Xs, ys *tensor.Dense) (err error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	oriXs := Xs.Shape().Clone()
	oriYs := ys.Shape().Clone()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("%v %v", Xs.Shape(), ys.Shape())
			panic(r)
		}
	}()
	Xs.Reshape(as2D(Xs.Shape())...)
	ys.Reshape(as2D(ys.Shape())...)

	var matXs, matYs [][]float32
	if matXs, err = native.MatrixF32(Xs); err != nil {
		return errors.Wrapf(err, "shuffle batch failed - matX")
	}
	if matYs, err = native.MatrixF32(ys); err != nil {
		return errors.Wrapf(err, "shuffle batch failed - y")
	}

	tmpX := make([]float32, Xs.Shape()[1])
	tmpY := make([]float32, ys.Shape()[1])
	for i := range matXs {
		j := r.Intn(i + 1)

		copy(tmpX, matXs[i])
		copy(matXs[i], matXs[j])
		copy(matXs[j], tmpX)

		copy(tmpY, matYs[i])
		copy(matYs[i], matYs[j])
		copy(matYs[j], tmpY)
	}
	Xs.Reshape(oriXs...)
	ys.Reshape(oriYs...)

	return nil
}

func as2D(s tensor.Shape) tensor.Shape {
	retVal := tensor.BorrowInts(2)
	retVal[0] = s[0]
	retVal[1] = s[1]
	for i := 2; i < len(s); i++ {
		retVal[1] *= s[i]
	}
	return retVal
}

// Inferencer is a struct that holds the state for a fwd only *Net and a VM. By
// using an Inferencer, there is no longer a need to create a VM every time an
// inference needs to be done.
type Inferencer struct {
	n *Net
	m G.VM

	input *tensor.Dense
	buf   *bytes.Buffer
}

// Infer takes a trained *Net, and creates an inference data structure for
// batches of batchSize. The gates of the inference network keep every value
// they produce.
func Infer(n *Net, batchSize int, toLog bool) (*Inferencer, error) {
	conf := n.Config
	conf.FwdOnly = true
	conf.BatchSize = batchSize
	newShape := n.planes.Shape().Clone()
	newShape[0] = batchSize
	retVal := &Inferencer{
		n:     New(conf, estimator.New()),
		input: tensor.New(tensor.WithShape(newShape...), tensor.Of(Float)),
	}
	retVal.n.Logger = n.Logger
	if err := retVal.n.Init(); err != nil {
		return nil, err
	}
	if err := copyModel(retVal.n.Model(), n.Model()); err != nil {
		return nil, err
	}

	retVal.buf = new(bytes.Buffer)
	if toLog {
		logger := log.New(retVal.buf, "", 0)
		retVal.m = G.NewTapeMachine(retVal.n.g,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		)
	} else {
		retVal.m = G.NewTapeMachine(retVal.n.g)
	}
	return retVal, nil
}

// Net returns the fwd only network.
func (m *Inferencer) Net() *Net { return m.n }

// Infer takes a batch of images, in form of a []float32, runs inference and
// returns the predicted class distributions, one row per image.
func (m *Inferencer) Infer(planes []float32) (retVal []float32, err error) {
	// copy planes to the provided preallocated input tensor
	m.input.Zero()
	data := m.input.Data().([]float32)
	copy(data, planes)

	m.m.Reset()
	m.buf.Reset()
	G.Let(m.n.planes, m.input)
	if err = m.m.RunAll(); err != nil {
		return nil, err
	}
	if err = m.n.est.Collect(); err != nil {
		return nil, err
	}
	output := m.n.outputValue.Data().([]float32)
	return append(retVal, output...), nil
}

// ExecLog returns the execution log. If Infer was called with toLog = false, then it will return an empty string
func (m *Inferencer) ExecLog() string { return m.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (m *Inferencer) Close() error { return m.m.Close() }
