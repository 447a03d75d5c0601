package gatednet

import (
	"fmt"
	"log"
	"strings"

	"github.com/gorgonia/gating"
	"github.com/gorgonia/gating/estimator"
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

// CostMetric is the metric the training cost is registered under.
const CostMetric = "cost"

// Net is a stack of gated convolutions, followed by a global average pool and
// a softmax classifier.
type Net struct {
	Config
	Logger *log.Logger // optional

	g     *G.ExprGraph
	gates *gating.Layers
	est   *estimator.Estimator

	planes *G.Node
	labels *G.Node // one hot
	output *G.Node

	outputValue G.Value // softmax predicted
	cost        G.Value // cost, for training recording
}

// New returns a new, uninitialized *Net that reports into est. A nil est gets
// a registry of its own.
func New(conf Config, est *estimator.Estimator) *Net {
	if est == nil {
		est = estimator.New()
	}
	return &Net{
		Config: conf,
		est:    est,
	}
}

func (n *Net) Init() error {
	if !n.IsValid() {
		return errors.Errorf("invalid config %+v", n.Config)
	}
	n.reset()
	n.g = G.NewGraph()
	n.gates = gating.NewLayers(layers.Builder{}, n.est, !n.FwdOnly)
	n.gates.Logger = n.Logger
	if err := n.fwd(); err != nil {
		return err
	}
	return n.bwd()
}

func (n *Net) fwd() (err error) {
	// note, the data should be arranged like so:
	//	BatchSize, Features, Height, Width
	// because Gorgonia only supports doing convolutions on BCHW format
	n.planes = G.NewTensor(n.g, Float, 4, G.WithShape(n.BatchSize, n.Features, n.Height, n.Width), G.WithName("Planes"))

	x := n.planes
	for i := 0; i < n.Layers; i++ {
		conf := n.Gate
		conf.Conv = layers.DefaultConvParams(n.K, n.Kernel)
		if x, err = n.gates.GatedConvolution(layerName(i), x, conf); err != nil {
			return err
		}
	}

	pool := layers.PoolParams{
		KernelSize: [2]int{x.Shape()[2], x.Shape()[3]},
		Stride:     layers.Square(1),
		Padding:    layers.ValidPadding,
		Scope:      "Pool",
	}
	var pooled *G.Node
	if pooled, err = (layers.Builder{}).AveragePool(x, pool); err != nil {
		return err
	}

	var m maebe
	features := m.reshape(pooled, tensor.Shape{n.BatchSize, n.K})
	logits := m.linear(features, n.Classes, "Classifier")
	n.output = m.do(func() (*G.Node, error) { return G.SoftMax(logits) })
	if m.err != nil {
		return m.err
	}
	// Read to output which can be used for classification
	G.Read(n.output, &n.outputValue)
	return nil
}

func (n *Net) bwd() error {
	if n.FwdOnly {
		return nil
	}
	n.labels = G.NewMatrix(n.g, Float, G.WithShape(n.BatchSize, n.Classes), G.WithName("Labels"))

	var m maebe
	cost := m.xent(n.output, n.labels)
	for _, loss := range n.gates.RegularizationLosses() {
		c, l := cost, loss
		cost = m.do(func() (*G.Node, error) { return G.Add(c, l) })
	}
	if m.err != nil {
		return m.err
	}
	G.Read(cost, &n.cost)
	if err := n.est.Register(cost, CostMetric, "net", estimator.Bounded); err != nil {
		return err
	}

	if _, err := G.Grad(cost, n.trainable()...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Model returns the variables of the network.
func (n *Net) Model() G.Nodes {
	retVal := make(G.Nodes, 0, n.g.Nodes().Len())
	for _, node := range n.g.AllNodes() {
		if node.IsVar() && node != n.planes && node != n.labels {
			retVal = append(retVal, node)
		}
	}
	return retVal
}

// trainable is the part of the model the cost depends on. Offline gates that
// do not gate get no training signal.
func (n *Net) trainable() G.Nodes {
	if n.Gate.Online || n.Gate.ShouldGate {
		return n.Model()
	}
	var retVal G.Nodes
	for _, node := range n.Model() {
		if !strings.Contains(node.Name(), "/gate/") {
			retVal = append(retVal, node)
		}
	}
	return retVal
}

// Estimator returns the registry the gates report into.
func (n *Net) Estimator() *estimator.Estimator { return n.est }

// Gates returns the gates of the layers.
func (n *Net) Gates() map[string]*G.Node { return n.gates.Gates() }

// Graph returns the expression graph of the network.
func (n *Net) Graph() *G.ExprGraph { return n.g }

// Clone creates a network of the same config with the same weights. The clone
// reports into a registry of its own.
func (n *Net) Clone() (*Net, error) {
	n2 := New(n.Config, nil)
	n2.Logger = n.Logger
	if err := n2.Init(); err != nil {
		return nil, err
	}
	if err := copyModel(n2.Model(), n.Model()); err != nil {
		return nil, err
	}
	return n2, nil
}

func (n *Net) reset() {
	n.g = nil
	n.gates = nil
	n.planes = nil
	n.labels = nil
	n.output = nil
	n.outputValue = nil
	n.cost = nil
}

func copyModel(dst, src G.Nodes) error {
	if len(dst) != len(src) {
		return errors.Errorf("cannot copy a model of %d variables into one of %d", len(src), len(dst))
	}
	for i, node := range src {
		if !node.Shape().Eq(dst[i].Shape()) {
			return errors.Errorf("cannot copy %v of shape %v into %v of shape %v", node.Name(), node.Shape(), dst[i].Name(), dst[i].Shape())
		}
		original := node.Value().Data().([]float32)
		cloned := dst[i].Value().Data().([]float32)
		copy(cloned, original)
	}
	return nil
}

func layerName(i int) string { return fmt.Sprintf("conv%d", i) }
