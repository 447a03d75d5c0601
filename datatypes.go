package gating

import (
	"fmt"

	"github.com/gorgonia/gating/estimator"
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Granularity is the axis along which gating decisions are made.
type Granularity int

const (
	// Channel gates whole output channels: activations are summarized over height and width.
	Channel Granularity = iota
	// Vector gates the row vectors of each channel: activations are summarized over width.
	Vector
)

func (g Granularity) String() string {
	switch g {
	case Channel:
		return "channel"
	case Vector:
		return "vector"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// MarshalText implements encoding.TextMarshaler.
func (g Granularity) MarshalText() ([]byte, error) {
	switch g {
	case Channel, Vector:
		return []byte(g.String()), nil
	}
	return nil, errors.WithStack(GranularityTypeError{g.String()})
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Granularity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "channel":
		*g = Channel
	case "vector":
		*g = Vector
	default:
		return errors.WithStack(GranularityTypeError{string(text)})
	}
	return nil
}

// FeatureExtraction is the reduction used to summarize activations.
type FeatureExtraction int

const (
	Max FeatureExtraction = iota // max pool. It is the friendliest to hardware.
	L2                           // average pool of the squares
	Avg                          // average pool
)

func (fe FeatureExtraction) String() string {
	switch fe {
	case Max:
		return "max"
	case L2:
		return "l2"
	case Avg:
		return "avg"
	}
	return fmt.Sprintf("FeatureExtraction(%d)", int(fe))
}

// MarshalText implements encoding.TextMarshaler.
func (fe FeatureExtraction) MarshalText() ([]byte, error) {
	switch fe {
	case Max, L2, Avg:
		return []byte(fe.String()), nil
	}
	return nil, errors.WithStack(paramErrorf("feature extraction %v not supported.", fe))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (fe *FeatureExtraction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "max":
		*fe = Max
	case "l2":
		*fe = L2
	case "avg":
		*fe = Avg
	default:
		return errors.WithStack(paramErrorf("feature extraction %q not supported.", text))
	}
	return nil
}

// Constructor builds the convolutions and pools the gates are made of.
// layers.Builder is the gorgonia implementation.
type Constructor interface {
	Convolution(x *G.Node, p layers.ConvParams) (*G.Node, error)
	MaxPool(x *G.Node, p layers.PoolParams) (*G.Node, error)
	AveragePool(x *G.Node, p layers.PoolParams) (*G.Node, error)
	NumericPadding(x *G.Node, p layers.ConvParams) (*G.Node, layers.ConvParams, error)
}

// Registry records the statistics of the gates. *estimator.Estimator is the
// implementation.
type Registry interface {
	Register(value *G.Node, metric, layer string, history estimator.History) error
	RegisterFormatter(name string, f estimator.Formatter) bool
}
