package gating

import (
	"github.com/gorgonia/gating/layers"
	"github.com/pkg/errors"
)

// Config configures a gate.
type Config struct {
	Density           float64 // fraction of elements kept active, in (0, 1]
	Granularity       Granularity
	FeatureExtraction FeatureExtraction
	Online            bool    // train the gate against the live convolution output
	Weight            float64 // weight of the online regularization loss
	ShouldGate        bool    // if false the gate is only computed for its statistics and loss

	// Conv is the gated convolution. It is ignored by the standalone gate.
	Conv layers.ConvParams
}

// DefaultConfig is the configuration of an offline gated convolution.
func DefaultConfig(density float64) Config {
	return Config{
		Density:           density,
		Granularity:       Channel,
		FeatureExtraction: Max,
		Online:            false,
		Weight:            0.01,
		ShouldGate:        true,
	}
}

// DefaultGateConfig is the configuration of a standalone gate, which is online.
func DefaultGateConfig(density float64) Config {
	conf := DefaultConfig(density)
	conf.Online = true
	return conf
}

// Validate returns the first configuration error.
func (conf Config) Validate() error {
	if err := checkDensity(conf.Density); err != nil {
		return err
	}
	switch conf.Granularity {
	case Channel, Vector:
	default:
		return errors.WithStack(GranularityTypeError{conf.Granularity.String()})
	}
	switch conf.FeatureExtraction {
	case Max, L2, Avg:
	default:
		return errors.WithStack(paramErrorf("feature extract type %v not supported.", conf.FeatureExtraction))
	}
	if conf.Weight < 0 {
		return errors.WithStack(paramErrorf("Gate loss weight %v is negative.", conf.Weight))
	}
	return nil
}

func (conf Config) IsValid() bool { return conf.Validate() == nil }

func checkDensity(density float64) error {
	if !(density > 0 && density <= 1) {
		return errors.WithStack(paramErrorf("Gate density value %v is out of range (0, 1].", density))
	}
	return nil
}
