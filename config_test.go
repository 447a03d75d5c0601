package gating

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	correct := Config{
		Density:           0.3,
		Granularity:       Channel,
		FeatureExtraction: Max,
		Online:            true,
		Weight:            0.01,
		ShouldGate:        true,
	}
	if diff := cmp.Diff(correct, DefaultGateConfig(0.3)); diff != "" {
		t.Errorf("DefaultGateConfig mismatch (-want +got):\n%s", diff)
	}
	correct.Online = false
	if diff := cmp.Diff(correct, DefaultConfig(0.3)); diff != "" {
		t.Errorf("DefaultConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, d := range []float64{1e-9, 0.5, 1} {
		assert.True(t, DefaultConfig(d).IsValid(), "density %v", d)
	}
	for _, d := range []float64{0, -1, 1.5, math.Inf(1), math.NaN()} {
		err := DefaultConfig(d).Validate()
		var pve ParameterValueError
		assert.True(t, errors.As(err, &pve), "density %v: expected a ParameterValueError. Got %v", d, err)
	}

	conf := DefaultConfig(0.5)
	conf.Weight = -1
	assert.False(t, conf.IsValid())

	conf = DefaultConfig(0.5)
	conf.Granularity = Granularity(2)
	var gte GranularityTypeError
	assert.True(t, errors.As(conf.Validate(), &gte))
	assert.Equal(t, `Unrecognized granularity "Granularity(2)".`, gte.Error())
}

func TestGranularityText(t *testing.T) {
	var g Granularity
	for _, name := range []string{"channel", "vector"} {
		if assert.NoError(t, g.UnmarshalText([]byte(name))) {
			text, err := g.MarshalText()
			assert.NoError(t, err)
			assert.Equal(t, name, string(text))
		}
	}

	err := g.UnmarshalText([]byte("pixel"))
	var gte GranularityTypeError
	if assert.True(t, errors.As(err, &gte), "expected a GranularityTypeError. Got %v", err) {
		assert.Equal(t, "pixel", gte.Granularity)
		assert.Equal(t, `Unrecognized granularity "pixel".`, gte.Error())
	}
	_, err = Granularity(9).MarshalText()
	assert.Error(t, err)
}

func TestFeatureExtractionText(t *testing.T) {
	var conf struct {
		Granularity       Granularity
		FeatureExtraction FeatureExtraction
	}
	if err := json.Unmarshal([]byte(`{"Granularity": "vector", "FeatureExtraction": "l2"}`), &conf); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, Vector, conf.Granularity)
	assert.Equal(t, L2, conf.FeatureExtraction)

	err := json.Unmarshal([]byte(`{"FeatureExtraction": "median"}`), &conf)
	var pve ParameterValueError
	assert.True(t, errors.As(err, &pve), "expected a ParameterValueError. Got %v", err)

	assert.Equal(t, "FeatureExtraction(7)", FeatureExtraction(7).String())
}
