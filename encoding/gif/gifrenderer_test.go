package gif

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/gorgonia/gating/estimator"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func channelGate() estimator.Value {
	return estimator.Value{
		Shape: tensor.Shape{2, 4, 1, 1},
		Data:  []float32{1, 0, 0, 1, 0, 1, 1, 0},
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	enc := NewGifEncoder(200, 300)
	enc.Writer = &buf

	assert.NoError(t, enc.Encode("conv0", channelGate()))
	vector := estimator.Value{
		Shape: tensor.Shape{1, 3, 4, 1},
		Data:  []float32{0, 0.5, 0, 0, 1, 0, 0, 0, 0, 0, 0, 2},
	}
	assert.NoError(t, enc.Encode("conv1", vector))
	assert.Equal(t, 2, enc.Frames())
	if err := enc.Flush(); err != nil {
		t.Fatalf("%+v", err)
	}

	decoded, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Len(t, decoded.Image, 2)
	for _, im := range decoded.Image {
		assert.Equal(t, 300, im.Bounds().Dx())
		assert.Equal(t, 200, im.Bounds().Dy())
	}
}

func TestEncodeErrors(t *testing.T) {
	enc := NewGifEncoder(200, 300)
	assert.Error(t, enc.Flush())
	assert.Error(t, enc.Encode("flat", estimator.Value{Shape: tensor.Shape{2, 4}, Data: make([]float32, 8)}))

	// 1000 rows do not fit in 200 pixels
	big := estimator.Value{Shape: tensor.Shape{1, 1000, 1, 1}, Data: make([]float32, 1000)}
	assert.Error(t, enc.Encode("big", big))
	assert.Equal(t, 0, enc.Frames())
}

func TestEncodeEstimator(t *testing.T) {
	enc := NewGifEncoder(200, 300)
	est := estimator.New()
	// nothing collected yet
	assert.NoError(t, enc.EncodeEstimator(est, "gate"))
	assert.Equal(t, 0, enc.Frames())
}
