package layers

import (
	"math"
	"time"

	rng "github.com/leesper/go_rng"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TruncatedNormal draws from a normal distribution, redrawing anything further
// than two standard deviations from the mean.
func TruncatedNormal(mean, stddev float64) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		g := rng.NewGaussianGenerator(time.Now().UnixNano())
		draw := func() float64 {
			for {
				v := g.Gaussian(mean, stddev)
				if math.Abs(v-mean) <= 2*stddev {
					return v
				}
			}
		}
		size := tensor.Shape(s).TotalSize()
		switch dt {
		case tensor.Float64:
			retVal := make([]float64, size)
			for i := range retVal {
				retVal[i] = draw()
			}
			return retVal
		case tensor.Float32:
			retVal := make([]float32, size)
			for i := range retVal {
				retVal[i] = float32(draw())
			}
			return retVal
		}
		panic("TruncatedNormal only supports Float32 and Float64")
	}
}

// Constant fills the value with v.
func Constant(v float64) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		switch dt {
		case tensor.Float64:
			retVal := make([]float64, size)
			for i := range retVal {
				retVal[i] = v
			}
			return retVal
		case tensor.Float32:
			retVal := make([]float32, size)
			for i := range retVal {
				retVal[i] = float32(v)
			}
			return retVal
		}
		panic("Constant only supports Float32 and Float64")
	}
}
