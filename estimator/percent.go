package estimator

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Percent prints a ratio as a percentage.
type Percent float32

func (p Percent) String() string {
	if math32.IsNaN(float32(p)) || math32.IsInf(float32(p), 0) {
		return "-%"
	}
	return fmt.Sprintf("%.2f%%", float32(p)*100)
}

// MeanStd returns the mean and the population standard deviation of a. Both are
// NaN when a is empty.
func MeanStd(a []float32) (mean, std float32) {
	if len(a) == 0 {
		return math32.NaN(), math32.NaN()
	}
	for _, v := range a {
		mean += v
	}
	mean /= float32(len(a))
	for _, v := range a {
		std += (v - mean) * (v - mean)
	}
	return mean, math32.Sqrt(std / float32(len(a)))
}
