package gatednet

import "github.com/gorgonia/gating"

// Config configures the gated network
type Config struct {
	K       int // number of filters of every gated convolution
	Layers  int // number of gated convolutions
	Kernel  int // kernel size of the convolutions
	Classes int // width of the softmax output

	BatchSize     int // batch size
	Width, Height int // image size
	Features      int // input channels

	LearnRate float64
	Gate      gating.Config // gate of every layer. Gate.Conv is filled per layer.
	FwdOnly   bool          // is this a fwd only graph?
}

// DefaultConf is a network for m×n images with online channel gates at half density.
func DefaultConf(m, n, classes int) Config {
	k := round((m * n) / 3)
	return Config{
		K:       k,
		Layers:  3,
		Kernel:  3,
		Classes: classes,

		BatchSize: 16,
		Width:     n,
		Height:    m,
		Features:  3,

		LearnRate: 0.1,
		Gate:      gating.DefaultGateConfig(0.5),
	}
}

func (conf Config) IsValid() bool {
	return conf.K >= 1 &&
		conf.Layers >= 1 &&
		conf.Kernel >= 1 &&
		conf.Classes >= 2 &&
		conf.BatchSize >= 1 &&
		conf.Width >= 1 && conf.Height >= 1 &&
		conf.Features > 0 &&
		conf.LearnRate > 0 &&
		conf.Gate.IsValid()
}

func round(a int) int {
	n := a - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++

	lt := n / 2
	if (a - lt) < (n - a) {
		return lt
	}
	return n
}
