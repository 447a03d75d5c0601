// Command gatesweep trains a small gated network at several gate densities on
// random data. Each density reports its held-out accuracy and what its gated
// convolutions cost.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorgonia/gating"
	"github.com/gorgonia/gating/encoding/gif"
	"github.com/gorgonia/gating/estimator"
	"github.com/gorgonia/gating/gatednet"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	densities   = flag.String("densities", "0.25,0.5,0.75,1", "comma separated gate densities to sweep")
	granularity = gating.Channel
	feature     = gating.Max
	online      = flag.Bool("online", true, "train the gates online")
	size        = flag.Int("size", 8, "height and width of the images")
	classes     = flag.Int("classes", 4, "number of classes")
	numLayers   = flag.Int("layers", 3, "number of gated convolutions")
	k           = flag.Int("k", 0, "filters per convolution. 0 picks one from the image size")
	batchSize   = flag.Int("batchsize", 8, "batch size")
	batches     = flag.Int("batches", 4, "batches per iteration")
	iters       = flag.Int("iters", 5, "training iterations")
	heldOut     = flag.Int("heldout", 2, "held-out batches to measure the accuracy on")
	seed        = flag.Int64("seed", 1337, "seed of the random data")
	csvOut      = flag.String("csv", "", "write the summary of the sweep as CSV to this file, and the statistics of each density next to it")
	gifOut      = flag.String("gif", "", "write the gates of each density as a GIF to this file")
	dotOut      = flag.String("dot", "", "write the layer statistics of each density as DOT to this file")
	verbose     = flag.Bool("v", false, "log every gate and training iteration")
)

func init() {
	flag.Var(textFlag{&granularity}, "granularity", "gate granularity: channel or vector")
	flag.Var(textFlag{&feature}, "feature", "feature extraction: max, l2 or avg")
}

type text interface {
	MarshalText() ([]byte, error)
	UnmarshalText([]byte) error
}

// textFlag is a flag.Value of a text (un)marshaler.
type textFlag struct{ v text }

func (f textFlag) String() string {
	if f.v == nil {
		return ""
	}
	b, _ := f.v.MarshalText()
	return string(b)
}

func (f textFlag) Set(s string) error { return f.v.UnmarshalText([]byte(s)) }

func parseDensities(s string) ([]float64, error) {
	var retVal []float64
	for _, field := range strings.Split(s, ",") {
		d, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "density %q", field)
		}
		retVal = append(retVal, d)
	}
	return retVal, nil
}

// perDensity inserts the density before the extension of filename.
func perDensity(filename string, density float64) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s_%v%s", strings.TrimSuffix(filename, ext), density, ext)
}

func dataset(r *rand.Rand, conf gatednet.Config, examples int) (Xs, ys *tensor.Dense) {
	planes := make([]float32, examples*conf.Features*conf.Height*conf.Width)
	for i := range planes {
		planes[i] = r.Float32()
	}
	Xs = tensor.New(tensor.WithShape(examples, conf.Features, conf.Height, conf.Width), tensor.WithBacking(planes))
	labels := make([]float32, examples*conf.Classes)
	for i := 0; i < examples; i++ {
		labels[i*conf.Classes+r.Intn(conf.Classes)] = 1
	}
	ys = tensor.New(tensor.WithShape(examples, conf.Classes), tensor.WithBacking(labels))
	return
}

// report is the outcome of training at one density.
type report struct {
	density    float64
	top1, top5 float64
	costs      gatednet.Costs
}

var summaryHeader = []string{"density", "top1", "top5", "macs", "effective_macs", "weights", "effective_weights"}

func (r report) record() []string {
	macs, effMACs := r.costs.MACs()
	weights, effWeights := r.costs.Weights()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{f(r.density), f(r.top1), f(r.top5), f(macs), f(effMACs), f(weights), f(effWeights)}
}

func (r report) String() string {
	macs, effMACs := r.costs.MACs()
	weights, effWeights := r.costs.Weights()
	return fmt.Sprintf("top-1 %v, top-5 %v, MACs %.0f of %.0f, weights %.0f of %.0f",
		estimator.Percent(r.top1), estimator.Percent(r.top5), effMACs, macs, effWeights, weights)
}

func writeSummary(w io.Writer, reports []report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return errors.WithStack(err)
	}
	for _, r := range reports {
		if err := cw.Write(r.record()); err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// evaluate measures the accuracy and the gated costs of n on held-out data.
func evaluate(n *gatednet.Net, Xs, ys *tensor.Dense, density float64) (retVal report, err error) {
	retVal.density = density
	inf, err := gatednet.Infer(n, n.BatchSize, false)
	if err != nil {
		return retVal, err
	}
	defer inf.Close()
	if retVal.top1, err = inf.Accuracy(Xs, ys, 1); err != nil {
		return retVal, err
	}
	if retVal.top5, err = inf.Accuracy(Xs, ys, 5); err != nil {
		return retVal, err
	}
	retVal.costs = inf.Net().Costs()
	return retVal, nil
}

func sweep(density float64, r *rand.Rand) (rep report, err error) {
	conf := gatednet.DefaultConf(*size, *size, *classes)
	if *k > 0 {
		conf.K = *k
	}
	conf.Layers = *numLayers
	conf.BatchSize = *batchSize
	conf.Gate.Density = density
	conf.Gate.Granularity = granularity
	conf.Gate.FeatureExtraction = feature
	conf.Gate.Online = *online

	est := estimator.New()
	n := gatednet.New(conf, est)
	if *verbose {
		n.Logger = log.New(os.Stderr, fmt.Sprintf("[%v] ", density), log.LstdFlags)
	}
	if err = n.Init(); err != nil {
		return rep, err
	}
	Xs, ys := dataset(r, conf, *batches*conf.BatchSize)
	testXs, testYs := dataset(r, conf, *heldOut*conf.BatchSize)
	if err = gatednet.Train(n, Xs, ys, *batches, *iters); err != nil {
		return rep, err
	}
	if rep, err = evaluate(n, testXs, testYs, density); err != nil {
		return rep, err
	}
	log.Printf("density %v: %v, %v", density, rep, est.Format())

	if *csvOut != "" {
		if err = est.DumpFile(perDensity(*csvOut, density)); err != nil {
			return rep, err
		}
	}
	if *dotOut != "" {
		if err = os.WriteFile(perDensity(*dotOut, density), []byte(est.ToDot()), 0644); err != nil {
			return rep, errors.WithStack(err)
		}
	}
	if *gifOut != "" {
		f, err := os.Create(perDensity(*gifOut, density))
		if err != nil {
			return rep, errors.WithStack(err)
		}
		defer f.Close()
		enc := gif.NewGifEncoder(400, 600)
		enc.Writer = f
		if err = enc.EncodeEstimator(est, gating.GateMetric); err != nil {
			return rep, err
		}
		return rep, enc.Flush()
	}
	return rep, nil
}

func main() {
	flag.Parse()
	ds, err := parseDensities(*densities)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	r := rand.New(rand.NewSource(*seed))
	var reports []report
	for _, d := range ds {
		rep, err := sweep(d, r)
		if err != nil {
			log.Fatalf("density %v: %+v", d, err)
		}
		reports = append(reports, rep)
	}
	if *csvOut == "" {
		return
	}
	f, err := os.Create(*csvOut)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer f.Close()
	if err = writeSummary(f, reports); err != nil {
		log.Fatalf("%+v", err)
	}
}
