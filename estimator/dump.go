package estimator

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Dump writes the scalar summary of every collected value as CSV, one record
// per (metric, layer, step). The summary of a tensor value is the fraction of
// its nonzero elements, which is the density of a gate.
func (e *Estimator) Dump(w io.Writer) error {
	e.Lock()
	defer e.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"metric", "layer", "step", "value"}); err != nil {
		return errors.WithStack(err)
	}
	metrics := make([]string, 0, len(e.metrics))
	for m := range e.metrics {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var records [][]string
	for _, metric := range metrics {
		for _, layer := range e.order {
			en, ok := e.metrics[metric][layer]
			if !ok {
				continue
			}
			for step, v := range en.values {
				records = append(records, []string{
					metric,
					layer,
					strconv.Itoa(step),
					strconv.FormatFloat(float64(summarize(v)), 'f', 5, 32),
				})
			}
		}
	}
	if err := cw.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// DumpFile is Dump into a file.
func (e *Estimator) DumpFile(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return e.Dump(f)
}

func summarize(v Value) float32 {
	if len(v.Data) == 1 {
		return v.Data[0]
	}
	return Density(v)
}

// Density is the fraction of nonzero elements of v.
func Density(v Value) float32 {
	if len(v.Data) == 0 {
		return 0
	}
	var nonzero int
	for _, d := range v.Data {
		if d != 0 {
			nonzero++
		}
	}
	return float32(nonzero) / float32(len(v.Data))
}
