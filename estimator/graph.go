package estimator

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

type layerStats struct {
	Name    string
	Metrics []metricStat
}

type metricStat struct {
	Name  string
	Value string
}

// ToDot renders the layers as a chain of graphviz nodes, in registration
// order, each labelled with the latest summary of its metrics.
func (e *Estimator) ToDot() string {
	e.Lock()
	defer e.Unlock()

	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	metrics := make([]string, 0, len(e.metrics))
	for m := range e.metrics {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var buf bytes.Buffer
	for i, layer := range e.order {
		s := layerStats{Name: layer}
		for _, metric := range metrics {
			en, ok := e.metrics[metric][layer]
			if !ok {
				continue
			}
			value := "-"
			if len(en.values) > 0 {
				value = fmt.Sprintf("%.5f", summarize(en.values[len(en.values)-1]))
			}
			s.Metrics = append(s.Metrics, metricStat{metric, value})
		}
		if err := tmpl.Execute(&buf, s); err != nil {
			panic(err)
		}
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		g.AddNode("G", nodeID(i), attrs)
		buf.Reset()
		if i > 0 {
			g.AddEdge(nodeID(i-1), nodeID(i), true, nil)
		}
	}
	return g.String()
}

func nodeID(i int) string { return fmt.Sprintf("layer%d", i) }

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD COLSPAN="2">{{.Name}}</TD></TR>
{{range .Metrics}}<TR><TD>{{.Name}}</TD><TD>{{.Value}}</TD></TR>
{{end}}</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("layer").Parse(tmplRaw))
}
