package visualize

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))

// Trace is one plotly scatter3d series; one per cluster.
type Trace struct {
	Type          string     `json:"type"`
	Mode          string     `json:"mode"`
	Name          string     `json:"name"`
	X             []float64  `json:"x"`
	Y             []float64  `json:"y"`
	Z             []float64  `json:"z"`
	Text          []string   `json:"text"`
	CustomData    [][]string `json:"customdata"`
	HoverTemplate string     `json:"hovertemplate"`
	Marker        marker     `json:"marker"`
}

type marker struct {
	Size    int     `json:"size"`
	Opacity float64 `json:"opacity"`
}

// Traces groups points by cluster, noise first, then ascending labels.
func Traces(points []Point) []Trace {
	byCluster := map[int]*Trace{}
	var order []int
	for _, p := range points {
		t, ok := byCluster[p.Cluster]
		if !ok {
			t = &Trace{
				Type:          "scatter3d",
				Mode:          "markers",
				Name:          ClusterName(p.Cluster),
				HoverTemplate: "<b>%{text}</b><br>%{customdata[0]}<extra>%{fullData.name}</extra>",
				Marker:        marker{Size: 4, Opacity: 0.7},
			}
			byCluster[p.Cluster] = t
			order = append(order, p.Cluster)
		}
		t.X = append(t.X, p.X)
		t.Y = append(t.Y, p.Y)
		t.Z = append(t.Z, p.Z)
		t.Text = append(t.Text, p.Filename)
		t.CustomData = append(t.CustomData, []string{p.TextPreview, p.ID})
	}
	sort.Ints(order)
	out := make([]Trace, 0, len(order))
	for _, c := range order {
		out = append(out, *byCluster[c])
	}
	return out
}

// ClusterName is the legend label for a cluster.
func ClusterName(c int) string {
	if c == Noise {
		return "Noise"
	}
	return fmt.Sprintf("Cluster %d", c)
}

// Layout returns the plotly layout with axis ticks hidden.
func Layout(title string) map[string]any {
	hidden := map[string]any{"showticklabels": false, "title": ""}
	return map[string]any{
		"title":  map[string]any{"text": title},
		"scene":  map[string]any{"xaxis": hidden, "yaxis": hidden, "zaxis": hidden},
		"margin": map[string]int{"l": 0, "r": 0, "b": 0, "t": 30},
		"legend": map[string]any{"itemsizing": "constant"},
	}
}

type plotPage struct {
	Title   string
	Summary string
	Traces  template.JS
	Layout  template.JS
}

// WriteHTML renders a self-contained page for plot.
func WriteHTML(w io.Writer, plot *Plot) error {
	if plot == nil || len(plot.Points) == 0 {
		return ErrEmptyStore
	}
	traces, err := json.Marshal(Traces(plot.Points))
	if err != nil {
		return fmt.Errorf("encode traces: %w", err)
	}
	layout, err := json.Marshal(Layout(plot.Title))
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	page := plotPage{
		Title:   plot.Title,
		Summary: fmt.Sprintf("%d points, %d clusters, %d noise", len(plot.Points), plot.Clusters, plot.Noise),
		Traces:  template.JS(traces),
		Layout:  template.JS(layout),
	}
	return templates.ExecuteTemplate(w, "plot.html", page)
}

// HTML renders plot into memory.
func HTML(plot *Plot) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, plot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
