package visualization

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveHistogram plots the distribution of values with the given number of
// bins. The image format follows the extension of filename.
func SaveHistogram(values []float64, bins int, title, xlabel, filename string) error {
	if bins <= 0 {
		return fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}
	vs := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return fmt.Errorf("histogram has no finite values")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "voxels"

	h, err := plotter.NewHist(vs, bins)
	if err != nil {
		return fmt.Errorf("building histogram: %w", err)
	}
	p.Add(h)

	return p.Save(6*vg.Inch, 4*vg.Inch, filename)
}
