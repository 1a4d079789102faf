package store

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotTrace draws the best energy against generation, one line per run, and
// saves the figure to outPath. The format follows the extension of outPath
// (png, svg, pdf).
func PlotTrace(entries []TraceEntry, title, outPath string) error {
	if len(entries) == 0 {
		return fmt.Errorf("trace is empty")
	}

	byRun := make(map[int]plotter.XYs)
	for _, e := range entries {
		byRun[e.Run] = append(byRun[e.Run], plotter.XY{X: float64(e.Generation), Y: e.BestEnergy})
	}
	runs := make([]int, 0, len(byRun))
	for r := range byRun {
		runs = append(runs, r)
	}
	sort.Ints(runs)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Best energy (kcal/mol)"
	p.Add(plotter.NewGrid())

	for i, r := range runs {
		pts := byRun[r]
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].X < pts[b].X })

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build line for run %d: %w", r, err)
		}
		line.Color = runColor(i)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("run %d", r), line)
	}
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 5*vg.Inch, outPath); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
	{R: 227, G: 119, B: 194, A: 255},
	{R: 127, G: 127, B: 127, A: 255},
}

func runColor(i int) color.Color {
	return palette[i%len(palette)]
}
