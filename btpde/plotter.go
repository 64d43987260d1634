package btpde

import (
	"bufio"
	"fmt"
	"log"
	"math/cmplx"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/notargets/gobloch/fem"
)

// SignalPlotter records the attenuation |S(t)|/|S(0)| of every compartment
// and of the whole domain, and writes them as a PNG line plot on Finalize.
type SignalPlotter struct {
	Title string
	Path  string
	Err   error // Set when writing the plot failed

	mats  *fem.Matrices
	t     []float64
	total []float64
	cmpts [][]float64
	s0    []float64 // Per compartment, then total
}

func NewSignalPlotter(title, path string, mats *fem.Matrices) *SignalPlotter {
	return &SignalPlotter{Title: title, Path: path, mats: mats}
}

func (sp *SignalPlotter) Initialize(xi []complex128, t float64) {
	nc := sp.mats.NCompartments()
	sp.t, sp.total = nil, nil
	sp.cmpts = make([][]float64, nc)
	sp.s0 = make([]float64, nc+1)
	for c, s := range CompartmentSignals(sp.mats, xi) {
		sp.s0[c] = cmplx.Abs(s)
	}
	sp.s0[nc] = cmplx.Abs(Signal(sp.mats.M, xi))
	sp.record(xi, t)
}

func (sp *SignalPlotter) Update(xi []complex128, t float64) { sp.record(xi, t) }

func (sp *SignalPlotter) record(xi []complex128, t float64) {
	norm := func(s complex128, s0 float64) float64 {
		if s0 == 0 {
			return 0
		}
		return cmplx.Abs(s) / s0
	}
	sp.t = append(sp.t, t)
	for c, s := range CompartmentSignals(sp.mats, xi) {
		sp.cmpts[c] = append(sp.cmpts[c], norm(s, sp.s0[c]))
	}
	sp.total = append(sp.total, norm(Signal(sp.mats.M, xi), sp.s0[len(sp.s0)-1]))
}

// Times and Attenuation expose the recorded series.
func (sp *SignalPlotter) Times() []float64       { return sp.t }
func (sp *SignalPlotter) Attenuation() []float64 { return sp.total }

func (sp *SignalPlotter) Finalize() {
	if sp.Err = sp.save(); sp.Err != nil {
		log.Printf("signal plot: %v", sp.Err)
	}
}

func (sp *SignalPlotter) save() (err error) {
	p := plot.New()
	p.Title.Text = sp.Title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "|S| / |S0|"
	p.Add(plotter.NewGrid())

	series := append([][]float64{sp.total}, sp.cmpts...)
	for k, ys := range series {
		pts := make(plotter.XYs, len(ys))
		for i := range ys {
			pts[i].X, pts[i].Y = sp.t[i], ys[i]
		}
		var line *plotter.Line
		if line, err = plotter.NewLine(pts); err != nil {
			return fmt.Errorf("cannot create line plot: %w", err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		name := "total"
		if k > 0 {
			line.LineStyle.Color = plotutil.Color(k)
			line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			name = fmt.Sprintf("compartment %d", k-1)
		}
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return savePNG(p, 6, 4, sp.Path)
}

func savePNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(150),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if _, err = (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}
