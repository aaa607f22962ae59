// Package plot renders joint-angle curves of a sampled trajectory as PNG.
package plot

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/teslashibe/go-twolink/pkg/geometry"
	"github.com/teslashibe/go-twolink/pkg/sampler"
)

// Joint selects which joint curve to draw.
type Joint int

const (
	Joint1 Joint = iota + 1
	Joint2
)

// String returns "q1" or "q2".
func (j Joint) String() string {
	switch j {
	case Joint1:
		return "q1"
	case Joint2:
		return "q2"
	default:
		return fmt.Sprintf("Joint(%d)", int(j))
	}
}

// ParseJoint accepts "q1", "q2", "1" or "2".
func ParseJoint(s string) (Joint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "q1", "1":
		return Joint1, nil
	case "q2", "2":
		return Joint2, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownJoint, s)
}

// Size is the output image size in inches.
type Size struct {
	Width  float64
	Height float64
	DPI    int
}

// DefaultSize is a 6x4 inch image at 96 DPI.
func DefaultSize() Size {
	return Size{Width: 6, Height: 4, DPI: 96}
}

// JointPlot builds the angle-over-time plot (degrees) for one joint.
func JointPlot(samples []sampler.Sample, joint Joint) (*gplot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if joint != Joint1 && joint != Joint2 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownJoint, int(joint))
	}

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		q := s.Q1
		if joint == Joint2 {
			q = s.Q2
		}
		pts[i].X = s.T
		pts[i].Y = geometry.Degrees(q)
	}

	p := gplot.New()
	p.Title.Text = fmt.Sprintf("Joint %s(t)", joint)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = fmt.Sprintf("%s (deg)", joint)
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Width = vg.Points(2)
	p.Add(line)

	// A constant joint would otherwise collapse the Y axis.
	if p.Y.Max-p.Y.Min < 1e-6 {
		mid := (p.Y.Max + p.Y.Min) / 2
		p.Y.Min, p.Y.Max = mid-1, mid+1
	}
	return p, nil
}

// WritePNG renders the joint plot to w.
func WritePNG(w io.Writer, samples []sampler.Sample, joint Joint, size Size) error {
	p, err := JointPlot(samples, joint)
	if err != nil {
		return err
	}
	if size.Width <= 0 || size.Height <= 0 || math.IsNaN(size.Width+size.Height) {
		size = DefaultSize()
	}
	if size.DPI <= 0 {
		size.DPI = DefaultSize().DPI
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(size.Width)*vg.Inch, vg.Length(size.Height)*vg.Inch),
		vgimg.UseDPI(size.DPI),
	)
	p.Draw(draw.New(c))

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// SaveAll writes q1.png and q2.png into dir and returns their paths.
func SaveAll(dir string, samples []sampler.Sample, size Size) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create directory: %w", err)
	}

	var paths []string
	for _, j := range []Joint{Joint1, Joint2} {
		path := filepath.Join(dir, j.String()+".png")
		if err := savePNG(path, samples, j, size); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func savePNG(path string, samples []sampler.Sample, joint Joint, size Size) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := WritePNG(bw, samples, joint, size); err != nil {
		return err
	}
	return bw.Flush()
}
