/*
 * plot.go, part of protfun.
 *
 * Copyright 2024 The protfun authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package perf

import (
	"fmt"
	"image/color"
	"math"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/grid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	deepPink = color.RGBA{R: 255, G: 20, B: 147, A: 255}
	navy     = color.RGBA{B: 128, A: 255}
)

// takes hue (0-360), v and s (0-1), returns r,g,b (0-255)
func hsv2RGB(h, v, s float64) (uint8, uint8, uint8) {
	conversion := 255.0 * v
	if s == 0.0 {
		return uint8(conversion), uint8(conversion), uint8(conversion)
	}
	h = h / 60
	i := math.Floor(h)
	f := h - i
	p := 1 - s
	q := 1 - s*f
	t := 1 - s*(1-f)
	var r, g, b float64
	switch int(i) {
	case 0:
		r, g, b = 1, t, p
	case 1:
		r, g, b = q, 1, p
	case 2:
		r, g, b = p, 1, t
	case 3:
		r, g, b = p, q, 1
	case 4:
		r, g, b = t, p, 1
	default: //case 5
		r, g, b = 1, p, q
	}
	return uint8(r * conversion), uint8(g * conversion), uint8(b * conversion)
}

// colors returns the color key out of steps, going around the hue circle while
// skipping the yellows, which are hard to see on white.
func colors(key, steps int) color.Color {
	norm := 260.0 / float64(steps)
	h := float64(key)*norm + 20.0
	if h < 55 {
		h -= 20.0
	} else {
		h += 20.0
	}
	r, g, b := hsv2RGB(h, 1, 1)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func xys(x, y []float64) plotter.XYs {
	ret := make(plotter.XYs, len(x))
	for i := range x {
		ret[i].X, ret[i].Y = x[i], y[i]
	}
	return ret
}

func (r *ROCResult) label(i int) string {
	if i < len(r.Labels) && r.Labels[i] != "" {
		return r.Labels[i]
	}
	return fmt.Sprintf("class %d", i)
}

// Plot saves a figure with all the defined ROC curves to the file name. The
// format is taken from the extension of name (png, svg, pdf, among others).
func (r *ROCResult) Plot(name string) error {
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = "Receiver operating characteristic"
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.Add(plotter.NewGrid())
	dotted := []vg.Length{vg.Points(1), vg.Points(4)}
	add := func(c Curve, legend string, col color.Color, width vg.Length, dashes []vg.Length) error {
		if !c.Defined() {
			return nil
		}
		l, err := plotter.NewLine(xys(c.FPR, c.TPR))
		if err != nil {
			return err
		}
		l.LineStyle.Color = col
		l.LineStyle.Width = width
		l.LineStyle.Dashes = dashes
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%s (area = %.2f)", legend, c.AUC), l)
		return nil
	}
	if err := add(r.Micro, "micro-average", deepPink, vg.Points(3), dotted); err != nil {
		return protfun.NewError(nil, "perf.ROCResult.Plot", err.Error())
	}
	if err := add(r.Macro, "macro-average", navy, vg.Points(3), dotted); err != nil {
		return protfun.NewError(nil, "perf.ROCResult.Plot", err.Error())
	}
	for i, c := range r.Classes {
		if err := add(c, r.label(i), colors(i, len(r.Classes)), vg.Points(1.5), nil); err != nil {
			return protfun.NewError(nil, "perf.ROCResult.Plot", err.Error())
		}
	}
	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return protfun.NewError(nil, "perf.ROCResult.Plot", err.Error())
	}
	diag.LineStyle.Width = vg.Points(1.5)
	diag.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
	p.Add(diag)
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1.05
	p.Legend.Top = false
	p.Legend.Left = false
	p.Legend.TextStyle.Font.Size = vg.Points(8)
	if err := p.Save(6*vg.Inch, 6*vg.Inch, name); err != nil {
		return protfun.NewError(nil, "perf.ROCResult.Plot", err.Error())
	}
	return nil
}

// slice adapts a plane of a grid to plotter.GridXYZ.
type slice struct {
	m *mat.Dense
	g *grid.Grid
}

func (s slice) Dims() (c, r int)   { return s.g.G, s.g.G }
func (s slice) Z(c, r int) float64 { return s.m.At(c, r) }
func (s slice) X(c int) float64    { return s.g.Center(c) }
func (s slice) Y(r int) float64    { return s.g.Center(r) }

var axisNames = [3][2]string{{"y (A)", "z (A)"}, {"x (A)", "z (A)"}, {"x (A)", "y (A)"}}

// DensitySlice saves a heat map of the plane k perpendicular to axis (0 for x,
// 1 for y, 2 for z) of channel c of molecule b of g, to the file name.
// Densities use a black body palette, potentials a diverging blue-red one,
// centered at zero.
func DensitySlice(g *grid.Grid, b, c, axis, k int, name string) error {
	if b < 0 || b >= g.B || c < 0 || c >= g.C || axis < 0 || axis > 2 || k < 0 || k >= g.G {
		return protfun.NewError(protfun.ErrShapeMismatch, "perf.DensitySlice", fmt.Sprintf("molecule %d, channel %d, axis %d, plane %d out of range for shape %v", b, c, axis, k, g.Shape()))
	}
	s := slice{m: g.Slice(b, c, axis, k), g: g}
	var pal palette.Palette
	if c == grid.Potential {
		pal = moreland.SmoothBlueRed().Palette(255)
	} else {
		pal = moreland.ExtendedBlackBody().Palette(255)
	}
	h := plotter.NewHeatMap(s, pal)
	data := s.m.RawMatrix().Data
	lo, hi := floats.Min(data), floats.Max(data)
	if c == grid.Potential {
		m := math.Max(math.Abs(lo), math.Abs(hi))
		lo, hi = -m, m
	}
	if hi <= lo {
		hi = lo + 1
	}
	h.Min, h.Max = lo, hi
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	channel := "density"
	if c == grid.Potential {
		channel = "potential"
	}
	p.Title.Text = fmt.Sprintf("Molecule %d, %s, plane %d", b, channel, k)
	p.X.Label.Text = axisNames[axis][0]
	p.Y.Label.Text = axisNames[axis][1]
	p.Add(h)
	if err := p.Save(5*vg.Inch, 5*vg.Inch, name); err != nil {
		return protfun.NewError(nil, "perf.DensitySlice", err.Error())
	}
	return nil
}
