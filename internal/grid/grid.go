// Package grid holds a precomputed receptor interaction grid and performs
// trilinear interpolation of its energy maps.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/lgadock/internal/fileio"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalid reports a malformed grid.
var ErrInvalid = errors.New("invalid grid")

// Grid is an immutable set of energy maps sampled on a regular lattice.
// Maps are stored flat in x-fastest order: index = x + nx*(y + ny*z).
type Grid struct {
	Size    [3]int      `json:"size"`
	Spacing float64     `json:"spacing"`
	Origin  r3.Vec      `json:"origin"`
	Types   []string    `json:"types"`
	Maps    [][]float32 `json:"maps"`
	// Elec is per unit charge, Desolv per unit absolute charge.
	Elec   []float32 `json:"elec"`
	Desolv []float32 `json:"desolv"`
}

// Validate checks lattice dimensions and map lengths.
func (g *Grid) Validate() error {
	for axis, n := range g.Size {
		if n < 2 {
			return fmt.Errorf("%w: axis %d has %d points (min 2)", ErrInvalid, axis, n)
		}
	}
	if !(g.Spacing > 0) || math.IsInf(g.Spacing, 0) {
		return fmt.Errorf("%w: spacing must be positive, got %v", ErrInvalid, g.Spacing)
	}
	if len(g.Types) != len(g.Maps) {
		return fmt.Errorf("%w: %d type names for %d maps", ErrInvalid, len(g.Types), len(g.Maps))
	}
	want := g.Points()
	for i, m := range g.Maps {
		if len(m) != want {
			return fmt.Errorf("%w: map %q has %d values, want %d", ErrInvalid, g.Types[i], len(m), want)
		}
	}
	if len(g.Elec) != want {
		return fmt.Errorf("%w: electrostatic map has %d values, want %d", ErrInvalid, len(g.Elec), want)
	}
	if len(g.Desolv) != want {
		return fmt.Errorf("%w: desolvation map has %d values, want %d", ErrInvalid, len(g.Desolv), want)
	}
	return nil
}

// Points returns the number of lattice points per map.
func (g *Grid) Points() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// MapIndex resolves an atom type name to its map index.
func (g *Grid) MapIndex(typeName string) (int, error) {
	for i, t := range g.Types {
		if t == typeName {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no map for atom type %q", ErrInvalid, typeName)
}

// Extent returns the far corner of the grid box.
func (g *Grid) Extent() r3.Vec {
	return r3.Add(g.Origin, r3.Vec{
		X: float64(g.Size[0]-1) * g.Spacing,
		Y: float64(g.Size[1]-1) * g.Spacing,
		Z: float64(g.Size[2]-1) * g.Spacing,
	})
}

// Fractional converts a Cartesian position to lattice coordinates.
func (g *Grid) Fractional(p r3.Vec) r3.Vec {
	return r3.Scale(1/g.Spacing, r3.Sub(p, g.Origin))
}

// Locate resolves a Cartesian position for interpolation. Positions up to
// tolerance Å outside the box are clamped onto it; ok is false beyond that.
func (g *Grid) Locate(p r3.Vec, tolerance float64) (cell Cell, ok bool) {
	f := g.Fractional(p)
	tol := tolerance / g.Spacing
	c := [3]float64{f.X, f.Y, f.Z}
	for axis := 0; axis < 3; axis++ {
		hi := float64(g.Size[axis] - 1)
		switch {
		case c[axis] < 0:
			if c[axis] < -tol {
				return Cell{}, false
			}
			c[axis] = 0
		case c[axis] > hi:
			if c[axis] > hi+tol {
				return Cell{}, false
			}
			c[axis] = hi
		}
	}

	for axis := 0; axis < 3; axis++ {
		i0 := int(c[axis])
		if i0 > g.Size[axis]-2 {
			i0 = g.Size[axis] - 2
		}
		cell.idx[axis] = i0
		cell.frac[axis] = c[axis] - float64(i0)
	}
	nx, ny := g.Size[0], g.Size[1]
	cell.base = cell.idx[0] + nx*(cell.idx[1]+ny*cell.idx[2])
	cell.dy = nx
	cell.dz = nx * ny
	return cell, true
}

// Cell is a located lattice cell with interpolation weights. It can be
// reused across the maps of one grid.
type Cell struct {
	idx    [3]int
	frac   [3]float64
	base   int
	dy, dz int
}

// Interpolate evaluates m at the cell by trilinear interpolation.
func (c Cell) Interpolate(m []float32) float64 {
	x, y, z := c.frac[0], c.frac[1], c.frac[2]
	b := c.base
	v000 := float64(m[b])
	v100 := float64(m[b+1])
	v010 := float64(m[b+c.dy])
	v110 := float64(m[b+c.dy+1])
	v001 := float64(m[b+c.dz])
	v101 := float64(m[b+c.dz+1])
	v011 := float64(m[b+c.dz+c.dy])
	v111 := float64(m[b+c.dz+c.dy+1])

	c00 := v000*(1-x) + v100*x
	c10 := v010*(1-x) + v110*x
	c01 := v001*(1-x) + v101*x
	c11 := v011*(1-x) + v111*x
	c0 := c00*(1-y) + c10*y
	c1 := c01*(1-y) + c11*y
	return c0*(1-z) + c1*z
}

// Interpolate evaluates map at p, clamping within tolerance. ok is false
// when p lies further outside the box.
func (g *Grid) Interpolate(m []float32, p r3.Vec, tolerance float64) (float64, bool) {
	cell, ok := g.Locate(p, tolerance)
	if !ok {
		return 0, false
	}
	return cell.Interpolate(m), true
}

// NewUniform builds a grid whose maps are all constant.
func NewUniform(size [3]int, spacing float64, origin r3.Vec, types []string, value float32) *Grid {
	g := &Grid{
		Size:    size,
		Spacing: spacing,
		Origin:  origin,
		Types:   append([]string(nil), types...),
	}
	n := g.Points()
	fill := func() []float32 {
		m := make([]float32, n)
		for i := range m {
			m[i] = value
		}
		return m
	}
	for range types {
		g.Maps = append(g.Maps, fill())
	}
	g.Elec = fill()
	g.Desolv = fill()
	return g
}

// Load reads a grid from a JSON file (optionally gzipped) and validates it.
func Load(path string) (*Grid, error) {
	r, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var g Grid
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to decode grid %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("grid %s: %w", path, err)
	}
	return &g, nil
}

// Save writes g as JSON, gzip-compressed when path ends in .gz.
func Save(path string, g *Grid) error {
	w, err := fileio.Create(path)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(g); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode grid: %w", err)
	}
	return w.Close()
}
