package pose

import (
	"math"

	"github.com/cwbudde/lgadock/internal/ligand"
	"gonum.org/v1/gonum/spatial/r3"
)

const degToRad = math.Pi / 180

// Axis returns the unit vector with spherical angles phi (azimuth) and
// theta (polar), in degrees.
func Axis(phi, theta float64) r3.Vec {
	p, t := phi*degToRad, theta*degToRad
	return r3.Vec{
		X: math.Sin(t) * math.Cos(p),
		Y: math.Sin(t) * math.Sin(p),
		Z: math.Cos(t),
	}
}

// Orientation returns the rotation by alpha degrees about Axis(phi, theta).
func Orientation(phi, theta, alpha float64) r3.Rotation {
	return r3.NewRotation(alpha*degToRad, Axis(phi, theta))
}

// RotateAbout rotates the masked points by deg degrees about the line
// through anchor with direction axis (unit length).
func RotateAbout(points []r3.Vec, mask []bool, anchor, axis r3.Vec, deg float64) {
	rot := r3.NewRotation(deg*degToRad, axis)
	for i, m := range mask {
		if !m {
			continue
		}
		points[i] = r3.Add(anchor, rot.Rotate(r3.Sub(points[i], anchor)))
	}
}

// Transformer produces conformations of one ligand. It never modifies the
// ligand and is safe for concurrent use.
type Transformer struct {
	lig *ligand.Ligand
}

// NewTransformer returns a transformer for lig.
func NewTransformer(lig *ligand.Ligand) *Transformer {
	return &Transformer{lig: lig}
}

// Apply writes the conformation encoded by g into out, which must hold
// NumAtoms entries. Torsions are applied in schedule order about the
// reference rotation vectors, then the whole ligand is rotated about its
// center and translated.
func (t *Transformer) Apply(g Genotype, out []r3.Vec) {
	lig := t.lig
	copy(out, lig.Coords)

	for _, b := range lig.Schedule {
		deg := WrapAngle(g[NumRigidGenes+b])
		if deg == 0 {
			continue
		}
		rv := lig.RotVectors[b]
		RotateAbout(out, lig.Moved[b], rv.Anchor, rv.Axis, deg)
	}

	alpha := WrapAngle(g[GeneAlpha])
	shift := g.Translation()
	if alpha != 0 {
		rot := Orientation(g[GenePhi], g[GeneTheta], alpha)
		for i := range out {
			out[i] = r3.Add(r3.Add(lig.Center, rot.Rotate(r3.Sub(out[i], lig.Center))), shift)
		}
		return
	}
	for i := range out {
		out[i] = r3.Add(out[i], shift)
	}
}

// Coords allocates and returns the conformation encoded by g.
func (t *Transformer) Coords(g Genotype) []r3.Vec {
	out := make([]r3.Vec, t.lig.NumAtoms())
	t.Apply(g, out)
	return out
}
