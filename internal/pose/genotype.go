// Package pose converts genotypes (translation, orientation and torsion
// angles) into ligand conformations.
package pose

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gene positions within a genotype.
const (
	GeneTX = iota
	GeneTY
	GeneTZ
	GenePhi
	GeneTheta
	GeneAlpha
	// NumRigidGenes is the number of genes preceding the torsions.
	NumRigidGenes
)

// Genotype is [tx, ty, tz, phi, theta, alpha, torsion_0, ...]. Translation
// is the displacement of the ligand center in Å; all angles are degrees.
type Genotype []float64

// New returns a zero genotype for a ligand with nRot rotatable bonds.
func New(nRot int) Genotype {
	return make(Genotype, NumRigidGenes+nRot)
}

// Clone returns a copy of g.
func (g Genotype) Clone() Genotype {
	out := make(Genotype, len(g))
	copy(out, g)
	return out
}

// NumTorsions returns the number of torsion genes.
func (g Genotype) NumTorsions() int { return len(g) - NumRigidGenes }

// Translation returns the translation genes as a vector.
func (g Genotype) Translation() r3.Vec {
	return r3.Vec{X: g[GeneTX], Y: g[GeneTY], Z: g[GeneTZ]}
}

// IsAngle reports whether gene i holds an angle.
func IsAngle(i int) bool { return i >= GenePhi }

// WrapAngle maps deg into [0, 360).
func WrapAngle(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}

// Normalize wraps every angle gene into its canonical range in place. Theta
// is reflected into [0, 180] with phi turned by 180 degrees, which describes
// the same orientation axis.
func Normalize(g Genotype) {
	g[GenePhi] = WrapAngle(g[GenePhi])
	theta := WrapAngle(g[GeneTheta])
	if theta > 180 {
		theta = 360 - theta
		g[GenePhi] = WrapAngle(g[GenePhi] + 180)
	}
	g[GeneTheta] = theta
	for i := GeneAlpha; i < len(g); i++ {
		g[i] = WrapAngle(g[i])
	}
}

// Bounds describes the search region of a genotype. Translations are
// limited to the displacements that keep the ligand center inside the grid
// box; angles span their full ranges.
type Bounds struct {
	TransMin    r3.Vec
	TransMax    r3.Vec
	NumTorsions int
}

// NewBounds derives translation bounds from the box [boxMin, boxMax] and
// the ligand center.
func NewBounds(boxMin, boxMax, center r3.Vec, nRot int) Bounds {
	return Bounds{
		TransMin:    r3.Sub(boxMin, center),
		TransMax:    r3.Sub(boxMax, center),
		NumTorsions: nRot,
	}
}

// Lower returns the per-gene lower bounds.
func (b Bounds) Lower() []float64 {
	lo := make([]float64, NumRigidGenes+b.NumTorsions)
	lo[GeneTX], lo[GeneTY], lo[GeneTZ] = b.TransMin.X, b.TransMin.Y, b.TransMin.Z
	return lo
}

// Upper returns the per-gene upper bounds.
func (b Bounds) Upper() []float64 {
	hi := make([]float64, NumRigidGenes+b.NumTorsions)
	hi[GeneTX], hi[GeneTY], hi[GeneTZ] = b.TransMax.X, b.TransMax.Y, b.TransMax.Z
	hi[GenePhi] = 360
	hi[GeneTheta] = 180
	for i := GeneAlpha; i < len(hi); i++ {
		hi[i] = 360
	}
	return hi
}

// Random draws a genotype uniformly from the bounds. The orientation axis is
// uniform on the sphere.
func (b Bounds) Random(rng *rand.Rand) Genotype {
	g := New(b.NumTorsions)
	g[GeneTX] = b.TransMin.X + rng.Float64()*(b.TransMax.X-b.TransMin.X)
	g[GeneTY] = b.TransMin.Y + rng.Float64()*(b.TransMax.Y-b.TransMin.Y)
	g[GeneTZ] = b.TransMin.Z + rng.Float64()*(b.TransMax.Z-b.TransMin.Z)
	g[GenePhi] = rng.Float64() * 360
	g[GeneTheta] = math.Acos(1-2*rng.Float64()) * 180 / math.Pi
	for i := GeneAlpha; i < len(g); i++ {
		g[i] = rng.Float64() * 360
	}
	return g
}

// Clamp limits the translation genes to the bounds in place.
func (b Bounds) Clamp(g Genotype) {
	g[GeneTX] = clamp(g[GeneTX], b.TransMin.X, b.TransMax.X)
	g[GeneTY] = clamp(g[GeneTY], b.TransMin.Y, b.TransMax.Y)
	g[GeneTZ] = clamp(g[GeneTZ], b.TransMin.Z, b.TransMax.Z)
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}

// Scales returns the per-gene perturbation scale: maxDmov Å for
// translations and maxDang degrees for angles.
func Scales(nRot int, maxDmov, maxDang float64) []float64 {
	s := make([]float64, NumRigidGenes+nRot)
	for i := range s {
		if IsAngle(i) {
			s[i] = maxDang
		} else {
			s[i] = maxDmov
		}
	}
	return s
}
