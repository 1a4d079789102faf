// Package ligand holds the static description of a flexible ligand: atoms,
// types, bonds, rotatable-bond topology and the per-type pair parameters
// needed by the energy evaluator.
//
// A Ligand is built once per docking job and is read-only afterwards; it is
// shared by every concurrent worker without locking.
package ligand

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrTopology reports a malformed ligand description.
	ErrTopology = errors.New("invalid ligand topology")
	// ErrCapacity reports a ligand exceeding the configured limits.
	ErrCapacity = errors.New("ligand exceeds capacity")
)

// Limits bounds the size of ligands accepted by the engine.
type Limits struct {
	MaxAtoms    int `json:"maxAtoms" mapstructure:"max_atoms"`
	MaxRotBonds int `json:"maxRotBonds" mapstructure:"max_rotbonds"`
	MaxTypes    int `json:"maxTypes" mapstructure:"max_types"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxAtoms:    256,
		MaxRotBonds: 32,
		MaxTypes:    32,
	}
}

func (l Limits) check(atoms, rotbonds, types int) error {
	if l.MaxAtoms > 0 && atoms > l.MaxAtoms {
		return fmt.Errorf("%w: %d atoms (max %d)", ErrCapacity, atoms, l.MaxAtoms)
	}
	if l.MaxRotBonds > 0 && rotbonds > l.MaxRotBonds {
		return fmt.Errorf("%w: %d rotatable bonds (max %d)", ErrCapacity, rotbonds, l.MaxRotBonds)
	}
	if l.MaxTypes > 0 && types > l.MaxTypes {
		return fmt.Errorf("%w: %d atom types (max %d)", ErrCapacity, types, l.MaxTypes)
	}
	return nil
}

// AtomSpec describes one input atom.
type AtomSpec struct {
	Name   string  `json:"name,omitempty"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Charge float64 `json:"q"`
}

// Spec is the topology handed over by the ligand parsing collaborator.
type Spec struct {
	Name     string     `json:"name,omitempty"`
	Atoms    []AtomSpec `json:"atoms"`
	Bonds    [][2]int   `json:"bonds"`
	RotBonds [][2]int   `json:"rotbonds"`
	// Moved optionally lists, per rotatable bond, the atoms rotated by it.
	// When absent the side of the second bond atom is used.
	Moved [][]int `json:"moved,omitempty"`
}

// Pair is an intramolecular contributor pair (I < J).
type Pair struct {
	I, J int
}

// RotVector is the rotation frame of a rotatable bond: points are rotated
// about the line through Anchor parallel to Axis.
type RotVector struct {
	Anchor r3.Vec
	Axis   r3.Vec
}

// Ligand is the immutable, structure-of-arrays ligand model.
type Ligand struct {
	Name string

	TypeNames []string // type code -> AD4 type name
	Types     []int    // per atom type code
	Coords    []r3.Vec // reference conformation (Å)
	Charges   []float64

	Bonds    [][2]int
	RotBonds [][2]int

	// Moved[b][a] is true when atom a rotates with rotatable bond b.
	Moved [][]bool
	// Fragments holds the rigid fragment id of each atom.
	Fragments []int
	// IntraPairs lists the atom pairs contributing intramolecular energy.
	IntraPairs []Pair

	// Per type pair coefficients, indexed [t1*NumTypes()+t2].
	VdW    []VdWPair
	Volume []float64
	Solpar []float64

	// RotVectors are valid for the reference conformation only.
	RotVectors []RotVector
	// Schedule is the application order of rotatable bonds: a bond is
	// always scheduled before every bond that moves it.
	Schedule []int
	// Center is the pivot of the global orientation.
	Center r3.Vec

	adjacency [][]int
}

// NumAtoms returns the number of atoms.
func (l *Ligand) NumAtoms() int { return len(l.Coords) }

// NumRotBonds returns the number of rotatable bonds.
func (l *Ligand) NumRotBonds() int { return len(l.RotBonds) }

// NumTypes returns the number of distinct atom types.
func (l *Ligand) NumTypes() int { return len(l.TypeNames) }

// PairParams returns the vdW/H-bond coefficients for two type codes.
func (l *Ligand) PairParams(t1, t2 int) VdWPair {
	return l.VdW[t1*len(l.TypeNames)+t2]
}

// Neighbors returns the atoms bonded to atom i.
func (l *Ligand) Neighbors(i int) []int { return l.adjacency[i] }

// ReferenceCoords returns a copy of the reference conformation.
func (l *Ligand) ReferenceCoords() []r3.Vec {
	out := make([]r3.Vec, len(l.Coords))
	copy(out, l.Coords)
	return out
}

// New validates spec against limits and builds the derived topology:
// moved-atom masks, rigid fragments, intramolecular contributors, rotation
// vectors and the rotation schedule.
func New(spec Spec, limits Limits, ff ForceField) (*Ligand, error) {
	n := len(spec.Atoms)
	if n == 0 {
		return nil, fmt.Errorf("%w: no atoms", ErrTopology)
	}

	lig := &Ligand{
		Name:     spec.Name,
		Types:    make([]int, n),
		Coords:   make([]r3.Vec, n),
		Charges:  make([]float64, n),
		Bonds:    append([][2]int(nil), spec.Bonds...),
		RotBonds: append([][2]int(nil), spec.RotBonds...),
	}

	typeCodes := make(map[string]int)
	for i, a := range spec.Atoms {
		if _, err := LookupParams(a.Type); err != nil {
			return nil, fmt.Errorf("atom %d: %w", i, err)
		}
		code, ok := typeCodes[a.Type]
		if !ok {
			code = len(lig.TypeNames)
			typeCodes[a.Type] = code
			lig.TypeNames = append(lig.TypeNames, a.Type)
		}
		lig.Types[i] = code
		lig.Coords[i] = r3.Vec{X: a.X, Y: a.Y, Z: a.Z}
		lig.Charges[i] = a.Charge
	}

	if err := limits.check(n, len(spec.RotBonds), len(lig.TypeNames)); err != nil {
		return nil, err
	}

	var err error
	if lig.adjacency, err = buildAdjacency(n, spec.Bonds); err != nil {
		return nil, err
	}
	if lig.Moved, err = movedMasks(lig.adjacency, spec.RotBonds, spec.Moved); err != nil {
		return nil, err
	}
	lig.Fragments = rigidFragments(n, spec.Bonds, spec.RotBonds)
	lig.IntraPairs = intraContributors(lig.adjacency, lig.Fragments)
	if lig.RotVectors, err = rotationVectors(lig.Coords, spec.RotBonds); err != nil {
		return nil, err
	}
	lig.Schedule = rotationSchedule(lig.Moved)
	lig.Center = centroid(lig.Coords)

	if err := lig.buildTypeParams(ff); err != nil {
		return nil, err
	}
	return lig, nil
}

func (l *Ligand) buildTypeParams(ff ForceField) error {
	nt := len(l.TypeNames)
	l.VdW = make([]VdWPair, nt*nt)
	l.Volume = make([]float64, nt)
	l.Solpar = make([]float64, nt)

	for i, ti := range l.TypeNames {
		p, err := LookupParams(ti)
		if err != nil {
			return err
		}
		l.Volume[i] = p.Vol
		l.Solpar[i] = p.Solpar
		for j, tj := range l.TypeNames {
			pair, err := pairParams(ti, tj, ff)
			if err != nil {
				return err
			}
			l.VdW[i*nt+j] = pair
		}
	}
	return nil
}

func centroid(coords []r3.Vec) r3.Vec {
	var sum r3.Vec
	for _, c := range coords {
		sum = r3.Add(sum, c)
	}
	return r3.Scale(1/float64(len(coords)), sum)
}
