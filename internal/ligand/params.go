package ligand

import (
	"fmt"
	"math"
)

// HBondRole classifies an atom type for hydrogen bonding.
type HBondRole int

const (
	HBondNone HBondRole = iota
	HBondDonorH
	HBondAcceptor
)

// AtomParams holds the AD4.1 parameters of one atom type.
type AtomParams struct {
	Rii     float64 // sum of vdW radii of two like atoms (Å)
	Epsii   float64 // vdW well depth (kcal/mol)
	Vol     float64 // atomic solvation volume (Å^3)
	Solpar  float64 // atomic solvation parameter
	RijHB   float64 // H-bond equilibrium distance (Å)
	EpsijHB float64 // H-bond well depth (kcal/mol)
	Role    HBondRole
}

// AD4Params is the AD4.1 bound atom parameter table keyed by atom type.
var AD4Params = map[string]AtomParams{
	"H":  {Rii: 2.00, Epsii: 0.020, Vol: 0.0000, Solpar: 0.00051},
	"HD": {Rii: 2.00, Epsii: 0.020, Vol: 0.0000, Solpar: 0.00051, Role: HBondDonorH},
	"HS": {Rii: 2.00, Epsii: 0.020, Vol: 0.0000, Solpar: 0.00051, Role: HBondDonorH},
	"C":  {Rii: 4.00, Epsii: 0.150, Vol: 33.5103, Solpar: -0.00143},
	"A":  {Rii: 4.00, Epsii: 0.150, Vol: 33.5103, Solpar: -0.00052},
	"N":  {Rii: 3.50, Epsii: 0.160, Vol: 22.4493, Solpar: -0.00162},
	"NA": {Rii: 3.50, Epsii: 0.160, Vol: 22.4493, Solpar: -0.00162, RijHB: 1.9, EpsijHB: 5.0, Role: HBondAcceptor},
	"NS": {Rii: 3.50, Epsii: 0.160, Vol: 22.4493, Solpar: -0.00162, RijHB: 1.9, EpsijHB: 5.0, Role: HBondAcceptor},
	"OA": {Rii: 3.20, Epsii: 0.200, Vol: 17.1573, Solpar: -0.00251, RijHB: 1.9, EpsijHB: 5.0, Role: HBondAcceptor},
	"OS": {Rii: 3.20, Epsii: 0.200, Vol: 17.1573, Solpar: -0.00251, RijHB: 1.9, EpsijHB: 5.0, Role: HBondAcceptor},
	"F":  {Rii: 3.09, Epsii: 0.080, Vol: 15.4480, Solpar: -0.00110},
	"Mg": {Rii: 1.30, Epsii: 0.875, Vol: 1.5600, Solpar: -0.00110},
	"P":  {Rii: 4.20, Epsii: 0.200, Vol: 38.7924, Solpar: -0.00110},
	"SA": {Rii: 4.00, Epsii: 0.200, Vol: 33.5103, Solpar: -0.00214, RijHB: 2.5, EpsijHB: 1.0, Role: HBondAcceptor},
	"S":  {Rii: 4.00, Epsii: 0.200, Vol: 33.5103, Solpar: -0.00214},
	"Cl": {Rii: 4.09, Epsii: 0.276, Vol: 35.8235, Solpar: -0.00110},
	"Ca": {Rii: 1.98, Epsii: 0.550, Vol: 2.7700, Solpar: -0.00110},
	"Mn": {Rii: 1.30, Epsii: 0.875, Vol: 2.1400, Solpar: -0.00110},
	"Fe": {Rii: 1.30, Epsii: 0.010, Vol: 1.8400, Solpar: -0.00110},
	"Zn": {Rii: 1.48, Epsii: 0.550, Vol: 1.7000, Solpar: -0.00110},
	"Br": {Rii: 4.33, Epsii: 0.389, Vol: 42.5661, Solpar: -0.00110},
	"I":  {Rii: 4.72, Epsii: 0.550, Vol: 55.0585, Solpar: -0.00110},
}

// LookupParams returns the AD4 parameters for an atom type name.
func LookupParams(name string) (AtomParams, error) {
	p, ok := AD4Params[name]
	if !ok {
		return AtomParams{}, fmt.Errorf("%w: unknown atom type %q", ErrTopology, name)
	}
	return p, nil
}

// ForceField holds the AD4 free energy coefficients.
type ForceField struct {
	CoeffVdW    float64
	CoeffHBond  float64
	CoeffElec   float64 // already scaled by the Coulomb constant (332.06363)
	CoeffDesolv float64
	CoeffTors   float64
	Qasp        float64 // charge-dependent solvation parameter
}

// DefaultForceField returns the AD4.1 coefficients.
func DefaultForceField() ForceField {
	return ForceField{
		CoeffVdW:    0.1662,
		CoeffHBond:  0.1209,
		CoeffElec:   332.06363 * 0.1406,
		CoeffDesolv: 0.1322,
		CoeffTors:   0.2983,
		Qasp:        0.01097,
	}
}

// IsHBond reports whether two atom types form a hydrogen bonding pair:
// a donor hydrogen (HD, HS) against an acceptor (NA, NS, OA, OS, SA).
func IsHBond(type1, type2 string) bool {
	p1, ok1 := AD4Params[type1]
	p2, ok2 := AD4Params[type2]
	if !ok1 || !ok2 {
		return false
	}
	return (p1.Role == HBondDonorH && p2.Role == HBondAcceptor) ||
		(p1.Role == HBondAcceptor && p2.Role == HBondDonorH)
}

// VdWPair holds the pair potential coefficients of two atom types.
// A/B are the 12-6 Lennard-Jones coefficients, C/D the 12-10 hydrogen bond
// coefficients; HBond selects which pair is used. Rij and RijHB are the
// equilibrium distances of the two potentials.
type VdWPair struct {
	A, B, C, D float64
	Rij, RijHB float64
	HBond      bool
}

// Req returns the equilibrium distance of the active potential.
func (p VdWPair) Req() float64 {
	if p.HBond {
		return p.RijHB
	}
	return p.Rij
}

// Smooth widens the potential minimum to a flat well of the given width
// centered on Req: distances within width/2 of Req map to Req and the rest
// move width/2 towards it.
func (p VdWPair) Smooth(r, width float64) float64 {
	if width <= 0 {
		return r
	}
	req, half := p.Req(), width/2
	switch {
	case r > req+half:
		return r - half
	case r < req-half:
		return r + half
	default:
		return req
	}
}

// Energy evaluates the closed-form pair potential at distance r.
func (p VdWPair) Energy(r float64) float64 {
	if p.HBond {
		return p.C/math.Pow(r, 12) - p.D/math.Pow(r, 10)
	}
	return p.A/math.Pow(r, 12) - p.B/math.Pow(r, 6)
}

// pairParams derives the coefficients for a type pair.
func pairParams(t1, t2 string, ff ForceField) (VdWPair, error) {
	p1, err := LookupParams(t1)
	if err != nil {
		return VdWPair{}, err
	}
	p2, err := LookupParams(t2)
	if err != nil {
		return VdWPair{}, err
	}

	req := (p1.Rii + p2.Rii) / 2
	eps := ff.CoeffVdW * math.Sqrt(p1.Epsii*p2.Epsii)
	pair := VdWPair{
		A:   eps * math.Pow(req, 12),
		B:   2 * eps * math.Pow(req, 6),
		Rij: req,
	}

	if IsHBond(t1, t2) {
		acceptor := p1
		if p2.Role == HBondAcceptor {
			acceptor = p2
		}
		epsHB := ff.CoeffHBond * acceptor.EpsijHB
		pair.C = 5 * epsHB * math.Pow(acceptor.RijHB, 12)
		pair.D = 6 * epsHB * math.Pow(acceptor.RijHB, 10)
		pair.RijHB = acceptor.RijHB
		pair.HBond = true
	}
	return pair, nil
}
