package ligand

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RMSD returns the root mean square deviation between two conformations
// with identical atom ordering. No superposition is performed.
func RMSD(a, b []r3.Vec) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("rmsd: atom count mismatch (%d vs %d)", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	var sum float64
	for i := range a {
		d := r3.Sub(a[i], b[i])
		sum += r3.Dot(d, d)
	}
	return math.Sqrt(sum / float64(len(a))), nil
}
