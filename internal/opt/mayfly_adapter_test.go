package opt

import (
	"math"
	"testing"
)

// Shifted sphere: f(x) = sum((x_i - c_i)^2), minimum at c
func shiftedSphere(c []float64) func([]float64) float64 {
	return func(x []float64) float64 {
		var sum float64
		for i, v := range x {
			d := v - c[i]
			sum += d * d
		}
		return sum
	}
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	best, cost := optimizer.Run(shiftedSphere(make([]float64, dim)), lower, upper, dim)

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}

	// Should converge close to zero
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}

	// Check that best params are near origin
	for i, v := range best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterPerDimensionBounds(t *testing.T) {
	// Translation-like and angle-like dimensions with very different ranges.
	lower := []float64{-4, 0, 0}
	upper := []float64{4, 360, 180}
	target := []float64{1.5, 200, 45}

	best, _ := NewMayfly(150, 30, 7).Run(shiftedSphere(target), lower, upper, 3)

	for i, v := range best {
		if v < lower[i] || v > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, v, lower[i], upper[i])
		}
	}
	if math.Abs(best[1]-target[1]) > 20 {
		t.Errorf("Expected angle dimension near %f, got %f", target[1], best[1])
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	dim := 2
	lower := []float64{-5, -5}
	upper := []float64{5, 5}
	f := shiftedSphere([]float64{0, 0})

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	optimizer1 := NewMayfly(50, MinMayflyPopulation, 123)
	_, cost1 := optimizer1.Run(f, lower, upper, dim)

	optimizer2 := NewMayfly(50, MinMayflyPopulation, 123)
	_, cost2 := optimizer2.Run(f, lower, upper, dim)

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}
