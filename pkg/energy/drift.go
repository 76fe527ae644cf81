package energy

import (
	"fmt"
	"math"

	"gtenergy/internal/models"
)

// Drift recomputes the energy of particles on a clone of c and returns the
// relative difference between c's running total and the recomputed one.
// c itself is left untouched.
func Drift(c Computer, particles []models.Particle) (float64, error) {
	ref := c.Clone()
	if err := ref.ResetEnergy(particles); err != nil {
		return 0, fmt.Errorf("recomputing energy: %w", err)
	}
	return RelativeDifference(c.Total(), ref.Total()), nil
}

// RelativeDifference returns |a-b| / max(|a|, |b|, 1e-300)
func RelativeDifference(a, b float64) float64 {
	scale := math.Max(math.Max(math.Abs(a), math.Abs(b)), 1e-300)
	return math.Abs(a-b) / scale
}
