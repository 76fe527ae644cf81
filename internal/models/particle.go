package models

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Particle represents a short track segment used by the global tractography
// sampler. It is an immutable snapshot: the energy computers read it during a
// staged call and never retain it.
type Particle struct {
	// Position is the segment centre in scanner coordinates (mm)
	Position r3.Vec

	// Direction is the segment orientation as a unit vector
	Direction r3.Vec
}

// NewParticle creates a particle with a normalised direction.
// A zero direction is kept as is.
func NewParticle(pos, dir r3.Vec) Particle {
	if n := r3.Norm(dir); n > 0 {
		dir = r3.Scale(1/n, dir)
	}
	return Particle{Position: pos, Direction: dir}
}

// Voxel is an integer grid coordinate (x, y, z)
type Voxel [3]int

// Add returns the voxel offset by d
func (v Voxel) Add(d Voxel) Voxel {
	return Voxel{v[0] + d[0], v[1] + d[1], v[2] + d[2]}
}

// ParticleRecord is the CSV row layout for particle lists
type ParticleRecord struct {
	X  float64 `csv:"x"`
	Y  float64 `csv:"y"`
	Z  float64 `csv:"z"`
	DX float64 `csv:"dx"`
	DY float64 `csv:"dy"`
	DZ float64 `csv:"dz"`
}

// Particle converts the record into a particle with a normalised direction
func (r ParticleRecord) Particle() Particle {
	return NewParticle(r3.Vec{X: r.X, Y: r.Y, Z: r.Z}, r3.Vec{X: r.DX, Y: r.DY, Z: r.DZ})
}

// RecordOf converts a particle into its CSV row
func RecordOf(p Particle) ParticleRecord {
	return ParticleRecord{
		X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
		DX: p.Direction.X, DY: p.Direction.Y, DZ: p.Direction.Z,
	}
}

// VoxelRecord is the CSV row layout for per-voxel energy reports
type VoxelRecord struct {
	X int `csv:"x"`
	Y int `csv:"y"`
	Z int `csv:"z"`

	// Eext is the cached residual energy of the voxel
	Eext float64 `csv:"eext"`

	// Density is the l=0 TOD coefficient (track density up to a constant)
	Density float64 `csv:"density"`

	// Fiso is the summed isotropic fraction over all compartments
	Fiso float64 `csv:"fiso"`
}
