// Package volume provides the voxel grids the energy computers work on: the
// read-only diffusion image, the scanner-to-voxel transform and the mutable
// per-voxel fields owned by each computer.
package volume

import (
	"fmt"

	"gtenergy/internal/models"
)

// Image is a read-only 4D diffusion-weighted image. Implementations must be
// safe for concurrent reads since clones share them.
type Image interface {
	// Dims returns the spatial extent (x, y, z)
	Dims() [3]int

	// Volumes returns the number of diffusion-weighted volumes
	Volumes() int

	// Value returns the signal of volume v at voxel (x, y, z)
	Value(x, y, z, v int) float64
}

// SignalReader is implemented by images that can copy a whole voxel signal at once
type SignalReader interface {
	Signal(vox models.Voxel, dst []float64)
}

// ReadSignal copies the signal of vox into dst, using SignalReader when available
func ReadSignal(img Image, vox models.Voxel, dst []float64) {
	if sr, ok := img.(SignalReader); ok {
		sr.Signal(vox, dst)
		return
	}
	for v := range dst {
		dst[v] = img.Value(vox[0], vox[1], vox[2], v)
	}
}

// CheckDims validates a spatial extent
func CheckDims(dims [3]int) error {
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("image dimension %d must be positive, got %d", i, d)
		}
	}
	return nil
}

// Contains reports whether vox lies inside a grid of the given extent
func Contains(dims [3]int, vox models.Voxel) bool {
	return vox[0] >= 0 && vox[0] < dims[0] &&
		vox[1] >= 0 && vox[1] < dims[1] &&
		vox[2] >= 0 && vox[2] < dims[2]
}

// Offset returns the flat index of vox in a z*nx*ny + y*nx + x layout
func Offset(dims [3]int, vox models.Voxel) int {
	return vox[2]*dims[0]*dims[1] + vox[1]*dims[0] + vox[0]
}

// VoxelAt is the inverse of Offset
func VoxelAt(dims [3]int, i int) models.Voxel {
	plane := dims[0] * dims[1]
	return models.Voxel{i % dims[0], (i % plane) / dims[0], i / plane}
}

// Grid is an in-memory Image. Signals are stored voxel by voxel so that the
// signal of one voxel is contiguous.
type Grid struct {
	dims    [3]int
	volumes int
	data    []float64
}

// NewGrid allocates a zero-filled image
func NewGrid(dims [3]int, volumes int) (*Grid, error) {
	if err := CheckDims(dims); err != nil {
		return nil, err
	}
	if volumes <= 0 {
		return nil, fmt.Errorf("image must have at least one volume, got %d", volumes)
	}
	return &Grid{
		dims:    dims,
		volumes: volumes,
		data:    make([]float64, dims[0]*dims[1]*dims[2]*volumes),
	}, nil
}

// Dims returns the spatial extent
func (g *Grid) Dims() [3]int { return g.dims }

// Volumes returns the number of volumes
func (g *Grid) Volumes() int { return g.volumes }

// Value returns the signal of volume v at (x, y, z)
func (g *Grid) Value(x, y, z, v int) float64 {
	return g.data[Offset(g.dims, models.Voxel{x, y, z})*g.volumes+v]
}

// Set assigns the signal of volume v at vox
func (g *Grid) Set(vox models.Voxel, v int, value float64) {
	g.data[Offset(g.dims, vox)*g.volumes+v] = value
}

// Signal copies the full signal of vox into dst
func (g *Grid) Signal(vox models.Voxel, dst []float64) {
	i := Offset(g.dims, vox) * g.volumes
	copy(dst, g.data[i:i+g.volumes])
}

// SetSignal assigns the full signal of vox
func (g *Grid) SetSignal(vox models.Voxel, src []float64) {
	i := Offset(g.dims, vox) * g.volumes
	copy(g.data[i:i+g.volumes], src)
}
