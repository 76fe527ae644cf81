package volume

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"gtenergy/internal/models"
)

// Field is a mutable voxel grid with a fixed number of components per voxel.
// Each energy computer owns its fields exclusively.
type Field struct {
	dims  [3]int
	ncomp int
	data  []float64
}

// NewField allocates a zero-filled field
func NewField(dims [3]int, ncomp int) (*Field, error) {
	if err := CheckDims(dims); err != nil {
		return nil, err
	}
	if ncomp < 0 {
		return nil, fmt.Errorf("field components must be non-negative, got %d", ncomp)
	}
	return &Field{
		dims:  dims,
		ncomp: ncomp,
		data:  make([]float64, dims[0]*dims[1]*dims[2]*ncomp),
	}, nil
}

// Dims returns the spatial extent
func (f *Field) Dims() [3]int { return f.dims }

// Components returns the number of values per voxel
func (f *Field) Components() int { return f.ncomp }

// Len returns the number of voxels
func (f *Field) Len() int { return f.dims[0] * f.dims[1] * f.dims[2] }

// Contains reports whether vox lies inside the field
func (f *Field) Contains(vox models.Voxel) bool { return Contains(f.dims, vox) }

// At returns the values of vox. The slice aliases the field storage.
func (f *Field) At(vox models.Voxel) []float64 {
	i := Offset(f.dims, vox) * f.ncomp
	return f.data[i : i+f.ncomp : i+f.ncomp]
}

// AtIndex returns the values of the voxel at flat index i
func (f *Field) AtIndex(i int) []float64 {
	j := i * f.ncomp
	return f.data[j : j+f.ncomp : j+f.ncomp]
}

// Zero resets every value to zero
func (f *Field) Zero() {
	for i := range f.data {
		f.data[i] = 0
	}
}

// Clone returns a deep copy
func (f *Field) Clone() *Field {
	data := make([]float64, len(f.data))
	copy(data, f.data)
	return &Field{dims: f.dims, ncomp: f.ncomp, data: data}
}

// Component extracts component c of every voxel as a flat scalar volume
func (f *Field) Component(c int) []float64 {
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = f.data[i*f.ncomp+c]
	}
	return out
}

// Sum returns the per-voxel sum over all components as a flat scalar volume
func (f *Field) Sum() []float64 {
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = floats.Sum(f.AtIndex(i))
	}
	return out
}
