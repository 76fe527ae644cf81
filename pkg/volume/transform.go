package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is an affine map from scanner coordinates (mm) to voxel
// coordinates, where voxel centres sit at integer positions
type Transform struct {
	linear *r3.Mat
	offset r3.Vec
}

// NewTransform creates a transform p -> linear*p + offset from a row-major
// 3x3 matrix. Singular matrices are rejected.
func NewTransform(linear []float64, offset r3.Vec) (Transform, error) {
	if len(linear) != 9 {
		return Transform{}, fmt.Errorf("transform needs 9 matrix elements, got %d", len(linear))
	}
	det := mat.Det(mat.NewDense(3, 3, linear))
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Transform{}, fmt.Errorf("transform matrix is singular")
	}
	vals := make([]float64, 9)
	copy(vals, linear)
	return Transform{linear: r3.NewMat(vals), offset: offset}, nil
}

// Identity returns the transform of a 1 mm grid whose first voxel is at the origin
func Identity() Transform {
	t, _ := NewTransform([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, r3.Vec{})
	return t
}

// FromVoxelSize returns the transform of an axis-aligned grid with the given
// voxel size (mm) whose first voxel centre is at origin
func FromVoxelSize(size r3.Vec, origin r3.Vec) (Transform, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return Transform{}, fmt.Errorf("voxel size must be positive, got %v", size)
	}
	return NewTransform(
		[]float64{1 / size.X, 0, 0, 0, 1 / size.Y, 0, 0, 0, 1 / size.Z},
		r3.Vec{X: -origin.X / size.X, Y: -origin.Y / size.Y, Z: -origin.Z / size.Z},
	)
}

// Apply maps a scanner position to voxel coordinates
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.linear.MulVec(p), t.offset)
}

// Matrix returns the linear part in row-major order
func (t Transform) Matrix() []float64 {
	vals := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			vals[3*i+j] = t.linear.At(i, j)
		}
	}
	return vals
}

// Inverse returns the voxel-to-scanner transform
func (t Transform) Inverse() (Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, t.Matrix())); err != nil {
		return Transform{}, fmt.Errorf("error inverting transform: %w", err)
	}
	vals := make([]float64, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			vals[3*i+j] = inv.At(i, j)
		}
	}
	lin := r3.NewMat(vals)
	return Transform{linear: lin, offset: r3.Scale(-1, lin.MulVec(t.offset))}, nil
}
