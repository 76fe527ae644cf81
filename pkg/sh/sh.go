// Package sh implements the real, even-order spherical harmonic basis used to
// represent track orientation distributions.
//
// Coefficients are stored by order: for each even l the 2l+1 coefficients
// m = -l..l, so that the coefficient of (l, m) sits at l(l+1)/2 + m.
// The basis is orthonormal over the sphere.
package sh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxLmax is the highest harmonic order supported
const MaxLmax = 16

// NforL returns the number of coefficients of an even basis up to lmax
func NforL(lmax int) int {
	return (lmax + 1) * (lmax + 2) / 2
}

// Index returns the position of coefficient (l, m) in a coefficient vector
func Index(l, m int) int {
	return l*(l+1)/2 + m
}

// LforN returns the highest even order that fits in n coefficients
func LforN(n int) int {
	l := 0
	for NforL(l+2) <= n {
		l += 2
	}
	return l
}

// CheckLmax validates a harmonic order
func CheckLmax(lmax int) error {
	if lmax < 0 || lmax > MaxLmax || lmax%2 != 0 {
		return fmt.Errorf("lmax must be an even number in [0, %d], got %d", MaxLmax, lmax)
	}
	return nil
}

// legendre fills p with the orthonormalised associated Legendre functions
// P̄_l^m(cos θ) for 0 <= m <= l <= lmax, laid out as p[l*(lmax+1)+m].
func legendre(p []float64, lmax int, ct, st float64) {
	stride := lmax + 1
	p[0] = math.Sqrt(1 / (4 * math.Pi))
	for m := 1; m <= lmax; m++ {
		p[m*stride+m] = math.Sqrt(float64(2*m+1)/float64(2*m)) * st * p[(m-1)*stride+m-1]
	}
	for m := 0; m < lmax; m++ {
		p[(m+1)*stride+m] = math.Sqrt(float64(2*m+3)) * ct * p[m*stride+m]
	}
	for m := 0; m <= lmax; m++ {
		for l := m + 2; l <= lmax; l++ {
			fl, fm := float64(l), float64(m)
			a := math.Sqrt((4*fl*fl - 1) / (fl*fl - fm*fm))
			b := math.Sqrt(((fl-1)*(fl-1) - fm*fm) / (4*(fl-1)*(fl-1) - 1))
			p[l*stride+m] = a * (ct*p[(l-1)*stride+m] - b*p[(l-2)*stride+m])
		}
	}
}

// Evaluator computes basis values for directions, reusing its scratch space.
// It is not safe for concurrent use.
type Evaluator struct {
	lmax int
	p    []float64
}

// NewEvaluator creates an evaluator for orders up to lmax
func NewEvaluator(lmax int) *Evaluator {
	return &Evaluator{lmax: lmax, p: make([]float64, (lmax+1)*(lmax+1))}
}

// Lmax returns the highest order evaluated
func (e *Evaluator) Lmax() int { return e.lmax }

// Basis writes Y_lm(dir) for every even l <= lmax into dst, which must hold
// NforL(lmax) values. dir need not be normalised; a zero vector is treated as +z.
func (e *Evaluator) Basis(dst []float64, dir r3.Vec) {
	n := r3.Norm(dir)
	ct, st, phi := 1.0, 0.0, 0.0
	if n > 0 {
		ct = dir.Z / n
		st = math.Hypot(dir.X, dir.Y) / n
		phi = math.Atan2(dir.Y, dir.X)
	}
	legendre(e.p, e.lmax, ct, st)

	stride := e.lmax + 1
	for l := 0; l <= e.lmax; l += 2 {
		dst[Index(l, 0)] = e.p[l*stride]
		for m := 1; m <= l; m++ {
			v := math.Sqrt2 * e.p[l*stride+m]
			s, c := math.Sincos(float64(m) * phi)
			dst[Index(l, m)] = v * c
			dst[Index(l, -m)] = v * s
		}
	}
}

// Delta writes the coefficients of a unit delta function along dir,
// i.e. the antipodally symmetric track orientation of a single segment
func (e *Evaluator) Delta(dst []float64, dir r3.Vec) {
	e.Basis(dst, dir)
}

// Value evaluates the function described by coefs along dir
func (e *Evaluator) Value(coefs []float64, dir r3.Vec) float64 {
	y := make([]float64, len(coefs))
	e.Basis(y, dir)
	var sum float64
	for i, c := range coefs {
		sum += c * y[i]
	}
	return sum
}

// Matrix returns the len(dirs) x NforL(lmax) matrix whose rows are the basis
// evaluated along each direction
func Matrix(dirs []r3.Vec, lmax int) *mat.Dense {
	ncols := NforL(lmax)
	m := mat.NewDense(len(dirs), ncols, nil)
	e := NewEvaluator(lmax)
	row := make([]float64, ncols)
	for i, d := range dirs {
		e.Basis(row, d)
		m.SetRow(i, row)
	}
	return m
}
