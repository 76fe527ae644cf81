// Package fit evaluates how well a voxel's track orientation distribution
// explains its diffusion signal. The fibre contribution is predicted by
// convolving the TOD with a single-fibre response; the remaining residual is
// explained by non-negative isotropic compartments fitted with a regularised
// non-negative least-squares solve.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"gtenergy/pkg/config"
	"gtenergy/pkg/gradient"
	"gtenergy/pkg/sh"
)

// model holds the matrices computed once at construction. It is never
// modified afterwards and is shared by every clone of a Fitter.
type model struct {
	lmax  int
	nrows int
	ncols int
	nf    int
	mu    float64

	// k maps TOD coefficients to the predicted fibre signal
	k *mat.Dense

	// a holds one column per isotropic compartment
	a *mat.Dense

	// gram is aᵀa + mu·I
	gram *mat.SymDense
}

// Fitter computes residual energies. The read-only model is shared between
// clones; scratch buffers are owned by each Fitter, which is therefore not
// safe for concurrent use.
type Fitter struct {
	*model

	t   *mat.VecDense
	d   *mat.VecDense
	b   *mat.VecDense
	f   []float64
	nls *activeSet

	// Degenerate counts evaluations that fell back to the raw signal energy
	Degenerate int
}

// New builds the fitter for a gradient table. Every gradient row is assigned
// to a response shell; rows that match no shell make the table invalid.
func New(grad gradient.Table, resp config.Response, lmax int, mu float64) (*Fitter, error) {
	if err := sh.CheckLmax(lmax); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if !(mu >= 0) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("%w: regularization must be finite and non-negative, got %g", config.ErrInvalidConfig, mu)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	if len(grad) == 0 {
		return nil, fmt.Errorf("%w: empty gradient table", config.ErrInvalidConfig)
	}
	shell, err := grad.Assign(resp.Shells, resp.ShellTolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	m := &model{
		lmax:  lmax,
		nrows: len(grad),
		ncols: sh.NforL(lmax),
		nf:    len(resp.ISO),
		mu:    mu,
	}

	// Convolution of the TOD with the zonal fibre response of each row's shell
	y := sh.Matrix(grad.Directions(), lmax)
	m.k = mat.NewDense(m.nrows, m.ncols, nil)
	for i := 0; i < m.nrows; i++ {
		wm := resp.WM[shell[i]]
		for l := 0; l <= lmax; l += 2 {
			if l/2 >= len(wm) {
				break
			}
			for mm := -l; mm <= l; mm++ {
				j := sh.Index(l, mm)
				m.k.Set(i, j, wm[l/2]*y.At(i, j))
			}
		}
	}

	if m.nf > 0 {
		m.a = mat.NewDense(m.nrows, m.nf, nil)
		for i := 0; i < m.nrows; i++ {
			for j := 0; j < m.nf; j++ {
				m.a.Set(i, j, resp.ISO[j][shell[i]])
			}
		}
		m.gram = mat.NewSymDense(m.nf, nil)
		m.gram.SymOuterK(1, m.a.T())
		for j := 0; j < m.nf; j++ {
			m.gram.SetSym(j, j, m.gram.At(j, j)+mu)
		}
	}

	return m.newFitter(), nil
}

func (m *model) newFitter() *Fitter {
	f := &Fitter{
		model: m,
		t:     mat.NewVecDense(m.ncols, nil),
		d:     mat.NewVecDense(m.nrows, nil),
		f:     make([]float64, m.nf),
	}
	if m.nf > 0 {
		f.b = mat.NewVecDense(m.nf, nil)
		f.nls = newActiveSet(m.gram)
	}
	return f
}

// Clone returns a fitter sharing the read-only model with fresh scratch space
func (f *Fitter) Clone() *Fitter {
	c := f.model.newFitter()
	c.Degenerate = f.Degenerate
	return c
}

// Lmax returns the harmonic order of the TOD
func (f *Fitter) Lmax() int { return f.lmax }

// Rows returns the number of signal samples per voxel
func (f *Fitter) Rows() int { return f.nrows }

// Coefficients returns the number of TOD coefficients per voxel
func (f *Fitter) Coefficients() int { return f.ncols }

// Compartments returns the number of isotropic compartments
func (f *Fitter) Compartments() int { return f.nf }

// Energy fits the isotropic fractions of a voxel with TOD t against its signal y.
// The fitted fractions are written to fiso (len Compartments()) and the
// regularised residual ‖y - K·t - A·f‖² + mu‖f‖² is returned. The result is
// finite for finite TODs: non-finite residual samples are treated as zero and
// a failed isotropic fit falls back to the raw residual ‖y - K·t‖².
func (f *Fitter) Energy(y, t, fiso []float64) float64 {
	copy(f.t.RawVector().Data, t)
	f.d.MulVec(f.k, f.t)
	d := f.d.RawVector().Data
	for i, v := range y {
		r := v - d[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		d[i] = r
	}

	raw := floats.Dot(d, d)
	if f.nf == 0 {
		return raw
	}

	f.b.MulVec(f.a.T(), f.d)
	b := f.b.RawVector().Data
	f.nls.solve(b, f.f)

	// ‖d - A f‖² + mu‖f‖² = ‖d‖² - 2fᵀb + fᵀ(AᵀA + mu I)f
	var quad float64
	for i := 0; i < f.nf; i++ {
		for j := 0; j < f.nf; j++ {
			quad += f.f[i] * f.gram.At(i, j) * f.f[j]
		}
	}
	e := raw - 2*floats.Dot(f.f, b) + quad
	if math.IsNaN(e) || math.IsInf(e, 0) {
		f.Degenerate++
		for i := range fiso {
			fiso[i] = 0
		}
		return raw
	}
	copy(fiso, f.f)
	return math.Max(e, 0)
}

// Predict writes the modelled signal K·t + A·fiso into dst
func (f *Fitter) Predict(dst, t, fiso []float64) {
	copy(f.t.RawVector().Data, t)
	out := mat.NewVecDense(f.nrows, dst)
	out.MulVec(f.k, f.t)
	if f.nf == 0 {
		return
	}
	for i := 0; i < f.nrows; i++ {
		for j := 0; j < f.nf; j++ {
			dst[i] += f.a.At(i, j) * fiso[j]
		}
	}
}
