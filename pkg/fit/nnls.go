package fit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxCond is the condition number above which a passive-set system is treated as singular
const maxCond = 1e12

// activeSet solves min ½xᵀGx - bᵀx subject to x >= 0 with the Lawson-Hanson
// active-set method applied to the normal equations. G must be symmetric
// positive semi-definite. Scratch space is reused across calls, so an
// activeSet must not be shared between goroutines.
type activeSet struct {
	g       *mat.SymDense
	n       int
	passive []bool
	blocked []bool
	w       []float64
	z       []float64
}

func newActiveSet(g *mat.SymDense) *activeSet {
	n := g.SymmetricDim()
	return &activeSet{
		g:       g,
		n:       n,
		passive: make([]bool, n),
		blocked: make([]bool, n),
		w:       make([]float64, n),
		z:       make([]float64, n),
	}
}

// solve writes the constrained minimiser into x. Variables whose passive
// subsystem is singular stay at zero, so the result is always finite.
func (s *activeSet) solve(b, x []float64) {
	for i := 0; i < s.n; i++ {
		x[i] = 0
		s.passive[i] = false
		s.blocked[i] = false
	}
	if s.n == 0 {
		return
	}

	scale := 1.0
	for _, v := range b {
		scale = math.Max(scale, math.Abs(v))
	}
	tol := 1e-12 * scale
	maxIter := 3*s.n + 3

	for iter := 0; iter < maxIter; iter++ {
		s.gradient(b, x)

		j, best := -1, tol
		for i := 0; i < s.n; i++ {
			if !s.passive[i] && !s.blocked[i] && s.w[i] > best {
				j, best = i, s.w[i]
			}
		}
		if j < 0 {
			return
		}
		s.passive[j] = true

		for inner := 0; inner < maxIter; inner++ {
			if !s.solvePassive(b) || (inner == 0 && s.z[j] <= 0) {
				s.passive[j] = false
				s.blocked[j] = true
				break
			}

			feasible := true
			for i := 0; i < s.n; i++ {
				if s.passive[i] && s.z[i] <= 0 {
					feasible = false
					break
				}
			}
			if feasible {
				copy(x, s.z)
				break
			}

			// Step towards z until the first passive variable hits zero
			alpha := 1.0
			for i := 0; i < s.n; i++ {
				if s.passive[i] && s.z[i] <= 0 {
					if a := x[i] / (x[i] - s.z[i]); a < alpha {
						alpha = a
					}
				}
			}
			for i := 0; i < s.n; i++ {
				if !s.passive[i] {
					continue
				}
				x[i] += alpha * (s.z[i] - x[i])
				if x[i] <= tol {
					x[i] = 0
					s.passive[i] = false
				}
			}
		}
	}
}

// gradient stores the negative gradient b - Gx in w
func (s *activeSet) gradient(b, x []float64) {
	for i := 0; i < s.n; i++ {
		v := b[i]
		for k := 0; k < s.n; k++ {
			v -= s.g.At(i, k) * x[k]
		}
		s.w[i] = v
	}
}

// solvePassive solves the unconstrained problem restricted to the passive
// set, storing the result in z (zero outside the set). It reports false when
// the restricted system is singular or ill-conditioned.
func (s *activeSet) solvePassive(b []float64) bool {
	idx := make([]int, 0, s.n)
	for i := 0; i < s.n; i++ {
		s.z[i] = 0
		if s.passive[i] {
			idx = append(idx, i)
		}
	}
	k := len(idx)
	if k == 0 {
		return true
	}

	sub := mat.NewSymDense(k, nil)
	rhs := mat.NewVecDense(k, nil)
	for a, i := range idx {
		rhs.SetVec(a, b[i])
		for c := a; c < k; c++ {
			sub.SetSym(a, c, s.g.At(i, idx[c]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sub); !ok || chol.Cond() > maxCond {
		return false
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil {
		return false
	}
	for a, i := range idx {
		v := sol.AtVec(a)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		s.z[i] = v
	}
	return true
}
