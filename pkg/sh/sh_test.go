package sh

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// TestNforL checks coefficient counts and their inverse
func TestNforL(t *testing.T) {
	want := map[int]int{0: 1, 2: 6, 4: 15, 6: 28, 8: 45}
	for l, n := range want {
		if got := NforL(l); got != n {
			t.Errorf("NforL(%d) = %d, want %d", l, got, n)
		}
		if got := LforN(n); got != l {
			t.Errorf("LforN(%d) = %d, want %d", n, got, l)
		}
	}

	if Index(2, -2) != 1 || Index(2, 2) != 5 || Index(4, 0) != 10 {
		t.Errorf("unexpected index layout")
	}
}

// TestCheckLmax verifies order validation
func TestCheckLmax(t *testing.T) {
	for _, l := range []int{0, 2, 8, MaxLmax} {
		if err := CheckLmax(l); err != nil {
			t.Errorf("CheckLmax(%d): %v", l, err)
		}
	}
	for _, l := range []int{-2, 1, 7, MaxLmax + 2} {
		if err := CheckLmax(l); err == nil {
			t.Errorf("CheckLmax(%d) should fail", l)
		}
	}
}

// TestAdditionTheorem verifies sum_m Y_lm(u)^2 = (2l+1)/(4π) for arbitrary u
func TestAdditionTheorem(t *testing.T) {
	lmax := 8
	e := NewEvaluator(lmax)
	y := make([]float64, NforL(lmax))

	dirs := []r3.Vec{
		{X: 0, Y: 0, Z: 1},
		{X: 1, Y: 0, Z: 0},
		{X: 0.3, Y: -0.7, Z: 0.2},
		{X: -1, Y: 2, Z: -3},
	}
	for _, d := range dirs {
		e.Basis(y, d)
		for l := 0; l <= lmax; l += 2 {
			var sum float64
			for m := -l; m <= l; m++ {
				v := y[Index(l, m)]
				sum += v * v
			}
			want := float64(2*l+1) / (4 * math.Pi)
			if math.Abs(sum-want) > 1e-10 {
				t.Errorf("dir %v, l=%d: sum of squares %g, want %g", d, l, sum, want)
			}
		}
	}
}

// TestAntipodalSymmetry checks that even-order functions are symmetric
func TestAntipodalSymmetry(t *testing.T) {
	lmax := 6
	e := NewEvaluator(lmax)
	a := make([]float64, NforL(lmax))
	b := make([]float64, NforL(lmax))

	d := r3.Vec{X: 0.4, Y: 0.5, Z: -0.3}
	e.Basis(a, d)
	e.Basis(b, r3.Scale(-1, d))
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Errorf("coefficient %d differs under antipodal flip: %g vs %g", i, a[i], b[i])
		}
	}
}

// TestZonalValues checks closed forms for the m=0 terms
func TestZonalValues(t *testing.T) {
	e := NewEvaluator(2)
	y := make([]float64, NforL(2))
	e.Basis(y, r3.Vec{Z: 1})

	if want := 1 / math.Sqrt(4*math.Pi); math.Abs(y[0]-want) > 1e-12 {
		t.Errorf("Y00 = %g, want %g", y[0], want)
	}
	if want := math.Sqrt(5 / (4 * math.Pi)); math.Abs(y[Index(2, 0)]-want) > 1e-12 {
		t.Errorf("Y20(z) = %g, want %g", y[Index(2, 0)], want)
	}
	for _, m := range []int{-2, -1, 1, 2} {
		if math.Abs(y[Index(2, m)]) > 1e-12 {
			t.Errorf("Y2%d(z) = %g, want 0", m, y[Index(2, m)])
		}
	}
}

// TestDeltaPeak verifies that a delta evaluates highest along its own axis
func TestDeltaPeak(t *testing.T) {
	lmax := 8
	e := NewEvaluator(lmax)
	coefs := make([]float64, NforL(lmax))
	dir := r3.Unit(r3.Vec{X: 1, Y: 1, Z: 0})
	e.Delta(coefs, dir)

	peak := e.Value(coefs, dir)
	off := e.Value(coefs, r3.Vec{Z: 1})
	if peak <= off {
		t.Errorf("delta peak %g not larger than orthogonal value %g", peak, off)
	}
}

// TestMatrix checks matrix dimensions and row content
func TestMatrix(t *testing.T) {
	dirs := []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	m := Matrix(dirs, 4)
	r, c := m.Dims()
	if r != 3 || c != NforL(4) {
		t.Fatalf("matrix dims %dx%d, want 3x%d", r, c, NforL(4))
	}

	e := NewEvaluator(4)
	y := make([]float64, NforL(4))
	e.Basis(y, dirs[1])
	for j := 0; j < c; j++ {
		if m.At(1, j) != y[j] {
			t.Errorf("row 1 col %d = %g, want %g", j, m.At(1, j), y[j])
		}
	}
}
