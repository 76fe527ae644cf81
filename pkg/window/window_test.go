package window

import (
	"errors"
	"math"
	"testing"
)

// TestNew verifies that only roll-offs inside (0, 1) are accepted
func TestNew(t *testing.T) {
	tests := []struct {
		beta  float64
		valid bool
	}{
		{0.5, true},
		{0.1, true},
		{0.999, true},
		{0, false},
		{1, false},
		{-0.2, false},
		{1.5, false},
		{math.NaN(), false},
	}

	for _, tc := range tests {
		_, err := New(tc.beta)
		if tc.valid && err != nil {
			t.Errorf("beta=%g: unexpected error %v", tc.beta, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidBeta) {
			t.Errorf("beta=%g: expected ErrInvalidBeta, got %v", tc.beta, err)
		}
	}
}

// TestBoundaryValues checks the exact edge values and monotonicity of the band
func TestBoundaryValues(t *testing.T) {
	for _, beta := range []float64{0.5, 0.1} {
		win, err := New(beta)
		if err != nil {
			t.Fatalf("New(%g): %v", beta, err)
		}

		if v := win.At(win.Lower()); v != 0 {
			t.Errorf("beta=%g: window at lower edge = %g, want 0", beta, v)
		}
		if v := win.At(win.Upper()); v != 1 {
			t.Errorf("beta=%g: window at upper edge = %g, want 1", beta, v)
		}

		prev := -1.0
		steps := 1000
		for i := 0; i <= steps; i++ {
			w := win.Lower() + (win.Upper()-win.Lower())*float64(i)/float64(steps)
			v := win.At(w)
			if v < 0 || v > 1 {
				t.Fatalf("beta=%g: window(%g) = %g outside [0,1]", beta, w, v)
			}
			if v < prev {
				t.Fatalf("beta=%g: window decreased at w=%g (%g < %g)", beta, w, v, prev)
			}
			prev = v
		}
	}
}

// TestOutsideBand checks the stop and pass regions
func TestOutsideBand(t *testing.T) {
	win := Window{Beta: 0.5}
	for _, w := range []float64{-1, 0, 0.1, 0.25} {
		if v := win.At(w); v != 0 {
			t.Errorf("window(%g) = %g, want 0", w, v)
		}
	}
	for _, w := range []float64{0.75, 0.9, 1, 3} {
		if v := win.At(w); v != 1 {
			t.Errorf("window(%g) = %g, want 1", w, v)
		}
	}

	// The midpoint of the band is at half attenuation
	if v := win.At(0.5); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("window(0.5) = %g, want 0.5", v)
	}
}
