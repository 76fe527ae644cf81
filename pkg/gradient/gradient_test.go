package gradient

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// TestRead parses a small CSV table
func TestRead(t *testing.T) {
	in := "x,y,z,b\n0,0,1,0\n1,0,0,1000\n0,1,0,1005\n"
	tab, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(tab) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tab))
	}
	if tab[1].X != 1 || tab[2].B != 1005 {
		t.Errorf("unexpected rows: %+v", tab)
	}
}

// TestReadInvalid rejects empty tables and negative b-values
func TestReadInvalid(t *testing.T) {
	for _, in := range []string{"x,y,z,b\n", "x,y,z,b\n0,0,1,-5\n"} {
		if _, err := Read(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

// TestSaveLoad writes a generated scheme to disk and reads it back
func TestSaveLoad(t *testing.T) {
	tab := Scheme(2, []float64{1000, 3000}, 12)
	path := filepath.Join(t.TempDir(), "grad.csv")
	if err := tab.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(tab) {
		t.Fatalf("expected %d rows, got %d", len(tab), len(got))
	}
	for i := range tab {
		if math.Abs(got[i].X-tab[i].X) > 1e-9 || got[i].B != tab[i].B {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], tab[i])
		}
	}

	var buf bytes.Buffer
	if err := tab.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "x,y,z,b") {
		t.Errorf("missing header in %q", buf.String())
	}
}

// TestFibonacci checks that generated directions are unit length and distinct
func TestFibonacci(t *testing.T) {
	dirs := Fibonacci(30)
	for i, d := range dirs {
		if math.Abs(r3.Norm(d)-1) > 1e-12 {
			t.Errorf("direction %d not unit: %v", i, d)
		}
		if d.Z < 0 {
			t.Errorf("direction %d outside the upper hemisphere: %v", i, d)
		}
	}
	for i := 1; i < len(dirs); i++ {
		if r3.Norm(r3.Sub(dirs[i], dirs[i-1])) < 1e-3 {
			t.Errorf("directions %d and %d coincide", i-1, i)
		}
	}
}

// TestShells clusters noisy b-values and assigns rows
func TestShells(t *testing.T) {
	tab := Table{
		{Z: 1, B: 0}, {Z: 1, B: 5},
		{X: 1, B: 995}, {Y: 1, B: 1000}, {Z: 1, B: 1010},
		{X: 1, B: 2990}, {Y: 1, B: 3000},
	}

	shells := tab.Shells(DefaultShellTolerance)
	if len(shells) != 3 {
		t.Fatalf("expected 3 shells, got %v", shells)
	}
	if math.Abs(shells[0]-2.5) > 1e-9 || math.Abs(shells[2]-2995) > 1e-9 {
		t.Errorf("unexpected shell means %v", shells)
	}

	idx, err := tab.Assign([]float64{0, 1000, 3000}, DefaultShellTolerance)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	want := []int{0, 0, 1, 1, 1, 2, 2}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("row %d assigned to shell %d, want %d", i, idx[i], want[i])
		}
	}

	if _, err := tab.Assign([]float64{0, 1000}, DefaultShellTolerance); err == nil {
		t.Error("expected error assigning b=3000 rows without a matching shell")
	}
	if _, err := tab.Assign(nil, DefaultShellTolerance); err == nil {
		t.Error("expected error with no shells")
	}
}
