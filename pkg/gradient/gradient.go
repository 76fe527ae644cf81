// Package gradient handles diffusion gradient tables: loading and saving them as
// CSV, generating uniform schemes and assigning rows to b-value shells.
package gradient

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultShellTolerance is the b-value distance within which a row belongs to a shell
const DefaultShellTolerance = 80.0

// Row is one diffusion-weighted volume of the acquisition
type Row struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
	Z float64 `csv:"z"`
	B float64 `csv:"b"`
}

// Direction returns the gradient direction of the row
func (r Row) Direction() r3.Vec {
	return r3.Vec{X: r.X, Y: r.Y, Z: r.Z}
}

// Table is a gradient table with one row per image volume
type Table []Row

// Directions returns the gradient direction of every row
func (t Table) Directions() []r3.Vec {
	dirs := make([]r3.Vec, len(t))
	for i, r := range t {
		dirs[i] = r.Direction()
	}
	return dirs
}

// BValues returns the b-value of every row
func (t Table) BValues() []float64 {
	b := make([]float64, len(t))
	for i, r := range t {
		b[i] = r.B
	}
	return b
}

// Read parses a CSV gradient table with columns x, y, z, b
func Read(r io.Reader) (Table, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("error parsing gradient table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("gradient table is empty")
	}
	for i, row := range rows {
		if row.B < 0 || math.IsNaN(row.B) {
			return nil, fmt.Errorf("gradient row %d has invalid b-value %g", i, row.B)
		}
	}
	return Table(rows), nil
}

// Load reads a CSV gradient table from a file
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening gradient table: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write encodes the table as CSV
func (t Table) Write(w io.Writer) error {
	rows := []Row(t)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("error writing gradient table: %w", err)
	}
	return nil
}

// Save writes the table to a CSV file
func (t Table) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating gradient table: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing gradient table: %w", cerr)
		}
	}()
	return t.Write(f)
}

// Fibonacci returns n directions spread uniformly over the upper hemisphere
// using a golden-angle spiral. Antipodal symmetry makes the hemisphere enough.
func Fibonacci(n int) []r3.Vec {
	dirs := make([]r3.Vec, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		z := 1 - (float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - z*z)
		phi := golden * float64(i)
		dirs[i] = r3.Vec{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: z}
	}
	return dirs
}

// Scheme builds a table with nb0 unweighted volumes followed by ndirs
// Fibonacci directions on each shell
func Scheme(nb0 int, shells []float64, ndirs int) Table {
	t := make(Table, 0, nb0+len(shells)*ndirs)
	for i := 0; i < nb0; i++ {
		t = append(t, Row{Z: 1, B: 0})
	}
	dirs := Fibonacci(ndirs)
	for _, b := range shells {
		for _, d := range dirs {
			t = append(t, Row{X: d.X, Y: d.Y, Z: d.Z, B: b})
		}
	}
	return t
}

// Shells clusters the b-values of the table: sorted values closer than tol
// to the running cluster mean are merged. The cluster means are returned in
// increasing order.
func (t Table) Shells(tol float64) []float64 {
	b := t.BValues()
	sort.Float64s(b)

	var shells []float64
	var sum float64
	var count int
	for _, v := range b {
		if count > 0 && v-sum/float64(count) > tol {
			shells = append(shells, sum/float64(count))
			sum, count = 0, 0
		}
		sum += v
		count++
	}
	if count > 0 {
		shells = append(shells, sum/float64(count))
	}
	return shells
}

// Assign maps every row to the index of the nearest shell. A row farther than
// tol from every shell is an error.
func (t Table) Assign(shells []float64, tol float64) ([]int, error) {
	if len(shells) == 0 {
		return nil, fmt.Errorf("no shells to assign gradient rows to")
	}
	idx := make([]int, len(t))
	for i, r := range t {
		best, dist := -1, math.Inf(1)
		for s, b := range shells {
			if d := math.Abs(r.B - b); d < dist {
				best, dist = s, d
			}
		}
		if dist > tol {
			return nil, fmt.Errorf("gradient row %d (b=%g) matches no shell within %g", i, r.B, tol)
		}
		idx[i] = best
	}
	return idx, nil
}
