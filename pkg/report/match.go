package report

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
)

// Match compares a particle configuration with a reference configuration
type Match struct {
	Particles int `csv:"particles"`
	Truth     int `csv:"truth"`

	// MeanDistance is the mean distance from each particle to its nearest
	// reference particle, in mm
	MeanDistance float64 `csv:"mean_distance"`

	// MeanAngle is the mean angle in degrees between each particle and its
	// nearest reference particle, ignoring orientation sign
	MeanAngle float64 `csv:"mean_angle"`

	// Precision is the fraction of particles within the tolerance of a
	// reference particle
	Precision float64 `csv:"precision"`

	// Recall is the fraction of reference particles within the tolerance of
	// a particle
	Recall float64 `csv:"recall"`
}

// point is a particle position in a KD-tree
type point struct {
	pos r3.Vec
	dir r3.Vec
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	case 2:
		return p.pos.Z - q.pos.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	d := r3.Sub(p.pos, c.(point).pos)
	return r3.Dot(d, d)
}

// points satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for points
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.Dim) < 0
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func newTree(ps []models.Particle) *kdtree.Tree {
	pts := make(points, len(ps))
	for i, p := range ps {
		pts[i] = point{pos: p.Position, dir: p.Direction}
	}
	return kdtree.New(pts, false)
}

// CompareParticles matches particles against truth. A particle counts as
// matched when a reference particle lies within tol mm.
func CompareParticles(particles, truth []models.Particle, tol float64) Match {
	m := Match{Particles: len(particles), Truth: len(truth)}
	if len(particles) == 0 || len(truth) == 0 {
		return m
	}

	ref := newTree(truth)
	var matched int
	for _, p := range particles {
		q := point{pos: p.Position, dir: p.Direction}
		c, d2 := ref.Nearest(q)
		d := math.Sqrt(d2)
		m.MeanDistance += d
		m.MeanAngle += angle(p.Direction, c.(point).dir)
		if d <= tol {
			matched++
		}
	}
	m.MeanDistance /= float64(len(particles))
	m.MeanAngle /= float64(len(particles))
	m.Precision = float64(matched) / float64(len(particles))

	tree := newTree(particles)
	var found int
	for _, t := range truth {
		if _, d2 := tree.Nearest(point{pos: t.Position}); math.Sqrt(d2) <= tol {
			found++
		}
	}
	m.Recall = float64(found) / float64(len(truth))
	return m
}

// angle returns the angle between two axes in degrees
func angle(a, b r3.Vec) float64 {
	c := math.Abs(r3.Dot(r3.Unit(a), r3.Unit(b)))
	return math.Acos(math.Min(c, 1)) * 180 / math.Pi
}
