package energy

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
	"gtenergy/pkg/volume"
)

// weighted is one voxel of a particle's footprint
type weighted struct {
	vox    models.Voxel
	offset int
	w      float64
}

// project stores factor times the harmonic delta of dir in e.t
func (e *External) project(dir r3.Vec, factor float64) {
	if n := r3.Norm(dir); n > 0 {
		dir = r3.Scale(1/n, dir)
	}
	e.sh.Delta(e.t, dir)
	if factor != 1 {
		floats.Scale(factor, e.t)
	}
}

// footprint computes the in-grid voxels a particle at pos contributes to.
// The weights depend on the position only, so adding and removing the same
// particle touch identical voxels with identical weights.
func (e *External) footprint(pos r3.Vec) []weighted {
	p := e.xform.Apply(pos)
	e.fp = e.fp[:0]

	switch e.cfg.Kernel {
	case config.KernelTrilinear:
		e.trilinear(p)
	default:
		e.hann(p)
	}

	// Mass deposited outside the grid is dropped
	n := 0
	for _, f := range e.fp {
		if f.w != 0 && volume.Contains(e.dims, f.vox) {
			f.offset = volume.Offset(e.dims, f.vox)
			e.fp[n] = f
			n++
		}
	}
	e.fp = e.fp[:n]
	return e.fp
}

// trilinear spreads the particle over the eight surrounding voxel centres.
// Each axis fraction is tapered by the apodization window; the window is
// symmetric about 1/2, so the corner weights still sum to one.
func (e *External) trilinear(p r3.Vec) {
	v := models.Voxel{int(math.Floor(p.X)), int(math.Floor(p.Y)), int(math.Floor(p.Z))}
	frac := [3]float64{p.X - float64(v[0]), p.Y - float64(v[1]), p.Z - float64(v[2])}

	var w [3][2]float64
	for a, f := range frac {
		w[a][0] = e.win.At(1 - f)
		w[a][1] = e.win.At(f)
	}

	for dz := 0; dz < 2; dz++ {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				e.fp = append(e.fp, weighted{
					vox: v.Add(models.Voxel{dx, dy, dz}),
					w:   w[0][dx] * w[1][dy] * w[2][dz],
				})
			}
		}
	}
}

// hann spreads the particle over the voxel centres within the kernel radius,
// tapered by the apodization window and normalised to unit mass. When the
// window vanishes on every candidate the nearest voxel takes the full weight.
func (e *External) hann(p r3.Vec) {
	r := e.cfg.KernelRadius
	lo := models.Voxel{int(math.Ceil(p.X - r)), int(math.Ceil(p.Y - r)), int(math.Ceil(p.Z - r))}
	hi := models.Voxel{int(math.Floor(p.X + r)), int(math.Floor(p.Y + r)), int(math.Floor(p.Z + r))}

	var sum float64
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				d := r3.Norm(r3.Sub(p, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}))
				if d >= r {
					continue
				}
				w := e.win.At(1 - d/r)
				if w <= 0 {
					continue
				}
				e.fp = append(e.fp, weighted{vox: models.Voxel{x, y, z}, w: w})
				sum += w
			}
		}
	}

	if sum == 0 {
		nearest := models.Voxel{int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(p.Z))}
		e.fp = append(e.fp, weighted{vox: nearest, w: 1})
		return
	}
	for i := range e.fp {
		e.fp[i].w /= sum
	}
}

// add records the contribution of a particle, scaled by factor, in the
// ledger. factor is +1 to add a particle and -1 to remove it.
func (e *External) add(pos, dir r3.Vec, factor float64) {
	e.project(dir, factor)
	for _, f := range e.footprint(pos) {
		e.ledger.add2vox(f.vox, f.offset, f.w, e.t)
	}
}
