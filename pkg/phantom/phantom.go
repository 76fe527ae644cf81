// Package phantom synthesises diffusion-weighted images from a known particle
// configuration. The forward model is the same one the external energy fits,
// so the ground truth configuration explains the noise-free signal exactly.
package phantom

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
	"gtenergy/pkg/energy"
	"gtenergy/pkg/gradient"
	"gtenergy/pkg/volume"
)

// Phantom is a synthetic acquisition
type Phantom struct {
	Image     *volume.Grid
	Transform volume.Transform
	Gradients gradient.Table
	Truth     []models.Particle
}

// Params returns the energy parameters for evaluating particles against the phantom
func (ph *Phantom) Params(cfg *config.Config) energy.Params {
	return energy.Params{
		Image:     ph.Image,
		Transform: ph.Transform,
		Gradients: ph.Gradients,
		Energy:    cfg.Energy,
		Response:  cfg.Response,
	}
}

// Generate renders truth into a new image. The grid geometry and noise come
// from cfg.Phantom; the first isotropic compartment receives cfg.Phantom.Fiso
// in every voxel.
func Generate(truth []models.Particle, grad gradient.Table, cfg *config.Config) (*Phantom, error) {
	pc := cfg.Phantom
	if !(pc.VoxelSize > 0) {
		return nil, fmt.Errorf("%w: phantom voxel size must be positive", config.ErrInvalidConfig)
	}
	if pc.Noise < 0 {
		return nil, fmt.Errorf("%w: phantom noise must be non-negative", config.ErrInvalidConfig)
	}

	img, err := volume.NewGrid(pc.Dims, len(grad))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	xf, err := volume.FromVoxelSize(r3.Vec{X: pc.VoxelSize, Y: pc.VoxelSize, Z: pc.VoxelSize}, r3.Vec{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	// Accumulate the ground-truth TOD on an empty image
	ext, err := energy.NewExternal(energy.Params{
		Image:     img,
		Transform: xf,
		Gradients: grad,
		Energy:    cfg.Energy,
		Response:  cfg.Response,
	})
	if err != nil {
		return nil, err
	}
	if err := ext.ResetEnergy(truth); err != nil {
		return nil, err
	}

	fitter := ext.Fitter()
	fiso := make([]float64, fitter.Compartments())
	if len(fiso) > 0 {
		fiso[0] = pc.Fiso
	}

	var noise *distuv.Normal
	if pc.Noise > 0 {
		noise = &distuv.Normal{Mu: 0, Sigma: pc.Noise, Src: rand.NewSource(pc.Seed)}
	}

	sig := make([]float64, len(grad))
	tod := ext.TOD()
	for i := 0; i < tod.Len(); i++ {
		fitter.Predict(sig, tod.AtIndex(i), fiso)
		if noise != nil {
			for v, s := range sig {
				// Rician magnitude of a complex signal with Gaussian noise on both channels
				re, im := s+noise.Rand(), noise.Rand()
				sig[v] = math.Hypot(re, im)
			}
		}
		img.SetSignal(volume.VoxelAt(pc.Dims, i), sig)
	}

	return &Phantom{Image: img, Transform: xf, Gradients: grad, Truth: truth}, nil
}

// Line places particles every step mm along the segment from a to b,
// oriented along the segment
func Line(a, b r3.Vec, step float64) []models.Particle {
	d := r3.Sub(b, a)
	length := r3.Norm(d)
	if length == 0 || !(step > 0) {
		return nil
	}
	dir := r3.Scale(1/length, d)
	n := int(math.Floor(length/step)) + 1
	ps := make([]models.Particle, 0, n)
	for i := 0; i < n; i++ {
		ps = append(ps, models.NewParticle(r3.Add(a, r3.Scale(float64(i)*step, dir)), dir))
	}
	return ps
}

// Crossing returns two orthogonal bundles crossing in the centre of the
// phantom grid, along x and y, with particles every step mm
func Crossing(pc config.Phantom, step float64) []models.Particle {
	size := pc.VoxelSize
	ext := r3.Vec{
		X: float64(pc.Dims[0]-1) * size,
		Y: float64(pc.Dims[1]-1) * size,
		Z: float64(pc.Dims[2]-1) * size,
	}
	c := r3.Scale(0.5, ext)

	ps := Line(r3.Vec{X: 0, Y: c.Y, Z: c.Z}, r3.Vec{X: ext.X, Y: c.Y, Z: c.Z}, step)
	return append(ps, Line(r3.Vec{X: c.X, Y: 0, Z: c.Z}, r3.Vec{X: c.X, Y: ext.Y, Z: c.Z}, step)...)
}
