package energy

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
	"gtenergy/pkg/fit"
	"gtenergy/pkg/gradient"
	"gtenergy/pkg/sh"
	"gtenergy/pkg/volume"
	"gtenergy/pkg/window"
)

// Params holds everything an External energy computer is built from
type Params struct {
	// Image is the diffusion-weighted signal. It is shared read-only by all clones.
	Image volume.Image

	// Transform maps scanner positions to voxel coordinates of Image
	Transform volume.Transform

	// Gradients has one row per volume of Image
	Gradients gradient.Table

	// Energy holds the fitting and kernel options
	Energy config.Energy

	// Response holds the fibre and isotropic response functions
	Response config.Response

	// TOD, Fiso and Eext optionally supply preallocated output fields. Nil
	// fields are allocated. Their contents are overwritten at construction.
	TOD  *volume.Field
	Fiso *volume.Field
	Eext *volume.Field
}

// External scores how well the track orientation distribution built from the
// particles explains the diffusion signal. It keeps a per-voxel TOD, fitted
// isotropic fractions and cached residual energies, and re-scores only the
// voxels a proposal touches.
type External struct {
	protocol

	// Shared read-only state
	dwi   volume.Image
	xform volume.Transform
	dims  [3]int
	cfg   config.Energy
	win   window.Window

	// Per-clone state
	fitter *fit.Fitter
	sh     *sh.Evaluator
	tod    *volume.Field
	fiso   *volume.Field
	eext   *volume.Field
	total  float64
	ledger *ledger
	dE     float64

	// Scratch space
	t    []float64
	tnew []float64
	fnew []float64
	y    []float64
	fp   []weighted
}

// NewExternal builds an external energy computer and initialises its state
// for an empty particle set. Invalid options or image geometry fail with an
// error wrapping config.ErrInvalidConfig.
func NewExternal(p Params) (*External, error) {
	if err := p.Energy.Validate(); err != nil {
		return nil, err
	}
	if p.Image == nil {
		return nil, fmt.Errorf("%w: no diffusion image", config.ErrInvalidConfig)
	}
	dims := p.Image.Dims()
	if err := volume.CheckDims(dims); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if p.Image.Volumes() != len(p.Gradients) {
		return nil, fmt.Errorf("%w: image has %d volumes but gradient table has %d rows",
			config.ErrInvalidConfig, p.Image.Volumes(), len(p.Gradients))
	}
	if p.Transform == (volume.Transform{}) {
		return nil, fmt.Errorf("%w: missing scanner-to-voxel transform", config.ErrInvalidConfig)
	}

	win, err := window.New(p.Energy.Beta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	fitter, err := fit.New(p.Gradients, p.Response, p.Energy.Lmax, p.Energy.Regularization)
	if err != nil {
		return nil, err
	}

	ncoef, nf := fitter.Coefficients(), fitter.Compartments()
	tod, err := field(p.TOD, dims, ncoef, "TOD")
	if err != nil {
		return nil, err
	}
	fiso, err := field(p.Fiso, dims, nf, "isotropic fraction")
	if err != nil {
		return nil, err
	}
	eext, err := field(p.Eext, dims, 1, "external energy")
	if err != nil {
		return nil, err
	}

	e := &External{
		dwi:    p.Image,
		xform:  p.Transform,
		dims:   dims,
		cfg:    p.Energy,
		win:    win,
		fitter: fitter,
		sh:     sh.NewEvaluator(p.Energy.Lmax),
		tod:    tod,
		fiso:   fiso,
		eext:   eext,
		ledger: newLedger(ncoef, nf),
	}
	e.allocScratch()

	slog.Debug("initialised external energy",
		"dims", dims, "volumes", fitter.Rows(), "lmax", p.Energy.Lmax,
		"compartments", nf, "kernel", p.Energy.Kernel)

	if err := e.ResetEnergy(nil); err != nil {
		return nil, err
	}
	return e, nil
}

// field validates a caller-supplied output field or allocates a new one
func field(f *volume.Field, dims [3]int, ncomp int, name string) (*volume.Field, error) {
	if f == nil {
		return volume.NewField(dims, ncomp)
	}
	if f.Dims() != dims || f.Components() != ncomp {
		return nil, fmt.Errorf("%w: %s field is %v x %d, want %v x %d",
			config.ErrInvalidConfig, name, f.Dims(), f.Components(), dims, ncomp)
	}
	return f, nil
}

func (e *External) allocScratch() {
	ncoef, nf := e.fitter.Coefficients(), e.fitter.Compartments()
	e.t = make([]float64, ncoef)
	e.tnew = make([]float64, ncoef)
	e.fnew = make([]float64, nf)
	e.y = make([]float64, e.fitter.Rows())
}

// StageAdd stages the contribution of a new particle at (pos, dir)
func (e *External) StageAdd(pos, dir r3.Vec) (float64, error) {
	if err := e.begin(KindAdd); err != nil {
		return 0, err
	}
	e.add(pos, dir, 1)
	return e.eval(), nil
}

// StageShift stages moving p to (pos, dir). Both footprints go into one
// ledger, so voxels touched by both are evaluated once.
func (e *External) StageShift(p models.Particle, pos, dir r3.Vec) (float64, error) {
	if err := e.begin(KindShift); err != nil {
		return 0, err
	}
	e.add(p.Position, p.Direction, -1)
	e.add(pos, dir, 1)
	return e.eval(), nil
}

// StageRemove stages the removal of p
func (e *External) StageRemove(p models.Particle) (float64, error) {
	if err := e.begin(KindRemove); err != nil {
		return 0, err
	}
	e.add(p.Position, p.Direction, -1)
	return e.eval(), nil
}

// eval refits every voxel in the ledger and returns the summed energy change
func (e *External) eval() float64 {
	e.dE = 0
	for k := range e.ledger.entries {
		c := &e.ledger.entries[k]
		floats.AddTo(e.tnew, e.tod.AtIndex(c.offset), c.dTOD)
		volume.ReadSignal(e.dwi, c.vox, e.y)
		c.eext = e.fitter.Energy(e.y, e.tnew, c.fiso)
		if e.fiso.Components() > 0 {
			floats.SubTo(c.dFiso, c.fiso, e.fiso.AtIndex(c.offset))
		}
		c.dEext = c.eext - e.eext.AtIndex(c.offset)[0]
		e.dE += c.dEext
	}
	return e.dE
}

// AcceptChanges merges the staged ledger into the voxel state and the total energy
func (e *External) AcceptChanges() error {
	if err := e.accept(); err != nil {
		return err
	}
	for k := range e.ledger.entries {
		c := &e.ledger.entries[k]
		floats.Add(e.tod.AtIndex(c.offset), c.dTOD)
		floats.Add(e.fiso.AtIndex(c.offset), c.dFiso)
		e.eext.AtIndex(c.offset)[0] += c.dEext
	}
	e.total += e.dE
	e.dE = 0
	e.ledger.reset()
	return nil
}

// ClearChanges discards the staged ledger. Persistent state is untouched.
func (e *External) ClearChanges() {
	e.clear()
	e.dE = 0
	e.ledger.reset()
}

// ResetEnergy rebuilds the TOD from the given particles, refits every voxel
// and recomputes the total energy. It is O(voxels + particles) and is meant
// for initialisation and periodic drift correction.
func (e *External) ResetEnergy(particles []models.Particle) error {
	if e.staged {
		return ErrAlreadyStaged
	}

	e.tod.Zero()
	e.fiso.Zero()
	e.eext.Zero()

	for _, p := range particles {
		e.project(p.Direction, 1)
		for _, f := range e.footprint(p.Position) {
			floats.AddScaled(e.tod.AtIndex(f.offset), f.w, e.t)
		}
	}

	degenerate := e.fitter.Degenerate
	var total float64
	for i := 0; i < e.eext.Len(); i++ {
		volume.ReadSignal(e.dwi, volume.VoxelAt(e.dims, i), e.y)
		v := e.fitter.Energy(e.y, e.tod.AtIndex(i), e.fiso.AtIndex(i))
		e.eext.AtIndex(i)[0] = v
		total += v
	}
	e.total = total
	e.stats.Resets++

	if n := e.fitter.Degenerate - degenerate; n > 0 {
		slog.Warn("degenerate voxel fits during energy reset", "voxels", n)
	}
	slog.Debug("reset external energy", "particles", len(particles), "total", total)
	return nil
}

// Total returns the sum of the cached voxel energies
func (e *External) Total() float64 { return e.total }

// Pending returns the number of voxels touched by the staged proposal
func (e *External) Pending() int { return e.ledger.len() }

// Clone returns an independent copy in the idle state
func (e *External) Clone() Computer { return e.CloneExternal() }

// CloneExternal deep-copies the voxel state. The image, transform and fitter
// matrices are shared read-only; a staged proposal of e is not carried over.
func (e *External) CloneExternal() *External {
	c := &External{
		dwi:    e.dwi,
		xform:  e.xform,
		dims:   e.dims,
		cfg:    e.cfg,
		win:    e.win,
		fitter: e.fitter.Clone(),
		sh:     sh.NewEvaluator(e.cfg.Lmax),
		tod:    e.tod.Clone(),
		fiso:   e.fiso.Clone(),
		eext:   e.eext.Clone(),
		total:  e.total,
		ledger: newLedger(e.fitter.Coefficients(), e.fitter.Compartments()),
	}
	c.stats = e.stats
	c.allocScratch()
	return c
}

// Config returns the energy options
func (e *External) Config() config.Energy { return e.cfg }

// Fitter returns the voxel fitter
func (e *External) Fitter() *fit.Fitter { return e.fitter }

// TOD returns the track orientation distribution field. It must not be
// modified while the computer is in use.
func (e *External) TOD() *volume.Field { return e.tod }

// Fiso returns the fitted isotropic fractions. It must not be modified
// while the computer is in use.
func (e *External) Fiso() *volume.Field { return e.fiso }

// Eext returns the cached voxel energies. It must not be modified while the
// computer is in use.
func (e *External) Eext() *volume.Field { return e.eext }
