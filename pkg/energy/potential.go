package energy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
)

// Potential is an internal energy charging a fixed cost per particle. It
// favours sparse configurations and balances the external energy, which
// otherwise keeps adding particles as long as they reduce the residual.
type Potential struct {
	protocol

	ppot    float64
	count   int
	total   float64
	pending int
	dE      float64
}

// NewPotential creates a per-particle potential with cost ppot
func NewPotential(ppot float64) (*Potential, error) {
	if math.IsNaN(ppot) || math.IsInf(ppot, 0) {
		return nil, fmt.Errorf("%w: particle potential must be finite, got %g", config.ErrInvalidConfig, ppot)
	}
	return &Potential{ppot: ppot}, nil
}

func (p *Potential) stage(k Kind, n int) (float64, error) {
	if err := p.begin(k); err != nil {
		return 0, err
	}
	p.pending = n
	p.dE = float64(n) * p.ppot
	return p.dE, nil
}

// StageAdd stages one more particle
func (p *Potential) StageAdd(pos, dir r3.Vec) (float64, error) {
	return p.stage(KindAdd, 1)
}

// StageShift stages a move, which leaves the particle count unchanged
func (p *Potential) StageShift(par models.Particle, pos, dir r3.Vec) (float64, error) {
	return p.stage(KindShift, 0)
}

// StageRemove stages one particle less
func (p *Potential) StageRemove(par models.Particle) (float64, error) {
	return p.stage(KindRemove, -1)
}

// AcceptChanges commits the staged count change
func (p *Potential) AcceptChanges() error {
	if err := p.accept(); err != nil {
		return err
	}
	p.count += p.pending
	p.total += p.dE
	p.pending, p.dE = 0, 0
	return nil
}

// ClearChanges discards the staged count change
func (p *Potential) ClearChanges() {
	p.clear()
	p.pending, p.dE = 0, 0
}

// ResetEnergy recomputes the total from the particle count
func (p *Potential) ResetEnergy(particles []models.Particle) error {
	if p.staged {
		return ErrAlreadyStaged
	}
	p.count = len(particles)
	p.total = float64(p.count) * p.ppot
	p.stats.Resets++
	return nil
}

// Total returns ppot times the particle count
func (p *Potential) Total() float64 { return p.total }

// Count returns the number of particles accounted for
func (p *Potential) Count() int { return p.count }

// Clone returns an independent copy in the idle state
func (p *Potential) Clone() Computer {
	c := &Potential{ppot: p.ppot, count: p.count, total: p.total}
	c.stats = p.stats
	return c
}
