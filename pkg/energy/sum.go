package energy

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
)

// Term is one weighted component of a Sum
type Term struct {
	Computer Computer
	Weight   float64
}

// Sum combines several energy computers into a weighted total. A proposal is
// staged on every term; if any term fails, the terms already staged are
// cleared so the composite stays consistent.
type Sum struct {
	protocol

	terms []Term
	dE    float64
}

// NewSum creates a composite of the given terms
func NewSum(terms ...Term) (*Sum, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: energy sum needs at least one term", config.ErrInvalidConfig)
	}
	for i, t := range terms {
		if t.Computer == nil {
			return nil, fmt.Errorf("%w: energy term %d is nil", config.ErrInvalidConfig, i)
		}
		if !(t.Weight >= 0) || math.IsInf(t.Weight, 0) {
			return nil, fmt.Errorf("%w: energy term %d has invalid weight %g", config.ErrInvalidConfig, i, t.Weight)
		}
	}
	return &Sum{terms: append([]Term(nil), terms...)}, nil
}

func (s *Sum) stage(k Kind, fn func(c Computer) (float64, error)) (float64, error) {
	if err := s.begin(k); err != nil {
		return 0, err
	}
	s.dE = 0
	for i, t := range s.terms {
		d, err := fn(t.Computer)
		if err != nil {
			for _, prev := range s.terms[:i] {
				prev.Computer.ClearChanges()
			}
			s.abort()
			return 0, fmt.Errorf("staging energy term %d: %w", i, err)
		}
		s.dE += t.Weight * d
	}
	return s.dE, nil
}

// StageAdd stages a new particle on every term
func (s *Sum) StageAdd(pos, dir r3.Vec) (float64, error) {
	return s.stage(KindAdd, func(c Computer) (float64, error) { return c.StageAdd(pos, dir) })
}

// StageShift stages a move on every term
func (s *Sum) StageShift(p models.Particle, pos, dir r3.Vec) (float64, error) {
	return s.stage(KindShift, func(c Computer) (float64, error) { return c.StageShift(p, pos, dir) })
}

// StageRemove stages a removal on every term
func (s *Sum) StageRemove(p models.Particle) (float64, error) {
	return s.stage(KindRemove, func(c Computer) (float64, error) { return c.StageRemove(p) })
}

// AcceptChanges commits the staged proposal on every term. If a term has
// no staged proposal, for instance because it was cleared directly, nothing
// is committed and the composite stays staged until ClearChanges.
func (s *Sum) AcceptChanges() error {
	if !s.staged {
		return ErrNotStaged
	}
	for i, t := range s.terms {
		if st, ok := t.Computer.(interface{ Staged() bool }); ok && !st.Staged() {
			return fmt.Errorf("accepting energy term %d: %w", i, ErrNotStaged)
		}
	}
	if err := s.accept(); err != nil {
		return err
	}
	var errs []error
	for i, t := range s.terms {
		if err := t.Computer.AcceptChanges(); err != nil {
			errs = append(errs, fmt.Errorf("accepting energy term %d: %w", i, err))
		}
	}
	s.dE = 0
	return errors.Join(errs...)
}

// ClearChanges discards the staged proposal on every term
func (s *Sum) ClearChanges() {
	s.clear()
	for _, t := range s.terms {
		t.Computer.ClearChanges()
	}
	s.dE = 0
}

// ResetEnergy recomputes every term from scratch
func (s *Sum) ResetEnergy(particles []models.Particle) error {
	if s.staged {
		return ErrAlreadyStaged
	}
	for i, t := range s.terms {
		if err := t.Computer.ResetEnergy(particles); err != nil {
			return fmt.Errorf("resetting energy term %d: %w", i, err)
		}
	}
	s.stats.Resets++
	return nil
}

// Total returns the weighted sum of the term totals
func (s *Sum) Total() float64 {
	var total float64
	for _, t := range s.terms {
		total += t.Weight * t.Computer.Total()
	}
	return total
}

// Terms returns the components of the sum
func (s *Sum) Terms() []Term { return s.terms }

// Clone clones every term
func (s *Sum) Clone() Computer {
	terms := make([]Term, len(s.terms))
	for i, t := range s.terms {
		terms[i] = Term{Computer: t.Computer.Clone(), Weight: t.Weight}
	}
	c := &Sum{terms: terms}
	c.stats = s.stats
	return c
}
