// Package energy implements the energy computers driven by a global
// tractography sampler.
//
// Every computer follows the same staged protocol: a proposal is staged with
// StageAdd, StageShift or StageRemove, which returns the energy difference the
// proposal would cause, and is then either committed with AcceptChanges or
// discarded with ClearChanges. Only one proposal may be outstanding at a time.
//
// Computers are not safe for concurrent use. Parallel chains each work on
// their own Clone.
package energy

import (
	"errors"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
)

var (
	// ErrAlreadyStaged is returned when a proposal is staged while another
	// one is still outstanding
	ErrAlreadyStaged = errors.New("energy: a proposal is already staged")

	// ErrNotStaged is returned when accepting with no staged proposal
	ErrNotStaged = errors.New("energy: no proposal is staged")
)

// Computer is the capability set shared by all energy terms
type Computer interface {
	// StageAdd stages the birth of a particle and returns the energy difference
	StageAdd(pos, dir r3.Vec) (float64, error)

	// StageShift stages moving p to (pos, dir) and returns the energy difference
	StageShift(p models.Particle, pos, dir r3.Vec) (float64, error)

	// StageRemove stages the death of p and returns the energy difference
	StageRemove(p models.Particle) (float64, error)

	// AcceptChanges commits the staged proposal
	AcceptChanges() error

	// ClearChanges discards the staged proposal. It is a no-op when idle.
	ClearChanges()

	// ResetEnergy recomputes the state from scratch for the given particles
	ResetEnergy(particles []models.Particle) error

	// Total returns the current total energy
	Total() float64

	// Clone returns an independent copy in the idle state
	Clone() Computer
}

// Kind identifies the type of a proposal
type Kind int

const (
	KindAdd Kind = iota
	KindShift
	KindRemove
	numKinds
)

// String returns the name of the proposal kind
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindShift:
		return "shift"
	case KindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Stats counts proposals per kind. Each computer keeps its own copy.
type Stats struct {
	Staged   [numKinds]int
	Accepted [numKinds]int
	Cleared  [numKinds]int
	Resets   int
}

// AcceptanceRate returns the fraction of staged proposals of kind k that were accepted
func (s Stats) AcceptanceRate(k Kind) float64 {
	if s.Staged[k] == 0 {
		return 0
	}
	return float64(s.Accepted[k]) / float64(s.Staged[k])
}

// LogValue implements slog.LogValuer for structured logging.
func (s Stats) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 2*int(numKinds)+1)
	for k := KindAdd; k < numKinds; k++ {
		attrs = append(attrs,
			slog.Int(k.String()+"_staged", s.Staged[k]),
			slog.Int(k.String()+"_accepted", s.Accepted[k]))
	}
	attrs = append(attrs, slog.Int("resets", s.Resets))
	return slog.GroupValue(attrs...)
}

// protocol tracks the idle/staged state machine shared by all computers
type protocol struct {
	staged bool
	kind   Kind
	stats  Stats
}

func (p *protocol) begin(k Kind) error {
	if p.staged {
		return ErrAlreadyStaged
	}
	p.staged = true
	p.kind = k
	p.stats.Staged[k]++
	return nil
}

// abort undoes begin for a proposal that could not be staged
func (p *protocol) abort() {
	p.staged = false
	p.stats.Staged[p.kind]--
}

func (p *protocol) accept() error {
	if !p.staged {
		return ErrNotStaged
	}
	p.staged = false
	p.stats.Accepted[p.kind]++
	return nil
}

func (p *protocol) clear() bool {
	if !p.staged {
		return false
	}
	p.staged = false
	p.stats.Cleared[p.kind]++
	return true
}

// Staged reports whether a proposal is outstanding
func (p *protocol) Staged() bool { return p.staged }

// Stats returns the proposal counters
func (p *protocol) Stats() Stats { return p.stats }
