package energy

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
)

// TestPotential checks the per-particle cost bookkeeping
func TestPotential(t *testing.T) {
	if _, err := NewPotential(math.Inf(1)); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for infinite potential, got %v", err)
	}

	p, err := NewPotential(0.5)
	if err != nil {
		t.Fatalf("NewPotential failed: %v", err)
	}
	par := models.NewParticle(r3.Vec{}, r3.Vec{X: 1})

	if d := mustStage(t)(p.StageAdd(par.Position, par.Direction)); d != 0.5 {
		t.Errorf("add delta %g, want 0.5", d)
	}
	mustAccept(t, p)
	if d := mustStage(t)(p.StageShift(par, r3.Vec{X: 1}, par.Direction)); d != 0 {
		t.Errorf("shift delta %g, want 0", d)
	}
	mustAccept(t, p)
	if d := mustStage(t)(p.StageRemove(par)); d != -0.5 {
		t.Errorf("remove delta %g, want -0.5", d)
	}
	p.ClearChanges()

	if p.Count() != 1 || p.Total() != 0.5 {
		t.Errorf("count %d total %g, want 1 and 0.5", p.Count(), p.Total())
	}

	if err := p.ResetEnergy(make([]models.Particle, 4)); err != nil {
		t.Fatal(err)
	}
	if p.Total() != 2 {
		t.Errorf("reset total %g, want 2", p.Total())
	}

	c := p.Clone().(*Potential)
	mustStage(t)(c.StageAdd(par.Position, par.Direction))
	mustAccept(t, c)
	if p.Total() != 2 || c.Total() != 2.5 {
		t.Errorf("clone not independent: %g / %g", p.Total(), c.Total())
	}
}

// TestSum checks weighted deltas and totals of a composite
func TestSum(t *testing.T) {
	ext := newTestExternal(t, config.KernelHann)
	pot, err := NewPotential(0.1)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSum(Term{Computer: ext, Weight: 1}, Term{Computer: pot, Weight: 2})
	if err != nil {
		t.Fatalf("NewSum failed: %v", err)
	}

	before := s.Total()
	if want := ext.Total() + 2*pot.Total(); before != want {
		t.Errorf("total %g, want %g", before, want)
	}

	pos, dir := r3.Vec{X: 3, Y: 3, Z: 2}, r3.Vec{X: 1}
	d := mustStage(t)(s.StageAdd(pos, dir))
	dExt := ext.dE
	if math.Abs(d-(dExt+0.2)) > 1e-12 {
		t.Errorf("sum delta %g, want %g", d, dExt+0.2)
	}
	mustAccept(t, s)

	if math.Abs(s.Total()-(before+d)) > relTol*math.Abs(before) {
		t.Errorf("total %g after accept, want %g", s.Total(), before+d)
	}
	if pot.Count() != 1 {
		t.Errorf("potential count %d, want 1", pot.Count())
	}

	if _, err := s.StageAdd(pos, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := s.StageAdd(pos, dir); !errors.Is(err, ErrAlreadyStaged) {
		t.Errorf("expected ErrAlreadyStaged, got %v", err)
	}
	s.ClearChanges()
	if ext.Staged() || pot.Staged() {
		t.Error("ClearChanges did not reach every term")
	}

	if err := s.AcceptChanges(); !errors.Is(err, ErrNotStaged) {
		t.Errorf("expected ErrNotStaged, got %v", err)
	}
}

// TestSumRollback verifies that a failing term clears the terms staged before it
func TestSumRollback(t *testing.T) {
	ext := newTestExternal(t, config.KernelHann)
	pot, _ := NewPotential(0.1)
	s, err := NewSum(Term{Computer: ext, Weight: 1}, Term{Computer: pot, Weight: 1})
	if err != nil {
		t.Fatal(err)
	}

	// Leave the potential staged behind the composite's back
	if _, err := pot.StageAdd(r3.Vec{}, r3.Vec{X: 1}); err != nil {
		t.Fatal(err)
	}

	_, err = s.StageAdd(r3.Vec{X: 3, Y: 3, Z: 2}, r3.Vec{X: 1})
	if !errors.Is(err, ErrAlreadyStaged) {
		t.Fatalf("expected wrapped ErrAlreadyStaged, got %v", err)
	}
	if ext.Staged() {
		t.Error("external term left staged after rollback")
	}
	if s.Staged() {
		t.Error("composite left staged after rollback")
	}
	if s.Stats().Staged[KindAdd] != 0 {
		t.Errorf("failed proposal counted: %+v", s.Stats())
	}
}

// TestSumReset checks reset and clone of a composite
func TestSumReset(t *testing.T) {
	ext := newTestExternal(t, config.KernelTrilinear)
	pot, _ := NewPotential(0.3)
	s, _ := NewSum(Term{Computer: ext, Weight: 0.5}, Term{Computer: pot, Weight: 1})

	rng := rand.New(rand.NewSource(9))
	particles := randomParticles(rng, 10)
	for _, p := range particles {
		mustStage(t)(s.StageAdd(p.Position, p.Direction))
		mustAccept(t, s)
	}

	drift, err := Drift(s, particles)
	if err != nil {
		t.Fatalf("Drift failed: %v", err)
	}
	if drift > relTol {
		t.Errorf("composite drift %g", drift)
	}

	c := s.Clone().(*Sum)
	if err := c.ResetEnergy(nil); err != nil {
		t.Fatal(err)
	}
	if got := c.Terms()[1].Computer.Total(); got != 0 {
		t.Errorf("reset clone kept a potential of %g", got)
	}
	if pot.Count() != len(particles) {
		t.Errorf("resetting the clone changed the original")
	}
}

// TestNewSumInvalid rejects empty and badly weighted composites
func TestNewSumInvalid(t *testing.T) {
	pot, _ := NewPotential(1)
	if _, err := NewSum(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("empty sum: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewSum(Term{Computer: pot, Weight: -1}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("negative weight: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewSum(Term{Weight: 1}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("nil term: expected ErrInvalidConfig, got %v", err)
	}
}

// TestKindString covers the proposal names
func TestKindString(t *testing.T) {
	if KindAdd.String() != "add" || KindShift.String() != "shift" || KindRemove.String() != "remove" {
		t.Error("unexpected kind names")
	}
	var s Stats
	s.Staged[KindAdd], s.Accepted[KindAdd] = 4, 1
	if r := s.AcceptanceRate(KindAdd); r != 0.25 {
		t.Errorf("acceptance rate %g, want 0.25", r)
	}
	if r := s.AcceptanceRate(KindRemove); r != 0 {
		t.Errorf("acceptance rate without proposals %g, want 0", r)
	}
}

// TestStatsLogValue checks the structured log form of the counters
func TestStatsLogValue(t *testing.T) {
	var s Stats
	s.Staged[KindAdd] = 3
	s.Accepted[KindAdd] = 2
	s.Resets = 1

	v := s.LogValue()
	if v.Kind() != slog.KindGroup {
		t.Fatalf("expected a group value, got %v", v.Kind())
	}
	got := map[string]int64{}
	for _, a := range v.Group() {
		got[a.Key] = a.Value.Int64()
	}
	if got["add_staged"] != 3 || got["add_accepted"] != 2 || got["resets"] != 1 || got["remove_staged"] != 0 {
		t.Errorf("unexpected attributes %v", got)
	}
	if len(got) != 7 {
		t.Errorf("expected 7 attributes, got %d", len(got))
	}
}

// TestSumAcceptUnstagedTerm checks that a term cleared behind the
// composite's back blocks the whole commit
func TestSumAcceptUnstagedTerm(t *testing.T) {
	a, _ := NewPotential(1)
	b, _ := NewPotential(2)
	s, err := NewSum(Term{Computer: a, Weight: 1}, Term{Computer: b, Weight: 1})
	if err != nil {
		t.Fatal(err)
	}

	mustStage(t)(s.StageAdd(r3.Vec{}, r3.Vec{X: 1}))
	b.ClearChanges()

	if err := s.AcceptChanges(); !errors.Is(err, ErrNotStaged) {
		t.Fatalf("expected ErrNotStaged, got %v", err)
	}
	if a.Total() != 0 || a.Count() != 0 {
		t.Errorf("term committed despite failed accept: total %g count %d", a.Total(), a.Count())
	}
	if !s.Staged() || !a.Staged() {
		t.Error("failed accept should leave the proposal staged")
	}

	s.ClearChanges()
	if s.Staged() || a.Staged() || s.Total() != 0 {
		t.Error("ClearChanges did not discard the proposal")
	}
	if s.Stats().Accepted[KindAdd] != 0 || s.Stats().Cleared[KindAdd] != 1 {
		t.Errorf("unexpected stats %+v", s.Stats())
	}
}
