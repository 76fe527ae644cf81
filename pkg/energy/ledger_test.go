package energy

import (
	"testing"

	"gtenergy/internal/models"
)

// TestLedgerReuse stages proposals of growing and shrinking size on one
// ledger and checks every entry is initialised and coalesced
func TestLedgerReuse(t *testing.T) {
	l := newLedger(6, 1)
	coef := []float64{1, 2, 3, 4, 5, 6}

	for round, n := range []int{8, 3, 11, 2, 17} {
		l.reset()
		for i := 0; i < n; i++ {
			l.add2vox(models.Voxel{i, 0, 0}, i, 1, coef)
		}
		// Every voxel a second time with half the weight
		for i := 0; i < n; i++ {
			l.add2vox(models.Voxel{i, 0, 0}, i, 0.5, coef)
		}

		if l.len() != n {
			t.Fatalf("round %d: expected %d entries, got %d", round, n, l.len())
		}
		for k, c := range l.entries {
			if len(c.dTOD) != 6 || len(c.dFiso) != 1 || len(c.fiso) != 1 {
				t.Fatalf("round %d: entry %d has buffers %d/%d/%d", round, k, len(c.dTOD), len(c.dFiso), len(c.fiso))
			}
			if c.offset != k || c.vox != (models.Voxel{k, 0, 0}) {
				t.Errorf("round %d: entry %d is voxel %v offset %d", round, k, c.vox, c.offset)
			}
			for j, v := range c.dTOD {
				if want := 1.5 * coef[j]; v != want {
					t.Errorf("round %d: entry %d coefficient %d = %g, want %g", round, k, j, v, want)
				}
			}
		}
	}
}

// TestLedgerNoIsotropic checks entries without isotropic compartments
func TestLedgerNoIsotropic(t *testing.T) {
	l := newLedger(1, 0)
	for i := 0; i < 5; i++ {
		l.add2vox(models.Voxel{0, i, 0}, i, 2, []float64{1})
	}
	if l.len() != 5 {
		t.Fatalf("expected 5 entries, got %d", l.len())
	}
	for k, c := range l.entries {
		if c.dTOD[0] != 2 || len(c.dFiso) != 0 {
			t.Errorf("entry %d: dTOD %v dFiso %v", k, c.dTOD, c.dFiso)
		}
	}
}
