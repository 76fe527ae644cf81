package energy

import (
	"gonum.org/v1/gonum/floats"

	"gtenergy/internal/models"
)

// change is one ledger entry: the pending deltas of a single voxel
type change struct {
	vox    models.Voxel
	offset int

	dTOD  []float64
	dFiso []float64
	dEext float64

	// fiso and eext hold the refitted values the deltas were derived from
	fiso []float64
	eext float64
}

// ledger journals the per-voxel deltas of one staged proposal. Entries for
// the same voxel are coalesced by summing their TOD deltas. Entry buffers are
// kept across proposals to avoid reallocating them.
type ledger struct {
	ncoef   int
	nf      int
	entries []change
	index   map[int]int
}

func newLedger(ncoef, nf int) *ledger {
	return &ledger{
		ncoef: ncoef,
		nf:    nf,
		index: make(map[int]int),
	}
}

// add2vox adds w·t to the TOD delta of vox
func (l *ledger) add2vox(vox models.Voxel, offset int, w float64, t []float64) {
	k, ok := l.index[offset]
	if !ok {
		k = len(l.entries)
		if k < cap(l.entries) {
			l.entries = l.entries[:k+1]
		} else {
			l.entries = append(l.entries, change{})
		}

		// Slots past the last append may never have been initialised
		c := &l.entries[k]
		if c.dTOD == nil {
			c.dTOD = make([]float64, l.ncoef)
			c.dFiso = make([]float64, l.nf)
			c.fiso = make([]float64, l.nf)
		} else {
			clear(c.dTOD)
		}
		c.vox = vox
		c.offset = offset
		c.dEext = 0
		c.eext = 0
		l.index[offset] = k
	}
	floats.AddScaled(l.entries[k].dTOD, w, t)
}

// len returns the number of distinct voxels touched
func (l *ledger) len() int { return len(l.entries) }

// reset discards every entry
func (l *ledger) reset() {
	l.entries = l.entries[:0]
	clear(l.index)
}
