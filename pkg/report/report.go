// Package report turns the voxel state of an external energy computer into
// CSV tables and summary statistics.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"

	"gtenergy/internal/models"
	"gtenergy/pkg/energy"
	"gtenergy/pkg/volume"
)

// Summary describes the distribution of voxel energies
type Summary struct {
	Voxels   int     `csv:"voxels"`
	Occupied int     `csv:"occupied"`
	Total    float64 `csv:"total"`
	Mean     float64 `csv:"mean"`
	StdDev   float64 `csv:"stddev"`
	Median   float64 `csv:"median"`
	P90      float64 `csv:"p90"`
	Max      float64 `csv:"max"`
}

// ChainRecord summarises one evaluation chain
type ChainRecord struct {
	Run         string  `csv:"run"`
	Chain       int     `csv:"chain"`
	Particles   int     `csv:"particles"`
	Empty       float64 `csv:"empty_energy"`
	Incremental float64 `csv:"incremental_energy"`
	Full        float64 `csv:"full_energy"`
	Drift       float64 `csv:"relative_drift"`
	Accepted    int     `csv:"accepted"`
	Seconds     float64 `csv:"seconds"`
}

// Records lists every voxel of the computer's state
func Records(ext *energy.External) []models.VoxelRecord {
	eext := ext.Eext()
	tod := ext.TOD()
	fiso := ext.Fiso().Sum()

	records := make([]models.VoxelRecord, eext.Len())
	for i := range records {
		vox := volume.VoxelAt(eext.Dims(), i)
		records[i] = models.VoxelRecord{
			X:       vox[0],
			Y:       vox[1],
			Z:       vox[2],
			Eext:    eext.AtIndex(i)[0],
			Density: tod.AtIndex(i)[0],
			Fiso:    fiso[i],
		}
	}
	return records
}

// Summarize computes statistics over the voxel energies
func Summarize(ext *energy.External) Summary {
	values := ext.Eext().Component(0)
	density := ext.TOD().Component(0)

	s := Summary{Voxels: len(values), Total: ext.Total()}
	if len(values) == 0 {
		return s
	}
	for _, d := range density {
		if d != 0 {
			s.Occupied++
		}
	}

	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}

// WriteVoxels encodes voxel records as CSV
func WriteVoxels(w io.Writer, records []models.VoxelRecord) error {
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("writing voxel report: %w", err)
	}
	return nil
}

// WriteChains encodes chain records as CSV
func WriteChains(w io.Writer, records []ChainRecord) error {
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("writing chain report: %w", err)
	}
	return nil
}

// SaveVoxels writes the voxel report of ext to path
func SaveVoxels(path string, ext *energy.External) error {
	return writeFile(path, "voxel report", func(w io.Writer) error {
		return WriteVoxels(w, Records(ext))
	})
}

// SaveChains writes chain records to path
func SaveChains(path string, records []ChainRecord) error {
	return writeFile(path, "chain report", func(w io.Writer) error {
		return WriteChains(w, records)
	})
}

// writeFile creates path and runs write on it. A failure to close the file
// is reported when the write itself succeeded.
func writeFile(path, what string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", what, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", what, cerr)
		}
	}()
	return write(f)
}

// LoadParticles reads a particle list with columns x, y, z, dx, dy, dz
func LoadParticles(path string) ([]models.Particle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening particle list: %w", err)
	}
	defer f.Close()
	return ReadParticles(f)
}

// ReadParticles decodes a particle list
func ReadParticles(r io.Reader) ([]models.Particle, error) {
	var records []models.ParticleRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parsing particle list: %w", err)
	}
	ps := make([]models.Particle, len(records))
	for i, rec := range records {
		ps[i] = rec.Particle()
	}
	return ps, nil
}

// SaveParticles writes a particle list to path
func SaveParticles(path string, ps []models.Particle) error {
	records := make([]models.ParticleRecord, len(ps))
	for i, p := range ps {
		records[i] = models.RecordOf(p)
	}
	return writeFile(path, "particle list", func(w io.Writer) error {
		if err := gocsv.Marshal(&records, w); err != nil {
			return fmt.Errorf("writing particle list: %w", err)
		}
		return nil
	})
}
