package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gtenergy/internal/models"
	"gtenergy/pkg/config"
	"gtenergy/pkg/energy"
	"gtenergy/pkg/gradient"
	"gtenergy/pkg/phantom"
	"gtenergy/pkg/report"
	"gtenergy/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	gradPath := flag.String("gradients", "", "Gradient table CSV with columns x,y,z,b (generated when empty)")
	particlesPath := flag.String("particles", "", "Particle list CSV to evaluate (the ground truth when empty)")
	truthPath := flag.String("truth", "", "Ground-truth particle list CSV for the phantom (crossing bundles when empty)")
	dims := flag.String("dims", "", "Phantom grid size as nx,ny,nz")
	voxel := flag.Float64("voxel", 0, "Phantom voxel size in mm")
	noise := flag.Float64("noise", 0, "Phantom Rician noise level")
	chains := flag.Int("chains", 0, "Number of parallel evaluation chains")
	outputDir := flag.String("output", "", "Output directory for reports and slices")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	seed := flag.Uint64("seed", 0, "Phantom noise seed")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *writeConfig)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	// Command line flags override the configuration file
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dims":
			d, err := parseDims(*dims)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Phantom.Dims = d
		case "voxel":
			cfg.Phantom.VoxelSize = *voxel
		case "noise":
			cfg.Phantom.Noise = *noise
		case "chains":
			cfg.Processing.Chains = *chains
		case "output":
			cfg.Output.Dir = *outputDir
		case "seed":
			cfg.Phantom.Seed = *seed
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})
	if flagErr != nil {
		log.Fatalf("Invalid arguments: %v", flagErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	runID := uuid.New().String()

	fmt.Println("================================")
	fmt.Println("INCREMENTAL EXTERNAL ENERGY FOR GLOBAL TRACTOGRAPHY")
	fmt.Printf("Run %s\n", runID)
	fmt.Println("================================")

	grad, err := loadGradients(*gradPath, cfg)
	if err != nil {
		log.Fatalf("Failed to prepare gradient table: %v", err)
	}
	fmt.Printf("Gradient table: %d volumes on shells %v\n", len(grad), grad.Shells(cfg.Response.ShellTolerance))

	truth := phantom.Crossing(cfg.Phantom, cfg.Phantom.VoxelSize/2)
	if *truthPath != "" {
		if truth, err = report.LoadParticles(*truthPath); err != nil {
			log.Fatalf("Failed to load ground truth: %v", err)
		}
	}

	ph, err := phantom.Generate(truth, grad, cfg)
	if err != nil {
		log.Fatalf("Failed to generate phantom: %v", err)
	}
	fmt.Printf("Phantom: %v voxels of %.2f mm, %d ground-truth particles, noise %.3g\n",
		cfg.Phantom.Dims, cfg.Phantom.VoxelSize, len(truth), cfg.Phantom.Noise)

	particles := truth
	if *particlesPath != "" {
		if particles, err = report.LoadParticles(*particlesPath); err != nil {
			log.Fatalf("Failed to load particles: %v", err)
		}
	}

	ext, err := energy.NewExternal(ph.Params(cfg))
	if err != nil {
		log.Fatalf("Failed to create external energy: %v", err)
	}

	fmt.Printf("Evaluating %d particles on %d chains...\n", len(particles), cfg.Processing.Chains)
	startTime := time.Now()
	results, best := runChains(ext, particles, cfg)
	processingTime := time.Since(startTime)
	for i := range results {
		results[i].Run = runID
	}

	fmt.Printf("\nEvaluation completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("%-6s %12s %16s %16s %12s\n", "chain", "accepted", "incremental", "full", "drift")
	for _, r := range results {
		fmt.Printf("%-6d %12d %16.6g %16.6g %12.3g\n", r.Chain, r.Accepted, r.Incremental, r.Full, r.Drift)
		if r.Drift > cfg.Processing.DriftTolerance {
			log.Printf("Warning: chain %d drifted by %.3g (tolerance %.3g)", r.Chain, r.Drift, cfg.Processing.DriftTolerance)
		}
	}

	summary := report.Summarize(best)
	fmt.Printf("\nVoxel energy: total %.6g, mean %.4g, std %.4g, median %.4g, p90 %.4g, max %.4g\n",
		summary.Total, summary.Mean, summary.StdDev, summary.Median, summary.P90, summary.Max)
	fmt.Printf("Occupied voxels: %d of %d\n", summary.Occupied, summary.Voxels)

	match := report.CompareParticles(particles, truth, cfg.Phantom.VoxelSize/2)
	fmt.Printf("Against ground truth: mean distance %.3g mm, mean angle %.3g deg, precision %.3f, recall %.3f\n",
		match.MeanDistance, match.MeanAngle, match.Precision, match.Recall)

	if err := writeOutputs(cfg, results, best, particles); err != nil {
		log.Fatalf("Failed to write outputs: %v", err)
	}
	fmt.Printf("\nReports saved to: %s\n", cfg.Output.Dir)
}

func parseDims(s string) ([3]int, error) {
	var d [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return d, fmt.Errorf("dims must be nx,ny,nz, got %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return d, fmt.Errorf("parsing dims %q: %w", s, err)
		}
		d[i] = n
	}
	return d, nil
}

func loadGradients(path string, cfg *config.Config) (gradient.Table, error) {
	if path != "" {
		return gradient.Load(path)
	}
	var shells []float64
	for _, b := range cfg.Response.Shells {
		if b > cfg.Response.ShellTolerance {
			shells = append(shells, b)
		}
	}
	return gradient.Scheme(cfg.Phantom.B0Volumes, shells, cfg.Phantom.Directions), nil
}

// runChains evaluates the particles on independent clones, one goroutine per
// chain. Chain c visits the particles in a rotated order and rejects every
// third removal proposal, so the chains exercise different ledger histories
// that must all agree with a full recomputation. The external energy of the
// first chain is returned for reporting.
func runChains(proto *energy.External, particles []models.Particle, cfg *config.Config) ([]report.ChainRecord, *energy.External) {
	n := cfg.Processing.Chains
	results := make([]report.ChainRecord, n)
	exts := make([]*energy.External, n)

	var wg sync.WaitGroup
	for c := 0; c < n; c++ {
		exts[c] = proto.CloneExternal()
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			start := time.Now()
			r, err := runChain(c, n, exts[c], particles, cfg)
			if err != nil {
				log.Printf("Warning: chain %d failed: %v", c, err)
			}
			r.Seconds = time.Since(start).Seconds()
			results[c] = r
		}(c)
	}
	wg.Wait()

	return results, exts[0]
}

func runChain(c, n int, ext *energy.External, particles []models.Particle, cfg *config.Config) (report.ChainRecord, error) {
	r := report.ChainRecord{Chain: c, Particles: len(particles)}

	pot, err := energy.NewPotential(cfg.Potential.PPot)
	if err != nil {
		return r, err
	}
	sum, err := energy.NewSum(
		energy.Term{Computer: ext, Weight: 1},
		energy.Term{Computer: pot, Weight: cfg.Potential.Weight},
	)
	if err != nil {
		return r, err
	}
	r.Empty = sum.Total()

	offset := 0
	if len(particles) > 0 {
		offset = c * len(particles) / n
	}
	order := make([]models.Particle, len(particles))
	for i := range particles {
		order[i] = particles[(i+offset)%len(particles)]
	}

	for i, p := range order {
		if _, err := sum.StageAdd(p.Position, p.Direction); err != nil {
			return r, err
		}
		if err := sum.AcceptChanges(); err != nil {
			return r, err
		}

		// Propose removing an earlier particle and reject it
		if i%3 == 2 {
			if _, err := sum.StageRemove(order[i/2]); err != nil {
				return r, err
			}
			sum.ClearChanges()
		}
	}
	r.Incremental = sum.Total()

	stats := sum.Stats()
	for _, a := range stats.Accepted {
		r.Accepted += a
	}

	full := sum.Clone()
	if err := full.ResetEnergy(order); err != nil {
		return r, err
	}
	r.Full = full.Total()
	r.Drift = energy.RelativeDifference(r.Incremental, r.Full)
	slog.Debug("chain finished", "chain", c, "incremental", r.Incremental, "full", r.Full,
		"drift", r.Drift, "stats", stats)
	return r, nil
}

func writeOutputs(cfg *config.Config, results []report.ChainRecord, ext *energy.External, particles []models.Particle) error {
	dir := cfg.Output.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg, filepath.Join(dir, "config.yaml")); err != nil {
		return err
	}
	if err := report.SaveChains(filepath.Join(dir, "chains.csv"), results); err != nil {
		return err
	}
	if err := report.SaveVoxels(filepath.Join(dir, "voxels.csv"), ext); err != nil {
		return err
	}
	if err := report.SaveParticles(filepath.Join(dir, "particles.csv"), particles); err != nil {
		return err
	}

	if !cfg.Output.SaveSlices {
		return nil
	}

	if err := visualization.SaveHistogram(ext.Eext().Component(0), 40, "Voxel energy", "eext",
		filepath.Join(dir, "eext_histogram.png")); err != nil {
		log.Printf("Warning: Failed to save energy histogram: %v", err)
	}

	// Extract and save slices of the energy, density and isotropic maps
	maps := map[string][]float64{
		"eext":    ext.Eext().Component(0),
		"density": ext.TOD().Component(0),
		"fiso":    ext.Fiso().Sum(),
	}
	for name, data := range maps {
		viewer, err := visualization.NewViewer(data, ext.Eext().Dims())
		if err != nil {
			return err
		}
		slicesPath := filepath.Join(dir, "slices", name)
		fmt.Printf("Saving %s slices to: %s\n", name, slicesPath)
		if err := viewer.SaveSliceSequence("z", name, slicesPath); err != nil {
			log.Printf("Warning: Failed to save %s slices: %v", name, err)
		}
	}
	return nil
}
