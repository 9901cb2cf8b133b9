package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/icgen/config"
	"github.com/pthm-cable/icgen/density"
	"github.com/pthm-cable/icgen/kernel"
	"github.com/pthm-cable/icgen/relax"
	"github.com/pthm-cable/icgen/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	fieldName := flag.String("field", "sine_wave", "Density field: "+strings.Join(density.Names(), ", "))
	kernelName := flag.String("kernel", "", "Override kernel.name: "+strings.Join(kernel.Names(), ", ")+" (empty = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and particles.csv")
	restart := flag.String("restart", "", "Checkpoint file to resume from")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = use config)")
	maxIter := flag.Int("max-iter", 0, "Override run.iter_max (0 = use config)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = disabled)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *maxIter > 0 {
		cfg.Run.IterMax = *maxIter
	}
	if *kernelName != "" {
		cfg.Kernel.Name = *kernelName
	}

	field, err := density.Lookup(*fieldName, cfg.Domain.Extent)
	if err != nil {
		slog.Error("unknown density field", "error", err)
		os.Exit(1)
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output", "error", err)
		os.Exit(1)
	}
	defer out.Close()

	perf := telemetry.NewPerfCollector(cfg.Run.LogEvery)
	opts := relax.Options{
		Logger: logger,
		Perf:   perf,
		Sinks:  []telemetry.Sink{telemetry.NewBookmarkDetector(20, cfg.Run.DeltaMin, logger)},
	}
	if out != nil {
		opts.Sinks = append(opts.Sinks, out)
	}
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Sinks = append(opts.Sinks, telemetry.NewMetrics(reg))
		go serveMetrics(*metricsAddr, reg)
	}

	e, err := relax.New(cfg, field, opts)
	if err != nil {
		slog.Error("setup failed", "error", err)
		os.Exit(1)
	}
	if *restart != "" {
		if err := e.Restart(*restart, field); err != nil {
			slog.Error("restart failed", "path", *restart, "error", err)
			os.Exit(1)
		}
	}
	if err := out.WriteConfig(e.Config()); err != nil {
		slog.Error("failed to write config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := e.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("relaxation failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		// Interrupted: keep what we have
		if e.Config().Checkpoint.Frequency > 0 {
			if _, cerr := e.SaveCheckpoint(); cerr != nil {
				slog.Error("failed to write checkpoint", "error", cerr)
			}
		}
	}

	if err := out.WritePerf(perf.Stats(), res.Iterations); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	records := telemetry.ParticleRecords(res.NDim, res.Pos, res.Mass, res.H, res.Density)
	if err := out.WriteParticles(records); err != nil {
		slog.Error("failed to write particles", "error", err)
		os.Exit(1)
	}

	slog.Info("done",
		"status", res.Status.String(),
		"converged", res.Converged(),
		"iterations", res.Iterations,
		"output_dir", out.Dir(),
	)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server stopped", "error", err)
	}
}
