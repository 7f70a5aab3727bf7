// Package cli implements the geodecomp command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notargets/GeoDecomp/config"
	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/partitions"
	"github.com/notargets/GeoDecomp/simulation"
	"github.com/notargets/GeoDecomp/steering"
	"github.com/notargets/GeoDecomp/stepper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
}

func BuildCLI() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "geodecomp",
		Short: "Domain decomposition and ghost zone exchange for stencil codes",
		Long: `geodecomp partitions a regular or unstructured grid over ranks and
runs a nanostep synchronized stencil computation across them, exchanging
ghost zones over an in-process, NATS or gRPC transport.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(buildPartitionCommand(opts))
	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildVersionCommand())

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func buildPartitionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "partition",
		Short: "Print the regions, neighbours and balance of the configured decomposition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return printPartition(cmd.OutOrStdout(), cfg)
		},
	}
}

func printPartition(w io.Writer, cfg *config.Config) error {
	p, err := buildPartition(cfg)
	if err != nil {
		return err
	}
	boxes, expanded := []geometry.CoordBox(nil), []geometry.CoordBox(nil)
	for rank := 0; rank < p.NumRanks(); rank++ {
		pm := partitions.NewPartitionManager(topology(cfg, p))
		if err := pm.ResetRegions(adjacency(p), p.Domain(), p, rank, cfg.Run.GhostWidth); err != nil {
			return err
		}
		if boxes == nil {
			boxes, expanded = pm.BoundingBoxes()
		}
		if err := pm.ResetGhostZones(boxes, expanded); err != nil {
			return err
		}
		inner, err := pm.InnerSet(cfg.Run.GhostWidth)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "rank %d: cells=%d box=%v inner=%d ghost=%d neighbors=%v\n",
			rank, pm.OwnRegion().Size(), pm.Box(rank), inner.Size(), pm.OuterGhostZone().Size(), pm.Neighbors())
	}
	fmt.Fprintln(w, partitions.Statistics(p))
	return nil
}

func buildRunCommand(opts *rootOptions) *cobra.Command {
	var steps uint64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a heat diffusion simulation over the configured decomposition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if steps > 0 {
				cfg.Run.Steps = steps
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulation(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
		},
	}
	cmd.Flags().Uint64Var(&steps, "steps", 0, "override run.steps")
	return cmd
}

func runSimulation(ctx context.Context, out, logOut io.Writer, cfg *config.Config) error {
	logger, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	var collector metrics.Collector = metrics.NewNop()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
		srv := &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	p, err := buildPartition(cfg)
	if err != nil {
		return err
	}
	tr, simOpts, closeTransport, err := patchTransport(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer closeTransport()

	dims := len(cfg.Domain.Dimensions)
	update := simulation.HeatDiffusion(cfg.Run.Alpha, dims)
	if mp, ok := p.(*partitions.MeshPartition); ok {
		dims = 1
		update = simulation.GraphDiffusion(cfg.Run.Alpha, mp.Adjacency())
	}
	domain := p.Domain()
	center := domain.Origin
	for axis := 0; axis < dims; axis++ {
		center = center.With(axis, domain.Origin.Get(axis)+domain.Dimensions.Get(axis)/2)
	}
	setup := simulation.Setup[float64]{
		Partition:  p,
		Topology:   topology(cfg, p),
		Adjacency:  adjacency(p),
		GhostWidth: cfg.Run.GhostWidth,
		Traits: stepper.Traits{
			NanoSteps:     cfg.Run.NanoStepsPerCycle,
			StencilRadius: cfg.Run.StencilRadius,
		},
		MaxSteps: cfg.Run.Steps,
		Initializer: simulation.HotSpot{
			Center: center,
			Radius: max(1, float64(domain.Dimensions.Get(0))/8),
			Value:  1,
			Start:  cfg.Run.StartStep,
		},
		Update: update,
		Codec:  grid.Float64Codec{},
		Ranks:  cfg.Run.LocalRanks,
	}

	simOpts = append(simOpts,
		simulation.WithLogger(logger),
		simulation.WithMetrics(collector),
		simulation.WithReceiveTimeout(cfg.Run.ReceiveTimeout),
	)
	sim, err := simulation.New(ctx, setup, tr, simOpts...)
	if err != nil {
		return err
	}
	defer sim.Close()

	if cfg.Steering.Enabled {
		steerLog := logging.Component(logger, "steering")
		err := sim.AddSteerer(func(int) steering.Steerer[float64] {
			return steering.NewMonitor(cfg.Steering.Period, steerLog)
		}, cfg.Steering.FirstStep, cfg.Steering.LastStep,
			steering.WithLogger(steerLog), steering.WithMetrics(collector))
		if err != nil {
			return err
		}
	}

	start := time.Now()
	if err := sim.RunAll(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	result := sim.Gather()
	var values []float64
	for _, rank := range sim.Ranks() {
		values = grid.CopyRegionOut[float64](result, sim.Stepper(rank).Manager().OwnRegion(), values)
	}
	fmt.Fprintf(out, "ranks=%d steps=%d cells=%d heat=%.6g max=%.6g elapsed=%s\n",
		len(sim.Ranks()), cfg.Run.Steps, len(values), floats.Sum(values), floats.Max(values), elapsed.Round(time.Millisecond))
	return nil
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "geodecomp %s\n", Version)
		},
	}
}
