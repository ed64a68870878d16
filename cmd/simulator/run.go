package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
	"github.com/signalsfoundry/linkstate-simulator/internal/observability"
	"github.com/signalsfoundry/linkstate-simulator/internal/sim/state"
	"github.com/signalsfoundry/linkstate-simulator/model"
	"github.com/signalsfoundry/linkstate-simulator/timectrl"
)

type runOptions struct {
	scenario        string
	tick            time.Duration
	realtime        bool
	maxTicks        int
	skipHello       bool
	metricsAddr     string
	neighborTimeout time.Duration
	helloTicks      int
	lsaTicks        int
	source          int
	summary         bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run Hello discovery and LSA flooding over a scenario",
		Long: `Loads a scenario, runs the Hello phase followed by the LSA phase and
prints every router's routing table once flooding has converged.`,
		GroupID: "sim",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSimulation(ctx, cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "path to the scenario file")
	_ = cmd.MarkFlagRequired("scenario")
	cmd.Flags().DurationVar(&opts.tick, "tick", 16*time.Millisecond, "simulated time per tick")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "pace ticks on the wall clock instead of running as fast as possible")
	cmd.Flags().IntVar(&opts.maxTicks, "max-ticks", 200000, "abort a phase that has not finished after this many ticks (0 disables)")
	cmd.Flags().BoolVar(&opts.skipHello, "skip-hello", false, "run only the LSA phase")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	cmd.Flags().DurationVar(&opts.neighborTimeout, "neighbor-timeout", core.DefaultNeighborTimeout, "prune Hello-confirmed neighbors not refreshed within this simulated time (0 disables)")
	cmd.Flags().IntVar(&opts.helloTicks, "hello-transit", core.DefaultHelloTransitTicks, "ticks a Hello spends on a link")
	cmd.Flags().IntVar(&opts.lsaTicks, "lsa-transit", core.DefaultLSATransitTicks, "ticks an LSA spends on a link")
	cmd.Flags().IntVar(&opts.source, "source", 0, "print only this router's table")
	cmd.Flags().BoolVar(&opts.summary, "summary", true, "print packet counters after the run")
	return cmd
}

func runSimulation(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	format, err := global.scenarioFormat(opts.scenario)
	if err != nil {
		return err
	}
	if opts.tick <= 0 {
		return fmt.Errorf("--tick must be positive, got %s", opts.tick)
	}

	log := global.logger(nil)
	runID := logging.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)

	traceCfg := observability.TracingConfigFromEnv()
	traceCfg.RunID = runID
	traceCfg.Scenario = opts.scenario
	traceCfg.HelloTransitTicks = opts.helloTicks
	traceCfg.LSATransitTicks = opts.lsaTicks
	shutdownTracing, err := observability.InitTracing(ctx, traceCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	mode := timectrl.Accelerated
	if opts.realtime {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), opts.tick, mode)

	net := core.NewNetwork(
		core.WithConfig(core.Config{
			HelloTransitTicks: opts.helloTicks,
			LSATransitTicks:   opts.lsaTicks,
			NeighborTimeout:   opts.neighborTimeout,
		}),
		core.WithClock(tc),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)
	sim := state.NewSimState(ctx, net, log)

	f, err := os.Open(opts.scenario)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	err = sim.Load(ctx, f, format)
	_ = f.Close()
	if err != nil {
		return err
	}

	phases := []func(*core.Network){(*core.Network).StartHelloPhase, (*core.Network).StartLSAPhase}
	if opts.skipHello {
		phases = phases[1:]
	}

	log.Info(ctx, "starting simulation",
		logging.Category(logging.CategorySimulation),
		logging.String("scenario", opts.scenario),
		logging.String("mode", mode.String()),
		logging.String("tick", opts.tick.String()),
	)
	started := time.Now()
	if err := drivePhases(ctx, tc, sim, phases, opts.maxTicks); err != nil {
		return err
	}
	log.Info(ctx, "simulation complete",
		logging.Category(logging.CategorySimulation),
		logging.Int("frames", tc.Frames()),
		logging.String("wall_time", time.Since(started).String()),
	)

	out := cmd.OutOrStdout()
	tables := sim.RoutingTables()
	if opts.source != 0 {
		id := model.NodeID(opts.source)
		table, ok := tables[id]
		if !ok {
			return fmt.Errorf("router %d not in scenario", opts.source)
		}
		tables = map[model.NodeID]model.RoutingTable{id: table}
	}
	if err := writeRoutingTables(out, tables); err != nil {
		return err
	}
	if opts.summary {
		return writeStats(out, sim.Stats())
	}
	return nil
}

// phaseDriver sequences simulation phases from TimeController frames: each
// frame advances the running phase by one tick, and a frame that finds the
// network idle starts the next phase.
type phaseDriver struct {
	sim      *state.SimState
	phases   []func(*core.Network)
	maxTicks int
	cancel   context.CancelFunc

	next  int
	ticks int
	err   error
}

func (d *phaseDriver) onFrame(time.Time) {
	if d.sim.Step() {
		d.ticks++
		if d.maxTicks > 0 && d.ticks >= d.maxTicks {
			d.err = fmt.Errorf("%w: phase %d after %d ticks", state.ErrTickLimit, d.next, d.ticks)
			d.cancel()
		}
		return
	}
	if d.next >= len(d.phases) {
		d.cancel()
		return
	}
	start := d.phases[d.next]
	d.next++
	d.ticks = 0
	_ = d.sim.WithWriteLock(func(n *core.Network) error {
		start(n)
		return nil
	})
}

func drivePhases(ctx context.Context, tc *timectrl.TimeController, sim *state.SimState, phases []func(*core.Network), maxTicks int) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := &phaseDriver{sim: sim, phases: phases, maxTicks: maxTicks, cancel: cancel}
	tc.AddListener(d.onFrame)
	<-tc.Start(runCtx, 0)

	if d.err != nil {
		return d.err
	}
	if err := ctx.Err(); err != nil {
		sim.StopSimulation()
		return err
	}
	if d.next < len(phases) || sim.Snapshot().Running {
		return errors.New("simulation stopped before all phases finished")
	}
	return nil
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
