// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	qsssim "github.com/jontk/qss-sim"
	"github.com/jontk/qss-sim/internal/core/queue"
	"github.com/jontk/qss-sim/internal/monitor"
	"github.com/jontk/qss-sim/pkg/config"
	"github.com/jontk/qss-sim/pkg/logging"
	"github.com/jontk/qss-sim/pkg/metrics"
	"github.com/jontk/qss-sim/pkg/policy"
	"github.com/jontk/qss-sim/pkg/pool"
	"github.com/jontk/qss-sim/pkg/retry"
	"github.com/jontk/qss-sim/pkg/stream"
	"github.com/jontk/qss-sim/pkg/watch"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	// Global flags
	debug bool

	rootCmd = &cobra.Command{
		Use:     "qss-sim",
		Short:   "Discrete-event queueing-system simulator",
		Long:    `A command-line driver for the queueing-system simulator: FIFO or aged-priority admission, optional backfill scheduling, and Poisson or file-replay job streams.`,
		Version: Version,
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(docsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("qss-sim version %s\n", Version)
		if BuildTime != "" {
			fmt.Printf("Build Time: %s\n", BuildTime)
		}
		if Commit != "" {
			fmt.Printf("Commit:     %s\n", Commit)
		}
	},
}

func newLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	if debug {
		cfg.Level = slog.LevelDebug
	}
	return logging.NewLogger(cfg)
}

// run command flags
var (
	flagNumNodes              int
	flagQueueLimit            int
	flagDefaultPerSourceLimit int
	flagDiscipline            string
	flagUseBuffer             bool
	flagUseScheduler          bool
	flagTimeLimit             float64
	flagOutputFile            string
	flagTraceFile             string
	flagPriorityBands         bool
	flagMonitorAddr           string

	flagStreamFiles   []string
	flagArrivalRate   float64
	flagExecutionRate float64
	flagGenNumNodes   int
	flagGenNumJobs    int
	flagGenSource     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Run drives one simulation from its configured queue discipline, node
count, and optional backfill scheduler over one or more job streams —
file-replay streams (--stream-file) and/or a single generated Poisson
stream (--arrival-rate/--execution-rate).`,
	RunE: runSimulation,
}

func init() {
	runCmd.Flags().IntVar(&flagNumNodes, "nodes", 1, "number of nodes")
	runCmd.Flags().IntVar(&flagQueueLimit, "queue-limit", -1, "total queue admission limit (-1 for unlimited)")
	runCmd.Flags().IntVar(&flagDefaultPerSourceLimit, "default-per-source-limit", -1, "per-source admission limit (-1 for none)")
	runCmd.Flags().StringVar(&flagDiscipline, "discipline", "fifo", "queue discipline: fifo or priority")
	runCmd.Flags().BoolVar(&flagUseBuffer, "use-buffer", false, "divert rejected jobs to the overflow buffer instead of dropping them")
	runCmd.Flags().BoolVar(&flagUseScheduler, "use-scheduler", false, "enable the backfill schedule manager")
	runCmd.Flags().Float64Var(&flagTimeLimit, "time-limit", 0, "stop the run once current_time exceeds this (0 for no limit)")
	runCmd.Flags().StringVar(&flagOutputFile, "output", "", "path completed jobs are appended to")
	runCmd.Flags().StringVar(&flagTraceFile, "trace", "", "path trace samples are appended to")
	runCmd.Flags().BoolVar(&flagPriorityBands, "priority-bands", false, "assign job priority by a node-count banded policy (requires --discipline priority)")
	runCmd.Flags().StringVar(&flagMonitorAddr, "monitor-addr", "", "serve live /healthz, /stats, /ws on this address while running (e.g. :8090)")

	runCmd.Flags().StringSliceVar(&flagStreamFiles, "stream-file", nil, "path[=source] of a replay file stream; repeatable")
	runCmd.Flags().Float64Var(&flagArrivalRate, "arrival-rate", 0, "mean arrival rate of a generated Poisson stream (jobs/time unit)")
	runCmd.Flags().Float64Var(&flagExecutionRate, "execution-rate", 0, "mean service rate of a generated Poisson stream")
	runCmd.Flags().IntVar(&flagGenNumNodes, "gen-num-nodes", 1, "num_nodes requested by generated jobs")
	runCmd.Flags().IntVar(&flagGenNumJobs, "gen-num-jobs", 0, "number of jobs the generated stream produces (0 to rely on --time-limit instead)")
	runCmd.Flags().StringVar(&flagGenSource, "gen-source", "generated", "source label for the generated stream")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := config.NewDefault()
	cfg.NumNodes = flagNumNodes
	cfg.Discipline = queue.Discipline(flagDiscipline)
	cfg.UseQueueBuffer = flagUseBuffer
	cfg.UseScheduler = flagUseScheduler
	cfg.OutputFile = flagOutputFile
	cfg.TraceFile = flagTraceFile

	if flagQueueLimit >= 0 {
		cfg.QueueLimit = &flagQueueLimit
	}
	if flagDefaultPerSourceLimit >= 0 {
		cfg.DefaultPerSourceLimit = &flagDefaultPerSourceLimit
	}
	if flagTimeLimit > 0 {
		cfg.TimeLimit = &flagTimeLimit
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	collector := metrics.NewInMemoryCollector()
	opts := []qsssim.Option{
		qsssim.WithLogger(newLogger()),
		qsssim.WithMetrics(collector),
	}

	if flagPriorityBands {
		bands, err := policy.NewPriorityBandsInitializer(flagNumNodes, policy.DefaultTitanBands(flagNumNodes))
		if err != nil {
			return err
		}
		opts = append(opts, qsssim.WithJobInit(bands.Init))
	}

	sim, err := qsssim.New(cfg, opts...)
	if err != nil {
		return err
	}

	streamPool := pool.NewStreamLoaderPool(&pool.LoaderPoolConfig{
		MaxIdleLoaders: 16,
		TimeLimit:      cfg.TimeLimit,
	}, newLogger())
	defer streamPool.Close()

	streams, filePaths, err := buildStreams(cfg, streamPool)
	if err != nil {
		return err
	}
	defer func() {
		for _, path := range filePaths {
			streamPool.ReleaseStream(path)
		}
	}()

	var monitorServer *monitor.Server
	if flagMonitorAddr != "" {
		tailer := watch.NewTraceTailer(func(ctx context.Context) (watch.Snapshot, error) {
			return watch.Snapshot{
				Trace:        sim.Trace(),
				NumCompleted: len(sim.OutputChannel()),
				NumDropped:   sim.NumDropped(),
			}, nil
		})
		monitorServer = monitor.NewServer(flagMonitorAddr, sim.RunID(), collector, tailer, newLogger())
		monitorServer.Start()
		fmt.Printf("monitor listening on %s\n", monitorServer.Addr())
		defer monitorServer.Shutdown(context.Background())
	}

	if err := sim.Run(context.Background(), streams); err != nil {
		return err
	}

	fmt.Print(sim.Summary())
	return nil
}

func buildStreams(cfg *config.Config, streamPool *pool.StreamLoaderPool) (streams []stream.Stream, filePaths []string, err error) {
	for _, spec := range flagStreamFiles {
		path, source, _ := strings.Cut(spec, "=")
		fs, err := streamPool.GetStream(path, source)
		if err != nil {
			return nil, nil, err
		}
		streams = append(streams, fs)
		filePaths = append(filePaths, path)
	}

	if flagArrivalRate > 0 {
		opts := stream.PoissonOptions{
			ArrivalRate:   flagArrivalRate,
			ExecutionRate: flagExecutionRate,
			NumNodes:      flagGenNumNodes,
			Source:        flagGenSource,
			TimeLimit:     cfg.TimeLimit,
		}
		if flagGenNumJobs > 0 {
			opts.NumJobs = &flagGenNumJobs
		}
		ps, err := stream.NewPoissonStream(opts)
		if err != nil {
			return nil, nil, err
		}
		streams = append(streams, ps)
	}

	if len(streams) == 0 {
		return nil, nil, fmt.Errorf("no streams configured: pass --stream-file and/or --arrival-rate")
	}

	return streams, filePaths, nil
}

var (
	flagWatchAddr    string
	flagWatchRetries int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live trace events from a running simulation's monitor server",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchAddr, "addr", "localhost:8090", "monitor server address")
	watchCmd.Flags().IntVar(&flagWatchRetries, "retries", 5, "dial retries after the first attempt before giving up, in case the monitor server is still starting")
}

func runWatch(cmd *cobra.Command, args []string) error {
	url := "ws://" + flagWatchAddr + "/ws"

	var conn *websocket.Conn
	backoff := retry.NewExponentialBackoff()
	backoff.MaxAttempts = flagWatchRetries
	err := retry.Retry(cmd.Context(), backoff, func() error {
		c, _, dialErr := websocket.DefaultDialer.Dial(url, nil)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to monitor server: %w", err)
	}
	defer conn.Close()

	for {
		var ev watch.TraceEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return nil
		}
		switch ev.EventType {
		case "trace_sample":
			fmt.Printf("[%10.3f] queue=%d processing=%d action=%s\n", ev.Timestamp, ev.QueueLength, ev.NumProcessing, ev.Action)
		case "job_completed":
			fmt.Printf("completed=%d dropped=%d\n", ev.NumCompleted, ev.NumDropped)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
