package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/prealloc"
	"github.com/giantswarm/prealloc/internal/adminapi"
	"github.com/giantswarm/prealloc/internal/config"
)

const (
	defaultListen       = ":8080"
	httpShutdownTimeout = 10 * time.Second
)

// serveFlags holds command-line values; they override the config file when
// set explicitly.
type serveFlags struct {
	configPath     string
	listen         string
	poolSize       int
	acquireTimeout time.Duration
	warmTimeout    time.Duration
	baseDataDir    string
	profileDir     string
	workerBinary   string
	inProcess      bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool and its HTTP admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, g, f)
			if err != nil {
				return err
			}
			log, err := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			opts, err := managerOptions(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, log, cfg.Listen, opts)
		},
	}

	bindServeFlags(cmd.Flags(), f)
	return cmd
}

func bindServeFlags(fl *pflag.FlagSet, f *serveFlags) {
	fl.StringVarP(&f.configPath, "config", "c", "", "config file (.yaml, .json or .toml)")
	fl.StringVar(&f.listen, "listen", defaultListen, "admin API listen address")
	fl.IntVar(&f.poolSize, "pool-size", prealloc.DefaultPoolSize, "number of warm or warming workers")
	fl.DurationVar(&f.acquireTimeout, "acquire-timeout", prealloc.DefaultAcquireTimeout, "how long an acquire waits for a warm worker")
	fl.DurationVar(&f.warmTimeout, "warm-timeout", prealloc.DefaultWarmTimeout, "how long a worker may take to warm up")
	fl.StringVar(&f.baseDataDir, "base-data-dir", "", "directory for worker data and the shared profile")
	fl.StringVar(&f.profileDir, "profile-dir", "", "shared profile directory (default <base-data-dir>/profile)")
	fl.StringVar(&f.workerBinary, "worker-binary", "", "worker binary (default: this executable)")
	fl.BoolVar(&f.inProcess, "in-process", false, "warm workers inside this process")
}

// resolveConfig loads the config file, if any, and applies explicitly set
// flags on top.
func resolveConfig(cmd *cobra.Command, g *globalFlags, f *serveFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		if fl == nil {
			fl = cmd.InheritedFlags().Lookup(name)
		}
		return fl != nil && fl.Changed
	}
	if changed("log-format") || cfg.LogFormat == "" {
		cfg.LogFormat = g.logFormat
	}
	if changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = g.logLevel
	}
	if changed("listen") || cfg.Listen == "" {
		cfg.Listen = f.listen
	}
	if changed("pool-size") {
		cfg.Pool.Size = f.poolSize
	}
	if changed("acquire-timeout") {
		cfg.Pool.AcquireTimeout = config.Duration(f.acquireTimeout)
	}
	if changed("warm-timeout") {
		cfg.Pool.WarmTimeout = config.Duration(f.warmTimeout)
	}
	if changed("base-data-dir") {
		cfg.Pool.BaseDataDir = f.baseDataDir
	}
	if changed("profile-dir") {
		cfg.Pool.ProfileDir = f.profileDir
	}
	if changed("worker-binary") {
		cfg.Worker.Binary = f.workerBinary
	}
	if changed("in-process") {
		cfg.Worker.InProcess = f.inProcess
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// managerOptions translates cfg into manager options. Zero values keep the
// library defaults.
func managerOptions(cfg config.Config) ([]prealloc.ManagerOption, error) {
	var opts []prealloc.ManagerOption
	p := cfg.Pool
	if p.Size > 0 {
		opts = append(opts, prealloc.WithPoolSize(p.Size))
	}
	if p.AcquireTimeout > 0 {
		opts = append(opts, prealloc.WithAcquireTimeout(p.AcquireTimeout.Std()))
	}
	if p.WarmTimeout > 0 {
		opts = append(opts, prealloc.WithWarmTimeout(p.WarmTimeout.Std()))
	}
	if p.StopTimeout > 0 {
		opts = append(opts, prealloc.WithStopTimeout(p.StopTimeout.Std()))
	}
	if p.ShutdownDrainTimeout > 0 {
		opts = append(opts, prealloc.WithShutdownDrainTimeout(p.ShutdownDrainTimeout.Std()))
	}
	if p.BackoffInitial > 0 {
		opts = append(opts, prealloc.WithBackoff(p.BackoffInitial.Std(), p.BackoffMax.Std()))
	}
	if p.BaseDataDir != "" {
		opts = append(opts, prealloc.WithBaseDataDir(p.BaseDataDir))
	}
	if p.ProfileDir != "" {
		opts = append(opts, prealloc.WithProfileDir(p.ProfileDir))
	}

	w := cfg.Worker
	switch {
	case w.InProcess:
		opts = append(opts, prealloc.WithInProcessWorkers(prealloc.BuiltinSubsystems))
	case w.Binary != "":
		opts = append(opts, prealloc.WithWorkerBinary(w.Binary, w.Args...))
	default:
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		args := w.Args
		if len(args) == 0 {
			args = []string{prealloc.DefaultWorkerCommand}
		}
		opts = append(opts, prealloc.WithWorkerBinary(self, args...))
	}
	if len(w.Env) > 0 {
		opts = append(opts, prealloc.WithWorkerEnv(w.Env...))
	}
	return opts, nil
}

// serve runs the manager and the admin API until ctx is done.
func serve(ctx context.Context, log *slog.Logger, listen string, opts []prealloc.ManagerOption) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr := prealloc.NewManager(append(opts, prealloc.WithMetricsRegisterer(reg))...)
	if err := mgr.Initialize(ctx); err != nil {
		return errors.Join(err, mgr.Shutdown())
	}

	admin := adminapi.New(adminapi.Config{Pool: mgr, Gatherer: reg, Logger: log})
	srv := &http.Server{
		Addr:              listen,
		Handler:           admin.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("admin api listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			admin.RetireAll(),
			mgr.Shutdown(),
		)
	})
	return g.Wait()
}
