package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"treiber/api/grpcserver"
	"treiber/config"
	"treiber/infra/ledger"
	"treiber/infra/metrics"
	"treiber/infra/sequence"
	"treiber/jobs/broadcaster"
	"treiber/service/soak"
	"treiber/service/stress"
)

// load reads the config file and applies the flags that override it.
func load(c *cli.Context) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("variant") {
		cfg.Scenario.Variant = c.String("variant")
	}
	if c.IsSet("pushers") {
		cfg.Scenario.Pushers = c.Int("pushers")
	}
	if c.IsSet("pushes") {
		cfg.Scenario.PushesPerPusher = c.Int("pushes")
	}
	if c.IsSet("poppers") {
		cfg.Scenario.Poppers = c.Int("poppers")
	}
	if c.IsSet("seed") {
		cfg.Scenario.Seed = c.Int64("seed")
	}
	if c.IsSet("poison") {
		cfg.Scenario.PoisonCheck = c.Bool("poison")
	}
	if c.IsSet("ledger") {
		cfg.Ledger.Dir = c.String("ledger")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func scenarioFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "variant", Usage: "reclaiming or leaking"},
		&cli.IntFlag{Name: "pushers", Usage: "goroutines pushing"},
		&cli.IntFlag{Name: "pushes", Usage: "values pushed per pusher"},
		&cli.IntFlag{Name: "poppers", Usage: "goroutines draining"},
		&cli.Int64Flag{Name: "seed", Usage: "random seed"},
		&cli.BoolFlag{Name: "poison", Usage: "panic if a popped node was recycled under the pop"},
		&cli.StringFlag{Name: "ledger", Usage: "ledger directory"},
	}
}

// openLedger opens the ledger and returns a sequencer that continues
// after its last recorded run.
func openLedger(dir string) (*ledger.Ledger, *sequence.Sequencer, error) {
	l, err := ledger.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	last, err := l.LastRunID()
	if err != nil {
		_ = l.Close()
		return nil, nil, fmt.Errorf("ledger replay: %w", err)
	}
	return l, sequence.New(last), nil
}

// -------------------- run --------------------

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the scenario once and report conservation",
		Flags: append(scenarioFlags(), &cli.BoolFlag{
			Name:  "record",
			Usage: "append the report to the ledger",
		}),
		Action: func(c *cli.Context) error {
			cfg, logger, err := load(c)
			if err != nil {
				return err
			}
			sc, err := cfg.StressScenario()
			if err != nil {
				return err
			}

			seq := sequence.New(0)
			var l *ledger.Ledger
			if c.Bool("record") {
				l, seq, err = openLedger(cfg.Ledger.Dir)
				if err != nil {
					return err
				}
				defer l.Close()
			}

			rep, runErr := stress.NewRunner(logger, seq).Run(c.Context, sc)
			if runErr != nil && !errors.Is(runErr, stress.ErrConservation) {
				return runErr
			}
			if l != nil {
				if err := l.Append(rep); err != nil {
					return err
				}
			}

			printReport(c.App.Writer, rep)
			if runErr != nil {
				return cli.Exit(runErr.Error(), 2)
			}
			return nil
		},
	}
}

// -------------------- soak --------------------

func soakCommand() *cli.Command {
	return &cli.Command{
		Name:  "soak",
		Usage: "repeat the scenario, serving metrics and gRPC health until interrupted",
		Flags: append(scenarioFlags(),
			&cli.DurationFlag{Name: "interval", Usage: "time between runs"},
		),
		Action: func(c *cli.Context) error {
			cfg, logger, err := load(c)
			if err != nil {
				return err
			}
			if c.IsSet("interval") {
				cfg.Soak.Interval = c.Duration("interval")
			}
			sc, err := cfg.StressScenario()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// ---------------- Ledger ----------------

			l, seq, err := openLedger(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			defer l.Close()

			// ---------------- Metrics ----------------

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			// ---------------- gRPC health ----------------

			health := grpcserver.NewServer(logger)
			lis, err := net.Listen("tcp", cfg.Soak.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Soak.GRPCAddr, err)
			}
			go func() {
				if err := health.Serve(lis); err != nil {
					logger.WithError(err).Error("grpc server exited")
				}
			}()
			defer health.Stop()

			// ---------------- Soak job ----------------

			job := soak.New(soak.Config{
				Runner:   stress.NewRunner(logger, seq),
				Scenario: sc,
				Interval: cfg.Soak.Interval,
				Recorder: l,
				Health:   health,
				Metrics:  metrics.NewRunMetrics(reg),
				Log:      logger,
			})
			metrics.RegisterStackStats(reg, job.LastStats)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			httpSrv := &http.Server{
				Addr:              cfg.Soak.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.WithError(err).Error("metrics server exited")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			// ---------------- Broadcaster ----------------

			if cfg.Broadcast.Driver != "none" {
				pub, err := broadcaster.NewPublisher(cfg.Broadcast.Driver, cfg.Broadcast.Brokers, cfg.Broadcast.Topic)
				if err != nil {
					return err
				}
				bc := broadcaster.New(l, pub, cfg.Broadcast.Interval, logger)
				done := make(chan struct{})
				go func() {
					bc.Run(ctx)
					close(done)
				}()
				defer func() {
					<-done
					_ = bc.Close()
				}()
			}

			logger.WithFields(logrus.Fields{
				"metrics_addr": cfg.Soak.MetricsAddr,
				"grpc_addr":    cfg.Soak.GRPCAddr,
				"ledger":       cfg.Ledger.Dir,
			}).Info("soak running")

			job.Run(ctx)

			if n := job.Failures(); n > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d runs violated conservation", n, job.Runs()), 2)
			}
			return nil
		},
	}
}

// -------------------- history --------------------

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "print the latest recorded runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ledger", Usage: "ledger directory"},
			&cli.IntFlag{Name: "n", Value: 10, Usage: "number of runs"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := load(c)
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.Ledger.Dir)
			if err != nil {
				return err
			}
			defer l.Close()

			entries, err := l.Latest(c.Int("n"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				printSummary(c.App.Writer, e)
			}
			return nil
		},
	}
}
