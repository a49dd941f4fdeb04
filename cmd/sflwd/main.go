package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	sflw "github.com/ehrlich-b/go-sflw"
	"github.com/ehrlich-b/go-sflw/internal/logging"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultAddr = ":9000"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	level, err := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return err
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := logging.New(logging.Config{Level: level, Output: os.Stderr})

	strategy, err := sflw.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	srv, err := sflw.New(sflw.Config{
		Addr:        cfg.Addr,
		IdleTimeout: cfg.IdleTimeout,
		Strategy:    strategy,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		if err := srv.RegisterMetrics(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		listener, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		log.Info("metrics server listening", "address", listener.Addr().String())
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.Serve(listener, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

type config struct {
	ShowVersion bool
	Verbose     bool
	Addr        string
	MetricsAddr string
	IdleTimeout time.Duration
	Strategy    string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (config, error) {
	var cfg config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.StringVar(&cfg.Addr, "listen", getenv("SFLW_LISTEN", defaultAddr), "tcp listen address (env: SFLW_LISTEN)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("SFLW_METRICS_ADDR", ""), "prometheus metrics address, empty disables (env: SFLW_METRICS_ADDR)")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", 0, "destroy connections idle this long, 0 disables (env: SFLW_IDLE_TIMEOUT)")
	flag.StringVar(&cfg.Strategy, "strategy", getenv("SFLW_STRATEGY", "direct"), "routing decision strategy: direct or simulated-hop (env: SFLW_STRATEGY)")

	flag.Parse()

	if cfg.IdleTimeout == 0 {
		if v := os.Getenv("SFLW_IDLE_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return config{}, fmt.Errorf("invalid SFLW_IDLE_TIMEOUT=%q: %w", v, err)
			}
			cfg.IdleTimeout = d
		}
	}

	return cfg, nil
}
