// Command primaryd runs the replication primary: it accepts client
// appends, assigns sequence numbers, and fans them out to the configured
// secondaries.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/config"
	"github.com/elgrassa/replicated-log/internal/httpapi"
	"github.com/elgrassa/replicated-log/internal/logging"
	"github.com/elgrassa/replicated-log/internal/metrics"
	"github.com/elgrassa/replicated-log/internal/node"
)

var (
	secondaries      string
	host             string
	port             int
	logLevel         string
	logFormat        string
	healthIntervalMs int
	healthTimeoutMs  int
	statsdAddr       string
)

func init() {
	viper.AutomaticEnv()

	rootCmd.Flags().StringVar(&secondaries, "secondaries", "", "comma-separated replica base URLs")
	bindEnv(&secondaries, "SECONDARIES")

	rootCmd.Flags().StringVar(&host, "host", config.DefaultPrimary().Host, "bind host")
	bindEnv(&host, "HOST")

	rootCmd.Flags().IntVar(&port, "port", config.DefaultPrimary().Port, "bind port")
	bindEnvInt(&port, "PORT")

	rootCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultPrimary().LogLevel, "log level")
	bindEnv(&logLevel, "LOG_LEVEL")

	rootCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultPrimary().LogFormat, "log format: auto|json")
	bindEnv(&logFormat, "LOG_FORMAT")

	rootCmd.Flags().IntVar(&healthIntervalMs, "health-interval-ms", 1000, "health probe interval")
	bindEnvInt(&healthIntervalMs, "HEALTH_INTERVAL_MS")

	rootCmd.Flags().IntVar(&healthTimeoutMs, "health-timeout-ms", 0, "health grace window (0 = 3x interval)")
	bindEnvInt(&healthTimeoutMs, "HEALTH_TIMEOUT_MS")

	rootCmd.Flags().StringVar(&statsdAddr, "statsd-addr", "", "DataDog statsd agent address")
	bindEnv(&statsdAddr, "STATSD_ADDR")
}

func bindEnv(dst *string, key string) {
	viper.BindEnv(key)
	if v := viper.GetString(key); v != "" {
		*dst = v
	}
}

func bindEnvInt(dst *int, key string) {
	viper.BindEnv(key)
	if v := viper.GetString(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "primaryd",
	Short: "replicated-log primary node",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	log, err := logging.New(os.Stdout, logLevel, logFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	mtr, err := metrics.New(statsdAddr)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer mtr.Close()
	stopTracer := metrics.ConfigureTracer("replicated-log-primary")
	defer stopTracer()

	interval := time.Duration(healthIntervalMs) * time.Millisecond
	grace := time.Duration(healthTimeoutMs) * time.Millisecond
	if grace == 0 {
		grace = config.HealthTimeoutFor(interval)
	}

	replicaAddrs := config.ParseSecondaries(secondaries)
	p := node.NewPrimary(log, mtr, replicaAddrs, interval, grace)
	defer p.Close()

	router := httpapi.NewPrimaryRouter(httpapi.PrimaryDeps{
		Ledger:      p.Ledger,
		Coordinator: p.Coordinator,
		Probe:       p.Probe,
		Dispatcher:  p.Dispatcher,
		Replicas:    replicaAddrs,
		Log:         log,
		Metrics:     mtr,
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: router}

	log.Info("primary starting", zap.String("addr", addr), zap.Strings("secondaries", replicaAddrs))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
