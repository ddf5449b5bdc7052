// Command replicad runs a replication secondary: it accepts replicate
// calls from the primary and serves reads of its applied prefix.
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
	host       string
	port       int
	delayMs    int
	logLevel   string
	logFormat  string
	statsdAddr string
)

func init() {
	viper.AutomaticEnv()

	rootCmd.Flags().StringVar(&host, "host", config.DefaultReplica().Host, "bind host")
	bindEnv(&host, "HOST")

	rootCmd.Flags().IntVar(&port, "port", config.DefaultReplica().Port, "bind port")
	bindEnvInt(&port, "PORT")

	rootCmd.Flags().IntVar(&delayMs, "delay-ms", 0, "artificial ingress delay")
	bindEnvInt(&delayMs, "DELAY_MS")

	rootCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultReplica().LogLevel, "log level")
	bindEnv(&logLevel, "LOG_LEVEL")

	rootCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultReplica().LogFormat, "log format: auto|json")
	bindEnv(&logFormat, "LOG_FORMAT")

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
	Use:   "replicad",
	Short: "replicated-log secondary node",
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
	stopTracer := metrics.ConfigureTracer("replicated-log-replica")
	defer stopTracer()

	r := node.NewReplica(time.Duration(delayMs) * time.Millisecond)

	router := httpapi.NewReplicaRouter(httpapi.ReplicaDeps{
		Store:   r.Store,
		Log:     log,
		Metrics: mtr,
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: router}

	log.Info("replica starting", zap.String("addr", addr), zap.Int("delay_ms", delayMs))

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
