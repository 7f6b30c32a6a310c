package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ponytojas/dht-logger/config"
	"github.com/ponytojas/dht-logger/internal/app"
	"github.com/ponytojas/dht-logger/internal/dht"
	"github.com/ponytojas/dht-logger/internal/dispatch"
	"github.com/ponytojas/dht-logger/internal/ingest"
	"github.com/ponytojas/dht-logger/internal/kafka"
	"github.com/ponytojas/dht-logger/internal/live"
	"github.com/ponytojas/dht-logger/internal/logger"
	"github.com/ponytojas/dht-logger/internal/metrics"
	"github.com/ponytojas/dht-logger/internal/mqtt"
	"github.com/ponytojas/dht-logger/internal/serial"
	"github.com/ponytojas/dht-logger/internal/udp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "dht-logger",
		Short:         "Read DHT sensor snapshots and forward them to the configured sinks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
				return err
			}
			l, err := logger.New(os.Stdout, cfg.Logger.Level, cfg.Logger.Format)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, l); err != nil {
				l.Error("Service stopped", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to a config file (default: ./config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func loadConfig(file string) (*config.Config, error) {
	if file != "" {
		return config.LoadConfigFile(file)
	}
	return config.LoadConfig(".")
}

func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	l.Info("Starting DHT logger", slog.String("version", version))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	src, err := openSource(cfg, l)
	if err != nil {
		return err
	}
	defer src.Close()

	pipeline := ingest.NewPipeline(src, cfg.Source.ErrorKey, m, l)
	driver := ingest.NewDriver(pipeline, cfg.Retry.Backoff, m, l)

	senders, cleanup, err := buildSenders(cfg, reg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	dispatcher := dispatch.New(cfg.Logger.Verbose, senders, m, l)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			l.Warn("Failed to close sinks", slog.Any("error", err))
		}
	}()

	app.New(driver, dispatcher, cfg.Retry.Attempts, m, l).Run(ctx)

	l.Info("Shutting down...")
	return nil
}

type source interface {
	ingest.Source
	io.Closer
}

func openSource(cfg *config.Config, l *slog.Logger) (source, error) {
	switch cfg.Source.Kind {
	case config.SourceDHT:
		src, err := dht.Open(dht.Config{
			Pin:        cfg.Source.DHT.Pin,
			Label:      cfg.Source.DHT.Label,
			SensorType: cfg.Source.DHT.SensorType,
			ErrorKey:   cfg.Source.ErrorKey,
		}, l)
		if err != nil {
			return nil, err
		}
		l.Info("Listening for data...", slog.String("sensor", src.Name()))
		return src, nil
	default:
		src, err := serial.Open(serial.Config{
			Port:       cfg.Source.Port,
			Baud:       cfg.Source.Baud,
			Timeout:    cfg.Source.Timeout,
			BufferSize: cfg.Source.BufferSize,
		}, l)
		if err != nil {
			return nil, err
		}
		l.Info(fmt.Sprintf("Listening for data on port: %s", src.Name()))
		return src, nil
	}
}

// buildSenders returns every configured sink. The returned cleanup releases
// resources that are not senders themselves.
func buildSenders(cfg *config.Config, gatherer prometheus.Gatherer, l *slog.Logger) ([]dispatch.Sender, func(), error) {
	var (
		senders []dispatch.Sender
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]dispatch.Sender, func(), error) {
		for _, s := range senders {
			if c, ok := s.(io.Closer); ok {
				c.Close()
			}
		}
		cleanup()
		return nil, nil, err
	}

	if len(cfg.Logger.UDP) > 0 {
		sock, err := udp.Listen(l)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { sock.Close() })
		for _, addr := range cfg.Logger.UDP {
			dst, err := sock.Destination(addr)
			if err != nil {
				return fail(err)
			}
			l.Info("Forwarding snapshots", slog.String("destination", dst.Name()))
			senders = append(senders, dst)
		}
	}

	if cfg.MQTT.Enabled {
		p := mqtt.NewPublisher(cfg, l)
		if err := p.Connect(); err != nil {
			return fail(err)
		}
		senders = append(senders, p)
	}

	if cfg.Kafka.Enabled {
		p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		l.Info("Publishing snapshots to Kafka", slog.String("topic", cfg.Kafka.Topic), slog.Any("brokers", cfg.Kafka.Brokers))
		senders = append(senders, p)
	}

	if cfg.HTTP.Enabled {
		hub := live.NewHub(l)
		srv := live.NewServer(cfg.HTTP.Address, hub, gatherer, l)
		srv.Start()
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				l.Warn("Failed to stop live view server", slog.Any("error", err))
			}
		})
		senders = append(senders, hub)
	}

	if len(senders) == 0 {
		l.Warn("No remote sinks configured, snapshots are only logged")
	}
	return senders, cleanup, nil
}
