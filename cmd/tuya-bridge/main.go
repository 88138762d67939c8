package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/api"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/bus/natsbus"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/config"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/forward"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/metrics"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/pulsar"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/subscription"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/supervisor"
)

func main() {
	flags, err := config.ParseFlags("tuya-bridge", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if flags.EnvFile != "" {
		config.LoadDotenv(strings.Split(flags.EnvFile, ",")...)
	} else {
		config.LoadDotenv()
	}
	cfg := flags.Apply(config.Load())

	logger := logging.New(os.Stdout, cfg.LogLevel())
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}
	topic, err := pulsar.ParseTopic(cfg.Topic)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}

	prom := metrics.NewProm()

	fwd, closeFwd, err := newForwarder(cfg, logger)
	if err != nil {
		slog.Error("forward target setup failed", "error", err)
		return err
	}
	defer closeFwd()

	mgr := subscription.New(
		subscription.PulsarDialer(logger, prom),
		forward.Relay(fwd, cfg.ForwardTimeout, logger, prom),
		logger,
		prom,
	)

	if cfg.StatusAddr != "" {
		app := api.New(api.Deps{Subscription: mgr, Metrics: prom})
		srvCtx, stopSrv := context.WithCancel(context.Background())
		srvDone := make(chan struct{})
		go func() {
			defer close(srvDone)
			if err := api.Serve(srvCtx, app, cfg.StatusAddr, logger); err != nil {
				slog.Error("status server exited", "error", err)
			}
		}()
		defer func() {
			stopSrv()
			<-srvDone
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(mgr, supervisor.Options{
		Credentials: pulsar.Credentials{AccessID: cfg.AccessID, AccessKey: cfg.AccessKey},
		Endpoint:    cfg.Endpoint,
		Topic:       topic,
		Target:      redact(cfg.ForwardURL),
		Logger:      logger,
	})
	return sup.Run(ctx)
}

// newForwarder picks the sink from the target URL scheme.
func newForwarder(cfg config.Config, logger *slog.Logger) (forward.Forwarder, func(), error) {
	if strings.HasPrefix(cfg.ForwardURL, "nats://") {
		b, err := natsbus.Connect(cfg.ForwardURL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		return forward.NewBus(b, cfg.ForwardSubject, logger), b.Close, nil
	}
	return forward.NewHTTP(cfg.ForwardURL, cfg.ForwardTimeout, logger), func() {}, nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
