package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedlearn"
	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/client/api"
	"github.com/absmach/fedlearn/client/middleware"
	"github.com/absmach/fedlearn/pkg/dataset"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/sdk"
	"github.com/absmach/fedlearn/trainer"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "client"
	defHTTPPort   = "9100"
	envPrefixHTTP = "FL_CLIENT_HTTP_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel       string         `env:"FL_CLIENT_LOG_LEVEL"       envDefault:"info"`
	InstanceID     string         `env:"FL_CLIENT_INSTANCE_ID"`
	ID             string         `env:"FL_CLIENT_ID"`
	Name           string         `env:"FL_CLIENT_NAME"`
	ConfigFile     string         `env:"FL_CLIENT_CONFIG_FILE"`
	Partition      int            `env:"FL_CLIENT_PARTITION"       envDefault:"0"`
	NumPartitions  int            `env:"FL_CLIENT_NUM_PARTITIONS"  envDefault:"2"`
	Hidden         []int          `env:"FL_CLIENT_HIDDEN"          envDefault:"16,8" envSeparator:","`
	Trainer        trainer.Config `envPrefix:"FL_CLIENT_"`
	Dataset        dataset.Config `envPrefix:"FL_CLIENT_DATASET_"`
	CoordinatorURL string         `env:"FL_CLIENT_COORDINATOR_URL"`
	AdvertiseURL   string         `env:"FL_CLIENT_ADVERTISE_URL"`
	RegisterRetry  time.Duration  `env:"FL_CLIENT_REGISTER_RETRY"  envDefault:"5s"`
	OTELURL        url.URL        `env:"FL_CLIENT_OTEL_URL"`
	TraceRatio     float64        `env:"FL_CLIENT_TRACE_RATIO"     envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.ID == "" {
		cfg.ID = cfg.InstanceID
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("client_id", cfg.ID))
	slog.SetDefault(logger)

	// A configuration file replaces the trainer and dataset settings from env.
	if cfg.ConfigFile != "" {
		fileCfg, err := fedlearn.LoadConfig(cfg.ConfigFile)
		if err != nil {
			logger.Error("failed to load run configuration", slog.String("error", err.Error()))

			return
		}
		cfg.Trainer = fileCfg.TrainerConfig()
		cfg.Dataset = fileCfg.DatasetConfig()
		cfg.Hidden = fileCfg.Client.Hidden
	}
	cfg.Dataset.Clients = cfg.NumPartitions
	if cfg.Partition < 0 || cfg.Partition >= cfg.NumPartitions {
		logger.Error("partition out of range", slog.Int("partition", cfg.Partition), slog.Int("num_partitions", cfg.NumPartitions))

		return
	}

	parts, err := dataset.Load(ctx, cfg.Dataset)
	if err != nil {
		logger.Error("failed to load dataset", slog.String("error", err.Error()))

		return
	}
	data := parts[cfg.Partition]
	features := data.Train.Features()
	if features == 0 {
		features = data.Test.Features()
	}
	logger.Info("Dataset loaded",
		slog.Int("partition", cfg.Partition),
		slog.Int("train", data.Train.Len()),
		slog.Int("test", data.Test.Len()),
	)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	model := trainer.NewMLP(features, cfg.Hidden, cfg.Trainer.Seed)
	var svc client.Service = client.NewSession(cfg.ID, trainer.New(model, data, cfg.Trainer, logger))
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	if cfg.CoordinatorURL != "" {
		g.Go(func() error {
			return register(ctx, cfg, httpServerConfig, logger)
		})
	}

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// register announces this client to the coordinator, retrying until the
// coordinator accepts it or ctx ends. An already registered ID counts as
// success.
func register(ctx context.Context, cfg envConfig, hsCfg server.Config, logger *slog.Logger) error {
	address := cfg.AdvertiseURL
	if address == "" {
		address = fmt.Sprintf("http://%s:%s", hostname(hsCfg.Host), hsCfg.Port)
	}
	s := sdk.NewSDK(sdk.Config{CoordinatorURL: cfg.CoordinatorURL, Timeout: 30 * time.Second})

	for {
		c, err := s.RegisterClient(sdk.Client{ID: cfg.ID, Name: cfg.Name, Address: address})
		switch {
		case err == nil:
			logger.Info("Registered with coordinator", slog.String("name", c.Name), slog.String("address", address))

			return nil
		case errors.Is(err, pkgerrors.ErrEntityExists):
			logger.Info("Already registered with coordinator", slog.String("address", address))

			return nil
		}
		logger.Warn("failed to register with coordinator", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.RegisterRetry):
		}
	}
}

func hostname(host string) string {
	if host != "" && host != "0.0.0.0" {
		return host
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}

	return "localhost"
}
