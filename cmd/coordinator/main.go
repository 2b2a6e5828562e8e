package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/absmach/fedlearn"
	clientapi "github.com/absmach/fedlearn/client/api"
	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/coordinator/api"
	"github.com/absmach/fedlearn/coordinator/middleware"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/fedlearn/pkg/mqtt"
	"github.com/absmach/fedlearn/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName          = "coordinator"
	defHTTPPort      = "7070"
	envPrefixHTTP    = "FL_COORDINATOR_HTTP_"
	envPrefixStorage = "FL_STORAGE_"
	pathEnv          = ".env"
)

type envConfig struct {
	LogLevel     string        `env:"FL_COORDINATOR_LOG_LEVEL"     envDefault:"info"`
	InstanceID   string        `env:"FL_COORDINATOR_INSTANCE_ID"`
	ConfigFile   string        `env:"FL_COORDINATOR_CONFIG_FILE"`
	Clients      []string      `env:"FL_COORDINATOR_CLIENTS"       envSeparator:","`
	Autostart    bool          `env:"FL_COORDINATOR_AUTOSTART"     envDefault:"false"`
	ExportDir    string        `env:"FL_COORDINATOR_EXPORT_DIR"`
	MQTTURL      string        `env:"FL_COORDINATOR_MQTT_URL"`
	MQTTQoS      uint8         `env:"FL_COORDINATOR_MQTT_QOS"      envDefault:"1"`
	MQTTTimeout  time.Duration `env:"FL_COORDINATOR_MQTT_TIMEOUT"  envDefault:"30s"`
	MQTTUsername string        `env:"FL_COORDINATOR_MQTT_USERNAME"`
	MQTTPassword string        `env:"FL_COORDINATOR_MQTT_PASSWORD"`
	OTELURL      url.URL       `env:"FL_COORDINATOR_OTEL_URL"`
	TraceRatio   float64       `env:"FL_COORDINATOR_TRACE_RATIO"   envDefault:"0"`
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	runCfg := fedlearn.DefaultConfig()
	if cfg.ConfigFile != "" {
		loaded, err := fedlearn.LoadConfig(cfg.ConfigFile)
		if err != nil {
			logger.Error("failed to load run configuration", slog.String("error", err.Error()))

			return
		}
		runCfg = *loaded
	}

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

	storageCfg := storage.Config{}
	if err := env.ParseWithOptions(&storageCfg, env.Options{Prefix: envPrefixStorage}); err != nil {
		logger.Error("failed to load storage configuration", slog.String("error", err.Error()))

		return
	}
	repos, err := storage.NewRepositories(storageCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", storageCfg.Type), slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTURL != "" {
		pubsub, err = mqtt.NewPubSub(mqtt.Config{
			URL:      cfg.MQTTURL,
			QoS:      cfg.MQTTQoS,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Timeout:  cfg.MQTTTimeout,
		}, svcName+"-"+cfg.InstanceID, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			_ = pubsub.Disconnect(context.Background())
		}()
	}

	var exporter *fl.Exporter
	if cfg.ExportDir != "" {
		exporter, err = fl.NewExporter(cfg.ExportDir)
		if err != nil {
			logger.Error("failed to initialize exporter", slog.String("error", err.Error()))

			return
		}
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	factory := func(info coordinator.ClientInfo) (coordinator.ClientSession, error) {
		s, err := clientapi.NewRemoteSession(info.ID, info.Address, httpClient)
		if err != nil {
			return nil, err
		}

		return s, nil
	}

	svc := coordinator.NewService(ctx, coordinator.NewRegistry(), repos, factory, pubsub, exporter, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := bootstrap(ctx, svc, cfg, runCfg); err != nil {
		logger.Error("failed to bootstrap coordinator", slog.String("error", err.Error()))

		return
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// bootstrap registers the statically configured clients and, when asked,
// starts the first run.
func bootstrap(ctx context.Context, svc coordinator.Service, cfg envConfig, runCfg fedlearn.Config) error {
	for _, addr := range cfg.Clients {
		if addr == "" {
			continue
		}
		if _, err := svc.RegisterClient(ctx, coordinator.ClientInfo{Address: addr}); err != nil {
			return fmt.Errorf("register %s: %w", addr, err)
		}
	}

	if !cfg.Autostart {
		return nil
	}
	rc, err := runCfg.RunConfig()
	if err != nil {
		return err
	}
	_, err = svc.StartRun(ctx, rc)

	return err
}
