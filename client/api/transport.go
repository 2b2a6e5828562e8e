package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/api"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodySize bounds request bodies; parameter sets for the models trained
// here are far smaller.
const maxBodySize = 64 << 20

func MakeHandler(svc client.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeCBORError)),
	}

	mux.Get("/parameters", otelhttp.NewHandler(kithttp.NewServer(
		getParametersEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeCBORResponse,
		opts...,
	), "get-parameters").ServeHTTP)

	mux.Post("/fit", otelhttp.NewHandler(kithttp.NewServer(
		fitEndpoint(svc),
		decodeRoundReq,
		api.EncodeCBORResponse,
		opts...,
	), "fit").ServeHTTP)

	mux.Post("/evaluate", otelhttp.NewHandler(kithttp.NewServer(
		evaluateEndpoint(svc),
		decodeRoundReq,
		api.EncodeCBORResponse,
		opts...,
	), "evaluate").ServeHTTP)

	mux.Get("/health", supermq.Health("client", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeRoundReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.CBORContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	var req roundReq
	if err := fl.Unmarshal(data, &req); err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return req, nil
}
