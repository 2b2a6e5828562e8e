package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/api"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var errUnexpectedContentType = errors.New("unexpected content type")

// remoteError carries an error the client itself reported, as opposed to a
// failure to reach it.
type remoteError struct {
	err error
}

func (e *remoteError) Error() string {
	return e.err.Error()
}

func (e *remoteError) Unwrap() error {
	return e.err
}

var _ client.Service = (*remoteSession)(nil)

type remoteSession struct {
	id       string
	params   endpoint.Endpoint
	fit      endpoint.Endpoint
	evaluate endpoint.Endpoint
}

// NewRemoteSession returns a Service that calls a client served by MakeHandler
// at baseURL. A nil httpClient uses an otelhttp-instrumented default client.
func NewRemoteSession(id, baseURL string, httpClient *http.Client) (client.Service, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: client url %q must be absolute", pkgerrors.ErrInvalidConfig, baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	opts := []kithttp.ClientOption{kithttp.SetClient(httpClient)}

	return &remoteSession{
		id:       id,
		params:   kithttp.NewClient(http.MethodGet, u.JoinPath("parameters"), encodeEmpty, decodeParameters, opts...).Endpoint(),
		fit:      kithttp.NewClient(http.MethodPost, u.JoinPath("fit"), encodeCBORRequest, decodeReport, opts...).Endpoint(),
		evaluate: kithttp.NewClient(http.MethodPost, u.JoinPath("evaluate"), encodeCBORRequest, decodeReport, opts...).Endpoint(),
	}, nil
}

func (rs *remoteSession) ID() string {
	return rs.id
}

func (rs *remoteSession) GetParameters(ctx context.Context) (fl.ParameterSet, error) {
	res, err := rs.params(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}

	return res.(fl.ParameterSet), nil
}

func (rs *remoteSession) Fit(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	res, err := rs.fit(ctx, roundReq{Parameters: params, Config: cfg})
	if err != nil {
		return fl.ClientReport{}, translate(err)
	}
	r := res.(fl.ClientReport)
	r.ClientID = rs.id

	return r, nil
}

func (rs *remoteSession) Evaluate(ctx context.Context, params fl.ParameterSet, cfg fl.RoundConfig) (fl.ClientReport, error) {
	res, err := rs.evaluate(ctx, roundReq{Parameters: params, Config: cfg})
	if err != nil {
		return fl.ClientReport{}, translate(err)
	}
	r := res.(fl.ClientReport)
	r.ClientID = rs.id

	return r, nil
}

// translate keeps client-reported errors and turns everything else into
// ErrClientUnreachable.
func translate(err error) error {
	var re *remoteError
	if errors.As(err, &re) {
		return re.err
	}

	return fmt.Errorf("%w: %w", pkgerrors.ErrClientUnreachable, err)
}

func encodeEmpty(_ context.Context, _ *http.Request, _ any) error {
	return nil
}

func encodeCBORRequest(_ context.Context, r *http.Request, request any) error {
	data, err := fl.Marshal(request)
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", api.CBORContentType)
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))

	return nil
}

func decodeParameters(_ context.Context, resp *http.Response) (any, error) {
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var res parametersRes
	if err := fl.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	if err := res.Parameters.Validate(); err != nil {
		return nil, &remoteError{err: err}
	}

	return res.Parameters, nil
}

func decodeReport(_ context.Context, resp *http.Response) (any, error) {
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	var r fl.ClientReport
	if err := fl.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	return r, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), api.CBORContentType) {
		return nil, fmt.Errorf("%w: %q (status %d)", errUnexpectedContentType, resp.Header.Get("Content-Type"), resp.StatusCode)
	}
	if resp.StatusCode == http.StatusOK {
		return data, nil
	}

	var body api.ErrorBody
	if err := fl.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if sentinel := api.FromCode(body.Code); sentinel != nil {
		return nil, &remoteError{err: fmt.Errorf("%w: %s", sentinel, body.Error)}
	}

	return nil, &remoteError{err: fmt.Errorf("client error (status %d): %s", resp.StatusCode, body.Error)}
}
