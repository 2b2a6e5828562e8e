package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	CBORContentType = fl.ContentTypeCBOR

	MaxLimitSize = 100
)

// ErrorBody is written for every failed request. Code is stable across
// releases and lets remote callers recover the sentinel error.
type ErrorBody struct {
	Error string `json:"error" cbor:"1,keyasint"`
	Code  string `json:"code"  cbor:"2,keyasint"`
}

type errorCode struct {
	err    error
	code   string
	status int
}

var codes = []errorCode{
	{pkgerrors.ErrNotFound, "not_found", http.StatusNotFound},
	{pkgerrors.ErrEmptyKey, "empty_key", http.StatusBadRequest},
	{pkgerrors.ErrEntityExists, "entity_exists", http.StatusConflict},
	{pkgerrors.ErrRunInProgress, "run_in_progress", http.StatusConflict},
	{pkgerrors.ErrUnknownConfigKey, "unknown_config_key", http.StatusBadRequest},
	{pkgerrors.ErrInvalidConfig, "invalid_config", http.StatusBadRequest},
	{pkgerrors.ErrShapeMismatch, "shape_mismatch", http.StatusUnprocessableEntity},
	{pkgerrors.ErrEmptyPartition, "empty_partition", http.StatusUnprocessableEntity},
	{pkgerrors.ErrInsufficientClients, "insufficient_clients", http.StatusServiceUnavailable},
	{pkgerrors.ErrQuorumNotMet, "quorum_not_met", http.StatusServiceUnavailable},
	{pkgerrors.ErrClientUnreachable, "client_unreachable", http.StatusBadGateway},
	{pkgerrors.ErrEmptyAggregation, "empty_aggregation", http.StatusInternalServerError},
	{pkgerrors.ErrInvalidData, "invalid_data", http.StatusBadRequest},
	{apiutil.ErrUnsupportedContentType, "unsupported_content_type", http.StatusUnsupportedMediaType},
	{apiutil.ErrValidation, "validation", http.StatusBadRequest},
}

// Classify returns the HTTP status and error code for err.
func Classify(err error) (int, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}

	return http.StatusInternalServerError, "internal"
}

// FromCode maps an error code back to its sentinel. Unknown codes return nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}

	return nil
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	status, code := Classify(err)
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorBody{Error: err.Error(), Code: code}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// EncodeCBORResponse writes response as CBOR, honouring supermq.Response.
func EncodeCBORResponse(_ context.Context, w http.ResponseWriter, response any) error {
	w.Header().Set("Content-Type", CBORContentType)
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	data, err := fl.Marshal(response)
	if err != nil {
		return err
	}
	_, err = w.Write(data)

	return err
}

func EncodeCBORError(_ context.Context, err error, w http.ResponseWriter) {
	status, code := Classify(err)
	data, merr := fl.Marshal(ErrorBody{Error: err.Error(), Code: code})
	if merr != nil {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}
	w.Header().Set("Content-Type", CBORContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
