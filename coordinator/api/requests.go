package api

import (
	"fmt"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/api"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type clientReq struct {
	coordinator.ClientInfo `json:",inline"`
}

func (req *clientReq) validate() error {
	if req.Address == "" {
		return fmt.Errorf("%w: missing client address", pkgerrors.ErrInvalidConfig)
	}

	return nil
}

type runReq struct {
	fl.RunConfig `json:",inline"`
}

func (req *runReq) validate() error {
	return req.RunConfig.Validate()
}

type entityReq struct {
	id string
}

func (req *entityReq) validate() error {
	if req.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (req *listEntityReq) validate() error {
	if req.limit > api.MaxLimitSize {
		return fmt.Errorf("%w: limit must not exceed %d", pkgerrors.ErrInvalidConfig, api.MaxLimitSize)
	}

	return nil
}
