package api

import (
	"errors"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/absmach/fedlearn/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type roundReq struct {
	Parameters fl.ParameterSet `cbor:"1,keyasint"`
	Config     fl.RoundConfig  `cbor:"2,keyasint"`
}

func (req roundReq) validate(phase fl.Phase) error {
	if len(req.Parameters) == 0 {
		return errors.Join(apiutil.ErrValidation, pkgerrors.ErrEmptyKey)
	}
	if err := req.Parameters.Validate(); err != nil {
		return errors.Join(apiutil.ErrValidation, err)
	}
	if req.Config.Phase != phase {
		return errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidConfig)
	}
	if err := req.Config.Validate(); err != nil {
		return errors.Join(apiutil.ErrValidation, err)
	}

	return nil
}
