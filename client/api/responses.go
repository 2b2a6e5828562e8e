package api

import (
	"net/http"

	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*parametersRes)(nil)
	_ supermq.Response = (*reportRes)(nil)
)

type parametersRes struct {
	Parameters fl.ParameterSet `cbor:"1,keyasint"`
}

func (res parametersRes) Code() int {
	return http.StatusOK
}

func (res parametersRes) Headers() map[string]string {
	return map[string]string{}
}

func (res parametersRes) Empty() bool {
	return false
}

type reportRes struct {
	fl.ClientReport
}

func (res reportRes) Code() int {
	return http.StatusOK
}

func (res reportRes) Headers() map[string]string {
	return map[string]string{}
}

func (res reportRes) Empty() bool {
	return false
}
