package api

import (
	"net/http"

	"github.com/absmach/fedlearn/coordinator"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*clientResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*runPageResponse)(nil)
	_ supermq.Response = (*historyResponse)(nil)
	_ supermq.Response = (*checkpointResponse)(nil)
)

type clientResponse struct {
	coordinator.ClientInfo
	created bool
	deleted bool
}

func (res clientResponse) Code() int {
	if res.created {
		return http.StatusCreated
	}
	if res.deleted {
		return http.StatusNoContent
	}

	return http.StatusOK
}

func (res clientResponse) Headers() map[string]string {
	if res.created {
		return map[string]string{
			"Location": "/clients/" + res.ID,
		}
	}

	return map[string]string{}
}

func (res clientResponse) Empty() bool {
	return res.deleted
}

type listClientsResponse struct {
	Total   int                      `json:"total"`
	Clients []coordinator.ClientInfo `json:"clients"`
}

func (res listClientsResponse) Code() int {
	return http.StatusOK
}

func (res listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res listClientsResponse) Empty() bool {
	return false
}

type runResponse struct {
	fl.Run
	created bool
}

func (res runResponse) Code() int {
	if res.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (res runResponse) Headers() map[string]string {
	if res.created {
		return map[string]string{
			"Location": "/runs/" + res.ID,
		}
	}

	return map[string]string{}
}

func (res runResponse) Empty() bool {
	return false
}

type runPageResponse struct {
	fl.RunPage
}

func (res runPageResponse) Code() int {
	return http.StatusOK
}

func (res runPageResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res runPageResponse) Empty() bool {
	return false
}

type historyResponse struct {
	RunID  string        `json:"run_id"`
	Rounds fl.RunHistory `json:"rounds"`
}

func (res historyResponse) Code() int {
	return http.StatusOK
}

func (res historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res historyResponse) Empty() bool {
	return false
}

type checkpointResponse struct {
	fl.Checkpoint
}

func (res checkpointResponse) Code() int {
	return http.StatusOK
}

func (res checkpointResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res checkpointResponse) Empty() bool {
	return false
}
