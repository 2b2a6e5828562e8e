package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/absmach/fedlearn/pkg/fl"
)

const runsEndpoint = "/runs"

type historyPage struct {
	RunID  string        `json:"run_id"`
	Rounds fl.RunHistory `json:"rounds"`
}

func (sdk *flSDK) StartRun(cfg fl.RunConfig) (fl.Run, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fl.Run{}, err
	}

	url := sdk.coordinatorURL + runsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return fl.Run{}, err
	}

	var r fl.Run
	if err := json.Unmarshal(body, &r); err != nil {
		return fl.Run{}, err
	}

	return r, nil
}

func (sdk *flSDK) GetRun(id string) (fl.Run, error) {
	url := sdk.coordinatorURL + runsEndpoint + "/" + id

	return sdk.run(http.MethodGet, url)
}

func (sdk *flSDK) ListRuns(offset, limit uint64) (fl.RunPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.coordinatorURL + runsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return fl.RunPage{}, err
	}

	var rp fl.RunPage
	if err := json.Unmarshal(body, &rp); err != nil {
		return fl.RunPage{}, err
	}

	return rp, nil
}

func (sdk *flSDK) StopRun(id string) (fl.Run, error) {
	url := fmt.Sprintf("%s%s/%s/stop", sdk.coordinatorURL, runsEndpoint, id)

	return sdk.run(http.MethodPost, url)
}

func (sdk *flSDK) GetHistory(id string) (fl.RunHistory, error) {
	url := fmt.Sprintf("%s%s/%s/history", sdk.coordinatorURL, runsEndpoint, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var hp historyPage
	if err := json.Unmarshal(body, &hp); err != nil {
		return nil, err
	}

	return hp.Rounds, nil
}

func (sdk *flSDK) GetParameters(id string) (fl.Checkpoint, error) {
	url := fmt.Sprintf("%s%s/%s/parameters", sdk.coordinatorURL, runsEndpoint, id)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	var cp fl.Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return fl.Checkpoint{}, err
	}

	return cp, nil
}

func (sdk *flSDK) run(method, url string) (fl.Run, error) {
	body, err := sdk.processRequest(method, url, nil, http.StatusOK)
	if err != nil {
		return fl.Run{}, err
	}

	var r fl.Run
	if err := json.Unmarshal(body, &r); err != nil {
		return fl.Run{}, err
	}

	return r, nil
}
