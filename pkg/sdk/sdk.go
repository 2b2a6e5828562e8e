package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/fedlearn/pkg/api"
	"github.com/absmach/fedlearn/pkg/fl"
)

const CTJSON string = "application/json"

type SDK interface {
	// RegisterClient registers a client that serves the training API at
	// client.Address.
	//
	// example:
	//  client := sdk.Client{
	//    Name:    "edge-01",
	//    Address: "http://10.0.0.5:9100",
	//  }
	//  client, _ := sdk.RegisterClient(client)
	//  fmt.Println(client)
	RegisterClient(client Client) (Client, error)

	// ListClients lists registered clients.
	//
	// example:
	//  page, _ := sdk.ListClients()
	//  fmt.Println(page)
	ListClients() (ClientPage, error)

	// RemoveClient removes a client by id.
	//
	// example:
	//  _ := sdk.RemoveClient("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	RemoveClient(id string) error

	// StartRun starts a training run.
	//
	// example:
	//  cfg := fl.DefaultRunConfig()
	//  cfg.NumRounds = 10
	//  run, _ := sdk.StartRun(cfg)
	//  fmt.Println(run)
	StartRun(cfg fl.RunConfig) (fl.Run, error)

	// GetRun gets a run by id.
	//
	// example:
	//  run, _ := sdk.GetRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(run.Status)
	GetRun(id string) (fl.Run, error)

	// ListRuns lists runs, newest first.
	//
	// example:
	//  page, _ := sdk.ListRuns(0, 10)
	//  fmt.Println(page)
	ListRuns(offset uint64, limit uint64) (fl.RunPage, error)

	// StopRun cancels an active run.
	//
	// example:
	//  run, _ := sdk.StopRun("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(run.Status)
	StopRun(id string) (fl.Run, error)

	// GetHistory returns the round summaries recorded for a run.
	//
	// example:
	//  history, _ := sdk.GetHistory("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(history)
	GetHistory(id string) (fl.RunHistory, error)

	// GetParameters returns the latest global parameters of a run.
	//
	// example:
	//  cp, _ := sdk.GetParameters("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(cp.RoundIndex)
	GetParameters(id string) (fl.Checkpoint, error)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
	Timeout         time.Duration
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: strings.TrimSuffix(cfg.CoordinatorURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *flSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		return []byte{}, decodeError(resp.StatusCode, body)
	}

	return body, nil
}

// decodeError recovers the sentinel error carried in an error body.
func decodeError(status int, body []byte) error {
	var eb api.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Code == "" {
		return fmt.Errorf("unexpected response code: %d", status)
	}
	if sentinel := api.FromCode(eb.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, eb.Error)
	}

	return fmt.Errorf("unexpected response code: %d: %s", status, eb.Error)
}
