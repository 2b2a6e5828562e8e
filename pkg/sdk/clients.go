package sdk

import (
	"encoding/json"
	"net/http"
	"time"
)

const clientsEndpoint = "/clients"

type Client struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Address      string    `json:"address"`
	Excluded     bool      `json:"excluded,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
}

type ClientPage struct {
	Total   int      `json:"total"`
	Clients []Client `json:"clients"`
}

func (sdk *flSDK) RegisterClient(client Client) (Client, error) {
	data, err := json.Marshal(client)
	if err != nil {
		return Client{}, err
	}

	url := sdk.coordinatorURL + clientsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusCreated)
	if err != nil {
		return Client{}, err
	}

	var c Client
	if err := json.Unmarshal(body, &c); err != nil {
		return Client{}, err
	}

	return c, nil
}

func (sdk *flSDK) ListClients() (ClientPage, error) {
	url := sdk.coordinatorURL + clientsEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return ClientPage{}, err
	}

	var cp ClientPage
	if err := json.Unmarshal(body, &cp); err != nil {
		return ClientPage{}, err
	}

	return cp, nil
}

func (sdk *flSDK) RemoveClient(id string) error {
	url := sdk.coordinatorURL + clientsEndpoint + "/" + id

	if _, err := sdk.processRequest(http.MethodDelete, url, nil, http.StatusNoContent); err != nil {
		return err
	}

	return nil
}
