package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// controlClient wraps the six control-plane calls of spec.md §6, using a
// bare net/http.Client per call with no session reuse beyond the
// default transport, matching original_source/client/src/api.rs's use
// of a fresh reqwest::Client per request.
type controlClient struct {
	cfg *Config
}

func newControlClient(cfg *Config) *controlClient {
	return &controlClient{cfg: cfg}
}

type statusResponse struct {
	Status string `json:"status"`
}

type connectResponse struct {
	Status string `json:"status"`
	Worker uint16 `json:"worker"`
}

type edgeResponse struct {
	Status string `json:"status"`
	Port   uint16 `json:"port"`
}

func (c *controlClient) do(method, path string, form url.Values) (*http.Response, error) {
	reqURL := c.cfg.Edge + path
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return http.DefaultClient.Do(req)
}

// CheckAuthorization reports whether the secret key is accepted by the
// edge.
func (c *controlClient) CheckAuthorization() (bool, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/check_authorization", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Connect asks the edge for its worker server port.
func (c *controlClient) Connect() (uint16, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/connect", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Worker, nil
}

// CreateEdge asks the edge to create a tunnel for id, returning the
// reported status and the dial-address clients should be told about
// (edge_ip:port).
func (c *controlClient) CreateEdge(id string, t Tunnel) (string, string, error) {
	form := url.Values{
		"name":     {id},
		"target":   {t.Target},
		"protocol": {t.Protocol},
		"mode":     {t.Mode},
	}
	resp, err := c.do(http.MethodPost, "/api/v1/edge", form)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	var out edgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.Status, fmt.Sprintf("%s:%d", c.cfg.EdgeIP, out.Port), nil
}

// DeleteEdge tears down the tunnel for t.
func (c *controlClient) DeleteEdge(t Tunnel) (string, error) {
	form := url.Values{"target": {t.Target}}
	resp, err := c.do(http.MethodDelete, "/api/v1/edge", form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// DeleteEdges tears down every tunnel owned by this secret.
func (c *controlClient) DeleteEdges() (string, error) {
	resp, err := c.do(http.MethodDelete, "/api/v1/edge/all", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Goodbye tells the edge to drain this secret's tunnels and workers.
func (c *controlClient) Goodbye() (string, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/goodbye", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Status, nil
}
