package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type PraetorClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type VerifyResult struct {
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Count    int    `json:"count"`
}

type PassResult struct {
	EventsExamined   int      `json:"events_examined"`
	IncidentsCreated int      `json:"incidents_created"`
	IncidentsUpdated int      `json:"incidents_updated"`
	IncidentIDs      []string `json:"incident_ids"`
}

type Incident struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Severity       string `json:"severity"`
	KillChainStage string `json:"kill_chain_stage"`
	Summary        string `json:"summary"`
}

type BlockedActor struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

type TrapAsset struct {
	Token          string `json:"token"`
	AssetType      string `json:"asset_type"`
	Label          string `json:"label"`
	TriggeredCount int    `json:"triggered_count"`
}

func NewPraetorClient(baseURL string) *PraetorClient {
	return &PraetorClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *PraetorClient) VerifyChain(org string) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.getJSON(fmt.Sprintf("/evidence/%s/verify", url.PathEscape(org)), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *PraetorClient) Correlate(org string) (*PassResult, error) {
	var result PassResult
	if err := c.postJSON(fmt.Sprintf("/correlate/%s", url.PathEscape(org)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *PraetorClient) ListIncidents(org, status string) ([]Incident, error) {
	path := fmt.Sprintf("/incidents/%s", url.PathEscape(org))
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var incidents []Incident
	if err := c.getJSON(path, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

func (c *PraetorClient) ListBlocked(org string) ([]BlockedActor, error) {
	var blocked []BlockedActor
	if err := c.getJSON(fmt.Sprintf("/blocked/%s", url.PathEscape(org)), &blocked); err != nil {
		return nil, err
	}
	return blocked, nil
}

func (c *PraetorClient) ListTraps(org string) ([]TrapAsset, error) {
	var traps []TrapAsset
	if err := c.getJSON(fmt.Sprintf("/traps/%s", url.PathEscape(org)), &traps); err != nil {
		return nil, err
	}
	return traps, nil
}

func (c *PraetorClient) getJSON(path string, out any) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.decode(resp, out)
}

func (c *PraetorClient) postJSON(path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest("POST", c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.decode(resp, out)
}

func (c *PraetorClient) decode(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == 404 {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error: %s - %s", errResp.Error, errResp.Message)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
