package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"relay/internal/config"
	"relay/internal/types"
)

// Client talks to the relay daemon over HTTP. Run-starting calls block
// until the run finishes, so they carry no client-side timeout.
type Client struct {
	baseURL   string
	tokenPath string
	token     string
	http      *http.Client
	runHTTP   *http.Client
}

func New() (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   cfg.DaemonBaseURL(),
		tokenPath: tokenPath,
		http:      &http.Client{Timeout: 10 * time.Second},
		runHTTP:   &http.Client{},
	}
	_ = c.loadToken()
	return c, nil
}

func NewWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		runHTTP: &http.Client{},
	}
}

func (c *Client) loadToken() error {
	if c.tokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return err
	}
	c.token = strings.TrimSpace(string(data))
	return nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, false, &resp, c.http); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) StartRun(ctx context.Context, req StartRunRequest) (*types.RunResult, error) {
	var resp types.RunResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs", req, true, &resp, c.runHTTP); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ResumeRun(ctx context.Context, req ContinueRunRequest) (*types.RunResult, error) {
	var resp types.RunResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs/resume", req, true, &resp, c.runHTTP); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ForkRun(ctx context.Context, req ContinueRunRequest) (*types.RunResult, error) {
	var resp types.RunResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/runs/fork", req, true, &resp, c.runHTTP); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelRun(ctx context.Context, runID string) error {
	path := "/v1/runs/" + url.PathEscape(runID) + "/cancel"
	return c.doJSON(ctx, http.MethodPost, path, nil, true, nil, c.http)
}

func (c *Client) GetRun(ctx context.Context, runID string) (*types.RunDetail, error) {
	var resp types.RunDetail
	path := "/v1/runs/" + url.PathEscape(runID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &resp, c.http); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRuns(ctx context.Context, status string) ([]*types.Run, error) {
	path := "/v1/runs"
	if strings.TrimSpace(status) != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp RunsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &resp, c.http); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) ListRunMessages(ctx context.Context, runID string, limit int) ([]*types.RunMessage, error) {
	path := "/v1/runs/" + url.PathEscape(runID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp RunMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &resp, c.http); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]*types.SessionSummary, error) {
	var resp SessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, true, &resp, c.http); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) ListActive(ctx context.Context) ([]types.ActiveRun, error) {
	var resp ActiveRunsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/active", nil, true, &resp, c.http); err != nil {
		return nil, err
	}
	return resp.Active, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, requireAuth bool, out any, httpClient *http.Client) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth {
		if err := c.ensureToken(); err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s (is `relay daemon` running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ensureToken() error {
	if strings.TrimSpace(c.token) == "" {
		if err := c.loadToken(); err != nil {
			return errors.New("daemon token not found; start the daemon first")
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (http %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("request failed with http %d", resp.StatusCode)
}
