package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// APIError is a non-2xx answer from the agent.
type APIError struct {
	StatusCode int
	Message    string
	// Process is set when the agent reports the state of a failed launch.
	Process *Process
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the agent.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// Client talks to the gamehost agent HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	token   string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // PEM file used to verify an https agent
	Insecure bool         // Skip TLS verification
	Token    string       // Agent token sent as a bearer credential
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new agent API client.
func New(config Config) (*Client, error) {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Insecure || config.CACert != "" {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		token:   config.Token,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// List returns every process tracked by the agent.
func (c *Client) List(ctx context.Context) ([]Process, error) {
	var out []Process
	if err := c.do(ctx, http.MethodGet, "/processes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one process.
func (c *Client) Get(ctx context.Context, id string) (Process, error) {
	var out Process
	err := c.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Launch starts a new process. On a launch failure the returned *APIError
// carries the terminated process.
func (c *Client) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	c.logger.Debug("launching process", "launch_path", req.LaunchPath)
	var out Process
	err := c.do(ctx, http.MethodPost, "/processes", req, &out)
	return out, err
}

// Activate reports that the process finished initializing.
func (c *Client) Activate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+url.PathEscape(id)+"/activate", nil, nil)
}

// Terminate asks the agent to terminate a process. An empty reason lets the
// agent choose its default.
func (c *Client) Terminate(ctx context.Context, id, reason string) error {
	p := "/processes/" + url.PathEscape(id) + "/terminate"
	if reason != "" {
		p += "?reason=" + url.QueryEscape(reason)
	}
	return c.do(ctx, http.MethodPost, p, nil, nil)
}

// SetLogPaths replaces the log paths of a process; nil clears them.
func (c *Client) SetLogPaths(ctx context.Context, id string, paths []string) error {
	return c.do(ctx, http.MethodPut, "/processes/"+url.PathEscape(id)+"/log-paths", paths, nil)
}

// SetGameSession associates a game session with a process.
func (c *Client) SetGameSession(ctx context.Context, id, sessionID string) error {
	body := map[string]string{"game_session_id": sessionID}
	return c.do(ctx, http.MethodPut, "/processes/"+url.PathEscape(id)+"/game-session", body, nil)
}

// Resources returns the latest resource sample of a process.
func (c *Client) Resources(ctx context.Context, id string) (Resources, error) {
	var out Resources
	err := c.do(ctx, http.MethodGet, "/processes/"+url.PathEscape(id)+"/resources", nil, &out)
	return out, err
}

// Forget drops a terminated process from the agent.
func (c *Client) Forget(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/processes/"+url.PathEscape(id), nil, nil)
}

// IsReachable checks if the agent is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.List(ctx)
	if err != nil {
		c.logger.Debug("agent unreachable", "error", err)
		return false
	}
	return true
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicit opt-in
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(config.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// do sends body as JSON (when non-nil) and decodes a 2xx answer into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "method", method, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	ae := &APIError{StatusCode: resp.StatusCode}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		c.logger.Debug("failed to decode error response", "status", resp.StatusCode)
		return ae
	}
	ae.Message = er.Error
	ae.Process = er.Process
	return ae
}
