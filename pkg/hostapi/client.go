// Package hostapi is the client for the browser host session API, reached
// through the local relay.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/tidwall/gjson"
)

const (
	DefaultRelayURL = "http://127.0.0.1:3001"
	DefaultTimeout  = 15 * time.Second

	portStatusClosed = "closed"
)

// StartResponse is the host answer to a start request.
type StartResponse struct {
	DebugPort uint16 `json:"debug_port"`
	UUID      string `json:"uuid"`
}

type startRequest struct {
	UUID      string `json:"uuid"`
	Headless  bool   `json:"headless"`
	DebugPort uint16 `json:"debug_port"`
}

type stopRequest struct {
	UUID string `json:"uuid"`
}

// Client talks to the relay. HostPort selects the host instance behind it.
type Client struct {
	baseURL    string
	hostPort   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a relay client. A nil httpClient uses a client with DefaultTimeout.
func NewClient(baseURL string, hostPort int, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultRelayURL
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL:    baseURL,
		hostPort:   hostPort,
		httpClient: httpClient,
		logger:     logger.With("module", "hostapi", "host_port", hostPort),
	}
}

// HostPort returns the host instance port selected on the relay.
func (c *Client) HostPort() int {
	return c.hostPort
}

// ListSessions returns every session the host currently knows.
func (c *Client) ListSessions(ctx context.Context) ([]models.Session, error) {
	body, err := c.do(ctx, "ListSessions", http.MethodGet, "/sessions", nil)
	if err != nil {
		return nil, err
	}

	var sessions []models.Session

	// Some host versions wrap the list in {"sessions": [...]}.
	wrapped := gjson.GetBytes(body, "sessions")
	if wrapped.IsArray() {
		body = []byte(wrapped.Raw)
	}

	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, &HostError{Op: "ListSessions", Message: "invalid session list", Err: fmt.Errorf("%w: %v", ErrHostRejected, err)}
	}

	return sessions, nil
}

// StartSession asks the host to launch a session with the given debug port.
func (c *Client) StartSession(ctx context.Context, uuid string, headless bool, debugPort uint16) (*StartResponse, error) {
	body, err := c.do(ctx, "StartSession", http.MethodPost, "/sessions/start", startRequest{
		UUID:      uuid,
		Headless:  headless,
		DebugPort: debugPort,
	})
	if err != nil {
		return nil, err
	}

	response := &StartResponse{}
	if len(bytes.TrimSpace(body)) == 0 {
		return response, nil
	}

	if err := json.Unmarshal(body, response); err != nil {
		return nil, &HostError{Op: "StartSession", Message: "invalid start response", Err: fmt.Errorf("%w: %v", ErrHostRejected, err)}
	}

	return response, nil
}

// StopSession asks the host to stop a session.
func (c *Client) StopSession(ctx context.Context, uuid string) error {
	_, err := c.do(ctx, "StopSession", http.MethodPost, "/sessions/stop", stopRequest{UUID: uuid})

	return err
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}

	query := u.Query()
	query.Set("port", strconv.Itoa(c.hostPort))
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	target, err := c.endpoint(path)
	if err != nil {
		return nil, &HostError{Op: op, Err: fmt.Errorf("%w: %v", ErrHostUnavailable, err)}
	}

	var reqBody io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}

		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &HostError{Op: op, Err: fmt.Errorf("%w: %v", ErrHostUnavailable, err)}
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close host response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		hostErr := parseHostError(op, resp.StatusCode, body)
		c.logger.WarnContext(ctx, "browser host returned an error",
			"op", op, "status", resp.StatusCode, "port_status", hostErr.PortStatus, "error", hostErr.Message)

		return nil, hostErr
	}

	return body, nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return &HostError{Op: op, Port: c.hostPort, Err: fmt.Errorf("%w: %v", ErrHostTimeout, err)}
	}

	if errors.Is(err, context.Canceled) {
		return &HostError{Op: op, Port: c.hostPort, Err: fmt.Errorf("%w: %w", ErrHostTimeout, err)}
	}

	return &HostError{Op: op, Port: c.hostPort, Err: fmt.Errorf("%w: %v", ErrHostUnavailable, err)}
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }

	return errors.As(err, &timeout) && timeout.Timeout()
}

// parseHostError reads {error, details, port, portStatus}; bodies that are not
// JSON fall back to the HTTP status text.
func parseHostError(op string, status int, body []byte) *HostError {
	hostErr := &HostError{Op: op, StatusCode: status, Err: ErrHostRejected}

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		hostErr.Message = parsed.Get("error").String()
		hostErr.Details = parsed.Get("details").String()
		hostErr.Port = int(parsed.Get("port").Int())
		hostErr.PortStatus = parsed.Get("portStatus").String()
	}

	if hostErr.Message == "" {
		hostErr.Message = http.StatusText(status)
	}

	if hostErr.PortStatus == portStatusClosed {
		hostErr.Err = ErrHostPortClosed
	}

	return hostErr
}
