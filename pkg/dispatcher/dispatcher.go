// Package dispatcher submits compiled workflows to a remote runner.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/otelhelper"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 30 * time.Second
	ExecutePath    = "/workflow/execute"
)

// Dispatcher posts execution payloads to {server.BaseURL}/workflow/execute.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Dispatcher)

// WithTimeout overrides the per-dispatch deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		tracer:  otelhelper.Tracer("browserflow/dispatcher"),
		logger:  logger.With("module", "dispatcher"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Dispatch sends payload to server and returns the runner's response body
// verbatim. Local task and session state is left untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, server *models.Server, payload *models.ExecutionPayload) ([]byte, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.dispatch",
		attribute.String(otelhelper.ServerIDKey, server.ID),
		attribute.String(otelhelper.SessionIDKey, payload.BrowserConnection.SessionID),
		attribute.Int(otelhelper.DebugPortKey, int(payload.BrowserConnection.DebugPort)),
	)
	defer span.End()

	body, err := d.dispatch(ctx, server, payload)
	if err != nil {
		otelhelper.SetError(span, err, kind(err))

		return nil, err
	}

	return body, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, server *models.Server, payload *models.ExecutionPayload) ([]byte, error) {
	logger := d.logger.With("server_id", server.ID, "session_id", payload.BrowserConnection.SessionID)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target := strings.TrimRight(server.BaseURL, "/") + ExecutePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if server.Token != "" {
		req.Header.Set("Authorization", "Bearer "+server.Token)
	}

	otelhelper.Inject(ctx, propagation.HeaderCarrier(req.Header))

	started := time.Now()

	logger.InfoContext(ctx, "Dispatching workflow", "url", target, "script_bytes", len(payload.Script))

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.ErrorContext(ctx, "Workflow dispatch timed out", "timeout", d.timeout)

			return nil, fmt.Errorf("%w after %s", ErrDispatchTimeout, d.timeout)
		}

		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WarnContext(ctx, "Failed to close runner response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrDispatchTimeout, d.timeout)
		}

		return nil, fmt.Errorf("%w: reading response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rejected := &RejectedError{
			ServerID:   server.ID,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(resp.StatusCode, body),
			Body:       body,
		}
		logger.ErrorContext(ctx, "Runner rejected workflow", "status", resp.StatusCode, "message", rejected.Message)

		return nil, rejected
	}

	logger.InfoContext(ctx, "Workflow dispatched", "status", resp.StatusCode, "duration", time.Since(started))

	return body, nil
}

// rejectionMessage prefers error, message or details from a JSON body and
// falls back to the HTTP status text.
func rejectionMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)

		for _, key := range []string{"error", "message", "details"} {
			value := parsed.Get(key)
			if value.Type == gjson.String && value.String() != "" {
				return value.String()
			}

			if value.IsObject() {
				if nested := value.Get("message").String(); nested != "" {
					return nested
				}
			}
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}

	return fmt.Sprintf("status %d", status)
}
