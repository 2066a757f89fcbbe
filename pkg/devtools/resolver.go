// Package devtools discovers the remote-debugging WebSocket endpoint of a
// browser listening on a debug port.
package devtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultHost    = "127.0.0.1"
	DefaultTimeout = 5 * time.Second
)

// ErrEndpointUnavailable means the debug port never answered any discovery
// request, so dispatching against it would be blind.
var ErrEndpointUnavailable = errors.New("devtools endpoint unavailable")

// Strategy names the discovery step that produced an endpoint.
type Strategy string

const (
	StrategyVersion     Strategy = "version"
	StrategyPageList    Strategy = "page_list"
	StrategyFrontendURL Strategy = "frontend_url"
	StrategyFirstPageID Strategy = "first_page_id"
	StrategySessionPage Strategy = "session_page"
	StrategyDefault     Strategy = "default"
)

const (
	defaultBrowserPath    = "/devtools/browser"
	pagePathPrefix        = "/devtools/page/"
	maxDiscoveryBodyBytes = 1 << 20
)

// Endpoint is a resolved WebSocket debugger URL.
type Endpoint struct {
	URL      string
	Strategy Strategy
}

// Resolver walks the discovery chain against http://Host:port.
type Resolver struct {
	host   string
	client *http.Client
	logger *slog.Logger
}

func NewResolver(client *http.Client, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &Resolver{
		host:   DefaultHost,
		client: client,
		logger: logger.With("module", "devtools_resolver"),
	}
}

// WithHost returns a copy of the resolver targeting another host.
func (r *Resolver) WithHost(host string) *Resolver {
	clone := *r
	clone.host = host

	return &clone
}

// Resolve returns the WebSocket endpoint for the browser on port.
func (r *Resolver) Resolve(ctx context.Context, port uint16, sessionID string) (*Endpoint, error) {
	logger := r.logger.With("port", port, "session_id", sessionID)
	base := fmt.Sprintf("http://%s:%d", r.host, port)
	reached := false

	body, err := r.get(ctx, base+"/json/version")
	if err == nil {
		reached = true

		if ws := gjson.GetBytes(body, "webSocketDebuggerUrl").String(); ws != "" {
			return r.found(ctx, logger, ws, StrategyVersion), nil
		}
	} else {
		logger.DebugContext(ctx, "Version discovery failed", "error", err)
	}

	pages, answered := r.pages(ctx, base)
	if answered {
		reached = true

		if endpoint := fromPages(pages, r.host, port); endpoint != nil {
			return r.found(ctx, logger, endpoint.URL, endpoint.Strategy), nil
		}
	} else {
		logger.DebugContext(ctx, "Page list discovery failed")
	}

	if sessionID != "" {
		ok, err := r.reachable(ctx, base+pagePathPrefix+url.PathEscape(sessionID))
		if err == nil {
			reached = true

			if ok {
				ws := fmt.Sprintf("ws://%s:%d%s%s", r.host, port, pagePathPrefix, url.PathEscape(sessionID))

				return r.found(ctx, logger, ws, StrategySessionPage), nil
			}
		}
	}

	if !reached {
		logger.WarnContext(ctx, "Debug port did not answer any discovery request")

		return nil, fmt.Errorf("%w: port %d", ErrEndpointUnavailable, port)
	}

	ws := fmt.Sprintf("ws://%s:%d%s", r.host, port, defaultBrowserPath)

	return r.found(ctx, logger, ws, StrategyDefault), nil
}

func (r *Resolver) found(ctx context.Context, logger *slog.Logger, ws string, strategy Strategy) *Endpoint {
	logger.DebugContext(ctx, "Resolved devtools endpoint", "endpoint", ws, "strategy", strategy)

	return &Endpoint{URL: ws, Strategy: strategy}
}

// pages reads /json/list, falling back to the legacy /json listing. The
// boolean reports whether either request got an HTTP answer.
func (r *Resolver) pages(ctx context.Context, base string) (gjson.Result, bool) {
	answered := false

	for _, path := range []string{"/json/list", "/json"} {
		body, err := r.get(ctx, base+path)
		if err != nil {
			continue
		}

		answered = true

		if parsed := gjson.ParseBytes(body); parsed.IsArray() {
			return parsed, true
		}
	}

	return gjson.Result{}, answered
}

// fromPages applies, in order: a page webSocketDebuggerUrl, the ws= parameter
// of a devtoolsFrontendUrl, then the first page id.
func fromPages(pages gjson.Result, host string, port uint16) *Endpoint {
	list := pages.Array()

	for _, page := range list {
		if ws := page.Get("webSocketDebuggerUrl").String(); ws != "" {
			return &Endpoint{URL: ws, Strategy: StrategyPageList}
		}
	}

	for _, page := range list {
		if ws := frontendWS(page.Get("devtoolsFrontendUrl").String()); ws != "" {
			return &Endpoint{URL: ws, Strategy: StrategyFrontendURL}
		}
	}

	for _, page := range list {
		if id := page.Get("id").String(); id != "" {
			return &Endpoint{
				URL:      fmt.Sprintf("ws://%s:%d%s%s", host, port, pagePathPrefix, id),
				Strategy: StrategyFirstPageID,
			}
		}
	}

	return nil
}

func frontendWS(frontend string) string {
	if frontend == "" {
		return ""
	}

	_, rawQuery, found := strings.Cut(frontend, "?")
	if !found {
		return ""
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}

	if ws := query.Get("ws"); ws != "" {
		return "ws://" + ws
	}

	if wss := query.Get("wss"); wss != "" {
		return "wss://" + wss
	}

	return ""
}

func (r *Resolver) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBodyBytes))
	if err != nil {
		return nil, err
	}

	// Any answer counts as reached; non-200 bodies are simply not used.
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	return body, nil
}

func (r *Resolver) reachable(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return resp.StatusCode < http.StatusBadRequest || resp.StatusCode == http.StatusUpgradeRequired, nil
}
