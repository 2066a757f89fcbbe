package devtools_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"

	"github.com/dukex/browserflow/pkg/devtools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// debugServer serves the bodies built for its own port and 404s everything else.
func debugServer(t *testing.T, routes func(port uint16) map[string]string) uint16 {
	t.Helper()

	var bodies map[string]string

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	port := serverPort(t, "http://"+server.Listener.Addr().String())
	bodies = routes(port)

	server.Start()
	t.Cleanup(server.Close)

	return port
}

func serverPort(t *testing.T, raw string) uint16 {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	port, err := strconv.ParseUint(u.Port(), 10, 16)
	require.NoError(t, err)

	return uint16(port)
}

func TestResolver_FallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sessionID string
		routes    func(port uint16) map[string]string
		want      func(port uint16) string
		strategy  devtools.Strategy
	}{
		{
			name: "version endpoint",
			routes: func(port uint16) map[string]string {
				return map[string]string{
					"/json/version": fmt.Sprintf(`{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://127.0.0.1:%d/devtools/browser/abc"}`, port),
				}
			},
			want:     func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/browser/abc", port) },
			strategy: devtools.StrategyVersion,
		},
		{
			name: "page list",
			routes: func(port uint16) map[string]string {
				return map[string]string{
					"/json/version": `{"Browser":"Chrome/120"}`,
					"/json/list": fmt.Sprintf(`[{"id":"bg","type":"background_page"},{"id":"P1","type":"page","webSocketDebuggerUrl":"ws://127.0.0.1:%d/devtools/page/P1"}]`, port),
				}
			},
			want:     func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/P1", port) },
			strategy: devtools.StrategyPageList,
		},
		{
			name: "legacy listing with frontend url",
			routes: func(port uint16) map[string]string {
				return map[string]string{
					"/json": fmt.Sprintf(`[{"id":"P2","devtoolsFrontendUrl":"/devtools/inspector.html?ws=127.0.0.1:%d/devtools/page/P2"}]`, port),
				}
			},
			want:     func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/P2", port) },
			strategy: devtools.StrategyFrontendURL,
		},
		{
			name: "first page id",
			routes: func(uint16) map[string]string {
				return map[string]string{
					"/json/list": `[{"id":"P3","type":"page"},{"id":"P4","type":"page"}]`,
				}
			},
			want:     func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/P3", port) },
			strategy: devtools.StrategyFirstPageID,
		},
		{
			name:      "session page",
			sessionID: "sess-1",
			routes: func(uint16) map[string]string {
				return map[string]string{
					"/json/list":             `[]`,
					"/devtools/page/sess-1": `{}`,
				}
			},
			want:     func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/sess-1", port) },
			strategy: devtools.StrategySessionPage,
		},
		{
			name:      "best effort default",
			sessionID: "sess-2",
			routes:    func(uint16) map[string]string { return map[string]string{} },
			want:      func(port uint16) string { return fmt.Sprintf("ws://127.0.0.1:%d/devtools/browser", port) },
			strategy:  devtools.StrategyDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			port := debugServer(t, tt.routes)

			resolver := devtools.NewResolver(nil, testLogger())

			endpoint, err := resolver.Resolve(context.Background(), port, tt.sessionID)
			require.NoError(t, err)
			assert.Equal(t, tt.want(port), endpoint.URL)
			assert.Equal(t, tt.strategy, endpoint.Strategy)
		})
	}
}

func TestResolver_UnreachablePort(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	port := serverPort(t, server.URL)
	server.Close()

	resolver := devtools.NewResolver(nil, testLogger())

	endpoint, err := resolver.Resolve(context.Background(), port, "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, devtools.ErrEndpointUnavailable)
	assert.Nil(t, endpoint)
}

func TestResolver_VersionWinsOverPages(t *testing.T) {
	t.Parallel()

	port := debugServer(t, func(uint16) map[string]string {
		return map[string]string{
			"/json/version": `{"webSocketDebuggerUrl":"ws://browser"}`,
			"/json/list":    `[{"id":"P1","webSocketDebuggerUrl":"ws://page"}]`,
		}
	})

	endpoint, err := devtools.NewResolver(nil, testLogger()).WithHost("127.0.0.1").Resolve(context.Background(), port, "")
	require.NoError(t, err)
	assert.Equal(t, "ws://browser", endpoint.URL)
}

func TestNopVerifier(t *testing.T) {
	t.Parallel()

	var verifier devtools.Verifier = devtools.NopVerifier{}

	assert.NoError(t, verifier.Verify(context.Background(), "ws://anything"))
}
