package hostapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) *hostapi.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return hostapi.NewClient(server.URL, 50325, nil, slog.Default())
}

func TestClient_ListSessions(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "50325", r.URL.Query().Get("port"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"s1","uuid":"u1","name":"one","status":"running"},{"id":"s2","uuid":"u2","name":"two","status":"stopped"}]`))
	})

	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "u1", sessions[0].UUID)
	assert.Equal(t, models.SessionStatusRunning, sessions[0].Status)
	assert.Equal(t, models.SessionStatusStopped, sessions[1].Status)
}

func TestClient_ListSessions_Wrapped(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sessions":[{"id":"s1","uuid":"u1","status":"automationRunning"}]}`))
	})

	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusAutomationRunning, sessions[0].Status)
}

func TestClient_StartSession(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/start", r.URL.Path)
		assert.Equal(t, "50325", r.URL.Query().Get("port"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["uuid"])
		assert.Equal(t, true, body["headless"])
		assert.InDelta(t, 40001, body["debug_port"], 0)

		_, _ = w.Write([]byte(`{"debug_port":40001,"uuid":"u1"}`))
	})

	resp, err := client.StartSession(context.Background(), "u1", true, 40001)
	require.NoError(t, err)
	assert.Equal(t, uint16(40001), resp.DebugPort)
	assert.Equal(t, "u1", resp.UUID)
}

func TestClient_StopSession(t *testing.T) {
	t.Parallel()

	called := false
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true

		assert.Equal(t, "/sessions/stop", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.StopSession(context.Background(), "u1"))
	assert.True(t, called)
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		want       error
		wantDetail string
	}{
		{
			name:       "closed port",
			status:     http.StatusBadGateway,
			body:       `{"error":"connection refused","details":"ECONNREFUSED","port":50325,"portStatus":"closed"}`,
			want:       hostapi.ErrHostPortClosed,
			wantDetail: "connection refused",
		},
		{
			name:       "generic failure with json body",
			status:     http.StatusInternalServerError,
			body:       `{"error":"profile locked","portStatus":"open"}`,
			want:       hostapi.ErrHostRejected,
			wantDetail: "profile locked",
		},
		{
			name:       "non json body",
			status:     http.StatusServiceUnavailable,
			body:       `<html>down</html>`,
			want:       hostapi.ErrHostRejected,
			wantDetail: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.ListSessions(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, hostapi.IsTransient(err))

			var hostErr *hostapi.HostError
			require.True(t, errors.As(err, &hostErr))
			assert.Equal(t, tt.status, hostErr.StatusCode)
			assert.Contains(t, hostErr.Error(), tt.wantDetail)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListSessions(ctx)
	require.Error(t, err)
	assert.True(t, hostapi.IsTimeout(err))
	assert.False(t, hostapi.IsPortClosed(err))
}

func TestClient_Unavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := hostapi.NewClient(server.URL, 1, nil, slog.Default())

	err := client.StopSession(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, hostapi.ErrHostUnavailable)
}
