package sessions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultReadyInterval = 2 * time.Second
	DefaultReadyAttempts = 5
	DefaultDebugHost     = "127.0.0.1"
)

// Prober checks whether a debug port accepts DevTools requests.
type Prober interface {
	Probe(ctx context.Context, port uint16) error
}

// HTTPProber treats any HTTP answer from /json/version as ready.
type HTTPProber struct {
	Host   string
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Host:   DefaultDebugHost,
		Client: &http.Client{Timeout: time.Second},
	}
}

func (p *HTTPProber) Probe(ctx context.Context, port uint16) error {
	url := fmt.Sprintf("http://%s:%d/json/version", p.Host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Body.Close()
}

// clockTimer lets backoff wait on a clockwork clock.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

var _ backoff.Timer = (*clockTimer)(nil)

func (t *clockTimer) Start(duration time.Duration) {
	t.timer = t.clock.NewTimer(duration)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

// waitReady probes the port every interval, the first probe one interval
// after the call, for at most attempts probes.
func waitReady(ctx context.Context, clock clockwork.Clock, prober Prober, port uint16, interval time.Duration, attempts int) (int, error) {
	timer := &clockTimer{clock: clock}
	timer.Start(interval)

	select {
	case <-ctx.Done():
		timer.Stop()

		return 0, ctx.Err()
	case <-timer.C():
	}

	probes := 0
	operation := func() error {
		probes++

		return prober.Probe(ctx, port)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), //nolint:gosec // attempts >= 1
		ctx,
	)

	err := backoff.RetryNotifyWithTimer(operation, policy, nil, timer)

	return probes, err
}
