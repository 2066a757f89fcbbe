package devtools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Verifier confirms that a resolved endpoint accepts a CDP connection.
type Verifier interface {
	Verify(ctx context.Context, wsEndpoint string) error
}

// NopVerifier accepts every endpoint.
type NopVerifier struct{}

func (NopVerifier) Verify(context.Context, string) error {
	return nil
}

// PlaywrightVerifier connects with playwright over CDP and disconnects
// again. The driver is started lazily on first use.
type PlaywrightVerifier struct {
	timeout time.Duration
	install bool
	logger  *slog.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywrightVerifier(timeout time.Duration, install bool, logger *slog.Logger) *PlaywrightVerifier {
	return &PlaywrightVerifier{
		timeout: timeout,
		install: install,
		logger:  logger.With("module", "playwright_verifier"),
	}
}

func (v *PlaywrightVerifier) driver() (*playwright.Playwright, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pw != nil {
		return v.pw, nil
	}

	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if v.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	v.pw = pw

	return pw, nil
}

func (v *PlaywrightVerifier) Verify(ctx context.Context, wsEndpoint string) error {
	pw, err := v.driver()
	if err != nil {
		return err
	}

	timeout := float64(v.timeout.Milliseconds())

	browser, err := pw.Chromium.ConnectOverCDP(wsEndpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: &timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: cdp connect to %s: %w", ErrEndpointUnavailable, wsEndpoint, err)
	}

	v.logger.DebugContext(ctx, "Verified devtools endpoint", "endpoint", wsEndpoint, "contexts", len(browser.Contexts()))

	// Closing a CDP-connected browser only disconnects.
	if err := browser.Close(); err != nil {
		v.logger.WarnContext(ctx, "Failed to disconnect verification client", "error", err)
	}

	return nil
}

// Close stops the playwright driver if it was started.
func (v *PlaywrightVerifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pw == nil {
		return nil
	}

	err := v.pw.Stop()
	v.pw = nil

	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}

	return nil
}
