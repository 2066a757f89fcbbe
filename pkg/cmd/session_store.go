package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/browserflow/pkg/sessions/store"
)

// NewSessionStore selects where debug port assignments are kept:
// memory://, file://<path> or redis://<host>.
//
//nolint:ireturn // callers only need the store interface
func NewSessionStore(ctx context.Context, logger *slog.Logger, storeURL string) (store.Store, error) {
	switch scheme(storeURL) {
	case "memory", "":
		return store.NewMemory(), nil
	case "file":
		s, err := store.NewFile(strings.TrimPrefix(storeURL, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to open session store file: %w", err)
		}

		return s, nil
	case "redis", "rediss":
		s, err := store.NewRedis(ctx, logger, storeURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session store: %w", err)
		}

		return s, nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", storeURL)
	}
}
