// Package cmd builds the providers shared by the binaries from their URLs.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/dukex/browserflow/pkg/persistence/file"
	"github.com/dukex/browserflow/pkg/persistence/postgresql"
)

// scheme returns the URL scheme, or "" when url has none.
func scheme(url string) string {
	before, _, found := strings.Cut(url, "://")
	if !found {
		return ""
	}

	return strings.ToLower(before)
}

// NewPersistence selects the backend from databaseURL: postgres:// and
// postgresql:// use PostgreSQL, file:// and bare paths use JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch scheme(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	case "file", "":
		return file.NewPersistence(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", databaseURL)
	}
}
