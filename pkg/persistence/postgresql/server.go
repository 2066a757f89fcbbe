package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/browserflow/pkg/models"
)

func (p *Persistence) ServerByID(ctx context.Context, id string) (*models.Server, error) {
	var server models.Server

	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, base_url, token FROM servers WHERE id = $1`, id,
	).Scan(&server.ID, &server.Name, &server.BaseURL, &server.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	return &server, nil
}

func (p *Persistence) SaveServer(ctx context.Context, server *models.Server) error {
	if server.ID == "" {
		return errors.New("server ID is required")
	}

	query := `
		INSERT INTO servers (id, name, base_url, token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , base_url = EXCLUDED.base_url
		  , token = EXCLUDED.token
	`

	_, err := p.db.ExecContext(ctx, query, server.ID, server.Name, server.BaseURL, server.Token)
	if err != nil {
		return fmt.Errorf("failed to save server %s: %w", server.ID, err)
	}

	return nil
}
