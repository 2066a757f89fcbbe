package file

import (
	"context"
	"errors"

	"github.com/dukex/browserflow/pkg/models"
)

func (fp *Persistence) ServerByID(_ context.Context, id string) (*models.Server, error) {
	var server models.Server

	found, err := fp.read(serversDir, id, &server)
	if err != nil || !found {
		return nil, err
	}

	return &server, nil
}

func (fp *Persistence) SaveServer(_ context.Context, server *models.Server) error {
	if server.ID == "" {
		return errors.New("server ID is required")
	}

	return fp.write(serversDir, server.ID, server)
}
