package storage

import (
	"context"
	"errors"

	"github.com/yourorg/backtest-service/internal/config"
)

// ErrNotFound is returned when an archived object does not exist
var ErrNotFound = errors.New("archived object not found")

// Archive stores serialized backtest results under slash-separated keys
type Archive interface {
	// Save writes data under key and returns its location
	Save(ctx context.Context, key string, data []byte) (string, error)

	// Load reads the object stored under key
	Load(ctx context.Context, key string) ([]byte, error)
}

// NewArchive creates the archive selected by the configuration
func NewArchive(cfg config.StorageConfig) (Archive, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Archive(cfg.S3)
	case "local":
		return NewLocalArchive(cfg.LocalPath)
	default:
		// Default to local storage
		return NewLocalArchive(cfg.LocalPath)
	}
}
