// Package blobstore keeps uploaded and generated files for the lifetime of a
// session. Keys are random and owned by exactly one session.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("blobstore: not found")

// ErrInvalidKey is returned for keys that are empty or escape the store.
var ErrInvalidKey = errors.New("blobstore: invalid key")

// Store is a scoped key-value blob store.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewKey returns a fresh random key.
func NewKey() string {
	return uuid.NewString()
}

// Open builds the backend selected in the storage configuration.
func Open(ctx context.Context, cfg coreconfig.StorageConfig, rcfg coreconfig.RedisConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", coreconfig.StorageFS:
		return NewFS(cfg.Dir)
	case coreconfig.StorageRedis:
		return NewRedis(ctx, rcfg, cfg.TTL)
	default:
		return nil, fmt.Errorf("blobstore: unknown backend %q", cfg.Backend)
	}
}

// DeleteAll removes every key and returns the joined errors of the failed
// deletions. Missing keys are not errors.
func DeleteAll(ctx context.Context, s Store, keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
