package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
)

// Collection is the name of the diagnoses collection, table or key prefix.
const Collection = "diagnoses"

var ErrNotFound = errors.New("diagnosis not found")

// Record is one stored diagnosis document. ID and Timestamp are assigned by
// the store on insert.
type Record struct {
	ID             string    `json:"id"`
	ImageURL       string    `json:"imageUrl"`
	MockDiagnosis  string    `json:"mockDiagnosis"`
	MockConfidence float64   `json:"mockConfidence"`
	Timestamp      time.Time `json:"timestamp"`
}

// Store is an append-only diagnosis document store.
type Store interface {
	// Add inserts rec and returns the generated document id.
	Add(ctx context.Context, rec Record) (string, error)
	Get(ctx context.Context, id string) (Record, error)
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, reg *metrics.Registry) (Store, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(reg), nil
	case config.StorePostgres:
		db, err := ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return OpenPostgresStore(ctx, db, reg)
	case config.StoreRedis:
		client, err := ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, reg), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
