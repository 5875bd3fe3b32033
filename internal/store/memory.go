package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
)

// MemoryStore keeps diagnoses in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
	reg  *metrics.Registry
	now  func() time.Time
}

func NewMemoryStore(reg *metrics.Registry) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
		reg:  reg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Add(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec.ID = uuid.NewString()
	rec.Timestamp = s.now()

	s.mu.Lock()
	s.data[rec.ID] = rec
	s.mu.Unlock()

	log.Ctx(ctx).Info().Str("diagnosis_id", rec.ID).Msg("diagnosis stored in memory")
	s.reg.Inc(ctx, "diagnoses_stored_total", map[string]string{"driver": "memory"}, 1)
	return rec.ID, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	return nil
}
