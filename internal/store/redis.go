package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
)

// ConnectRedis accepts either a redis:// URL or a host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps each diagnosis in a hash at diagnoses:<id> and appends
// the id to the diagnoses list.
type RedisStore struct {
	client *redis.Client
	reg    *metrics.Registry
}

func NewRedisStore(client *redis.Client, reg *metrics.Registry) *RedisStore {
	return &RedisStore{client: client, reg: reg}
}

func documentKey(id string) string {
	return Collection + ":" + id
}

func (s *RedisStore) Add(ctx context.Context, rec Record) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, documentKey(id), map[string]any{
			"imageUrl":       rec.ImageURL,
			"mockDiagnosis":  rec.MockDiagnosis,
			"mockConfidence": strconv.FormatFloat(rec.MockConfidence, 'f', -1, 64),
			"timestamp":      now.Format(time.RFC3339Nano),
		})
		pipe.RPush(ctx, Collection, id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("insert diagnosis: %w", err)
	}

	log.Ctx(ctx).Info().Str("diagnosis_id", id).Msg("diagnosis stored in redis")
	s.reg.Inc(ctx, "diagnoses_stored_total", map[string]string{"driver": "redis"}, 1)
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, documentKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get diagnosis: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{
		ID:            id,
		ImageURL:      fields["imageUrl"],
		MockDiagnosis: fields["mockDiagnosis"],
	}
	if rec.MockConfidence, err = strconv.ParseFloat(fields["mockConfidence"], 64); err != nil {
		return Record{}, fmt.Errorf("decode confidence: %w", err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, fields["timestamp"]); err != nil {
		return Record{}, fmt.Errorf("decode timestamp: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
