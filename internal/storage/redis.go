package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"relai/internal/models"
)

const (
	redisSessionPrefix = "relai:session:"
	redisIndexKey      = "relai:sessions"
	redisGeneratingKey = "relai:sessions:generating"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps one JSON document per session plus a sorted index by
// last update, used for pruning.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedis(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.TTL, log: log}, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, session models.Session) error {
	session = stamp(session)
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisSessionPrefix+key, data, s.ttl)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(session.UpdatedAt.Unix()), Member: key})
		if session.State == models.StateGenerating && session.Job != nil {
			p.SAdd(ctx, redisGeneratingKey, key)
		} else {
			p.SRem(ctx, redisGeneratingKey, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (models.Session, error) {
	data, err := s.client.Get(ctx, redisSessionPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	return decodeSession(key, data)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, redisSessionPrefix+key)
		p.ZRem(ctx, redisIndexKey, key)
		p.SRem(ctx, redisGeneratingKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Generating(ctx context.Context) ([]Record, error) {
	keys, err := s.client.SMembers(ctx, redisGeneratingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list generating sessions: %w", err)
	}

	var out []Record
	for _, key := range keys {
		session, err := s.Load(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// expired by TTL
			s.client.SRem(ctx, redisGeneratingKey, key)
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("session", key).Msg("skipping unreadable session")
			continue
		}
		out = append(out, Record{Key: key, Session: session})
	}
	return out, nil
}

func (s *RedisStore) PruneBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	keys, err := s.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
