package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealerops/sheetbridge/command"
)

const defaultRedisPrefix = "sheetbridge:queue"

// RedisOption configures a redis-backed queue store.
type RedisOption func(*redisStore)

// WithPassword sets the redis auth password.
func WithPassword(password string) RedisOption {
	return func(s *redisStore) { s.password = password }
}

// WithDB selects the redis logical database.
func WithDB(db int) RedisOption {
	return func(s *redisStore) { s.db = db }
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *redisStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

type redisStore struct {
	client   *redis.Client
	prefix   string
	password string
	db       int
	now      func() time.Time
}

// NewRedisStore returns a queue store shared across sessions through redis.
// Entries live in a hash keyed by id with a sorted-set index ordered by
// queuedAt, so multiple dashboard sessions can drain one queue.
func NewRedisStore(addr string, opts ...RedisOption) (Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	s := &redisStore{prefix: defaultRedisPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.client = redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(addr),
		Password: s.password,
		DB:       s.db,
	})
	return s, nil
}

func (s *redisStore) seqKey() string   { return s.prefix + ":seq" }
func (s *redisStore) itemsKey() string { return s.prefix + ":items" }
func (s *redisStore) indexKey() string { return s.prefix + ":index" }

func (s *redisStore) Insert(ctx context.Context, cmd command.Command) (QueuedCommand, error) {
	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return QueuedCommand{}, fmt.Errorf("next queue id: %w", err)
	}
	entry := QueuedCommand{
		ID:       id,
		Payload:  cmd,
		ScopeID:  cmd.ScopeID,
		QueuedAt: s.now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return QueuedCommand{}, fmt.Errorf("encode queued command: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.itemsKey(), strconv.FormatInt(id, 10), raw)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(entry.QueuedAt.UnixNano()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return QueuedCommand{}, fmt.Errorf("insert queued command: %w", err)
	}
	return entry, nil
}

func (s *redisStore) List(ctx context.Context) ([]QueuedCommand, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list queue index: %w", err)
	}
	if len(ids) == 0 {
		return []QueuedCommand{}, nil
	}
	raws, err := s.client.HMGet(ctx, s.itemsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load queued commands: %w", err)
	}
	out := make([]QueuedCommand, 0, len(raws))
	for _, raw := range raws {
		text, ok := raw.(string)
		if !ok || text == "" {
			// Index entry without a body: another session removed it
			// between the two reads.
			continue
		}
		var entry QueuedCommand
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("decode queued command: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *redisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return int(n), nil
}

func (s *redisStore) MarkRetry(ctx context.Context, id int64, retries int, nextRetryAt time.Time, lastError string) error {
	field := strconv.FormatInt(id, 10)
	raw, err := s.client.HGet(ctx, s.itemsKey(), field).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load queued command: %w", err)
	}
	var entry QueuedCommand
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("decode queued command: %w", err)
	}
	entry.Retries = retries
	next := nextRetryAt.UTC()
	entry.NextRetryAt = &next
	entry.LastError = lastError
	updated, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode queued command: %w", err)
	}
	if err := s.client.HSet(ctx, s.itemsKey(), field, updated).Err(); err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	return nil
}

func (s *redisStore) RemoveByID(ctx context.Context, id int64) error {
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.itemsKey(), strconv.FormatInt(id, 10))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove queued command: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.itemsKey(), s.indexKey()).Err(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
