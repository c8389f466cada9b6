package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/bert-systems/canvas/pkg/domain"
)

// deadScore parks dead letters far in the future so Due never sees them.
const deadScore = 4102444800000 // 2100-01-01 in milliseconds

// Store implements ports.OutboxStore using Redis.
//
// Each entry is a JSON string under prefix+nodeID; a sorted set at
// prefix+"due" indexes node ids by next attempt time (unix milliseconds).
type Store struct {
	client backend.UniversalClient
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for outbox entries.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "canvas:outbox:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(nodeID string) string {
	return s.prefix + "entry:" + nodeID
}

func (s *Store) indexKey() string {
	return s.prefix + "due"
}

func score(e domain.OutboxEntry) float64 {
	if e.DeadLetter {
		return deadScore
	}
	return float64(e.NextAttempt.UnixMilli())
}

// Save persists the entry and reindexes it.
func (s *Store) Save(ctx context.Context, entry domain.OutboxEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(entry.NodeID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score(entry),
		Member: entry.NodeID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the entry for a node.
func (s *Store) Load(ctx context.Context, nodeID string) (domain.OutboxEntry, error) {
	val, err := s.client.Get(ctx, s.key(nodeID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.OutboxEntry{}, domain.ErrOutboxEntryNotFound
		}
		return domain.OutboxEntry{}, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

func decode(val string) (domain.OutboxEntry, error) {
	var entry domain.OutboxEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("failed to unmarshal outbox entry: %w", err)
	}
	return entry, nil
}

// Delete removes the entry.
func (s *Store) Delete(ctx context.Context, nodeID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(nodeID))
	pipe.ZRem(ctx, s.indexKey(), nodeID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns every entry ordered by node id.
func (s *Store) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	slices.Sort(ids)
	return s.fetch(ctx, ids)
}

// Due returns live entries whose next attempt is not after now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error) {
	by := &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due entries: %w", err)
	}
	return s.fetch(ctx, ids)
}

// fetch loads entries in the given order, skipping ids whose entry vanished
// between the index read and the MGET.
func (s *Store) fetch(ctx context.Context, ids []string) ([]domain.OutboxEntry, error) {
	if len(ids) == 0 {
		return []domain.OutboxEntry{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox entries: %w", err)
	}

	out := make([]domain.OutboxEntry, 0, len(vals))
	var bad []string
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		entry, err := decode(str)
		if err != nil {
			bad = append(bad, ids[i])
			continue
		}
		out = append(out, entry)
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("corrupt outbox entries: %s", strings.Join(bad, ", "))
	}
	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
