package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/providers"
)

// Redis stores searches as JSON values and indexes them in a sorted set
// scored by creation time (unix millis).
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	// ttl applies to search and result records; the index is pruned lazily.
	ttl time.Duration
	now func() time.Time
	log *zap.Logger
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

func NewRedis(rdb redis.Cmdable, log *zap.Logger, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:    rdb,
		prefix: "flights",
		ttl:    24 * time.Hour,
		now:    time.Now,
		log:    log.Named("store"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) searchKey(id string) string  { return r.prefix + ":search:" + id }
func (r *Redis) resultsKey(id string) string { return r.prefix + ":results:" + id }
func (r *Redis) indexKey() string            { return r.prefix + ":searches" }

// expiry maps a non-positive ttl to "no expiry" for SET.
func (r *Redis) expiry() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl
}

func (r *Redis) SaveSearch(ctx context.Context, params providers.SearchParams) (Search, error) {
	s := Search{
		ID:        uuid.NewString(),
		Params:    params,
		CreatedAt: r.now().UTC(),
		Status:    StatusPending,
	}
	b, err := json.Marshal(s)
	if err != nil {
		return Search{}, fmt.Errorf("encode search: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.searchKey(s.ID), b, r.expiry())
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(s.CreatedAt.UnixMilli()), Member: s.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return Search{}, fmt.Errorf("save search: %w", err)
	}
	r.log.Info("search saved", zap.String("search_id", s.ID))
	return s, nil
}

func (r *Redis) SaveResults(ctx context.Context, id string, flights []providers.Flight) error {
	s, err := r.GetSearch(ctx, id)
	if err != nil {
		return err
	}
	if flights == nil {
		flights = []providers.Flight{}
	}
	rb, err := json.Marshal(flights)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	s.ResultCount = len(flights)
	s.Status = StatusCompleted
	sb, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode search: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.resultsKey(id), rb, r.expiry())
	pipe.Set(ctx, r.searchKey(id), sb, r.expiry())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	r.log.Info("results saved", zap.String("search_id", id), zap.Int("flights", len(flights)))
	return nil
}

func (r *Redis) GetSearch(ctx context.Context, id string) (Search, error) {
	b, err := r.rdb.Get(ctx, r.searchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Search{}, ErrNotFound
	}
	if err != nil {
		return Search{}, fmt.Errorf("get search: %w", err)
	}
	var s Search
	if err := json.Unmarshal(b, &s); err != nil {
		return Search{}, fmt.Errorf("decode search %s: %w", id, err)
	}
	return s, nil
}

func (r *Redis) GetResults(ctx context.Context, id string) ([]providers.Flight, error) {
	b, err := r.rdb.Get(ctx, r.resultsKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		// a search without results yet is not an error
		if _, err := r.GetSearch(ctx, id); err != nil {
			return nil, err
		}
		return []providers.Flight{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	var flights []providers.Flight
	if err := json.Unmarshal(b, &flights); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", id, err)
	}
	return flights, nil
}

func (r *Redis) List(ctx context.Context) ([]Search, error) {
	ids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	if len(ids) == 0 {
		return []Search{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.searchKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load searches: %w", err)
	}

	out := make([]Search, 0, len(ids))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s Search
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			r.log.Error("skipping unreadable search", zap.String("search_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		if err := r.rdb.ZRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			r.log.Warn("prune index", zap.Int("stale", len(stale)), zap.Error(err))
		}
	}
	return out, nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	all, err := r.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(all), nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	del := pipe.Del(ctx, r.searchKey(id), r.resultsKey(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	r.log.Info("search deleted", zap.String("search_id", id))
	return nil
}
