package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/michaelpento.lv/dexarb/aggregator"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/redis/go-redis/v9"
)

// SnapshotMeta describes the last snapshot written.
type SnapshotMeta struct {
	Fingerprint string
	TakenAt     time.Time
	Entries     int
}

// SnapshotCache stores the per-pair price points of the latest snapshot so
// other processes can read them without querying the venues again.
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

// Put replaces the cached snapshot. The table and its meta expire together.
func (s *SnapshotCache) Put(ctx context.Context, snap *aggregator.Snapshot) error {
	fields := make(map[string]interface{}, len(snap.Table))
	for _, pair := range snap.Pairs() {
		raw, err := json.Marshal(snap.Points(pair))
		if err != nil {
			return fmt.Errorf("redis: encode %s: %w", pair, err)
		}
		fields[pair] = raw
	}

	tableKey, metaKey := s.c.key("snapshot"), s.c.key("snapshot", "meta")
	pipe := s.c.rdb.TxPipeline()
	pipe.Del(ctx, tableKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, tableKey, fields)
	}
	pipe.HSet(ctx, metaKey,
		"fingerprint", strconv.FormatUint(snap.Fingerprint(), 16),
		"taken_at", snap.TakenAt.UTC().Format(time.RFC3339Nano),
		"entries", snap.Size(),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, tableKey, s.ttl)
		pipe.Expire(ctx, metaKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put snapshot: %w", err)
	}
	return nil
}

// Get returns the cached points of pair. ok is false when nothing is cached.
func (s *SnapshotCache) Get(ctx context.Context, pair string) (points []types.PricePoint, ok bool, err error) {
	raw, err := s.c.rdb.HGet(ctx, s.c.key("snapshot"), pair).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", pair, err)
	}
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, false, fmt.Errorf("redis: decode %s: %w", pair, err)
	}
	return points, true, nil
}

func (s *SnapshotCache) Meta(ctx context.Context) (SnapshotMeta, bool, error) {
	vals, err := s.c.rdb.HGetAll(ctx, s.c.key("snapshot", "meta")).Result()
	if err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("redis: get snapshot meta: %w", err)
	}
	if len(vals) == 0 {
		return SnapshotMeta{}, false, nil
	}

	meta := SnapshotMeta{Fingerprint: vals["fingerprint"]}
	if meta.TakenAt, err = time.Parse(time.RFC3339Nano, vals["taken_at"]); err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("redis: parse taken_at: %w", err)
	}
	if meta.Entries, err = strconv.Atoi(vals["entries"]); err != nil {
		return SnapshotMeta{}, false, fmt.Errorf("redis: parse entries: %w", err)
	}
	return meta, true, nil
}
