package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelpento.lv/dexarb/types"
)

// Cooldown keeps an opportunity's route from being executed twice within a
// window, across restarts and across processes sharing the same Redis.
type Cooldown struct {
	c *Client
}

func NewCooldown(c *Client) *Cooldown {
	return &Cooldown{c: c}
}

func cooldownKey(opp types.Opportunity) string {
	return "cooldown:" + opp.FingerprintKey()
}

// Acquire claims the route of opp for ttl. It returns false when the route is
// still cooling down from an earlier execution.
func (cd *Cooldown) Acquire(ctx context.Context, opp types.Opportunity, ttl time.Duration) (bool, error) {
	ok, err := cd.c.rdb.SetNX(ctx, cd.c.key(cooldownKey(opp)), opp.DetectedAt.UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire cooldown %s: %w", opp.Pair.Key(), err)
	}
	return ok, nil
}

// Remaining is how long the route of opp stays locked; zero when free.
func (cd *Cooldown) Remaining(ctx context.Context, opp types.Opportunity) (time.Duration, error) {
	ttl, err := cd.c.rdb.PTTL(ctx, cd.c.key(cooldownKey(opp))).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: cooldown ttl %s: %w", opp.Pair.Key(), err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Release frees the route early, used when an execution never broadcast.
func (cd *Cooldown) Release(ctx context.Context, opp types.Opportunity) error {
	if err := cd.c.rdb.Del(ctx, cd.c.key(cooldownKey(opp))).Err(); err != nil {
		return fmt.Errorf("redis: release cooldown %s: %w", opp.Pair.Key(), err)
	}
	return nil
}
