package activity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"subsnap/internal/subscription/models"
)

const (
	keyPrefix        = "subsnap:activity:"
	fieldActiveUsers = "active_users"
	fieldEvents      = "events"
)

// Redis reads counters stored as one hash per account and day:
//
//	subsnap:activity:<account>:<yyyymmdd>  active_users=<n> events=<n>
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// RedisOption configures the Redis counter.
type RedisOption func(*Redis)

// WithTTL expires recorded keys after d. Zero keeps them forever.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = d
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func dayKey(accountID string, day time.Time) string {
	return keyPrefix + accountID + ":" + strconv.Itoa(models.DateKey(day))
}

// Counts fetches every day in range with one pipelined round trip.
func (r *Redis) Counts(ctx context.Context, accountID string, from, to time.Time) (map[int]Counts, error) {
	days := models.DateRange(from, to)
	if len(days) == 0 {
		return map[int]Counts{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(days))
	for i, day := range days {
		cmds[i] = pipe.HGetAll(ctx, dayKey(accountID, day))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read activity for account %s: %w", accountID, err)
	}

	out := make(map[int]Counts, len(days))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		c, err := parseCounts(fields)
		if err != nil {
			return nil, fmt.Errorf("read activity for account %s on %s: %w", accountID, days[i].Format(models.DateLayout), err)
		}
		out[models.DateKey(days[i])] = c
	}
	return out, nil
}

// Record overwrites the day's counters with c, which must be the complete
// figures for that day. Recording the same day twice leaves the same hash.
func (r *Redis) Record(ctx context.Context, accountID string, at time.Time, c Counts) error {
	key := dayKey(accountID, at)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fieldActiveUsers, c.ActiveUsers, fieldEvents, c.Events)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record activity for account %s: %w", accountID, err)
	}
	return nil
}

func parseCounts(fields map[string]string) (Counts, error) {
	var c Counts
	for name, dst := range map[string]*int64{fieldActiveUsers: &c.ActiveUsers, fieldEvents: &c.Events} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counts{}, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = v
	}
	return c, nil
}
