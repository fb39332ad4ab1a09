package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"subsnap/internal/subscription/activity"
	"subsnap/internal/subscription/models"
)

// usage is one product usage event.
type usage struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Actor     string `json:"actor_id"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// actor identifies who was active. user_id names the account only when
// account_id is missing; otherwise it is the acting user.
func (u usage) actor() string {
	var user string
	if strings.TrimSpace(u.AccountID) != "" {
		user = u.UserID
	}
	return strings.TrimSpace(firstNonEmpty(u.Actor, user, u.SessionID))
}

// Recorder replaces the usage counts of one account and day.
type Recorder interface {
	Record(ctx context.Context, accountID string, at time.Time, c activity.Counts) error
}

// LoadActivity aggregates a usage event file into per account and day counts
// and hands them to rec. Every event counts once; active users are the distinct
// actors seen that day. Each bucket is complete, so loading the same file again
// records identical counts. Events without an account or a readable timestamp
// are skipped and counted.
func LoadActivity(ctx context.Context, path string, rec Recorder) (skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open activity file: %w", err)
	}
	defer f.Close()

	type bucket struct {
		events int64
		actors map[string]struct{}
	}
	type dayKey struct {
		account string
		day     int
	}
	buckets := make(map[dayKey]*bucket)

	err = decode(ctx, f, func(data json.RawMessage) error {
		var u usage
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		account := firstNonEmpty(u.AccountID, u.UserID)
		ts, ok := parseTimestamp(u.Timestamp)
		if account == "" || !ok || ts == nil {
			skipped++
			return nil
		}
		k := dayKey{account: account, day: models.DateKey(*ts)}
		b, ok := buckets[k]
		if !ok {
			b = &bucket{actors: make(map[string]struct{})}
			buckets[k] = b
		}
		b.events++
		if actor := u.actor(); actor != "" {
			b.actors[actor] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return skipped, fmt.Errorf("read activity: %w", err)
	}

	for k, b := range buckets {
		c := activity.Counts{ActiveUsers: int64(len(b.actors)), Events: b.events}
		if err := rec.Record(ctx, k.account, models.DateFromKey(k.day), c); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}
