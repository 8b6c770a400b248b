package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"teamboard-api/domain"
)

// Deduper suppresses repeat deadline notifications by recording delivery
// keys in Redis with a TTL. A nil Deduper suppresses nothing.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper creates a deduper with the given key lifetime.
func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// deadlineKey identifies one task's deadline notification for one bucket on
// one calendar day.
func deadlineKey(n domain.DeadlineNotification, day time.Time) string {
	return fmt.Sprintf("deadline:%s:%s:%s", n.TaskID, n.Bucket, day.UTC().Format("2006-01-02"))
}

// FilterDeadlines returns the notifications not yet delivered today,
// recording them as delivered in one pipeline round trip. On a Redis error
// the full input is returned so a scan never loses notifications to a
// dedup outage.
func (d *Deduper) FilterDeadlines(ctx context.Context, notifications []domain.DeadlineNotification, day time.Time) ([]domain.DeadlineNotification, error) {
	if d == nil || d.client == nil || len(notifications) == 0 {
		return notifications, nil
	}

	cmds, err := d.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, n := range notifications {
			pipe.SetNX(ctx, deadlineKey(n, day), 1, d.ttl)
		}
		return nil
	})
	if err != nil {
		return notifications, err
	}
	if len(cmds) != len(notifications) {
		return notifications, fmt.Errorf("dedup pipeline mismatch: expected %d results, got %d", len(notifications), len(cmds))
	}

	fresh := make([]domain.DeadlineNotification, 0, len(notifications))
	for i, cmd := range cmds {
		boolCmd, ok := cmd.(*redis.BoolCmd)
		if !ok {
			return notifications, fmt.Errorf("unexpected redis response type %T", cmd)
		}
		added, cmdErr := boolCmd.Result()
		if cmdErr != nil {
			return notifications, cmdErr
		}
		if added {
			fresh = append(fresh, notifications[i])
		}
	}
	return fresh, nil
}

// ReleaseDeadlines drops the delivery keys recorded for the given
// notifications so a later scan on the same day can deliver them again.
// Used when persisting the filtered batch fails after the keys were set.
func (d *Deduper) ReleaseDeadlines(ctx context.Context, notifications []domain.DeadlineNotification, day time.Time) error {
	if d == nil || d.client == nil || len(notifications) == 0 {
		return nil
	}
	keys := make([]string, 0, len(notifications))
	for _, n := range notifications {
		keys = append(keys, deadlineKey(n, day))
	}
	return d.client.Del(ctx, keys...).Err()
}
