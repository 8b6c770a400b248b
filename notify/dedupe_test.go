package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"teamboard-api/domain"
)

func newDeduper(t *testing.T) (*miniredis.Miniredis, *Deduper) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewDeduper(client, 24*time.Hour)
}

func deadlineFixture() []domain.DeadlineNotification {
	return []domain.DeadlineNotification{
		{TaskID: "task-1", Bucket: domain.DueToday},
		{TaskID: "task-2", Bucket: domain.Overdue},
	}
}

func TestFilterDeadlinesSuppressesRepeats(t *testing.T) {
	_, d := newDeduper(t)
	day := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	fresh, err := d.FilterDeadlines(context.Background(), deadlineFixture(), day)
	if err != nil {
		t.Fatalf("first filter: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("first scan should pass everything, got %d", len(fresh))
	}

	fresh, err = d.FilterDeadlines(context.Background(), deadlineFixture(), day)
	if err != nil {
		t.Fatalf("second filter: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("same-day repeat should be suppressed, got %+v", fresh)
	}
}

func TestFilterDeadlinesNewDayDelivers(t *testing.T) {
	_, d := newDeduper(t)
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	if _, err := d.FilterDeadlines(context.Background(), deadlineFixture(), monday); err != nil {
		t.Fatalf("monday filter: %v", err)
	}
	fresh, err := d.FilterDeadlines(context.Background(), deadlineFixture(), tuesday)
	if err != nil {
		t.Fatalf("tuesday filter: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("next-day scan should deliver again, got %d", len(fresh))
	}
}

func TestFilterDeadlinesDistinguishesBucketAndTask(t *testing.T) {
	_, d := newDeduper(t)
	day := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	if _, err := d.FilterDeadlines(context.Background(), deadlineFixture(), day); err != nil {
		t.Fatalf("seed filter: %v", err)
	}

	shifted := []domain.DeadlineNotification{
		// Same task, different bucket: the deadline moved category.
		{TaskID: "task-1", Bucket: domain.Overdue},
		{TaskID: "task-3", Bucket: domain.DueToday},
	}
	fresh, err := d.FilterDeadlines(context.Background(), shifted, day)
	if err != nil {
		t.Fatalf("shifted filter: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("new bucket and new task should both pass, got %+v", fresh)
	}
}

func TestFilterDeadlinesFailsOpen(t *testing.T) {
	mr, d := newDeduper(t)
	mr.Close()

	fresh, err := d.FilterDeadlines(context.Background(), deadlineFixture(), time.Now())
	if err == nil {
		t.Fatal("expected an error from a closed backend")
	}
	if len(fresh) != 2 {
		t.Fatalf("a dedup outage must not drop notifications, got %d", len(fresh))
	}
}

func TestNilDeduperPassesThrough(t *testing.T) {
	var d *Deduper
	fresh, err := d.FilterDeadlines(context.Background(), deadlineFixture(), time.Now())
	if err != nil || len(fresh) != 2 {
		t.Fatalf("nil deduper must pass everything through, got %d err=%v", len(fresh), err)
	}
	if err := d.ReleaseDeadlines(context.Background(), deadlineFixture(), time.Now()); err != nil {
		t.Fatalf("nil deduper release must be a no-op, got %v", err)
	}
}

func TestReleaseDeadlinesAllowsSameDayRedelivery(t *testing.T) {
	_, d := newDeduper(t)
	day := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	fresh, err := d.FilterDeadlines(context.Background(), deadlineFixture(), day)
	if err != nil || len(fresh) != 2 {
		t.Fatalf("first filter: got %d err=%v", len(fresh), err)
	}

	// Persisting the batch failed, so the delivery record is withdrawn.
	if err := d.ReleaseDeadlines(context.Background(), fresh, day); err != nil {
		t.Fatalf("release: %v", err)
	}

	fresh, err = d.FilterDeadlines(context.Background(), deadlineFixture(), day)
	if err != nil {
		t.Fatalf("retry filter: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("released keys must deliver again the same day, got %d", len(fresh))
	}
}
