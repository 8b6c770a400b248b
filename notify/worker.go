// Package notify delivers notifications. Writers enqueue delivery jobs on
// a queue; the worker drains it, persists inbox rows and announces them on
// the recipient's feed channel.
package notify

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"teamboard-api/domain"
	"teamboard-api/feed"
	"teamboard-api/storage"
)

// Queue is the delivery queue the worker drains.
type Queue interface {
	DequeueNotification(ctx context.Context) (*storage.QueuedNotification, error)
	DeleteNotificationMessage(ctx context.Context, messageID, popReceipt string) error
}

// Store persists delivered notifications.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Publisher announces delivered notifications on feed channels.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent, channels ...string)
}

// Worker drains the delivery queue.
type Worker struct {
	queue     Queue
	store     Store
	publisher Publisher
	logger    *log.Logger
	poll      time.Duration
}

// NewWorker creates a delivery worker polling the queue at the given
// interval when it is empty.
func NewWorker(queue Queue, store Store, publisher Publisher, poll time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{queue: queue, store: store, publisher: publisher, logger: logger, poll: poll}
}

// Run processes delivery jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("notification worker starting")
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := w.queue.DequeueNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).Error("dequeue notification")
			w.sleep(ctx)
			continue
		}
		if msg == nil {
			w.sleep(ctx)
			continue
		}
		w.process(ctx, msg)
	}
}

func (w *Worker) process(ctx context.Context, msg *storage.QueuedNotification) {
	var n domain.Notification
	if err := sonic.UnmarshalString(msg.Payload, &n); err != nil || n.ID == "" || n.UserID == "" {
		// Malformed jobs are dropped; redelivery would not fix them.
		w.logger.WithError(err).Warn("dropping malformed notification job")
		w.ack(ctx, msg)
		return
	}

	if err := w.store.InsertNotification(ctx, n); err != nil {
		// The message stays queued and comes back after its visibility
		// timeout.
		w.logger.WithError(err).WithField("notificationId", n.ID).Error("persist notification")
		return
	}

	ev := feed.NewEvent(domain.CollectionNotifications, domain.EventInsert, n.ID, nil, n)
	w.publisher.Publish(ctx, ev, feed.UserChannel(n.UserID))
	w.ack(ctx, msg)
}

func (w *Worker) ack(ctx context.Context, msg *storage.QueuedNotification) {
	if err := w.queue.DeleteNotificationMessage(ctx, msg.MessageID, msg.PopReceipt); err != nil {
		w.logger.WithError(err).Error("delete notification message")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.poll):
	}
}
