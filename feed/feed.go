// Package feed carries row-level change events between writers and
// subscribed views over Redis pub/sub channels.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"teamboard-api/domain"
)

// Channel names are scoped by the predicate clients subscribe with.
func BoardChannel(boardID string) string { return "feed:board:" + boardID }
func TeamChannel(teamID string) string   { return "feed:team:" + teamID }
func UserChannel(userID string) string   { return "feed:user:" + userID }

// NewEvent builds a change event carrying before/after row snapshots.
// Snapshots that fail to marshal are dropped from the event rather than
// failing the write path.
func NewEvent(collection, eventType, entityID string, before, after any) domain.ChangeEvent {
	ev := domain.ChangeEvent{
		ID:         uuid.NewString(),
		Collection: collection,
		Type:       eventType,
		EntityID:   entityID,
		Timestamp:  time.Now().UnixNano(),
	}
	if before != nil {
		if data, err := json.Marshal(before); err == nil {
			ev.Before = data
		}
	}
	if after != nil {
		if data, err := json.Marshal(after); err == nil {
			ev.After = data
		}
	}
	return ev
}

// Publisher fans change events out to feed channels.
type Publisher struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewPublisher creates a Publisher over the given Redis client.
func NewPublisher(client *redis.Client, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{redis: client, logger: logger}
}

// Publish delivers one event to every listed channel. Fan-out failures are
// logged, not surfaced: the row write already succeeded and subscribers
// recover on their next snapshot load.
func (p *Publisher) Publish(ctx context.Context, ev domain.ChangeEvent, channels ...string) {
	if p.redis == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.WithError(err).Error("marshal change event")
		return
	}
	for _, ch := range channels {
		if err := p.redis.Publish(ctx, ch, payload).Err(); err != nil {
			p.logger.WithError(err).Errorf("publish %s event to %s", ev.Collection, ch)
		}
	}
}

// Subscriber consumes a feed channel and hands each decoded event to a
// handler. Subscribe blocks until the context is cancelled and reconnects
// when the pub/sub channel closes underneath it.
type Subscriber struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewSubscriber creates a Subscriber over the given Redis client.
func NewSubscriber(client *redis.Client, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Subscriber{redis: client, logger: logger}
}

// Subscribe consumes channel until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, handler func(domain.ChangeEvent)) {
	for {
		sub := s.redis.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.WithError(err).Errorf("unable to parse event on %s", channel)
					continue
				}
				handler(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Errorf("pubsub channel %s closed, reconnecting", channel)
		time.Sleep(time.Second)
	}
}
