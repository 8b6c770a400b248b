// Package presence tracks which users are currently viewing a board or
// team. Entries are ephemeral: a Redis hash per scope holds the current
// set, join/leave patches travel over pub/sub, and a heartbeat with a
// staleness sweep replaces transport-level liveness detection.
package presence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Entry is one online user's presence tuple.
type Entry struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	LastSeen time.Time `json:"lastSeen"`
}

// Presence event types carried on the scope channel.
const (
	eventJoin  = "join"
	eventLeave = "leave"
)

type channelEvent struct {
	Type  string `json:"type"`
	Entry Entry  `json:"entry"`
}

// BoardScope names the presence scope of a board.
func BoardScope(boardID string) string {
	return "board:" + boardID
}

// TeamScope names the presence scope of a team.
func TeamScope(teamID string) string {
	return "team:" + teamID
}

func hashKey(scope string) string {
	return "presence:" + scope
}

func channelKey(scope string) string {
	return "presence:events:" + scope
}

// State is the tracker's subscription lifecycle.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
)

// Tracker maintains the online-user set of one scope for one local user.
type Tracker struct {
	client    *redis.Client
	scope     string
	self      Entry
	ttl       time.Duration
	heartbeat time.Duration
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  State
	online map[string]Entry
}

// NewTracker creates a tracker for self within the given scope. Peers not
// re-published within ttl are swept; heartbeat should be well below ttl.
func NewTracker(client *redis.Client, scope string, self Entry, ttl, heartbeat time.Duration, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = ttl / 3
	}
	return &Tracker{
		client:    client,
		scope:     scope,
		self:      self,
		ttl:       ttl,
		heartbeat: heartbeat,
		logger:    logger,
		now:       time.Now,
		state:     StateUnsubscribed,
		online:    make(map[string]Entry),
	}
}

// State reports the tracker's lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Online returns the current online set, self excluded, ordered by user id.
func (t *Tracker) Online() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.online))
	for _, e := range t.online {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Track subscribes to the scope and blocks until ctx is cancelled. On
// entering the subscribed state it publishes self and replaces the online
// set wholesale from the scope hash. Join and leave events patch the set
// incrementally; the heartbeat re-publishes self and sweeps stale peers.
func (t *Tracker) Track(ctx context.Context) {
	t.setState(StateSubscribing)
	defer t.setState(StateUnsubscribed)

	pubsub := t.client.Subscribe(ctx, channelKey(t.scope))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.logger.WithError(err).WithField("scope", t.scope).Error("presence subscribe")
		return
	}
	t.setState(StateSubscribed)

	if err := t.publishSelf(ctx); err != nil {
		t.logger.WithError(err).WithField("scope", t.scope).Error("publish presence")
	}
	t.sync(ctx)
	defer t.depart()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.publishSelf(ctx); err != nil {
				t.logger.WithError(err).WithField("scope", t.scope).Error("presence heartbeat")
			}
			t.sweep()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handle(msg.Payload)
		}
	}
}

// publishSelf writes self into the scope hash and announces a join on the
// scope channel. Repeat announcements are how peers see the heartbeat.
func (t *Tracker) publishSelf(ctx context.Context) error {
	entry := t.self
	entry.LastSeen = t.now().UTC()
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := t.client.HSet(ctx, hashKey(t.scope), entry.UserID, raw).Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(channelEvent{Type: eventJoin, Entry: entry})
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, channelKey(t.scope), payload).Err()
}

// sync replaces the online set wholesale from the scope hash, excluding
// self and anything already stale.
func (t *Tracker) sync(ctx context.Context) {
	fields, err := t.client.HGetAll(ctx, hashKey(t.scope)).Result()
	if err != nil {
		t.logger.WithError(err).WithField("scope", t.scope).Error("presence sync")
		return
	}
	cutoff := t.now().UTC().Add(-t.ttl)
	fresh := make(map[string]Entry)
	for userID, raw := range fields {
		if userID == t.self.UserID {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			t.logger.WithField("scope", t.scope).Warn("dropping unreadable presence entry")
			t.client.HDel(ctx, hashKey(t.scope), userID)
			continue
		}
		if e.LastSeen.Before(cutoff) {
			t.client.HDel(ctx, hashKey(t.scope), userID)
			continue
		}
		fresh[userID] = e
	}
	t.mu.Lock()
	t.online = fresh
	t.mu.Unlock()
}

func (t *Tracker) handle(payload string) {
	var ev channelEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.logger.WithField("scope", t.scope).Warn("skipping malformed presence event")
		return
	}
	if ev.Entry.UserID == t.self.UserID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Type {
	case eventJoin:
		t.online[ev.Entry.UserID] = ev.Entry
	case eventLeave:
		delete(t.online, ev.Entry.UserID)
	}
}

// sweep drops peers whose last heartbeat is older than the ttl.
func (t *Tracker) sweep() {
	cutoff := t.now().UTC().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, e := range t.online {
		if e.LastSeen.Before(cutoff) {
			delete(t.online, userID)
		}
	}
}

// depart removes self from the scope and announces the leave. The parent
// context is usually cancelled by now, so a fresh short-lived one is used.
func (t *Tracker) depart() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := t.client.HDel(ctx, hashKey(t.scope), t.self.UserID).Err(); err != nil {
		t.logger.WithError(err).WithField("scope", t.scope).Error("presence cleanup")
	}
	payload, err := json.Marshal(channelEvent{Type: eventLeave, Entry: t.self})
	if err != nil {
		return
	}
	if err := t.client.Publish(ctx, channelKey(t.scope), payload).Err(); err != nil {
		t.logger.WithError(err).WithField("scope", t.scope).Error("presence leave")
	}
}
