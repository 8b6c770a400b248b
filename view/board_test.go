package view

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"teamboard-api/domain"
)

type stubHydrator struct {
	users map[string]domain.User
	err   error
	calls [][]string
}

func (h *stubHydrator) GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error) {
	h.calls = append(h.calls, ids)
	if h.err != nil {
		return nil, h.err
	}
	out := make(map[string]domain.User)
	for _, id := range ids {
		if u, ok := h.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func event(t *testing.T, collection, eventType, entityID string, after any) domain.ChangeEvent {
	t.Helper()
	ev := domain.ChangeEvent{Collection: collection, Type: eventType, EntityID: entityID}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			t.Fatalf("marshal event payload: %v", err)
		}
		ev.After = raw
	}
	return ev
}

func loadedBoard(t *testing.T, hydrator Hydrator) *Board {
	t.Helper()
	b := NewBoard("board-1", hydrator, nil)
	columns := domain.DefaultColumns("board-1")
	tasks := []domain.Task{
		{ID: "task-1", BoardID: "board-1", ColumnID: columns[0].ID, Title: "first", Status: domain.StatusTodo, Position: 0},
		{ID: "task-2", BoardID: "board-1", ColumnID: columns[1].ID, Title: "second", Status: domain.StatusInProgress, Position: 0, AssignedTo: "user-2"},
	}
	b.Load(context.Background(), columns, tasks)
	return b
}

func TestBoardApplyInsertAddsTask(t *testing.T) {
	b := loadedBoard(t, nil)
	cols := b.Columns()

	task := domain.Task{ID: "task-3", BoardID: "board-1", ColumnID: cols[0].ID, Title: "third", Status: domain.StatusTodo, Position: 1}
	b.Apply(context.Background(), event(t, domain.CollectionTasks, domain.EventInsert, task.ID, task))

	got, ok := b.Task("task-3")
	if !ok {
		t.Fatal("inserted task not present")
	}
	if got.Title != "third" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if n := len(b.Tasks()); n != 3 {
		t.Fatalf("expected 3 tasks, got %d", n)
	}
}

func TestBoardApplyUpdateIgnoresUnknownIDs(t *testing.T) {
	b := loadedBoard(t, nil)

	ghost := domain.Task{ID: "task-99", BoardID: "board-1", Title: "ghost"}
	b.Apply(context.Background(), event(t, domain.CollectionTasks, domain.EventUpdate, ghost.ID, ghost))

	if _, ok := b.Task("task-99"); ok {
		t.Fatal("update for an unknown id must not become an insert")
	}

	known, _ := b.Task("task-1")
	known.Title = "renamed"
	b.Apply(context.Background(), event(t, domain.CollectionTasks, domain.EventUpdate, known.ID, known))
	if got, _ := b.Task("task-1"); got.Title != "renamed" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestBoardApplyDeleteIsIdempotent(t *testing.T) {
	b := loadedBoard(t, nil)
	ev := event(t, domain.CollectionTasks, domain.EventDelete, "task-1", nil)

	b.Apply(context.Background(), ev)
	if _, ok := b.Task("task-1"); ok {
		t.Fatal("task survived delete")
	}
	before := len(b.Tasks())

	// Duplicate delivery of the same delete finds nothing to remove.
	b.Apply(context.Background(), ev)
	if after := len(b.Tasks()); after != before {
		t.Fatalf("duplicate delete changed task count: %d -> %d", before, after)
	}
}

func TestBoardApplyMalformedPayloadIsDropped(t *testing.T) {
	b := loadedBoard(t, nil)
	b.Apply(context.Background(), domain.ChangeEvent{
		Collection: domain.CollectionTasks,
		Type:       domain.EventInsert,
		After:      json.RawMessage(`{"id":`),
	})
	if n := len(b.Tasks()); n != 2 {
		t.Fatalf("malformed insert changed state, %d tasks", n)
	}
}

func TestBoardApplyColumnEvents(t *testing.T) {
	b := loadedBoard(t, nil)
	cols := b.Columns()

	extra := domain.Column{ID: "col-extra", BoardID: "board-1", Name: "Blocked", Position: 9}
	b.Apply(context.Background(), event(t, domain.CollectionBoardColumns, domain.EventInsert, extra.ID, extra))
	if n := len(b.Columns()); n != len(cols)+1 {
		t.Fatalf("expected %d columns, got %d", len(cols)+1, n)
	}

	b.Apply(context.Background(), event(t, domain.CollectionBoardColumns, domain.EventDelete, extra.ID, nil))
	b.Apply(context.Background(), event(t, domain.CollectionBoardColumns, domain.EventDelete, extra.ID, nil))
	if n := len(b.Columns()); n != len(cols) {
		t.Fatalf("expected %d columns after delete, got %d", len(cols), n)
	}
}

func TestBoardHydratesInsertedRelations(t *testing.T) {
	h := &stubHydrator{users: map[string]domain.User{
		"user-2": {ID: "user-2", Email: "two@example.com", FullName: "User Two"},
		"user-3": {ID: "user-3", Email: "three@example.com", FullName: "User Three"},
	}}
	b := loadedBoard(t, h)

	if u, ok := b.User("user-2"); !ok || u.FullName != "User Two" {
		t.Fatalf("load did not hydrate assignee: %+v ok=%v", u, ok)
	}

	cols := b.Columns()
	task := domain.Task{ID: "task-3", BoardID: "board-1", ColumnID: cols[0].ID, AssignedTo: "user-3", CreatedBy: "user-2"}
	b.Apply(context.Background(), event(t, domain.CollectionTasks, domain.EventInsert, task.ID, task))

	if _, ok := b.User("user-3"); !ok {
		t.Fatal("insert did not hydrate new assignee")
	}
	// user-2 was already cached; only user-3 should have been fetched.
	last := h.calls[len(h.calls)-1]
	if len(last) != 1 || last[0] != "user-3" {
		t.Fatalf("unexpected hydration fetch: %v", last)
	}
}

func TestBoardHydrationFailureKeepsRow(t *testing.T) {
	h := &stubHydrator{err: errors.New("store down")}
	b := NewBoard("board-1", h, nil)
	cols := domain.DefaultColumns("board-1")
	b.Load(context.Background(), cols, nil)

	task := domain.Task{ID: "task-1", BoardID: "board-1", ColumnID: cols[0].ID, AssignedTo: "user-9"}
	b.Apply(context.Background(), event(t, domain.CollectionTasks, domain.EventInsert, task.ID, task))

	if _, ok := b.Task("task-1"); !ok {
		t.Fatal("hydration failure must not drop the row")
	}
	if _, ok := b.User("user-9"); ok {
		t.Fatal("relation should have stayed unresolved")
	}
}

func TestChatLogApply(t *testing.T) {
	l := NewChatLog("team-1", nil, nil)
	l.Load(context.Background(), []domain.ChatMessage{
		{ID: "msg-1", TeamID: "team-1", UserID: "user-1", Content: "hello"},
	})

	m2 := domain.ChatMessage{ID: "msg-2", TeamID: "team-1", UserID: "user-2", Content: "hi"}
	ev := event(t, domain.CollectionChatMessages, domain.EventInsert, m2.ID, m2)
	l.Apply(context.Background(), ev)
	l.Apply(context.Background(), ev)

	msgs := l.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].ID != "msg-2" {
		t.Fatalf("messages out of arrival order: %+v", msgs)
	}

	del := event(t, domain.CollectionChatMessages, domain.EventDelete, "msg-1", nil)
	l.Apply(context.Background(), del)
	l.Apply(context.Background(), del)
	if msgs = l.Messages(); len(msgs) != 1 || msgs[0].ID != "msg-2" {
		t.Fatalf("unexpected log after delete: %+v", msgs)
	}
}

func TestChatLogHydratesAuthors(t *testing.T) {
	h := &stubHydrator{users: map[string]domain.User{
		"user-2": {ID: "user-2", FullName: "User Two"},
	}}
	l := NewChatLog("team-1", h, nil)

	m := domain.ChatMessage{ID: "msg-1", TeamID: "team-1", UserID: "user-2", Content: "hi"}
	l.Apply(context.Background(), event(t, domain.CollectionChatMessages, domain.EventInsert, m.ID, m))

	if u, ok := l.Author("user-2"); !ok || u.FullName != "User Two" {
		t.Fatalf("author not hydrated: %+v ok=%v", u, ok)
	}
}

func TestInboxApply(t *testing.T) {
	in := NewInbox("user-1", nil)
	in.Load([]domain.Notification{
		{ID: "n-2", UserID: "user-1", Type: domain.NotifyTaskAssigned, Title: "older"},
	})

	fresh := domain.Notification{ID: "n-3", UserID: "user-1", Type: domain.NotifyTaskCompleted, Title: "newer"}
	in.Apply(event(t, domain.CollectionNotifications, domain.EventInsert, fresh.ID, fresh))

	got := in.Notifications()
	if len(got) != 2 || got[0].ID != "n-3" {
		t.Fatalf("insert should prepend: %+v", got)
	}
	if in.Unread() != 2 {
		t.Fatalf("expected 2 unread, got %d", in.Unread())
	}

	fresh.Read = true
	in.Apply(event(t, domain.CollectionNotifications, domain.EventUpdate, fresh.ID, fresh))
	if in.Unread() != 1 {
		t.Fatalf("expected 1 unread after read, got %d", in.Unread())
	}

	ghost := domain.Notification{ID: "n-99", UserID: "user-1", Title: "ghost"}
	in.Apply(event(t, domain.CollectionNotifications, domain.EventUpdate, ghost.ID, ghost))
	if len(in.Notifications()) != 2 {
		t.Fatal("update for an unknown id must not insert")
	}

	del := event(t, domain.CollectionNotifications, domain.EventDelete, "n-2", nil)
	in.Apply(del)
	in.Apply(del)
	if got = in.Notifications(); len(got) != 1 || got[0].ID != "n-3" {
		t.Fatalf("unexpected inbox after delete: %+v", got)
	}
}
