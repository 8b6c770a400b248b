package domain

import (
	"fmt"
	"math"
	"time"
)

// DeadlineBucket names a deadline notification window. The bucket is part of
// the dedup key when a deduper is configured.
type DeadlineBucket string

const (
	DueToday    DeadlineBucket = "due_today"
	DueTomorrow DeadlineBucket = "due_tomorrow"
	DueNextWeek DeadlineBucket = "due_next_week"
	Overdue     DeadlineBucket = "overdue"
)

// DeadlineNotification pairs a notification with the task and bucket that
// produced it.
type DeadlineNotification struct {
	TaskID       string
	Bucket       DeadlineBucket
	Notification Notification
}

// DaysUntilDue is the whole-day difference between a due date and now,
// rounded up. Due in 12 hours is 1 day out; overdue by any amount of the
// current day counts as today (0).
func DaysUntilDue(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// DeadlineNotifications computes the notifications one scan run should emit.
// Only tasks with a due date, an assignee and status todo qualify; a task
// yields exactly one notification when it is due today, tomorrow, in exactly
// seven days, or overdue. Anything else emits nothing.
func DeadlineNotifications(tasks []Task, boardNames map[string]string, now time.Time) []DeadlineNotification {
	var out []DeadlineNotification
	for _, t := range tasks {
		if t.DueDate == nil || t.AssignedTo == "" || t.Status != StatusTodo {
			continue
		}
		boardName := boardNames[t.BoardID]
		days := DaysUntilDue(*t.DueDate, now)

		var bucket DeadlineBucket
		var title, message string
		switch {
		case days == 0:
			bucket = DueToday
			title = "Task Due Today"
			message = fmt.Sprintf("%q is due today in %s", t.Title, boardName)
		case days == 1:
			bucket = DueTomorrow
			title = "Task Due Tomorrow"
			message = fmt.Sprintf("%q is due tomorrow in %s", t.Title, boardName)
		case days == 7:
			bucket = DueNextWeek
			title = "Task Due Next Week"
			message = fmt.Sprintf("%q is due in 7 days in %s", t.Title, boardName)
		case days < 0:
			bucket = Overdue
			title = "Task Overdue"
			overdueDays := -days
			plural := ""
			if overdueDays > 1 {
				plural = "s"
			}
			message = fmt.Sprintf("%q is %d day%s overdue in %s", t.Title, overdueDays, plural, boardName)
		default:
			continue
		}

		out = append(out, DeadlineNotification{
			TaskID: t.ID,
			Bucket: bucket,
			Notification: Notification{
				UserID:  t.AssignedTo,
				Type:    NotifyTaskUpdated,
				Title:   title,
				Message: message,
				Data: map[string]any{
					"taskId":    t.ID,
					"taskTitle": t.Title,
					"boardName": boardName,
				},
				CreatedAt: now,
			},
		})
	}
	return out
}
