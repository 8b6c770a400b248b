package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"teamboard-api/domain"
	"teamboard-api/feed"
)

const defaultNotificationLimit = 50

func listNotifications(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}

		limit := defaultNotificationLimit
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = parsed
		}

		notifications, err := s.store.ListNotifications(ctx, userID, limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, notifications)
	}
}

func markNotificationRead(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		if err := s.store.MarkNotificationRead(ctx, userID, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func markAllNotificationsRead(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		if err := s.store.MarkAllNotificationsRead(ctx, userID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type deadlineScanResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// checkDeadlines scans every task with a due date, an assignee and todo
// status and delivers due-window notifications in one bulk insert. The scan
// is externally triggered, typically by a scheduler.
func checkDeadlines(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		now := time.Now().UTC()

		tasks, err := s.store.ListAllTasks(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, deadlineScanResponse{Success: false, Error: err.Error()})
		}

		boardNames := make(map[string]string)
		for _, t := range tasks {
			if t.DueDate == nil || t.AssignedTo == "" || t.Status != domain.StatusTodo {
				continue
			}
			if _, seen := boardNames[t.BoardID]; seen {
				continue
			}
			board, err := s.store.GetBoard(ctx, t.BoardID)
			if err != nil {
				// A task on an unresolvable board still gets a notification,
				// just without the board name.
				c.Logger().Error(err)
				boardNames[t.BoardID] = ""
				continue
			}
			boardNames[t.BoardID] = board.Name
		}

		due := domain.DeadlineNotifications(tasks, boardNames, now)
		if s.deadlines != nil {
			filtered, err := s.deadlines.FilterDeadlines(ctx, due, now)
			if err != nil {
				s.logger.WithError(err).Warn("deadline dedup unavailable, delivering unfiltered")
			}
			due = filtered
		}

		if len(due) > 0 {
			rows := make([]domain.Notification, 0, len(due))
			for _, d := range due {
				n := d.Notification
				n.ID = uuid.NewString()
				rows = append(rows, n)
			}
			if err := s.store.InsertNotifications(ctx, rows); err != nil {
				c.Logger().Error(err)
				if s.deadlines != nil {
					if relErr := s.deadlines.ReleaseDeadlines(ctx, due, now); relErr != nil {
						s.logger.WithError(relErr).Error("release deadline dedup keys")
					}
				}
				return c.JSON(http.StatusInternalServerError, deadlineScanResponse{Success: false, Error: err.Error()})
			}
			for _, n := range rows {
				ev := feed.NewEvent(domain.CollectionNotifications, domain.EventInsert, n.ID, nil, n)
				s.publish(ctx, ev, feed.UserChannel(n.UserID))
			}
		}

		return c.JSON(http.StatusOK, deadlineScanResponse{
			Success: true,
			Message: fmt.Sprintf("Checked deadlines and sent %d notifications", len(due)),
		})
	}
}
