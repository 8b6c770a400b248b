package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"teamboard-api/domain"
	"teamboard-api/feed"
	"teamboard-api/storage"
)

// getBoardSnapshot serves the full column and task state of a board. This
// is the initial load every reconciled view starts from, so it carries the
// request metrics instrumentation.
func getBoardSnapshot(s *service) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSnapshotRequestMetrics(ctx, s.logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		gateStart := time.Now()
		board, _, ok := s.boardMembership(c, c.Param("id"), userID)
		metrics.ObserveGate(time.Since(gateStart))
		if !ok {
			metrics.SetErrorStage("gate")
			return nil
		}

		fetchStart := time.Now()
		snap, fetchErr := s.snapshot(c, board.ID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetCounts(len(snap.Columns), len(snap.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snap)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func (s *service) snapshot(c echo.Context, boardID string) (storage.BoardSnapshot, error) {
	ctx := c.Request().Context()
	if s.cache != nil {
		return s.cache.FetchBoardSnapshot(ctx, boardID)
	}
	columns, err := s.store.ListColumns(ctx, boardID)
	if err != nil {
		return storage.BoardSnapshot{}, err
	}
	tasks, err := s.store.ListTasks(ctx, boardID)
	if err != nil {
		return storage.BoardSnapshot{}, err
	}
	return storage.BoardSnapshot{Columns: columns, Tasks: tasks}, nil
}

type taskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	ColumnID    string          `json:"columnId"`
	AssignedTo  string          `json:"assignedTo"`
	DueDate     *time.Time      `json:"dueDate"`
}

func createTask(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		board, m, ok := s.boardMembership(c, c.Param("id"), userID)
		if !ok {
			return nil
		}
		if !domain.PermissionsFor(m.Role).CanCreateTask {
			return c.String(http.StatusForbidden, "cannot create tasks")
		}
		var req taskRequest
		if !s.decode(c, &req) {
			return nil
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "task title required")
		}

		column, err := s.store.GetColumn(ctx, req.ColumnID)
		if err != nil || column.BoardID != board.ID {
			return c.String(http.StatusBadRequest, "unknown column")
		}
		siblings, err := s.store.ListTasks(ctx, board.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		// Append after the highest occupied slot. Moves can leave gaps in a
		// column, so counting occupants would collide with an existing row.
		position := 0
		for _, t := range siblings {
			if t.ColumnID == column.ID && t.Position >= position {
				position = t.Position + 1
			}
		}
		priority := req.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}

		now := time.Now().UTC()
		task := domain.Task{
			ID:          uuid.NewString(),
			BoardID:     board.ID,
			ColumnID:    column.ID,
			Title:       strings.TrimSpace(req.Title),
			Description: strings.TrimSpace(req.Description),
			Priority:    priority,
			Status:      domain.StatusForColumn(column),
			Position:    position,
			AssignedTo:  req.AssignedTo,
			DueDate:     req.DueDate,
			CreatedBy:   userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.UpsertTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionTasks, domain.EventInsert, task.ID, nil, task)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		s.notifyAssignment(c, task, userID)
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		task, err := s.store.GetTask(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		board, m, ok := s.boardMembership(c, task.BoardID, userID)
		if !ok {
			return nil
		}
		if !domain.PermissionsFor(m.Role).CanEditTask {
			return c.String(http.StatusForbidden, "cannot edit tasks")
		}
		var req taskRequest
		if !s.decode(c, &req) {
			return nil
		}

		before := task
		if strings.TrimSpace(req.Title) != "" {
			task.Title = strings.TrimSpace(req.Title)
		}
		task.Description = strings.TrimSpace(req.Description)
		if req.Priority != "" {
			task.Priority = req.Priority
		}
		if req.AssignedTo != task.AssignedTo {
			if !domain.PermissionsFor(m.Role).CanAssignTask {
				return c.String(http.StatusForbidden, "cannot assign tasks")
			}
			task.AssignedTo = req.AssignedTo
		}
		task.DueDate = req.DueDate
		task.UpdatedAt = time.Now().UTC()
		if err := s.store.UpsertTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionTasks, domain.EventUpdate, task.ID, before, task)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		if task.AssignedTo != before.AssignedTo {
			s.notifyAssignment(c, task, userID)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		task, err := s.store.GetTask(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		board, m, ok := s.boardMembership(c, task.BoardID, userID)
		if !ok {
			return nil
		}
		if !domain.PermissionsFor(m.Role).CanDeleteTask {
			return c.String(http.StatusForbidden, "requires team admin")
		}

		if err := s.store.DeleteTask(ctx, board.ID, task.ID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionTasks, domain.EventDelete, task.ID, task, nil)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		return c.NoContent(http.StatusNoContent)
	}
}

type moveRequest struct {
	ColumnID     string `json:"columnId"`
	TargetTaskID string `json:"targetTaskId"`
}

// moveTask reconciles a drag-end drop. The primary write and each
// displaced-row correction are issued one at a time with no atomicity
// across the sequence; a failure leaves the store partially reordered
// until the next full snapshot load, and the caller's view is expected to
// revert to its last settled state.
func moveTask(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		task, err := s.store.GetTask(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		board, m, ok := s.boardMembership(c, task.BoardID, userID)
		if !ok {
			return nil
		}
		if !domain.PermissionsFor(m.Role).CanEditTask {
			return c.String(http.StatusForbidden, "cannot move tasks")
		}
		var req moveRequest
		if !s.decode(c, &req) {
			return nil
		}

		columns, err := s.store.ListColumns(ctx, board.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		tasks, err := s.store.ListTasks(ctx, board.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		target := domain.DropTarget{ColumnID: req.ColumnID, TaskID: req.TargetTaskID}
		plan, planned := domain.PlanMove(tasks, columns, task.ID, target)
		if !planned {
			return c.JSON(http.StatusOK, task)
		}

		updatedAt := time.Now().UTC()
		if err := s.store.MoveTask(ctx, board.ID, plan.TaskID, plan.ColumnID, plan.Position, plan.Status, updatedAt); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		for _, shift := range plan.Shifts {
			if err := s.store.UpdateTaskPosition(ctx, board.ID, shift.TaskID, shift.Position); err != nil {
				c.Logger().Error(err)
				if s.cache != nil {
					s.cache.EvictBoard(ctx, board.ID)
				}
				return c.String(http.StatusInternalServerError, err.Error())
			}
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		before := task
		task.ColumnID = plan.ColumnID
		task.Position = plan.Position
		task.Status = plan.Status
		task.UpdatedAt = updatedAt
		s.publish(ctx, feed.NewEvent(domain.CollectionTasks, domain.EventUpdate, task.ID, before, task), feed.BoardChannel(board.ID))
		for _, shift := range plan.Shifts {
			for _, t := range tasks {
				if t.ID != shift.TaskID {
					continue
				}
				shifted := t
				shifted.Position = shift.Position
				s.publish(ctx, feed.NewEvent(domain.CollectionTasks, domain.EventUpdate, shifted.ID, t, shifted), feed.BoardChannel(board.ID))
			}
		}

		if task.Status == domain.StatusDone && before.Status != domain.StatusDone && task.CreatedBy != userID {
			s.enqueue(ctx, domain.Notification{
				ID:        uuid.NewString(),
				UserID:    task.CreatedBy,
				Type:      domain.NotifyTaskCompleted,
				Title:     "Task Completed",
				Message:   task.Title + " has been completed",
				Data:      map[string]any{"taskId": task.ID, "boardId": board.ID},
				CreatedAt: updatedAt,
			})
		}
		return c.JSON(http.StatusOK, task)
	}
}

// notifyAssignment queues a task_assigned notification unless the actor
// assigned the task to themselves.
func (s *service) notifyAssignment(c echo.Context, task domain.Task, actorID string) {
	if task.AssignedTo == "" || task.AssignedTo == actorID {
		return
	}
	s.enqueue(c.Request().Context(), domain.Notification{
		ID:        uuid.NewString(),
		UserID:    task.AssignedTo,
		Type:      domain.NotifyTaskAssigned,
		Title:     "New Task Assigned",
		Message:   "You have been assigned to " + task.Title,
		Data:      map[string]any{"taskId": task.ID, "boardId": task.BoardID},
		CreatedAt: time.Now().UTC(),
	})
}
