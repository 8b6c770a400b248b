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

type boardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// boardMembership resolves a board and gates it on team membership, writing
// the error response itself on failure.
func (s *service) boardMembership(c echo.Context, boardID, userID string) (domain.Board, domain.Membership, bool) {
	board, err := s.store.GetBoard(c.Request().Context(), boardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = c.String(http.StatusNotFound, "board not found")
		} else {
			c.Logger().Error(err)
			_ = c.String(http.StatusInternalServerError, err.Error())
		}
		return domain.Board{}, domain.Membership{}, false
	}
	m, ok := s.membership(c, board.TeamID, userID)
	if !ok {
		return domain.Board{}, domain.Membership{}, false
	}
	return board, m, true
}

func listBoards(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		teamID := c.Param("id")
		if _, ok := s.membership(c, teamID, userID); !ok {
			return nil
		}
		boards, err := s.store.ListBoards(ctx, teamID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func createBoard(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		teamID := c.Param("id")
		m, ok := s.membership(c, teamID, userID)
		if !ok {
			return nil
		}
		if !domain.PermissionsFor(m.Role).CanCreateBoard {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req boardRequest
		if !s.decode(c, &req) {
			return nil
		}
		if strings.TrimSpace(req.Name) == "" {
			return c.String(http.StatusBadRequest, "board name required")
		}

		now := time.Now().UTC()
		board := domain.Board{
			ID:          uuid.NewString(),
			TeamID:      teamID,
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			CreatedBy:   userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.UpsertBoard(ctx, board); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		// Every board starts with the default column set.
		for _, col := range domain.DefaultColumns(board.ID) {
			if err := s.store.UpsertColumn(ctx, col); err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
		}

		ev := feed.NewEvent(domain.CollectionBoards, domain.EventInsert, board.ID, nil, board)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		if members, err := s.store.ListMembers(ctx, teamID); err == nil {
			var shared []domain.Notification
			for _, member := range members {
				if member.UserID == userID {
					continue
				}
				shared = append(shared, domain.Notification{
					ID:        uuid.NewString(),
					UserID:    member.UserID,
					Type:      domain.NotifyBoardShared,
					Title:     "New Board",
					Message:   board.Name + " was created in your team",
					Data:      map[string]any{"teamId": teamID, "boardId": board.ID},
					CreatedAt: now,
				})
			}
			s.enqueue(ctx, shared...)
		} else {
			s.logger.WithError(err).Error("list members for board notification")
		}
		return c.JSON(http.StatusCreated, board)
	}
}

func getBoard(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		board, _, ok := s.boardMembership(c, c.Param("id"), userID)
		if !ok {
			return nil
		}
		return c.JSON(http.StatusOK, board)
	}
}

func updateBoard(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanEditBoard {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req boardRequest
		if !s.decode(c, &req) {
			return nil
		}
		before := board
		if strings.TrimSpace(req.Name) != "" {
			board.Name = strings.TrimSpace(req.Name)
		}
		board.Description = strings.TrimSpace(req.Description)
		board.UpdatedAt = time.Now().UTC()
		if err := s.store.UpsertBoard(ctx, board); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionBoards, domain.EventUpdate, board.ID, before, board)
		s.publish(ctx, ev, feed.TeamChannel(board.TeamID), feed.BoardChannel(board.ID))
		return c.JSON(http.StatusOK, board)
	}
}

func deleteBoard(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanDeleteBoard {
			return c.String(http.StatusForbidden, "requires team admin")
		}

		if err := s.store.DeleteBoard(ctx, board.TeamID, board.ID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionBoards, domain.EventDelete, board.ID, nil, nil)
		s.publish(ctx, ev, feed.TeamChannel(board.TeamID), feed.BoardChannel(board.ID))
		return c.NoContent(http.StatusNoContent)
	}
}

type columnRequest struct {
	Name     string            `json:"name"`
	Color    string            `json:"color"`
	Position *int              `json:"position"`
	Role     domain.ColumnRole `json:"role"`
}

func createColumn(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanManageColumns {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req columnRequest
		if !s.decode(c, &req) {
			return nil
		}
		if strings.TrimSpace(req.Name) == "" {
			return c.String(http.StatusBadRequest, "column name required")
		}

		position := 0
		if req.Position != nil {
			position = *req.Position
		} else {
			existing, err := s.store.ListColumns(ctx, board.ID)
			if err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
			position = len(existing)
		}
		role := req.Role
		if role == "" {
			role = domain.ColumnRoleTodo
		}
		column := domain.Column{
			ID:       uuid.NewString(),
			BoardID:  board.ID,
			Name:     strings.TrimSpace(req.Name),
			Color:    req.Color,
			Position: position,
			Role:     role,
		}
		if err := s.store.UpsertColumn(ctx, column); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionBoardColumns, domain.EventInsert, column.ID, nil, column)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		return c.JSON(http.StatusCreated, column)
	}
}

func updateColumn(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanManageColumns {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		column, err := s.store.GetColumn(ctx, c.Param("columnId"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "column not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if column.BoardID != board.ID {
			return c.String(http.StatusNotFound, "column not found")
		}
		var req columnRequest
		if !s.decode(c, &req) {
			return nil
		}
		before := column
		if strings.TrimSpace(req.Name) != "" {
			column.Name = strings.TrimSpace(req.Name)
		}
		if req.Color != "" {
			column.Color = req.Color
		}
		if req.Position != nil {
			column.Position = *req.Position
		}
		if req.Role != "" {
			column.Role = req.Role
		}
		if err := s.store.UpsertColumn(ctx, column); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionBoardColumns, domain.EventUpdate, column.ID, before, column)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		return c.JSON(http.StatusOK, column)
	}
}

func deleteColumn(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanManageColumns {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		columnID := c.Param("columnId")

		// Tasks still in the column go with it.
		tasks, err := s.store.ListTasks(ctx, board.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		for _, t := range tasks {
			if t.ColumnID != columnID {
				continue
			}
			if err := s.store.DeleteTask(ctx, board.ID, t.ID); err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
			s.publish(ctx, feed.NewEvent(domain.CollectionTasks, domain.EventDelete, t.ID, t, nil), feed.BoardChannel(board.ID))
		}
		if err := s.store.DeleteColumn(ctx, board.ID, columnID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if s.cache != nil {
			s.cache.EvictBoard(ctx, board.ID)
		}

		ev := feed.NewEvent(domain.CollectionBoardColumns, domain.EventDelete, columnID, nil, nil)
		s.publish(ctx, ev, feed.BoardChannel(board.ID))
		return c.NoContent(http.StatusNoContent)
	}
}
