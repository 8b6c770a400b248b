package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"teamboard-api/domain"
	"teamboard-api/feed"
)

const defaultChatHistoryLimit = 100

func listChatMessages(s *service) echo.HandlerFunc {
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

		limit := defaultChatHistoryLimit
		if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = parsed
		}

		messages, err := s.store.ListChatMessages(ctx, teamID, limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, messages)
	}
}

type chatMessageRequest struct {
	Content string `json:"content"`
}

func postChatMessage(s *service) echo.HandlerFunc {
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
		var req chatMessageRequest
		if !s.decode(c, &req) {
			return nil
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			return c.String(http.StatusBadRequest, "empty message")
		}

		message := domain.ChatMessage{
			ID:        uuid.NewString(),
			TeamID:    teamID,
			UserID:    userID,
			Content:   content,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.AppendChatMessage(ctx, message); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionChatMessages, domain.EventInsert, message.ID, nil, message)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		return c.JSON(http.StatusCreated, message)
	}
}
