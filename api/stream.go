package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"teamboard-api/domain"
	"teamboard-api/feed"
)

// Subscriber consumes a feed channel until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(domain.ChangeEvent))
}

// streamEvents serves GET /api/stream?scope=... as server-sent events.
// Scopes are board:<id>, team:<id> or user; board and team scopes are gated
// on membership. The stream replays nothing: snapshot endpoints provide the
// initial state and the stream carries only changes from now on.
func streamEvents(s *service, subscriber Subscriber) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may ride a query
		// parameter instead.
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := s.auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		channel, err := s.resolveScope(c, c.QueryParam("scope"), userID)
		if err != nil {
			return err
		}
		if channel == "" {
			return nil
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		events := make(chan domain.ChangeEvent, 16)
		go subscriber.Subscribe(ctx, channel, func(ev domain.ChangeEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				data, err := json.Marshal(ev)
				if err != nil {
					c.Logger().Error(err)
					continue
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

// resolveScope maps a scope parameter to a feed channel, enforcing
// membership. An empty channel with a nil error means the gate already
// wrote the response.
func (s *service) resolveScope(c echo.Context, scope, userID string) (string, error) {
	switch {
	case scope == "user":
		return feed.UserChannel(userID), nil
	case strings.HasPrefix(scope, "board:"):
		boardID := strings.TrimPrefix(scope, "board:")
		if _, _, ok := s.boardMembership(c, boardID, userID); !ok {
			return "", nil
		}
		return feed.BoardChannel(boardID), nil
	case strings.HasPrefix(scope, "team:"):
		teamID := strings.TrimPrefix(scope, "team:")
		if _, ok := s.membership(c, teamID, userID); !ok {
			return "", nil
		}
		return feed.TeamChannel(teamID), nil
	default:
		return "", c.String(http.StatusBadRequest, "unknown scope")
	}
}
