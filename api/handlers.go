package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"teamboard-api/domain"
	"teamboard-api/feed"
	"teamboard-api/storage"
)

const requestBodyMaxSize = 1 << 20

type service struct {
	store     Storage
	cache     SnapshotCache
	auth      Authenticator
	issuer    TokenIssuer
	publisher Publisher
	deadlines DeadlineFilter
	logger    *log.Logger
}

// Register wires up all API routes on the provided Echo instance. issuer,
// subscriber and deadlines may be nil: without an issuer the sign-up and
// sign-in endpoints are not registered, without a subscriber the stream
// endpoint is not registered, and without a deadline filter every scan
// delivers.
func Register(e *echo.Echo, store Storage, cache SnapshotCache, auth Authenticator, issuer TokenIssuer, publisher Publisher, subscriber Subscriber, deadlines DeadlineFilter, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	svc := &service{
		store:     store,
		cache:     cache,
		auth:      auth,
		issuer:    issuer,
		publisher: publisher,
		deadlines: deadlines,
		logger:    logger,
	}

	if issuer != nil {
		e.POST("/api/auth/signup", signUp(svc))
		e.POST("/api/auth/signin", signIn(svc))
	}
	e.GET("/api/me", getMe(svc))

	e.POST("/api/teams", createTeam(svc))
	e.GET("/api/teams", listTeams(svc))
	e.GET("/api/teams/:id", getTeam(svc))
	e.PUT("/api/teams/:id", updateTeam(svc))
	e.DELETE("/api/teams/:id", deleteTeam(svc))

	e.GET("/api/teams/:id/members", listMembers(svc))
	e.POST("/api/teams/:id/members", addMember(svc))
	e.PUT("/api/teams/:id/members/:userId", changeMemberRole(svc))
	e.DELETE("/api/teams/:id/members/:userId", removeMember(svc))

	e.GET("/api/teams/:id/boards", listBoards(svc))
	e.POST("/api/teams/:id/boards", createBoard(svc))
	e.GET("/api/boards/:id", getBoard(svc))
	e.PUT("/api/boards/:id", updateBoard(svc))
	e.DELETE("/api/boards/:id", deleteBoard(svc))

	e.POST("/api/boards/:id/columns", createColumn(svc))
	e.PUT("/api/boards/:id/columns/:columnId", updateColumn(svc))
	e.DELETE("/api/boards/:id/columns/:columnId", deleteColumn(svc))

	e.GET("/api/boards/:id/tasks", getBoardSnapshot(svc))
	e.POST("/api/boards/:id/tasks", createTask(svc))
	e.PUT("/api/tasks/:id", updateTask(svc))
	e.DELETE("/api/tasks/:id", deleteTask(svc))
	e.POST("/api/tasks/:id/move", moveTask(svc))

	e.GET("/api/teams/:id/chat", listChatMessages(svc))
	e.POST("/api/teams/:id/chat", postChatMessage(svc))

	e.GET("/api/notifications", listNotifications(svc))
	e.PUT("/api/notifications/:id/read", markNotificationRead(svc))
	e.PUT("/api/notifications/read-all", markAllNotificationsRead(svc))

	e.GET("/api/check-deadlines", checkDeadlines(svc))
	e.POST("/api/check-deadlines", checkDeadlines(svc))

	if subscriber != nil {
		e.GET("/api/stream", streamEvents(svc, subscriber))
	}

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// userID authenticates the request, writing a 401 response on failure.
func (s *service) userID(c echo.Context) (string, bool) {
	userID, err := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		_ = c.String(http.StatusUnauthorized, err.Error())
		return "", false
	}
	return userID, true
}

// membership gates a team-scoped route, writing a 403 response when the
// caller does not belong to the team.
func (s *service) membership(c echo.Context, teamID, userID string) (domain.Membership, bool) {
	m, err := s.store.GetMembership(c.Request().Context(), teamID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = c.String(http.StatusForbidden, "not a team member")
		} else {
			c.Logger().Error(err)
			_ = c.String(http.StatusInternalServerError, err.Error())
		}
		return domain.Membership{}, false
	}
	return m, true
}

func (s *service) decode(c echo.Context, v any) bool {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		_ = c.String(http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}

func (s *service) publish(ctx context.Context, ev domain.ChangeEvent, channels ...string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, ev, channels...)
}

func (s *service) enqueue(ctx context.Context, notifications ...domain.Notification) {
	if len(notifications) == 0 {
		return
	}
	if err := s.store.EnqueueNotifications(ctx, notifications); err != nil {
		// Delivery is best-effort; the triggering write already succeeded.
		s.logger.WithError(err).Error("enqueue notifications")
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func signUp(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req signUpRequest
		if !s.decode(c, &req) {
			return nil
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || !strings.Contains(req.Email, "@") {
			return c.String(http.StatusBadRequest, "invalid email")
		}
		if len(req.Password) < 8 {
			return c.String(http.StatusBadRequest, "password must be at least 8 characters")
		}

		if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
			return c.String(http.StatusConflict, "email already registered")
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "hash password")
		}
		user := domain.User{
			ID:           uuid.NewString(),
			Email:        req.Email,
			FullName:     strings.TrimSpace(req.FullName),
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		token, err := s.issuer.IssueToken(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, sessionResponse{Token: token, User: user})
	}
}

func signIn(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var req signInRequest
		if !s.decode(c, &req) {
			return nil
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))

		user, err := s.store.GetUserByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusUnauthorized, "invalid credentials")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return c.String(http.StatusUnauthorized, "invalid credentials")
		}

		token, err := s.issuer.IssueToken(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, sessionResponse{Token: token, User: user})
	}
}

func getMe(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		user, err := s.store.GetUser(c.Request().Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "user not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, user)
	}
}

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func createTeam(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		var req teamRequest
		if !s.decode(c, &req) {
			return nil
		}
		if strings.TrimSpace(req.Name) == "" {
			return c.String(http.StatusBadRequest, "team name required")
		}

		now := time.Now().UTC()
		team := domain.Team{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			CreatedBy:   userID,
			CreatedAt:   now,
		}
		if err := s.store.UpsertTeam(ctx, team); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		membership := domain.Membership{TeamID: team.ID, UserID: userID, Role: domain.RoleAdmin, JoinedAt: now}
		if err := s.store.UpsertMembership(ctx, membership); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeams, domain.EventInsert, team.ID, nil, team)
		s.publish(ctx, ev, feed.TeamChannel(team.ID), feed.UserChannel(userID))
		return c.JSON(http.StatusCreated, team)
	}
}

func listTeams(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		memberships, err := s.store.ListMembershipsForUser(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		teams := make([]domain.Team, 0, len(memberships))
		for _, m := range memberships {
			team, err := s.store.GetTeam(ctx, m.TeamID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
			teams = append(teams, team)
		}
		return c.JSON(http.StatusOK, teams)
	}
}

func getTeam(s *service) echo.HandlerFunc {
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
		team, err := s.store.GetTeam(ctx, teamID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "team not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, team)
	}
}

func updateTeam(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanEditTeam {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req teamRequest
		if !s.decode(c, &req) {
			return nil
		}
		team, err := s.store.GetTeam(ctx, teamID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "team not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		before := team
		if strings.TrimSpace(req.Name) != "" {
			team.Name = strings.TrimSpace(req.Name)
		}
		team.Description = strings.TrimSpace(req.Description)
		if err := s.store.UpsertTeam(ctx, team); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeams, domain.EventUpdate, team.ID, before, team)
		s.publish(ctx, ev, feed.TeamChannel(team.ID))
		return c.JSON(http.StatusOK, team)
	}
}

func deleteTeam(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanDeleteTeam {
			return c.String(http.StatusForbidden, "requires team admin")
		}

		members, err := s.store.ListMembers(ctx, teamID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		for _, member := range members {
			if err := s.store.DeleteMembership(ctx, teamID, member.UserID); err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
		}
		// Boards go with the team, columns and tasks with each board.
		boards, err := s.store.ListBoards(ctx, teamID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		for _, board := range boards {
			if err := s.store.DeleteBoard(ctx, teamID, board.ID); err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, err.Error())
			}
			if s.cache != nil {
				s.cache.EvictBoard(ctx, board.ID)
			}
			boardEv := feed.NewEvent(domain.CollectionBoards, domain.EventDelete, board.ID, nil, nil)
			s.publish(ctx, boardEv, feed.TeamChannel(teamID), feed.BoardChannel(board.ID))
		}
		if err := s.store.DeleteChatHistory(ctx, teamID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if err := s.store.DeleteTeam(ctx, teamID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeams, domain.EventDelete, teamID, nil, nil)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		return c.NoContent(http.StatusNoContent)
	}
}

type memberResponse struct {
	domain.Membership
	User domain.User `json:"user"`
}

func listMembers(s *service) echo.HandlerFunc {
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
		members, err := s.store.ListMembers(ctx, teamID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		users, err := s.store.GetUsers(ctx, ids)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		out := make([]memberResponse, 0, len(members))
		for _, m := range members {
			out = append(out, memberResponse{Membership: m, User: users[m.UserID]})
		}
		return c.JSON(http.StatusOK, out)
	}
}

type addMemberRequest struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func addMember(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanInviteMembers {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req addMemberRequest
		if !s.decode(c, &req) {
			return nil
		}
		if req.Role != domain.RoleAdmin {
			req.Role = domain.RoleMember
		}

		invited, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "no user with that email")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if _, err := s.store.GetMembership(ctx, teamID, invited.ID); err == nil {
			return c.String(http.StatusConflict, "already a member")
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		team, err := s.store.GetTeam(ctx, teamID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		membership := domain.Membership{TeamID: teamID, UserID: invited.ID, Role: req.Role, JoinedAt: time.Now().UTC()}
		if err := s.store.UpsertMembership(ctx, membership); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeamMembers, domain.EventInsert, invited.ID, nil, membership)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		now := time.Now().UTC()
		queued := []domain.Notification{{
			ID:        uuid.NewString(),
			UserID:    invited.ID,
			Type:      domain.NotifyTeamInvite,
			Title:     "Team Invitation",
			Message:   "You have been added to " + team.Name,
			Data:      map[string]any{"teamId": teamID},
			CreatedAt: now,
		}}
		if members, err := s.store.ListMembers(ctx, teamID); err == nil {
			for _, existing := range members {
				if existing.UserID == invited.ID || existing.UserID == userID {
					continue
				}
				queued = append(queued, domain.Notification{
					ID:        uuid.NewString(),
					UserID:    existing.UserID,
					Type:      domain.NotifyMemberJoined,
					Title:     "New Team Member",
					Message:   invited.Email + " joined " + team.Name,
					Data:      map[string]any{"teamId": teamID, "userId": invited.ID},
					CreatedAt: now,
				})
			}
		} else {
			s.logger.WithError(err).Error("list members for join notification")
		}
		s.enqueue(ctx, queued...)
		return c.JSON(http.StatusCreated, membership)
	}
}

type changeRoleRequest struct {
	Role domain.Role `json:"role"`
}

func changeMemberRole(s *service) echo.HandlerFunc {
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
		if !domain.PermissionsFor(m.Role).CanChangeRoles {
			return c.String(http.StatusForbidden, "requires team admin")
		}
		var req changeRoleRequest
		if !s.decode(c, &req) {
			return nil
		}
		if req.Role != domain.RoleAdmin && req.Role != domain.RoleMember {
			return c.String(http.StatusBadRequest, "unknown role")
		}

		target, err := s.store.GetMembership(ctx, teamID, c.Param("userId"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "membership not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		before := target
		target.Role = req.Role
		if err := s.store.UpsertMembership(ctx, target); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeamMembers, domain.EventUpdate, target.UserID, before, target)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		return c.JSON(http.StatusOK, target)
	}
}

func removeMember(s *service) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, ok := s.userID(c)
		if !ok {
			return nil
		}
		teamID := c.Param("id")
		targetID := c.Param("userId")
		m, ok := s.membership(c, teamID, userID)
		if !ok {
			return nil
		}
		// Members may always leave; removing someone else needs the admin
		// capability.
		if targetID != userID && !domain.PermissionsFor(m.Role).CanRemoveMembers {
			return c.String(http.StatusForbidden, "requires team admin")
		}

		if err := s.store.DeleteMembership(ctx, teamID, targetID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		ev := feed.NewEvent(domain.CollectionTeamMembers, domain.EventDelete, targetID, nil, nil)
		s.publish(ctx, ev, feed.TeamChannel(teamID))
		if targetID != userID {
			teamName := "a team"
			if team, err := s.store.GetTeam(ctx, teamID); err == nil {
				teamName = team.Name
			} else {
				s.logger.WithError(err).Error("resolve team for removal notification")
			}
			s.enqueue(ctx, domain.Notification{
				ID:        uuid.NewString(),
				UserID:    targetID,
				Type:      domain.NotifyMemberLeft,
				Title:     "Removed from Team",
				Message:   "You have been removed from " + teamName,
				Data:      map[string]any{"teamId": teamID},
				CreatedAt: time.Now().UTC(),
			})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
