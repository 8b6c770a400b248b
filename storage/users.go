package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"teamboard-api/domain"
)

const (
	usersPartition = "user"
	teamsPartition = "team"
)

type userEntity struct {
	aztables.Entity
	Email        string `json:"Email"`
	FullName     string `json:"FullName"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

func (e userEntity) toDomain() domain.User {
	return domain.User{
		ID:           e.RowKey,
		Email:        e.Email,
		FullName:     e.FullName,
		PasswordHash: e.PasswordHash,
		CreatedAt:    parseTime(e.CreatedAt),
	}
}

// CreateUser inserts a new account row. It fails when the id already exists.
func (s *Storage) CreateUser(ctx context.Context, u domain.User) error {
	ent := userEntity{
		Entity:       aztables.Entity{PartitionKey: usersPartition, RowKey: u.ID},
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    formatTime(u.CreatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.users.AddEntity(ctx, payload, nil)
	return err
}

// GetUser fetches one account by id.
func (s *Storage) GetUser(ctx context.Context, id string) (domain.User, error) {
	resp, err := s.users.GetEntity(ctx, usersPartition, id, nil)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.User{}, err
	}
	return ent.toDomain(), nil
}

// GetUserByEmail resolves an account by its email address.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	filter := partitionFilter(usersPartition) + " and Email eq '" + escapeFilter(email) + "'"
	var ent userEntity
	if err := getSingle(ctx, s.users, filter, &ent); err != nil {
		return domain.User{}, err
	}
	return ent.toDomain(), nil
}

// GetUsers fetches a set of accounts keyed by id. Missing ids are simply
// absent from the result.
func (s *Storage) GetUsers(ctx context.Context, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		u, err := s.GetUser(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}

type teamEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
}

func (e teamEntity) toDomain() domain.Team {
	return domain.Team{
		ID:          e.RowKey,
		Name:        e.Name,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   parseTime(e.CreatedAt),
	}
}

// UpsertTeam writes a team row.
func (s *Storage) UpsertTeam(ctx context.Context, t domain.Team) error {
	return upsert(ctx, s.teams, teamEntity{
		Entity:      aztables.Entity{PartitionKey: teamsPartition, RowKey: t.ID},
		Name:        t.Name,
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   formatTime(t.CreatedAt),
	})
}

// GetTeam fetches one team by id.
func (s *Storage) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	resp, err := s.teams.GetEntity(ctx, teamsPartition, id, nil)
	if err != nil {
		return domain.Team{}, mapNotFound(err)
	}
	var ent teamEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Team{}, err
	}
	return ent.toDomain(), nil
}

// DeleteTeam removes the team row. Members, boards and chat history are
// removed by the caller.
func (s *Storage) DeleteTeam(ctx context.Context, id string) error {
	return deleteEntity(ctx, s.teams, teamsPartition, id)
}

type membershipEntity struct {
	aztables.Entity
	Role     string `json:"Role"`
	JoinedAt string `json:"JoinedAt"`
}

func (e membershipEntity) toDomain() domain.Membership {
	return domain.Membership{
		TeamID:   e.PartitionKey,
		UserID:   e.RowKey,
		Role:     domain.Role(e.Role),
		JoinedAt: parseTime(e.JoinedAt),
	}
}

// UpsertMembership writes a team membership row.
func (s *Storage) UpsertMembership(ctx context.Context, m domain.Membership) error {
	return upsert(ctx, s.teamMembers, membershipEntity{
		Entity:   aztables.Entity{PartitionKey: m.TeamID, RowKey: m.UserID},
		Role:     string(m.Role),
		JoinedAt: formatTime(m.JoinedAt),
	})
}

// GetMembership fetches the membership binding a user to a team.
func (s *Storage) GetMembership(ctx context.Context, teamID, userID string) (domain.Membership, error) {
	resp, err := s.teamMembers.GetEntity(ctx, teamID, userID, nil)
	if err != nil {
		return domain.Membership{}, mapNotFound(err)
	}
	var ent membershipEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Membership{}, err
	}
	return ent.toDomain(), nil
}

// ListMembers returns all memberships of a team.
func (s *Storage) ListMembers(ctx context.Context, teamID string) ([]domain.Membership, error) {
	members := []domain.Membership{}
	err := listEntities(ctx, s.teamMembers, partitionFilter(teamID), func(data []byte) error {
		var ent membershipEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		members = append(members, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// ListMembershipsForUser returns every team membership a user holds.
func (s *Storage) ListMembershipsForUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	members := []domain.Membership{}
	err := listEntities(ctx, s.teamMembers, rowFilter(userID), func(data []byte) error {
		var ent membershipEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		members = append(members, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// DeleteMembership removes a user from a team.
func (s *Storage) DeleteMembership(ctx context.Context, teamID, userID string) error {
	return deleteEntity(ctx, s.teamMembers, teamID, userID)
}
