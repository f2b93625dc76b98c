package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/auth"
	"groupchat-api/internal/logger"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository/inmem"
)

// testEnv wires every service against in-memory repositories. Cache and event
// producer stay nil; both are nil-safe.
type testEnv struct {
	users       *inmem.UserRepository
	groups      *inmem.GroupRepository
	memberships *inmem.MembershipRepository
	messages    *inmem.MessageRepository

	tokens     *auth.TokenManager
	groupSvc   *GroupService
	messageSvc *MessageService
	userSvc    *UserService
	authSvc    *AuthService
	bootstrap  *Bootstrapper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:       inmem.NewUserRepository(),
		groups:      inmem.NewGroupRepository(),
		memberships: inmem.NewMembershipRepository(),
		messages:    inmem.NewMessageRepository(),
		tokens:      auth.NewTokenManager("test-secret", time.Hour),
	}
	log := logger.NewNop()
	env.groupSvc = NewGroupService(env.groups, env.memberships, env.messages, env.users, nil, nil, log)
	env.messageSvc = NewMessageService(env.messages, env.memberships, env.groups, nil, log)
	env.userSvc = NewUserService(env.users, env.memberships, env.messages, env.groups, log)
	env.authSvc = NewAuthService(env.users, env.tokens, nil, env.groupSvc, nil, log)
	env.bootstrap = NewBootstrapper(env.users, env.groupSvc, log)
	return env
}

// seedUser inserts an account directly. The password field is not a real hash;
// tests that exercise credentials go through AuthService or UserService.
func (e *testEnv) seedUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		Name:      name,
		Email:     email,
		Password:  "not-a-hash",
		Role:      models.RoleUser,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

// createGroup goes through the service, so the creator is seated as admin and
// the creation system message is posted.
func (e *testEnv) createGroup(t *testing.T, creatorID primitive.ObjectID, in GroupInput) *models.Group {
	t.Helper()
	g, err := e.groupSvc.Create(context.Background(), creatorID, in)
	require.NoError(t, err)
	return g
}

// seedBareGroup inserts a group document directly, with no members and no
// system message.
func (e *testEnv) seedBareGroup(t *testing.T, name string, private bool) *models.Group {
	t.Helper()
	now := time.Now().UTC()
	g := &models.Group{
		Name:        name,
		IsPrivate:   private,
		MaxMembers:  models.DefaultGroupCapacity,
		Invitations: []models.Invitation{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.groups.Create(context.Background(), g))
	return g
}

func (e *testEnv) seedMembership(t *testing.T, groupID, userID primitive.ObjectID, role models.GroupRole) {
	t.Helper()
	m := &models.Membership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	}
	require.NoError(t, e.memberships.Create(context.Background(), m))
}

func (e *testEnv) join(t *testing.T, userID, groupID primitive.ObjectID) {
	t.Helper()
	require.NoError(t, e.groupSvc.Join(context.Background(), userID, groupID))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperrors.CodeOf(err))
}
