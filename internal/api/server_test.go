package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupchat-api/internal/auth"
	"groupchat-api/internal/handlers"
	"groupchat-api/internal/logger"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository/inmem"
	"groupchat-api/internal/service"
)

// testServer runs the full HTTP stack on in-memory repositories.
type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager

	users       *inmem.UserRepository
	groups      *inmem.GroupRepository
	memberships *inmem.MembershipRepository
	messages    *inmem.MessageRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	ts := &testServer{
		tokens:      auth.NewTokenManager("test-secret", time.Hour),
		users:       inmem.NewUserRepository(),
		groups:      inmem.NewGroupRepository(),
		memberships: inmem.NewMembershipRepository(),
		messages:    inmem.NewMessageRepository(),
	}

	groupSvc := service.NewGroupService(ts.groups, ts.memberships, ts.messages, ts.users, nil, nil, log)
	messageSvc := service.NewMessageService(ts.messages, ts.memberships, ts.groups, nil, log)
	userSvc := service.NewUserService(ts.users, ts.memberships, ts.messages, ts.groups, log)
	authSvc := service.NewAuthService(ts.users, ts.tokens, nil, groupSvc, nil, log)

	ts.app = NewServer(
		ts.tokens,
		handlers.NewAuthHandler(authSvc, log),
		handlers.NewUserHandler(userSvc, log),
		handlers.NewGroupHandler(groupSvc, log),
		handlers.NewMessageHandler(messageSvc, log),
	)
	return ts
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// register creates an account over HTTP and returns its id and bearer token.
func (ts *testServer) register(t *testing.T, name, email string) (string, string) {
	t.Helper()
	status, body := ts.request(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name":     name,
		"email":    email,
		"password": "long-password",
	})
	require.Equal(t, http.StatusCreated, status)
	data := objField(t, body, "data")
	user := objField(t, data, "user")
	session := objField(t, data, "session")
	return user["id"].(string), session["token"].(string)
}

func objField(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	require.True(t, ok, "missing object %q in %v", key, m)
	return v
}

func listField(t *testing.T, m map[string]interface{}, key string) []interface{} {
	t.Helper()
	v, ok := m[key].([]interface{})
	require.True(t, ok, "missing list %q in %v", key, m)
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.request(t, fiber.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestRegisterValidationAndConflict(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.request(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name":     "A",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "error", body["status"])
	require.Equal(t, "invalid_argument", body["code"])
	fields := objField(t, body, "errors")
	require.Contains(t, fields, "name")
	require.Contains(t, fields, "email")
	require.Contains(t, fields, "password")

	ts.register(t, "Ada", "ada@example.com")

	status, body = ts.request(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name":     "Imposter",
		"email":    "ada@example.com",
		"password": "long-password",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "conflict", body["code"])
}

func TestRegisterDoesNotLeakPasswordHash(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.request(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name":     "Ada",
		"email":    "ada@example.com",
		"password": "long-password",
	})
	require.Equal(t, http.StatusCreated, status)
	user := objField(t, objField(t, body, "data"), "user")
	require.NotContains(t, user, "password")
}

func TestLoginAndProtectedRoutes(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "Ada", "ada@example.com")

	status, body := ts.request(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "ada@example.com",
		"password": "long-password",
	})
	require.Equal(t, http.StatusOK, status)
	session := objField(t, objField(t, body, "data"), "session")
	require.NotEmpty(t, session["token"])

	status, body = ts.request(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid credentials", body["message"])

	// Missing, malformed, and garbage credentials are all 401.
	status, _ = ts.request(t, fiber.MethodGet, "/api/groups", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.request(t, fiber.MethodGet, "/api/groups", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.request(t, fiber.MethodGet, "/api/groups", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.request(t, fiber.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestAdminRoutesAreRoleGated(t *testing.T) {
	ts := newTestServer(t)
	_, userToken := ts.register(t, "Ada", "ada@example.com")

	status, body := ts.request(t, fiber.MethodGet, "/api/users", userToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "admin access required", body["error"])

	adminToken := ts.adminToken(t, "root@example.com")
	status, body = ts.request(t, fiber.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	data := objField(t, body, "data")
	require.Contains(t, data, "users")
	require.Contains(t, data, "total")
}

// adminToken seeds a platform admin directly and signs a token for it.
func (ts *testServer) adminToken(t *testing.T, email string) string {
	t.Helper()
	now := time.Now().UTC()
	admin := &models.User{
		Name:      "Root",
		Email:     email,
		Password:  "not-a-hash",
		Role:      models.RoleAdmin,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, ts.users.Create(context.Background(), admin))
	token, _, err := ts.tokens.Generate(admin.ID.Hex(), string(models.RoleAdmin))
	require.NoError(t, err)
	return token
}

func TestGroupMessageFlow(t *testing.T) {
	ts := newTestServer(t)
	_, adaToken := ts.register(t, "Ada", "ada@example.com")
	benID, benToken := ts.register(t, "Ben", "ben@example.com")

	status, body := ts.request(t, fiber.MethodPost, "/api/groups", adaToken, fiber.Map{
		"name":        "general",
		"description": "open floor",
	})
	require.Equal(t, http.StatusCreated, status)
	group := objField(t, body, "data")
	groupID := group["id"].(string)

	status, _ = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/join", benToken, nil)
	require.Equal(t, http.StatusOK, status)

	// A non-member cannot read the room.
	_, calToken := ts.register(t, "Cal", "cal@example.com")
	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages", calToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", body["code"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/messages", benToken, fiber.Map{
		"content": "hello there",
	})
	require.Equal(t, http.StatusCreated, status)
	sent := objField(t, body, "data")
	messageID := sent["id"].(string)
	require.Equal(t, "hello there", sent["content"])
	require.Equal(t, "text", sent["type"])

	// Ada has the creation note read (she posted it) and Ben's message unread.
	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages/unread-count", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, objField(t, body, "data")["unreadCount"])

	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages?page=1&limit=10", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	data := objField(t, body, "data")
	msgs := listField(t, data, "messages")
	require.Len(t, msgs, 2)
	meta := objField(t, data, "pagination")
	require.EqualValues(t, 1, meta["currentPage"])
	require.EqualValues(t, 1, meta["totalPages"])
	require.EqualValues(t, 2, meta["totalMessages"])
	require.Equal(t, false, meta["hasNext"])
	require.Equal(t, false, meta["hasPrev"])

	// Listing marked the page read.
	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages/unread-count", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, objField(t, body, "data")["unreadCount"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/messages/mark-read", adaToken, fiber.Map{
		"messageIds": []string{messageID},
	})
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 0, objField(t, body, "data")["markedCount"], "already read via listing")

	// Only the sender can edit.
	status, body = ts.request(t, fiber.MethodPut, "/api/messages/"+messageID, adaToken, fiber.Map{
		"content": "rewritten",
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", body["code"])

	status, body = ts.request(t, fiber.MethodPut, "/api/messages/"+messageID, benToken, fiber.Map{
		"content": "hello, edited",
	})
	require.Equal(t, http.StatusOK, status)
	edited := objField(t, body, "data")
	require.Equal(t, "hello, edited", edited["content"])
	require.Equal(t, true, edited["edited"])

	// The group admin may delete it.
	status, _ = ts.request(t, fiber.MethodDelete, "/api/messages/"+messageID, adaToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/members", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	members := listField(t, body, "data")
	require.Len(t, members, 2)
	first := members[0].(map[string]interface{})
	require.Equal(t, "admin", first["role"])

	status, _ = ts.request(t, fiber.MethodDelete, "/api/groups/"+groupID+"/members/"+benID, adaToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages", benToken, nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestMessageValidationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "Ada", "ada@example.com")

	status, body := ts.request(t, fiber.MethodPost, "/api/groups", token, fiber.Map{"name": "general"})
	require.Equal(t, http.StatusCreated, status)
	groupID := objField(t, body, "data")["id"].(string)

	long := bytes.Repeat([]byte("a"), models.MaxMessageLength+1)
	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/messages", token, fiber.Map{
		"content": string(long),
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_argument", body["code"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/messages", token, fiber.Map{
		"content": "",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_argument", body["code"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/messages/mark-read", token, fiber.Map{
		"messageIds": []string{"zzz"},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_argument", body["code"])

	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages?page=0", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, objField(t, body, "errors"), "page")

	// A malformed id in the path never reaches the service.
	status, body = ts.request(t, fiber.MethodGet, "/api/groups/not-hex/messages", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid_argument", body["code"])

	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+primitive.NewObjectID().Hex()+"/messages", token, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["code"])
}

func TestMainChatEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, adaToken := ts.register(t, "Ada", "ada@example.com")
	_, benToken := ts.register(t, "Ben", "ben@example.com")

	status, body := ts.request(t, fiber.MethodGet, "/api/groups/main", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	mainChat := objField(t, body, "data")
	require.Equal(t, models.MainChatName, mainChat["name"])
	mainChatID := mainChat["id"].(string)

	status, body = ts.request(t, fiber.MethodGet, "/api/groups/main", benToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, mainChatID, objField(t, body, "data")["id"])

	status, body = ts.request(t, fiber.MethodDelete, "/api/groups/"+mainChatID, adaToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", body["code"])

	// Registration already seated both users there.
	status, body = ts.request(t, fiber.MethodGet, "/api/groups/"+mainChatID+"/members", adaToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listField(t, body, "data"), 2)
}

func TestInvitationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, adaToken := ts.register(t, "Ada", "ada@example.com")
	_, benToken := ts.register(t, "Ben", "ben@example.com")

	status, body := ts.request(t, fiber.MethodPost, "/api/groups", adaToken, fiber.Map{
		"name":       "inner-circle",
		"is_private": true,
	})
	require.Equal(t, http.StatusCreated, status)
	groupID := objField(t, body, "data")["id"].(string)

	// Private groups cannot be joined directly.
	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/join", benToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", body["code"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/invite", adaToken, fiber.Map{
		"email": "ghost@example.com",
	})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["code"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/invite", adaToken, fiber.Map{
		"email": "ben@example.com",
	})
	require.Equal(t, http.StatusCreated, status)
	inv := objField(t, body, "data")
	require.Equal(t, "pending", inv["status"])

	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/invite", adaToken, fiber.Map{
		"email": "ben@example.com",
	})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "conflict", body["code"])

	status, body = ts.request(t, fiber.MethodGet, "/api/users/me/invitations", benToken, nil)
	require.Equal(t, http.StatusOK, status)
	views := listField(t, body, "data")
	require.Len(t, views, 1)
	require.Equal(t, "inner-circle", views[0].(map[string]interface{})["group_name"])

	status, _ = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/invitations/accept", benToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.request(t, fiber.MethodGet, "/api/groups/"+groupID+"/messages", benToken, nil)
	require.Equal(t, http.StatusOK, status)

	// Nothing left to decline.
	status, body = ts.request(t, fiber.MethodPost, "/api/groups/"+groupID+"/invitations/decline", benToken, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["code"])
}

func TestAdminUserManagement(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.adminToken(t, "root@example.com")
	adaID, adaToken := ts.register(t, "Ada", "ada@example.com")

	status, body := ts.request(t, fiber.MethodPost, "/api/users", adminToken, fiber.Map{
		"name":     "Ops",
		"email":    "ops@example.com",
		"password": "long-password",
		"role":     "boss",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, objField(t, body, "errors"), "role")

	status, body = ts.request(t, fiber.MethodPost, "/api/users", adminToken, fiber.Map{
		"name":     "Ops",
		"email":    "ops@example.com",
		"password": "long-password",
		"role":     "admin",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "admin", objField(t, body, "data")["role"])

	status, body = ts.request(t, fiber.MethodPut, "/api/users/"+adaID, adminToken, fiber.Map{
		"role": "admin",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "admin", objField(t, body, "data")["role"])

	// Ordinary users cannot touch the admin surface.
	status, _ = ts.request(t, fiber.MethodDelete, "/api/users/"+adaID, adaToken, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = ts.request(t, fiber.MethodDelete, "/api/users/"+adaID, adminToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = ts.request(t, fiber.MethodGet, "/api/users/me", adaToken, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", body["code"])
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "Ada", "ada@example.com")

	status, body := ts.request(t, fiber.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ada@example.com", objField(t, body, "data")["email"])

	status, body = ts.request(t, fiber.MethodPut, "/api/users/me", token, fiber.Map{
		"name": "Ada L.",
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Ada L.", objField(t, body, "data")["name"])

	status, _ = ts.request(t, fiber.MethodPut, "/api/users/me/password", token, fiber.Map{
		"current_password": "long-password",
		"new_password":     "even-longer-password",
	})
	require.Equal(t, http.StatusOK, status)

	status, body = ts.request(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    "ada@example.com",
		"password": "even-longer-password",
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, objField(t, objField(t, body, "data"), "session")["token"])
}
