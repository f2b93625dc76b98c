package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/auth"
	"groupchat-api/internal/cache"
	"groupchat-api/internal/events"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// ErrInvalidCredentials is returned for both unknown emails and wrong
// passwords, so login failures do not leak which accounts exist. The HTTP
// layer maps it to 401, outside the service error taxonomy.
var ErrInvalidCredentials = errors.New("invalid credentials")

// MainChatProvider seats a user in the reserved default group.
type MainChatProvider interface {
	MainChat(ctx context.Context, userID primitive.ObjectID) (*models.Group, error)
}

// AuthService handles signup, login, and logout. Tokens are stateless; the
// only server-side session state is the presence flag.
type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.TokenManager
	presence *cache.Client
	mainChat MainChatProvider
	events   *events.Producer
	log      *zap.SugaredLogger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenManager,
	presence *cache.Client,
	mainChat MainChatProvider,
	events *events.Producer,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		presence: presence,
		mainChat: mainChat,
		events:   events,
		log:      log,
	}
}

// Session is a signed token plus its expiry.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register creates an account and seats it in Main Chat. The seat is best
// effort; the next Main Chat access repeats it idempotently.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.User, *Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:      name,
		Email:     email,
		Password:  string(hash),
		Role:      models.RoleUser,
		IsOnline:  true,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, apperrors.Conflict("email already registered")
		}
		return nil, nil, apperrors.Internal(err)
	}

	if _, err := s.mainChat.MainChat(ctx, user.ID); err != nil {
		s.log.Warnw("seat new user in main chat", "user_id", user.ID.Hex(), "error", err)
	}
	if err := s.events.Publish(ctx, user.ID.Hex(), events.TypeUserCreated, user); err != nil {
		s.log.Warnw("publish user.created", "user_id", user.ID.Hex(), "error", err)
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Login verifies credentials, flips the user online, and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, *Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, apperrors.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// startSession marks the user online and signs a token. Presence writes are
// best effort; a cache hiccup must not block a valid login.
func (s *AuthService) startSession(ctx context.Context, user *models.User) (*Session, error) {
	now := time.Now().UTC()
	if err := s.users.SetPresence(ctx, user.ID, true, now); err != nil {
		s.log.Warnw("set presence", "user_id", user.ID.Hex(), "error", err)
	}
	if err := s.presence.SetPresence(ctx, user.ID.Hex(), true); err != nil {
		s.log.Warnw("cache presence", "user_id", user.ID.Hex(), "error", err)
	}
	user.IsOnline = true
	user.LastSeen = now

	token, exp, err := s.tokens.Generate(user.ID.Hex(), string(user.Role))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &Session{Token: token, ExpiresAt: exp}, nil
}

// Logout flips presence off. Tokens are not revocable; clients drop theirs.
func (s *AuthService) Logout(ctx context.Context, userID primitive.ObjectID) error {
	now := time.Now().UTC()
	if err := s.users.SetPresence(ctx, userID, false, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}
	if err := s.presence.SetPresence(ctx, userID.Hex(), false); err != nil {
		s.log.Warnw("cache presence", "user_id", userID.Hex(), "error", err)
	}
	return nil
}
