package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// CreateUserInput is the admin-side account creation payload.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// UpdateUserInput holds optional admin edits; nil fields are left untouched.
// Setting GroupID assigns the user to a group and seats them in it.
type UpdateUserInput struct {
	Name    *string
	Email   *string
	Role    *models.Role
	GroupID *primitive.ObjectID
}

// UpdateProfileInput holds the self-service profile edits.
type UpdateProfileInput struct {
	Name  *string
	Email *string
}

// UserService owns account reads and writes, both self-service and the
// admin surface.
type UserService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	groups      repository.GroupRepository
	log         *zap.SugaredLogger
}

func NewUserService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	messages repository.MessageRepository,
	groups repository.GroupRepository,
	log *zap.SugaredLogger,
) *UserService {
	return &UserService{
		users:       users,
		memberships: memberships,
		messages:    messages,
		groups:      groups,
		log:         log,
	}
}

func (s *UserService) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// List pages through all accounts. Admin only; the route gate enforces that.
func (s *UserService) List(ctx context.Context, page, limit int) ([]models.User, int64, error) {
	fields := map[string]string{}
	if page < 1 {
		fields["page"] = "must be at least 1"
	}
	if limit < 1 || limit > MaxPageLimit {
		fields["limit"] = "must be between 1 and 100"
	}
	if len(fields) > 0 {
		return nil, 0, apperrors.InvalidArgument("invalid pagination parameters").WithFields(fields)
	}

	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return users, total, nil
}

// UpdateProfile lets a user edit their own name and email.
func (s *UserService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, in UpdateProfileInput) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.InvalidArgument("name must not be empty").
				WithFields(map[string]string{"name": "must not be empty"})
		}
		user.Name = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, apperrors.InvalidArgument("email must not be empty").
				WithFields(map[string]string{"email": "must not be empty"})
		}
		user.Email = email
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.Conflict("email already registered")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// ChangePassword verifies the current credential before storing a new hash.
func (s *UserService) ChangePassword(ctx context.Context, userID primitive.ObjectID, current, next string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return apperrors.Forbidden("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Internal(err)
	}
	return nil
}

// Create provisions an account with an explicit role. Admin surface.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fields := map[string]string{}
	if name == "" {
		fields["name"] = "must not be empty"
	}
	if email == "" {
		fields["email"] = "must not be empty"
	}
	if !in.Role.Valid() {
		fields["role"] = "must be one of super_admin, admin, user"
	}
	if len(fields) > 0 {
		return nil, apperrors.InvalidArgument("invalid user input").WithFields(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:      name,
		Email:     email,
		Password:  string(hash),
		Role:      in.Role,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("email already registered")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// Update applies admin edits. Assigning a group also seats the user in that
// group, reusing the idempotent membership path.
func (s *UserService) Update(ctx context.Context, targetID primitive.ObjectID, in UpdateUserInput) (*models.User, error) {
	user, err := s.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.InvalidArgument("name must not be empty").
				WithFields(map[string]string{"name": "must not be empty"})
		}
		user.Name = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, apperrors.InvalidArgument("email must not be empty").
				WithFields(map[string]string{"email": "must not be empty"})
		}
		user.Email = email
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperrors.InvalidArgument("invalid role").
				WithFields(map[string]string{"role": "must be one of super_admin, admin, user"})
		}
		user.Role = *in.Role
	}
	if in.GroupID != nil {
		if _, err := s.groups.GetByID(ctx, *in.GroupID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NotFound("group not found")
			}
			return nil, apperrors.Internal(err)
		}
		if _, err := ensureMembership(ctx, s.memberships, *in.GroupID, targetID, models.GroupRoleMember); err != nil {
			return nil, err
		}
		user.GroupID = in.GroupID
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.Conflict("email already registered")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// Delete hard-removes an account. Membership rows and authored messages go
// first, concurrently; the account document falls only after both cascades
// succeed, so a failure leaves the user intact and the delete retryable.
// Admin seats are removed like any other row.
func (s *UserService) Delete(ctx context.Context, targetID primitive.ObjectID) error {
	if _, err := s.Get(ctx, targetID); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.memberships.DeleteByUser(gctx, targetID) })
	g.Go(func() error { return s.messages.DeleteBySender(gctx, targetID) })
	if err := g.Wait(); err != nil {
		return apperrors.Internal(fmt.Errorf("cascade delete user %s: %w", targetID.Hex(), err))
	}

	if err := s.users.Delete(ctx, targetID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}
	return nil
}
