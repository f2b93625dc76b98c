package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// Bootstrapper seeds the singletons the system assumes exist: the platform
// admin account and the Main Chat group with that admin seated as its group
// admin. Every step is guarded by store lookups and unique indexes, so
// multiple instances can run it concurrently at startup.
type Bootstrapper struct {
	users  repository.UserRepository
	groups *GroupService
	log    *zap.SugaredLogger
}

func NewBootstrapper(users repository.UserRepository, groups *GroupService, log *zap.SugaredLogger) *Bootstrapper {
	return &Bootstrapper{users: users, groups: groups, log: log}
}

func (b *Bootstrapper) Run(ctx context.Context, name, email, password string) error {
	admin, err := b.ensureAdmin(ctx, name, email, password)
	if err != nil {
		return err
	}

	group, created, err := b.groups.ensureMainChat(ctx)
	if err != nil {
		return err
	}
	if created {
		b.groups.postSystemMessage(ctx, group.ID, admin.ID, "Welcome to Main Chat!")
	}

	if _, err := ensureMembership(ctx, b.groups.memberships, group.ID, admin.ID, models.GroupRoleAdmin); err != nil {
		return err
	}

	b.log.Infow("bootstrap complete", "admin", admin.Email, "main_chat_id", group.ID.Hex())
	return nil
}

func (b *Bootstrapper) ensureAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	admin, err := b.users.GetByEmail(ctx, email)
	if err == nil {
		if !admin.IsAdmin() {
			b.log.Warnw("seed admin email belongs to a non-admin account", "email", email)
		}
		return admin, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	admin = &models.User{
		Name:      name,
		Email:     email,
		Password:  string(hash),
		Role:      models.RoleSuperAdmin,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.users.Create(ctx, admin); err != nil {
		// Another instance seeded it first.
		if errors.Is(err, repository.ErrDuplicate) {
			return b.users.GetByEmail(ctx, email)
		}
		return nil, err
	}
	b.log.Infow("seeded admin account", "email", email)
	return admin, nil
}
