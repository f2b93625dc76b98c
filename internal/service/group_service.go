package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/cache"
	"groupchat-api/internal/events"
	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// GroupInput carries the caller-supplied fields for creating a group.
type GroupInput struct {
	Name        string
	Description string
	IsPrivate   bool
	MaxMembers  int
}

// UpdateGroupInput holds optional updates; nil fields are left untouched.
type UpdateGroupInput struct {
	Name        *string
	Description *string
	IsPrivate   *bool
	MaxMembers  *int
}

// Member is one row of a group's member listing.
type Member struct {
	UserID   primitive.ObjectID `json:"user_id"`
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Role     models.GroupRole   `json:"role"`
	JoinedAt time.Time          `json:"joined_at"`
	IsOnline bool               `json:"is_online"`
}

// InvitationView is a pending invitation seen from the invitee's side.
type InvitationView struct {
	GroupID    primitive.ObjectID `json:"group_id"`
	GroupName  string             `json:"group_name"`
	Invitation models.Invitation  `json:"invitation"`
}

// GroupService owns the group lifecycle, membership changes, and the
// invitation flow.
type GroupService struct {
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	users       repository.UserRepository
	presence    *cache.Client
	events      *events.Producer
	log         *zap.SugaredLogger
}

func NewGroupService(
	groups repository.GroupRepository,
	memberships repository.MembershipRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	presence *cache.Client,
	events *events.Producer,
	log *zap.SugaredLogger,
) *GroupService {
	return &GroupService{
		groups:      groups,
		memberships: memberships,
		messages:    messages,
		users:       users,
		presence:    presence,
		events:      events,
		log:         log,
	}
}

func (s *GroupService) getGroup(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("group not found")
		}
		return nil, apperrors.Internal(err)
	}
	return group, nil
}

// requireGroupAdmin loads the caller's membership and insists on the admin
// group role. Platform roles do not bypass this; group administration is
// granted by the membership row only.
func (s *GroupService) requireGroupAdmin(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	m, err := s.memberships.GetActive(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Forbidden("group admin access required")
		}
		return nil, apperrors.Internal(err)
	}
	if m.Role != models.GroupRoleAdmin {
		return nil, apperrors.Forbidden("group admin access required")
	}
	return m, nil
}

func (s *GroupService) requireMember(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	m, err := s.memberships.GetActive(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Forbidden("you are not a member of this group")
		}
		return nil, apperrors.Internal(err)
	}
	return m, nil
}

func (s *GroupService) checkCapacity(ctx context.Context, group *models.Group) error {
	n, err := s.memberships.CountActive(ctx, group.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if n >= int64(group.MaxMembers) {
		return apperrors.Conflict("group is full")
	}
	return nil
}

// Create makes a group, seats the creator as its admin, and opens the history
// with a system message naming the creator. A failure to seat the creator
// rolls the group back so no adminless group is left behind.
func (s *GroupService) Create(ctx context.Context, creatorID primitive.ObjectID, in GroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.InvalidArgument("group name must not be empty").
			WithFields(map[string]string{"name": "must not be empty"})
	}

	now := time.Now().UTC()
	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsPrivate:   in.IsPrivate,
		MaxMembers:  models.ClampCapacity(in.MaxMembers),
		CreatedBy:   &creatorID,
		Invitations: []models.Invitation{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("group name already taken")
		}
		return nil, apperrors.Internal(err)
	}

	membership := &models.Membership{
		GroupID:  group.ID,
		UserID:   creatorID,
		Role:     models.GroupRoleAdmin,
		JoinedAt: now,
		IsActive: true,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		if delErr := s.groups.Delete(ctx, group.ID); delErr != nil {
			s.log.Errorw("rollback group after membership failure", "group_id", group.ID.Hex(), "error", delErr)
		}
		return nil, apperrors.Internal(err)
	}

	if creator, err := s.users.GetByID(ctx, creatorID); err == nil {
		s.postSystemMessage(ctx, group.ID, creatorID, fmt.Sprintf("%s created the group", creator.Name))
	}

	if err := s.events.Publish(ctx, group.ID.Hex(), events.TypeGroupCreated, group); err != nil {
		s.log.Warnw("publish group.created", "group_id", group.ID.Hex(), "error", err)
	}
	return group, nil
}

// postSystemMessage writes a system-typed message. Failures are logged, not
// surfaced; the chat history note is not worth failing the parent operation.
func (s *GroupService) postSystemMessage(ctx context.Context, groupID, senderID primitive.ObjectID, content string) {
	now := time.Now().UTC()
	msg := &models.Message{
		GroupID:   groupID,
		SenderID:  senderID,
		Content:   content,
		Type:      models.MessageTypeSystem,
		ReadBy:    []models.ReadReceipt{{UserID: senderID, ReadAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.log.Warnw("post system message", "group_id", groupID.Hex(), "error", err)
	}
}

// Get returns a group's details. Private groups are visible to active
// members only.
func (s *GroupService) Get(ctx context.Context, callerID, groupID primitive.ObjectID) (*models.Group, error) {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsPrivate {
		if _, err := s.requireMember(ctx, groupID, callerID); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// List returns all public groups plus the private groups the caller belongs
// to, sorted by name.
func (s *GroupService) List(ctx context.Context, callerID primitive.ObjectID) ([]models.Group, error) {
	mine, err := s.memberships.ListActiveByUser(ctx, callerID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	ids := make([]primitive.ObjectID, 0, len(mine))
	for _, m := range mine {
		ids = append(ids, m.GroupID)
	}
	groups, err := s.groups.ListVisible(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return groups, nil
}

// Update edits group settings. Only active group admins may update, the Main
// Chat name is immutable, and a changed name is re-checked for uniqueness.
func (s *GroupService) Update(ctx context.Context, callerID, groupID primitive.ObjectID, in UpdateGroupInput) (*models.Group, error) {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireGroupAdmin(ctx, groupID, callerID); err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.InvalidArgument("group name must not be empty").
				WithFields(map[string]string{"name": "must not be empty"})
		}
		if name != group.Name {
			if group.Name == models.MainChatName {
				return nil, apperrors.Forbidden("Main Chat cannot be renamed")
			}
			if _, err := s.groups.GetByName(ctx, name); err == nil {
				return nil, apperrors.Conflict("group name already taken")
			} else if !errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.Internal(err)
			}
			group.Name = name
		}
	}
	if in.Description != nil {
		group.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsPrivate != nil {
		group.IsPrivate = *in.IsPrivate
	}
	if in.MaxMembers != nil {
		group.MaxMembers = models.ClampCapacity(*in.MaxMembers)
	}
	group.UpdatedAt = time.Now().UTC()

	if err := s.groups.Update(ctx, group); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.Conflict("group name already taken")
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NotFound("group not found")
		}
		return nil, apperrors.Internal(err)
	}
	return group, nil
}

// Delete removes a group with its memberships and messages. The children go
// first, concurrently; the group document falls only once both cascades
// succeed, so a failed cascade leaves the group intact and retryable rather
// than half-deleted. Main Chat is never deletable.
func (s *GroupService) Delete(ctx context.Context, callerID, groupID primitive.ObjectID) error {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.Name == models.MainChatName {
		return apperrors.Forbidden("Main Chat cannot be deleted")
	}
	if _, err := s.requireGroupAdmin(ctx, groupID, callerID); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.messages.DeleteByGroup(gctx, groupID) })
	g.Go(func() error { return s.memberships.DeleteByGroup(gctx, groupID) })
	if err := g.Wait(); err != nil {
		return apperrors.Internal(fmt.Errorf("cascade delete group %s: %w", groupID.Hex(), err))
	}

	if err := s.groups.Delete(ctx, groupID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeGroupDeleted, group); err != nil {
		s.log.Warnw("publish group.deleted", "group_id", groupID.Hex(), "error", err)
	}
	return nil
}

// Members lists active members, admins first, then by join time ascending
// with insertion order breaking ties. Presence is overlaid from the cache
// when one is configured.
func (s *GroupService) Members(ctx context.Context, callerID, groupID primitive.ObjectID) ([]Member, error) {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, groupID, callerID); err != nil {
		return nil, err
	}

	rows, err := s.memberships.ListActiveByGroup(ctx, groupID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	members := make([]Member, 0, len(rows))
	for _, m := range rows {
		member := Member{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		}
		if u, ok := byID[m.UserID]; ok {
			member.Name = u.Name
			member.Email = u.Email
			member.IsOnline = u.IsOnline
		}
		if online, err := s.presence.GetPresence(ctx, m.UserID.Hex()); err == nil && online {
			member.IsOnline = true
		}
		members = append(members, member)
	}

	// Rows arrive join-time ascending; a stable partition keeps that order
	// within the admin block and the rest.
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Role == models.GroupRoleAdmin && members[j].Role != models.GroupRoleAdmin
	})
	return members, nil
}

// Join adds the caller to a public group. Private groups require an
// invitation. A previously removed member is reactivated on the same row; a
// current member gets Conflict.
func (s *GroupService) Join(ctx context.Context, userID, groupID primitive.ObjectID) error {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.IsPrivate {
		return apperrors.Forbidden("this group requires an invitation")
	}
	if err := s.admit(ctx, group, userID, models.GroupRoleMember, false); err != nil {
		return err
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeMemberJoined, memberEvent(groupID, userID)); err != nil {
		s.log.Warnw("publish member.joined", "group_id", groupID.Hex(), "error", err)
	}
	return nil
}

// admit seats a user in a group, enforcing capacity and the one-row-per-pair
// rule. An active row is a Conflict unless tolerateActive is set (the accept
// retry path, where the membership may already be in place); an inactive row
// is reactivated with the given role and a fresh join time.
func (s *GroupService) admit(ctx context.Context, group *models.Group, userID primitive.ObjectID, role models.GroupRole, tolerateActive bool) error {
	existing, err := s.memberships.Get(ctx, group.ID, userID)
	switch {
	case err == nil && existing.IsActive:
		if tolerateActive {
			return nil
		}
		return apperrors.Conflict("already a member of this group")
	case err == nil:
		if err := s.checkCapacity(ctx, group); err != nil {
			return err
		}
		if err := s.memberships.Reactivate(ctx, group.ID, userID, role, time.Now().UTC()); err != nil {
			return apperrors.Internal(err)
		}
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return apperrors.Internal(err)
	}

	if err := s.checkCapacity(ctx, group); err != nil {
		return err
	}
	m := &models.Membership{
		GroupID:  group.ID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		// A concurrent join won the unique index race.
		if errors.Is(err, repository.ErrDuplicate) {
			if tolerateActive {
				return nil
			}
			return apperrors.Conflict("already a member of this group")
		}
		return apperrors.Internal(err)
	}
	return nil
}

// Leave deactivates the caller's own membership, subject to the last-admin
// rule.
func (s *GroupService) Leave(ctx context.Context, userID, groupID primitive.ObjectID) error {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	m, err := s.requireMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if err := s.checkLastAdmin(ctx, groupID, m); err != nil {
		return err
	}
	if err := s.memberships.Deactivate(ctx, groupID, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeMemberLeft, memberEvent(groupID, userID)); err != nil {
		s.log.Warnw("publish member.left", "group_id", groupID.Hex(), "error", err)
	}
	return nil
}

// checkLastAdmin rejects removing or demoting a group's only active admin.
// The group must keep at least one; transfer the role or delete the group.
func (s *GroupService) checkLastAdmin(ctx context.Context, groupID primitive.ObjectID, target *models.Membership) error {
	if target.Role != models.GroupRoleAdmin {
		return nil
	}
	admins, err := s.memberships.CountActiveByRole(ctx, groupID, models.GroupRoleAdmin)
	if err != nil {
		return apperrors.Internal(err)
	}
	if admins <= 1 {
		return apperrors.Conflict("group must keep at least one admin; transfer the role or delete the group")
	}
	return nil
}

// RemoveMember deactivates another user's membership. Caller must be an
// active group admin; the last-admin rule protects the target.
func (s *GroupService) RemoveMember(ctx context.Context, callerID, groupID, targetID primitive.ObjectID) error {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.requireGroupAdmin(ctx, groupID, callerID); err != nil {
		return err
	}
	target, err := s.memberships.GetActive(ctx, groupID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("member not found")
		}
		return apperrors.Internal(err)
	}
	if err := s.checkLastAdmin(ctx, groupID, target); err != nil {
		return err
	}
	if err := s.memberships.Deactivate(ctx, groupID, targetID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeMemberLeft, memberEvent(groupID, targetID)); err != nil {
		s.log.Warnw("publish member.left", "group_id", groupID.Hex(), "error", err)
	}
	return nil
}

// ChangeMemberRole sets a member's group role. Demoting the only active
// admin is rejected the same way removing them is.
func (s *GroupService) ChangeMemberRole(ctx context.Context, callerID, groupID, targetID primitive.ObjectID, role models.GroupRole) error {
	if !role.Valid() {
		return apperrors.InvalidArgument("invalid group role").
			WithFields(map[string]string{"role": "must be one of admin, moderator, member"})
	}
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.requireGroupAdmin(ctx, groupID, callerID); err != nil {
		return err
	}
	target, err := s.memberships.GetActive(ctx, groupID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("member not found")
		}
		return apperrors.Internal(err)
	}
	if target.Role == role {
		return nil
	}
	if role != models.GroupRoleAdmin {
		if err := s.checkLastAdmin(ctx, groupID, target); err != nil {
			return err
		}
	}
	if err := s.memberships.UpdateRole(ctx, groupID, targetID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("member not found")
		}
		return apperrors.Internal(err)
	}
	return nil
}

// MainChat finds or creates the reserved default group and makes sure the
// caller holds an active membership in it. Both steps are idempotent and
// race through the store's uniqueness constraints, not in-process guards.
// A first join posts a system welcome message; rejoins stay silent.
func (s *GroupService) MainChat(ctx context.Context, userID primitive.ObjectID) (*models.Group, error) {
	group, _, err := s.ensureMainChat(ctx)
	if err != nil {
		return nil, err
	}
	firstJoin, err := ensureMembership(ctx, s.memberships, group.ID, userID, models.GroupRoleMember)
	if err != nil {
		return nil, err
	}
	if firstJoin {
		if user, err := s.users.GetByID(ctx, userID); err == nil {
			s.postSystemMessage(ctx, group.ID, userID, fmt.Sprintf("Welcome to %s, %s!", group.Name, user.Name))
		}
	}
	return group, nil
}

// ensureMainChat reports whether this call actually created the group, so
// the bootstrap can seed first-run content exactly once.
func (s *GroupService) ensureMainChat(ctx context.Context) (*models.Group, bool, error) {
	group, err := s.groups.GetByName(ctx, models.MainChatName)
	if err == nil {
		return group, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	group = &models.Group{
		Name:        models.MainChatName,
		Description: "Default chat for everyone",
		IsPrivate:   false,
		MaxMembers:  models.MaxGroupCapacity,
		Invitations: []models.Invitation{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		// Another instance created it between our lookup and insert.
		if errors.Is(err, repository.ErrDuplicate) {
			group, err = s.groups.GetByName(ctx, models.MainChatName)
			if err != nil {
				return nil, false, apperrors.Internal(err)
			}
			return group, false, nil
		}
		return nil, false, apperrors.Internal(err)
	}
	return group, true, nil
}

// ensureMembership is the idempotent seat: an active row is left alone, an
// inactive one is reactivated, a missing one is created. Unlike admit it
// skips the capacity check, so the reserved group can always take users.
// Reports whether this call created a brand-new row.
func ensureMembership(ctx context.Context, memberships repository.MembershipRepository, groupID, userID primitive.ObjectID, role models.GroupRole) (bool, error) {
	existing, err := memberships.Get(ctx, groupID, userID)
	switch {
	case err == nil && existing.IsActive:
		return false, nil
	case err == nil:
		if err := memberships.Reactivate(ctx, groupID, userID, role, time.Now().UTC()); err != nil {
			return false, apperrors.Internal(err)
		}
		return false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, apperrors.Internal(err)
	}

	m := &models.Membership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		IsActive: true,
	}
	if err := memberships.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a concurrent race; the row exists now, reactivate if needed.
			return ensureMembership(ctx, memberships, groupID, userID, role)
		}
		return false, apperrors.Internal(err)
	}
	return true, nil
}

// Invite records a pending invitation on the group. Only active group admins
// may invite; the invitee must be a known account, not a current member, and
// not already invited.
func (s *GroupService) Invite(ctx context.Context, inviterID, groupID primitive.ObjectID, email string) (*models.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.InvalidArgument("email must not be empty").
			WithFields(map[string]string{"email": "must not be empty"})
	}

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireGroupAdmin(ctx, groupID, inviterID); err != nil {
		return nil, err
	}

	invitee, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal(err)
	}

	if _, err := s.memberships.GetActive(ctx, groupID, invitee.ID); err == nil {
		return nil, apperrors.Conflict("user is already a member of this group")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}
	if group.PendingInvitationFor(invitee.ID) != nil {
		return nil, apperrors.Conflict("user already has a pending invitation")
	}

	inv := models.Invitation{
		ID:        uuid.NewString(),
		UserID:    invitee.ID,
		Email:     invitee.Email,
		InvitedBy: inviterID,
		InvitedAt: time.Now().UTC(),
		Status:    models.InvitationPending,
	}
	if err := s.groups.AddInvitation(ctx, groupID, inv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("user already has a pending invitation")
		}
		return nil, apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeUserInvited, inv); err != nil {
		s.log.Warnw("publish user.invited", "group_id", groupID.Hex(), "error", err)
	}
	return &inv, nil
}

// AcceptInvitation turns the caller's pending invitation into an active
// membership. The membership is written first and the status flip second; a
// crash in between leaves the invitation pending, and a retried accept heals
// it because admit tolerates the membership already existing.
func (s *GroupService) AcceptInvitation(ctx context.Context, userID, groupID primitive.ObjectID) error {
	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.PendingInvitationFor(userID) == nil {
		return apperrors.NotFound("no pending invitation for this group")
	}

	if err := s.admit(ctx, group, userID, models.GroupRoleMember, true); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.groups.SetInvitationStatus(ctx, groupID, userID, models.InvitationAccepted, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}

	if err := s.events.Publish(ctx, groupID.Hex(), events.TypeMemberJoined, memberEvent(groupID, userID)); err != nil {
		s.log.Warnw("publish member.joined", "group_id", groupID.Hex(), "error", err)
	}
	return nil
}

// DeclineInvitation marks the caller's pending invitation rejected.
func (s *GroupService) DeclineInvitation(ctx context.Context, userID, groupID primitive.ObjectID) error {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}
	err := s.groups.SetInvitationStatus(ctx, groupID, userID, models.InvitationRejected, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("no pending invitation for this group")
		}
		return apperrors.Internal(err)
	}
	return nil
}

// MyInvitations lists the caller's pending invitations across all groups.
func (s *GroupService) MyInvitations(ctx context.Context, userID primitive.ObjectID) ([]InvitationView, error) {
	groups, err := s.groups.ListWithPendingInvitationFor(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	views := make([]InvitationView, 0, len(groups))
	for i := range groups {
		inv := groups[i].PendingInvitationFor(userID)
		if inv == nil {
			continue
		}
		views = append(views, InvitationView{
			GroupID:    groups[i].ID,
			GroupName:  groups[i].Name,
			Invitation: *inv,
		})
	}
	return views, nil
}

func memberEvent(groupID, userID primitive.ObjectID) map[string]string {
	return map[string]string{"group_id": groupID.Hex(), "user_id": userID.Hex()}
}
