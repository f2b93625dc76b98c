package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupchat-api/internal/apperrors"
	"groupchat-api/internal/models"
)

func TestCreateGroupSeatsCreatorAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "Ada", "ada@example.com")

	group := env.createGroup(t, creator.ID, GroupInput{Name: "  general  ", Description: "chit chat"})
	require.Equal(t, "general", group.Name)
	require.Equal(t, models.DefaultGroupCapacity, group.MaxMembers)
	require.Equal(t, creator.ID, *group.CreatedBy)

	m, err := env.memberships.GetActive(ctx, group.ID, creator.ID)
	require.NoError(t, err)
	require.Equal(t, models.GroupRoleAdmin, m.Role)

	msgs, _, err := env.messageSvc.List(ctx, creator.ID, group.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Ada created the group", msgs[0].Content)
	require.Equal(t, models.MessageTypeSystem, msgs[0].Type)

	_, err = env.groupSvc.Create(ctx, creator.ID, GroupInput{Name: "general"})
	requireCode(t, err, apperrors.CodeConflict)

	_, err = env.groupSvc.Create(ctx, creator.ID, GroupInput{Name: "   "})
	requireCode(t, err, apperrors.CodeInvalidArgument)
}

func TestCreateGroupClampsCapacity(t *testing.T) {
	env := newTestEnv(t)
	creator := env.seedUser(t, "Ada", "ada@example.com")

	cases := []struct {
		requested int
		want      int
	}{
		{0, models.DefaultGroupCapacity},
		{-5, models.MinGroupCapacity},
		{5000, models.MaxGroupCapacity},
		{42, 42},
	}
	for i, tc := range cases {
		group := env.createGroup(t, creator.ID, GroupInput{
			Name:       fmt.Sprintf("room-%d", i),
			MaxMembers: tc.requested,
		})
		require.Equal(t, tc.want, group.MaxMembers, "requested %d", tc.requested)
	}
}

func TestUpdateGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})
	env.createGroup(t, admin.ID, GroupInput{Name: "taken"})
	env.join(t, member.ID, group.ID)

	name := "renamed"
	_, err := env.groupSvc.Update(ctx, member.ID, group.ID, UpdateGroupInput{Name: &name})
	requireCode(t, err, apperrors.CodeForbidden)

	taken := "taken"
	_, err = env.groupSvc.Update(ctx, admin.ID, group.ID, UpdateGroupInput{Name: &taken})
	requireCode(t, err, apperrors.CodeConflict)

	// Re-submitting the current name is not a collision with itself.
	same := "general"
	desc := "still chatting"
	private := true
	capacity := 2000
	updated, err := env.groupSvc.Update(ctx, admin.ID, group.ID, UpdateGroupInput{
		Name:        &same,
		Description: &desc,
		IsPrivate:   &private,
		MaxMembers:  &capacity,
	})
	require.NoError(t, err)
	require.Equal(t, "general", updated.Name)
	require.Equal(t, "still chatting", updated.Description)
	require.True(t, updated.IsPrivate)
	require.Equal(t, models.MaxGroupCapacity, updated.MaxMembers)

	updated, err = env.groupSvc.Update(ctx, admin.ID, group.ID, UpdateGroupInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)

	_, err = env.groupSvc.Update(ctx, admin.ID, primitive.NewObjectID(), UpdateGroupInput{})
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestDeleteGroupCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "doomed"})
	keeper := env.createGroup(t, admin.ID, GroupInput{Name: "keeper"})
	env.join(t, member.ID, group.ID)

	for i := 0; i < 3; i++ {
		_, err := env.messageSvc.Send(ctx, member.ID, group.ID, fmt.Sprintf("m%d", i), "")
		require.NoError(t, err)
	}

	requireCode(t, env.groupSvc.Delete(ctx, member.ID, group.ID), apperrors.CodeForbidden)

	require.NoError(t, env.groupSvc.Delete(ctx, admin.ID, group.ID))

	_, err := env.groupSvc.Get(ctx, admin.ID, group.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	n, err := env.messages.CountByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Zero(t, n, "messages are cascaded")

	active, err := env.memberships.CountActive(ctx, group.ID)
	require.NoError(t, err)
	require.Zero(t, active, "memberships are cascaded")

	// The other group is untouched.
	k, err := env.messages.CountByGroup(ctx, keeper.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, k)

	requireCode(t, env.groupSvc.Delete(ctx, admin.ID, group.ID), apperrors.CodeNotFound)
}

func TestMainChatIsProtected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.bootstrap.Run(ctx, "Admin", "admin@example.com", "seed-password"))

	admin, err := env.users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	mainChat, err := env.groups.GetByName(ctx, models.MainChatName)
	require.NoError(t, err)

	// Even its group admin cannot rename or delete it.
	name := "Renamed Chat"
	_, err = env.groupSvc.Update(ctx, admin.ID, mainChat.ID, UpdateGroupInput{Name: &name})
	requireCode(t, err, apperrors.CodeForbidden)

	requireCode(t, env.groupSvc.Delete(ctx, admin.ID, mainChat.ID), apperrors.CodeForbidden)

	// Other settings stay editable.
	desc := "Everyone lands here"
	updated, err := env.groupSvc.Update(ctx, admin.ID, mainChat.ID, UpdateGroupInput{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, models.MainChatName, updated.Name)
	require.Equal(t, "Everyone lands here", updated.Description)
}

func TestLastAdminCannotLeaveOrBeDemoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})
	env.join(t, member.ID, group.ID)

	requireCode(t, env.groupSvc.Leave(ctx, admin.ID, group.ID), apperrors.CodeConflict)
	requireCode(t, env.groupSvc.RemoveMember(ctx, admin.ID, group.ID, admin.ID), apperrors.CodeConflict)
	requireCode(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, admin.ID, models.GroupRoleMember), apperrors.CodeConflict)
	requireCode(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, admin.ID, models.GroupRoleModerator), apperrors.CodeConflict)

	// With a second admin in place the first can step down.
	require.NoError(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, member.ID, models.GroupRoleAdmin))
	require.NoError(t, env.groupSvc.Leave(ctx, admin.ID, group.ID))

	_, err := env.memberships.GetActive(ctx, group.ID, admin.ID)
	require.Error(t, err)
}

func TestChangeMemberRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})
	env.join(t, member.ID, group.ID)

	// An unknown role is rejected before anything is looked up.
	err := env.groupSvc.ChangeMemberRole(ctx, admin.ID, primitive.NewObjectID(), member.ID, "owner")
	requireCode(t, err, apperrors.CodeInvalidArgument)

	err = env.groupSvc.ChangeMemberRole(ctx, member.ID, group.ID, admin.ID, models.GroupRoleMember)
	requireCode(t, err, apperrors.CodeForbidden)

	err = env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, primitive.NewObjectID(), models.GroupRoleModerator)
	requireCode(t, err, apperrors.CodeNotFound)

	require.NoError(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, member.ID, models.GroupRoleModerator))
	m, err := env.memberships.GetActive(ctx, group.ID, member.ID)
	require.NoError(t, err)
	require.Equal(t, models.GroupRoleModerator, m.Role)

	// Same-role change is a no-op, not an error.
	require.NoError(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, member.ID, models.GroupRoleModerator))
}

func TestJoinLeaveRejoinReusesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	user := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})

	require.NoError(t, env.groupSvc.Join(ctx, user.ID, group.ID))
	first, err := env.memberships.Get(ctx, group.ID, user.ID)
	require.NoError(t, err)
	require.True(t, first.IsActive)

	err = env.groupSvc.Join(ctx, user.ID, group.ID)
	requireCode(t, err, apperrors.CodeConflict)

	require.NoError(t, env.groupSvc.Leave(ctx, user.ID, group.ID))
	_, err = env.memberships.GetActive(ctx, group.ID, user.ID)
	require.Error(t, err)

	requireCode(t, env.groupSvc.Leave(ctx, user.ID, group.ID), apperrors.CodeForbidden)

	require.NoError(t, env.groupSvc.Join(ctx, user.ID, group.ID))
	second, err := env.memberships.GetActive(ctx, group.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "rejoining reactivates the original row")

	err = env.groupSvc.Join(ctx, user.ID, primitive.NewObjectID())
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestJoinPrivateGroupRequiresInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	user := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "inner-circle", IsPrivate: true})

	err := env.groupSvc.Join(ctx, user.ID, group.ID)
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestJoinFullGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	second := env.seedUser(t, "Ben", "ben@example.com")
	third := env.seedUser(t, "Cal", "cal@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "tiny", MaxMembers: 2})

	require.NoError(t, env.groupSvc.Join(ctx, second.ID, group.ID))

	err := env.groupSvc.Join(ctx, third.ID, group.ID)
	requireCode(t, err, apperrors.CodeConflict)

	// A departure frees the seat.
	require.NoError(t, env.groupSvc.Leave(ctx, second.ID, group.ID))
	require.NoError(t, env.groupSvc.Join(ctx, third.ID, group.ID))
}

func TestMembersListsAdminsFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	ben := env.seedUser(t, "Ben", "ben@example.com")
	cal := env.seedUser(t, "Cal", "cal@example.com")
	outsider := env.seedUser(t, "Dee", "dee@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})
	env.join(t, ben.ID, group.ID)
	env.join(t, cal.ID, group.ID)
	require.NoError(t, env.groupSvc.ChangeMemberRole(ctx, admin.ID, group.ID, cal.ID, models.GroupRoleAdmin))
	require.NoError(t, env.users.SetPresence(ctx, ben.ID, true, ben.LastSeen))

	members, err := env.groupSvc.Members(ctx, ben.ID, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	// Admins first, join order within each block.
	require.Equal(t, admin.ID, members[0].UserID)
	require.Equal(t, cal.ID, members[1].UserID)
	require.Equal(t, ben.ID, members[2].UserID)
	require.Equal(t, models.GroupRoleAdmin, members[0].Role)
	require.Equal(t, models.GroupRoleAdmin, members[1].Role)
	require.Equal(t, models.GroupRoleMember, members[2].Role)

	require.Equal(t, "Ben", members[2].Name)
	require.Equal(t, "ben@example.com", members[2].Email)
	require.True(t, members[2].IsOnline)
	require.False(t, members[0].IsOnline)

	_, err = env.groupSvc.Members(ctx, outsider.ID, group.ID)
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "general"})
	env.join(t, member.ID, group.ID)

	err := env.groupSvc.RemoveMember(ctx, member.ID, group.ID, admin.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	err = env.groupSvc.RemoveMember(ctx, admin.ID, group.ID, primitive.NewObjectID())
	requireCode(t, err, apperrors.CodeNotFound)

	require.NoError(t, env.groupSvc.RemoveMember(ctx, admin.ID, group.ID, member.ID))
	_, err = env.memberships.GetActive(ctx, group.ID, member.ID)
	require.Error(t, err)

	// Already removed.
	err = env.groupSvc.RemoveMember(ctx, admin.ID, group.ID, member.ID)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestGetPrivateGroupVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	outsider := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "inner-circle", IsPrivate: true})

	got, err := env.groupSvc.Get(ctx, admin.ID, group.ID)
	require.NoError(t, err)
	require.Equal(t, group.ID, got.ID)

	_, err = env.groupSvc.Get(ctx, outsider.ID, group.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = env.groupSvc.Get(ctx, admin.ID, primitive.NewObjectID())
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestListShowsPublicAndOwnPrivateGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.seedUser(t, "Ada", "ada@example.com")
	ben := env.seedUser(t, "Ben", "ben@example.com")
	env.createGroup(t, ada.ID, GroupInput{Name: "alpha"})
	env.createGroup(t, ada.ID, GroupInput{Name: "beta", IsPrivate: true})
	env.createGroup(t, ben.ID, GroupInput{Name: "gamma", IsPrivate: true})

	names := func(groups []models.Group) []string {
		out := make([]string, 0, len(groups))
		for _, g := range groups {
			out = append(out, g.Name)
		}
		return out
	}

	mine, err := env.groupSvc.List(ctx, ada.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, names(mine))

	theirs, err := env.groupSvc.List(ctx, ben.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "gamma"}, names(theirs))
}

func TestInvitationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	member := env.seedUser(t, "Ben", "ben@example.com")
	invitee := env.seedUser(t, "Cal", "cal@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "inner-circle", IsPrivate: true})
	env.seedMembership(t, group.ID, member.ID, models.GroupRoleMember)

	_, err := env.groupSvc.Invite(ctx, member.ID, group.ID, "cal@example.com")
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = env.groupSvc.Invite(ctx, admin.ID, group.ID, "nobody@example.com")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	requireCode(t, err, apperrors.CodeConflict)

	inv, err := env.groupSvc.Invite(ctx, admin.ID, group.ID, "  CAL@example.com ")
	require.NoError(t, err)
	require.Equal(t, "cal@example.com", inv.Email)
	require.Equal(t, models.InvitationPending, inv.Status)
	require.NotEmpty(t, inv.ID)

	_, err = env.groupSvc.Invite(ctx, admin.ID, group.ID, "cal@example.com")
	requireCode(t, err, apperrors.CodeConflict)

	views, err := env.groupSvc.MyInvitations(ctx, invitee.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, group.ID, views[0].GroupID)
	require.Equal(t, "inner-circle", views[0].GroupName)

	// Accepting without a pending invitation is NotFound.
	err = env.groupSvc.AcceptInvitation(ctx, member.ID, group.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	require.NoError(t, env.groupSvc.AcceptInvitation(ctx, invitee.ID, group.ID))
	m, err := env.memberships.GetActive(ctx, group.ID, invitee.ID)
	require.NoError(t, err)
	require.Equal(t, models.GroupRoleMember, m.Role)

	stored, err := env.groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	require.Nil(t, stored.PendingInvitationFor(invitee.ID))
	require.Equal(t, models.InvitationAccepted, stored.Invitations[0].Status)
	require.NotNil(t, stored.Invitations[0].RespondedAt)

	err = env.groupSvc.AcceptInvitation(ctx, invitee.ID, group.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	views, err = env.groupSvc.MyInvitations(ctx, invitee.ID)
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestDeclineInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	invitee := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "inner-circle", IsPrivate: true})

	_, err := env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	require.NoError(t, err)

	require.NoError(t, env.groupSvc.DeclineInvitation(ctx, invitee.ID, group.ID))

	_, err = env.memberships.Get(ctx, group.ID, invitee.ID)
	require.Error(t, err, "declining never creates a membership")

	stored, err := env.groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvitationRejected, stored.Invitations[0].Status)

	err = env.groupSvc.DeclineInvitation(ctx, invitee.ID, group.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	// A declined user can be invited again.
	_, err = env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	require.NoError(t, err)
}

func TestReinviteAfterRemovalReactivatesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	invitee := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "inner-circle", IsPrivate: true})

	_, err := env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	require.NoError(t, err)
	require.NoError(t, env.groupSvc.AcceptInvitation(ctx, invitee.ID, group.ID))
	first, err := env.memberships.GetActive(ctx, group.ID, invitee.ID)
	require.NoError(t, err)

	require.NoError(t, env.groupSvc.RemoveMember(ctx, admin.ID, group.ID, invitee.ID))

	_, err = env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	require.NoError(t, err)
	require.NoError(t, env.groupSvc.AcceptInvitation(ctx, invitee.ID, group.ID))

	second, err := env.memberships.GetActive(ctx, group.ID, invitee.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestAcceptInvitationAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "Ada", "ada@example.com")
	invitee := env.seedUser(t, "Ben", "ben@example.com")
	group := env.createGroup(t, admin.ID, GroupInput{Name: "solo", IsPrivate: true, MaxMembers: 1})

	_, err := env.groupSvc.Invite(ctx, admin.ID, group.ID, "ben@example.com")
	require.NoError(t, err)

	err = env.groupSvc.AcceptInvitation(ctx, invitee.ID, group.ID)
	requireCode(t, err, apperrors.CodeConflict)

	// The invitation survives the failed accept.
	stored, err := env.groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PendingInvitationFor(invitee.ID))
}

func TestMainChatFindOrCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.seedUser(t, "Ada", "ada@example.com")
	ben := env.seedUser(t, "Ben", "ben@example.com")

	first, err := env.groupSvc.MainChat(ctx, ada.ID)
	require.NoError(t, err)
	require.Equal(t, models.MainChatName, first.Name)
	require.False(t, first.IsPrivate)
	require.Equal(t, models.MaxGroupCapacity, first.MaxMembers)

	second, err := env.groupSvc.MainChat(ctx, ben.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "main chat is a singleton")

	// Repeat calls are idempotent.
	_, err = env.groupSvc.MainChat(ctx, ada.ID)
	require.NoError(t, err)

	for _, id := range []primitive.ObjectID{ada.ID, ben.ID} {
		m, err := env.memberships.GetActive(ctx, first.ID, id)
		require.NoError(t, err)
		require.Equal(t, models.GroupRoleMember, m.Role)
	}

	// One welcome per first join; the repeat call posted nothing.
	count, err := env.messages.CountByGroup(ctx, first.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
