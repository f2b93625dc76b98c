// Package inmem provides in-memory repository implementations that mirror
// the Mongo semantics, unique-key rejections and guarded updates included.
// Tests run the services against these instead of a live database.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"groupchat-api/internal/models"
	"groupchat-api/internal/repository"
)

// UserRepository is a map-backed repository.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	seq   int
	users map[primitive.ObjectID]userRow
}

type userRow struct {
	seq  int
	user models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[primitive.ObjectID]userRow)}
}

func copyUser(u models.User) *models.User {
	c := u
	if u.GroupID != nil {
		gid := *u.GroupID
		c.GroupID = &gid
	}
	return &c
}

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.users {
		if strings.EqualFold(row.user.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.seq++
	r.users[user.ID] = userRow{seq: r.seq, user: *copyUser(*user)}
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(row.user), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.users {
		if strings.EqualFold(row.user.Email, email) {
			return copyUser(row.user), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) ListByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.users[id]; ok {
			out = append(out, *copyUser(row.user))
		}
	}
	return out, nil
}

func (r *UserRepository) List(_ context.Context, page, limit int) ([]models.User, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]userRow, 0, len(r.users))
	for _, row := range r.users {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].user.CreatedAt.Equal(rows[j].user.CreatedAt) {
			return rows[i].user.CreatedAt.Before(rows[j].user.CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})

	total := int64(len(rows))
	start := (page - 1) * limit
	if start >= len(rows) {
		return []models.User{}, total, nil
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]models.User, 0, end-start)
	for _, row := range rows[start:end] {
		out = append(out, *copyUser(row.user))
	}
	return out, total, nil
}

func (r *UserRepository) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, other := range r.users {
		if id != user.ID && strings.EqualFold(other.user.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	stored := row.user
	stored.Name = user.Name
	stored.Email = user.Email
	stored.Role = user.Role
	stored.GroupID = nil
	if user.GroupID != nil {
		gid := *user.GroupID
		stored.GroupID = &gid
	}
	stored.UpdatedAt = user.UpdatedAt
	r.users[user.ID] = userRow{seq: row.seq, user: stored}
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id primitive.ObjectID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.user.Password = hash
	row.user.UpdatedAt = time.Now().UTC()
	r.users[id] = row
	return nil
}

func (r *UserRepository) SetPresence(_ context.Context, id primitive.ObjectID, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.user.IsOnline = online
	row.user.LastSeen = at
	r.users[id] = row
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// GroupRepository is a map-backed repository.GroupRepository.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[primitive.ObjectID]models.Group
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[primitive.ObjectID]models.Group)}
}

func copyGroup(g models.Group) *models.Group {
	c := g
	if g.CreatedBy != nil {
		uid := *g.CreatedBy
		c.CreatedBy = &uid
	}
	c.Invitations = make([]models.Invitation, len(g.Invitations))
	copy(c.Invitations, g.Invitations)
	return &c
}

func (r *GroupRepository) Create(_ context.Context, group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Name == group.Name {
			return repository.ErrDuplicate
		}
	}
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	if group.Invitations == nil {
		group.Invitations = []models.Invitation{}
	}
	r.groups[group.ID] = *copyGroup(*group)
	return nil
}

func (r *GroupRepository) GetByID(_ context.Context, id primitive.ObjectID) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyGroup(g), nil
}

func (r *GroupRepository) GetByName(_ context.Context, name string) (*models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if g.Name == name {
			return copyGroup(g), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *GroupRepository) ListVisible(_ context.Context, memberOf []primitive.ObjectID) ([]models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member := make(map[primitive.ObjectID]bool, len(memberOf))
	for _, id := range memberOf {
		member[id] = true
	}
	out := make([]models.Group, 0)
	for _, g := range r.groups {
		if !g.IsPrivate || member[g.ID] {
			out = append(out, *copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *GroupRepository) ListWithPendingInvitationFor(_ context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Group, 0)
	for _, g := range r.groups {
		gc := copyGroup(g)
		if gc.PendingInvitationFor(userID) != nil {
			out = append(out, *gc)
		}
	}
	return out, nil
}

func (r *GroupRepository) Update(_ context.Context, group *models.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.groups[group.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, other := range r.groups {
		if id != group.ID && other.Name == group.Name {
			return repository.ErrDuplicate
		}
	}
	stored.Name = group.Name
	stored.Description = group.Description
	stored.IsPrivate = group.IsPrivate
	stored.MaxMembers = group.MaxMembers
	stored.UpdatedAt = group.UpdatedAt
	r.groups[group.ID] = stored
	return nil
}

func (r *GroupRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.groups, id)
	return nil
}

func (r *GroupRepository) AddInvitation(_ context.Context, groupID primitive.ObjectID, inv models.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return repository.ErrDuplicate
	}
	for _, existing := range g.Invitations {
		if existing.UserID == inv.UserID && existing.Status == models.InvitationPending {
			return repository.ErrDuplicate
		}
	}
	g.Invitations = append(g.Invitations, inv)
	g.UpdatedAt = time.Now().UTC()
	r.groups[groupID] = g
	return nil
}

func (r *GroupRepository) SetInvitationStatus(_ context.Context, groupID, userID primitive.ObjectID, status models.InvitationStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range g.Invitations {
		if g.Invitations[i].UserID == userID && g.Invitations[i].Status == models.InvitationPending {
			g.Invitations[i].Status = status
			respondedAt := at
			g.Invitations[i].RespondedAt = &respondedAt
			g.UpdatedAt = at
			r.groups[groupID] = g
			return nil
		}
	}
	return repository.ErrNotFound
}

// MembershipRepository is a map-backed repository.MembershipRepository with
// the (group, user) pair as its unique key.
type MembershipRepository struct {
	mu   sync.RWMutex
	seq  int
	rows map[pairKey]membershipRow
}

type pairKey struct {
	group primitive.ObjectID
	user  primitive.ObjectID
}

type membershipRow struct {
	seq int
	m   models.Membership
}

func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{rows: make(map[pairKey]membershipRow)}
}

func (r *MembershipRepository) Create(_ context.Context, m *models.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{group: m.GroupID, user: m.UserID}
	if _, ok := r.rows[key]; ok {
		return repository.ErrDuplicate
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	r.seq++
	r.rows[key] = membershipRow{seq: r.seq, m: *m}
	return nil
}

func (r *MembershipRepository) Get(_ context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[pairKey{group: groupID, user: userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m := row.m
	return &m, nil
}

func (r *MembershipRepository) GetActive(_ context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[pairKey{group: groupID, user: userID}]
	if !ok || !row.m.IsActive {
		return nil, repository.ErrNotFound
	}
	m := row.m
	return &m, nil
}

func (r *MembershipRepository) ListActiveByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]membershipRow, 0)
	for _, row := range r.rows {
		if row.m.GroupID == groupID && row.m.IsActive {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].m.JoinedAt.Equal(rows[j].m.JoinedAt) {
			return rows[i].m.JoinedAt.Before(rows[j].m.JoinedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]models.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.m)
	}
	return out, nil
}

func (r *MembershipRepository) ListActiveByUser(_ context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Membership, 0)
	for _, row := range r.rows {
		if row.m.UserID == userID && row.m.IsActive {
			out = append(out, row.m)
		}
	}
	return out, nil
}

func (r *MembershipRepository) CountActive(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, row := range r.rows {
		if row.m.GroupID == groupID && row.m.IsActive {
			n++
		}
	}
	return n, nil
}

func (r *MembershipRepository) CountActiveByRole(_ context.Context, groupID primitive.ObjectID, role models.GroupRole) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, row := range r.rows {
		if row.m.GroupID == groupID && row.m.IsActive && row.m.Role == role {
			n++
		}
	}
	return n, nil
}

func (r *MembershipRepository) Reactivate(_ context.Context, groupID, userID primitive.ObjectID, role models.GroupRole, joinedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{group: groupID, user: userID}
	row, ok := r.rows[key]
	if !ok {
		return repository.ErrNotFound
	}
	row.m.IsActive = true
	row.m.Role = role
	row.m.JoinedAt = joinedAt
	r.rows[key] = row
	return nil
}

func (r *MembershipRepository) Deactivate(_ context.Context, groupID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{group: groupID, user: userID}
	row, ok := r.rows[key]
	if !ok || !row.m.IsActive {
		return repository.ErrNotFound
	}
	row.m.IsActive = false
	r.rows[key] = row
	return nil
}

func (r *MembershipRepository) UpdateRole(_ context.Context, groupID, userID primitive.ObjectID, role models.GroupRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{group: groupID, user: userID}
	row, ok := r.rows[key]
	if !ok || !row.m.IsActive {
		return repository.ErrNotFound
	}
	row.m.Role = role
	r.rows[key] = row
	return nil
}

func (r *MembershipRepository) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.rows {
		if key.group == groupID {
			delete(r.rows, key)
		}
	}
	return nil
}

func (r *MembershipRepository) DeleteByUser(_ context.Context, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.rows {
		if key.user == userID {
			delete(r.rows, key)
		}
	}
	return nil
}

// MessageRepository is a map-backed repository.MessageRepository.
type MessageRepository struct {
	mu   sync.RWMutex
	seq  int
	msgs map[primitive.ObjectID]messageRow
}

type messageRow struct {
	seq int
	msg models.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{msgs: make(map[primitive.ObjectID]messageRow)}
}

func copyMessage(m models.Message) *models.Message {
	c := m
	c.ReadBy = make([]models.ReadReceipt, len(m.ReadBy))
	copy(c.ReadBy, m.ReadBy)
	return &c
}

func (r *MessageRepository) Create(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
	r.seq++
	r.msgs[msg.ID] = messageRow{seq: r.seq, msg: *copyMessage(*msg)}
	return nil
}

func (r *MessageRepository) GetByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.msgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMessage(row.msg), nil
}

func (r *MessageRepository) ListByGroup(_ context.Context, groupID primitive.ObjectID, page, limit int) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]messageRow, 0)
	for _, row := range r.msgs {
		if row.msg.GroupID == groupID {
			rows = append(rows, row)
		}
	}
	// Newest first, later insertion winning timestamp ties.
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].msg.CreatedAt.Equal(rows[j].msg.CreatedAt) {
			return rows[i].msg.CreatedAt.After(rows[j].msg.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	start := (page - 1) * limit
	if start >= len(rows) {
		return []models.Message{}, nil
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]models.Message, 0, end-start)
	for _, row := range rows[start:end] {
		out = append(out, *copyMessage(row.msg))
	}
	return out, nil
}

func (r *MessageRepository) CountByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, row := range r.msgs {
		if row.msg.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) CountUnread(_ context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, row := range r.msgs {
		if row.msg.GroupID == groupID && row.msg.SenderID != userID && !row.msg.ReadByUser(userID) {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) AddReadReceipt(_ context.Context, messageID primitive.ObjectID, receipt models.ReadReceipt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.msgs[messageID]
	if !ok {
		return false, nil
	}
	if row.msg.ReadByUser(receipt.UserID) {
		return false, nil
	}
	row.msg.ReadBy = append(row.msg.ReadBy, receipt)
	r.msgs[messageID] = row
	return true, nil
}

func (r *MessageRepository) UpdateContent(_ context.Context, messageID primitive.ObjectID, content string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.msgs[messageID]
	if !ok {
		return repository.ErrNotFound
	}
	row.msg.Content = content
	row.msg.Edited = true
	row.msg.UpdatedAt = at
	r.msgs[messageID] = row
	return nil
}

func (r *MessageRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.msgs, id)
	return nil
}

func (r *MessageRepository) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.msgs {
		if row.msg.GroupID == groupID {
			delete(r.msgs, id)
		}
	}
	return nil
}

func (r *MessageRepository) DeleteBySender(_ context.Context, senderID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.msgs {
		if row.msg.SenderID == senderID {
			delete(r.msgs, id)
		}
	}
	return nil
}
