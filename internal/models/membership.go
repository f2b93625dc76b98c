package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupRole is the role a user holds inside one group.
type GroupRole string

const (
	GroupRoleAdmin     GroupRole = "admin"
	GroupRoleModerator GroupRole = "moderator"
	GroupRoleMember    GroupRole = "member"
)

func (r GroupRole) Valid() bool {
	switch r {
	case GroupRoleAdmin, GroupRoleModerator, GroupRoleMember:
		return true
	}
	return false
}

// Membership joins a user to a group. Exactly one document exists per
// (group_id, user_id) pair, enforced by a unique compound index; removal
// flips is_active instead of deleting, and re-admission reactivates the
// same document.
type Membership struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role     GroupRole          `bson:"role" json:"role"`
	JoinedAt time.Time          `bson:"joined_at" json:"joined_at"`
	IsActive bool               `bson:"is_active" json:"is_active"`
}
