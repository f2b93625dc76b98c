package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MainChatName is the reserved default group. It always exists and is never
// deletable; users without an assigned group land here.
const MainChatName = "Main Chat"

// Group capacity bounds. Values outside the range are clamped, not rejected.
const (
	MinGroupCapacity     = 1
	MaxGroupCapacity     = 1000
	DefaultGroupCapacity = 100
)

// ClampCapacity forces a requested capacity into [MinGroupCapacity,
// MaxGroupCapacity], substituting the default for zero.
func ClampCapacity(n int) int {
	if n == 0 {
		return DefaultGroupCapacity
	}
	if n < MinGroupCapacity {
		return MinGroupCapacity
	}
	if n > MaxGroupCapacity {
		return MaxGroupCapacity
	}
	return n
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation is embedded in the group document, ordered by insertion. At most
// one pending entry exists per invitee; resolved entries are kept for history.
type Invitation struct {
	ID          string             `bson:"id" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Email       string             `bson:"email" json:"email"`
	InvitedBy   primitive.ObjectID `bson:"invited_by" json:"invited_by"`
	InvitedAt   time.Time          `bson:"invited_at" json:"invited_at"`
	Status      InvitationStatus   `bson:"status" json:"status"`
	RespondedAt *time.Time         `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
}

// Group is stored in the groups collection. Name is unique across all groups.
// Membership is not embedded; it lives in the memberships collection.
type Group struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name        string              `bson:"name" json:"name"`
	Description string              `bson:"description" json:"description"`
	IsPrivate   bool                `bson:"is_private" json:"is_private"`
	MaxMembers  int                 `bson:"max_members" json:"max_members"`
	CreatedBy   *primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
	Invitations []Invitation        `bson:"invitations" json:"invitations,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PendingInvitationFor returns the pending invitation addressed to userID, if
// one exists.
func (g *Group) PendingInvitationFor(userID primitive.ObjectID) *Invitation {
	for i := range g.Invitations {
		inv := &g.Invitations[i]
		if inv.UserID == userID && inv.Status == InvitationPending {
			return inv
		}
	}
	return nil
}
