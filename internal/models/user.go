package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the global role of an account. Group-level roles live on the
// membership document, not here.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether the role carries platform-admin privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User is stored in the users collection. Email is lowercased before writes
// and covered by a unique index. The bcrypt hash never serializes out.
type User struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name     string              `bson:"name" json:"name"`
	Email    string              `bson:"email" json:"email"`
	Password string              `bson:"password" json:"-"`
	Role     Role                `bson:"role" json:"role"`
	GroupID  *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`

	IsOnline bool      `bson:"is_online" json:"is_online"`
	LastSeen time.Time `bson:"last_seen" json:"last_seen"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the account holds a global admin role.
func (u *User) IsAdmin() bool {
	return u.Role.IsAdmin()
}
