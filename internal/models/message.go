package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxMessageLength bounds message content after trimming.
const MaxMessageLength = 1000

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// ReadReceipt records that a user has seen a message. The read_by array is a
// set keyed by user_id; pushes are guarded so a user appears at most once.
type ReadReceipt struct {
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`
	ReadAt time.Time          `bson:"read_at" json:"read_at"`
}

// Message documents are flat (one per message) so history can be paginated
// with an index on (group_id, created_at).
type Message struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	SenderID primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	Content  string             `bson:"content" json:"content"`
	Type     MessageType        `bson:"type" json:"type"`
	ReadBy   []ReadReceipt      `bson:"read_by" json:"read_by"`
	Edited   bool               `bson:"edited" json:"edited"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ReadByUser reports whether userID already has a receipt on the message.
func (m *Message) ReadByUser(userID primitive.ObjectID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
