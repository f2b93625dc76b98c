package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"groupchat-api/internal/models"
)

// MessageRepository is the append-mostly message log.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID, page, limit int) ([]models.Message, error)
	CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	CountUnread(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error)
	AddReadReceipt(ctx context.Context, messageID primitive.ObjectID, receipt models.ReadReceipt) (bool, error)
	UpdateContent(ctx context.Context, messageID primitive.ObjectID, content string, at time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) error
	DeleteBySender(ctx context.Context, senderID primitive.ObjectID) error
}

type mongoMessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{coll: db.Collection(CollMessages)}
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
	_, err := r.coll.InsertOne(ctx, msg)
	return wrapWriteErr(err)
}

func (r *mongoMessageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return &msg, nil
}

// ListByGroup returns one page newest first. Page 1 is the most recent
// window; callers wanting chronological order reverse the slice.
func (r *mongoMessageRepository) ListByGroup(ctx context.Context, groupID primitive.ObjectID, page, limit int) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0, limit)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *mongoMessageRepository) CountByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"group_id": groupID})
}

// CountUnread counts messages in the group that the user neither sent nor
// read yet. The $ne on read_by.user_id matches documents whose receipt
// array has no entry for the user.
func (r *mongoMessageRepository) CountUnread(ctx context.Context, groupID, userID primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"group_id":        groupID,
		"sender_id":       bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}
	return r.coll.CountDocuments(ctx, filter)
}

// AddReadReceipt appends a receipt unless the user already has one on the
// message. The filter doubles as the dedup guard, so a re-read never stacks
// a second receipt and the first read's timestamp wins. Returns whether a
// receipt was actually added.
func (r *mongoMessageRepository) AddReadReceipt(ctx context.Context, messageID primitive.ObjectID, receipt models.ReadReceipt) (bool, error) {
	filter := bson.M{
		"_id":             messageID,
		"read_by.user_id": bson.M{"$ne": receipt.UserID},
	}
	update := bson.M{"$push": bson.M{"read_by": receipt}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoMessageRepository) UpdateContent(ctx context.Context, messageID primitive.ObjectID, content string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"content":    content,
		"edited":     true,
		"updated_at": at,
	}}
	res, err := r.coll.UpdateByID(ctx, messageID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMessageRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMessageRepository) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"group_id": groupID})
	return err
}

func (r *mongoMessageRepository) DeleteBySender(ctx context.Context, senderID primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"sender_id": senderID})
	return err
}
