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

// MembershipRepository stores one row per (group, user) pair. Removal marks
// the row inactive; re-admission reactivates it, so history of prior
// membership survives in place.
type MembershipRepository interface {
	Create(ctx context.Context, m *models.Membership) error
	Get(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error)
	GetActive(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error)
	ListActiveByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Membership, error)
	ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error)
	CountActive(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	CountActiveByRole(ctx context.Context, groupID primitive.ObjectID, role models.GroupRole) (int64, error)
	Reactivate(ctx context.Context, groupID, userID primitive.ObjectID, role models.GroupRole, joinedAt time.Time) error
	Deactivate(ctx context.Context, groupID, userID primitive.ObjectID) error
	UpdateRole(ctx context.Context, groupID, userID primitive.ObjectID, role models.GroupRole) error
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}

type mongoMembershipRepository struct {
	coll *mongo.Collection
}

func NewMembershipRepository(db *mongo.Database) MembershipRepository {
	return &mongoMembershipRepository{coll: db.Collection(CollMemberships)}
}

func (r *mongoMembershipRepository) Create(ctx context.Context, m *models.Membership) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, m)
	return wrapWriteErr(err)
}

func (r *mongoMembershipRepository) Get(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := r.coll.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&m)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return &m, nil
}

func (r *mongoMembershipRepository) GetActive(ctx context.Context, groupID, userID primitive.ObjectID) (*models.Membership, error) {
	filter := bson.M{"group_id": groupID, "user_id": userID, "is_active": true}
	var m models.Membership
	err := r.coll.FindOne(ctx, filter).Decode(&m)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return &m, nil
}

// ListActiveByGroup returns active members ordered by join time. Ties on the
// timestamp fall back to _id so the order is stable across reads.
func (r *mongoMembershipRepository) ListActiveByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Membership, error) {
	filter := bson.M{"group_id": groupID, "is_active": true}
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	members := make([]models.Membership, 0)
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *mongoMembershipRepository) ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	filter := bson.M{"user_id": userID, "is_active": true}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	members := make([]models.Membership, 0)
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *mongoMembershipRepository) CountActive(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"group_id": groupID, "is_active": true})
}

func (r *mongoMembershipRepository) CountActiveByRole(ctx context.Context, groupID primitive.ObjectID, role models.GroupRole) (int64, error) {
	filter := bson.M{"group_id": groupID, "role": role, "is_active": true}
	return r.coll.CountDocuments(ctx, filter)
}

// Reactivate flips an inactive row back on with a fresh role and join time.
// ErrNotFound means no row exists for the pair at all.
func (r *mongoMembershipRepository) Reactivate(ctx context.Context, groupID, userID primitive.ObjectID, role models.GroupRole, joinedAt time.Time) error {
	filter := bson.M{"group_id": groupID, "user_id": userID}
	update := bson.M{"$set": bson.M{"is_active": true, "role": role, "joined_at": joinedAt}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMembershipRepository) Deactivate(ctx context.Context, groupID, userID primitive.ObjectID) error {
	filter := bson.M{"group_id": groupID, "user_id": userID, "is_active": true}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMembershipRepository) UpdateRole(ctx context.Context, groupID, userID primitive.ObjectID, role models.GroupRole) error {
	filter := bson.M{"group_id": groupID, "user_id": userID, "is_active": true}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"role": role}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMembershipRepository) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"group_id": groupID})
	return err
}

func (r *mongoMembershipRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"user_id": userID})
	return err
}
