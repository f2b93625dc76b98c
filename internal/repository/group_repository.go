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

// GroupRepository stores groups and their embedded invitation lists.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	GetByName(ctx context.Context, name string) (*models.Group, error)
	ListVisible(ctx context.Context, memberOf []primitive.ObjectID) ([]models.Group, error)
	ListWithPendingInvitationFor(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error)
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	AddInvitation(ctx context.Context, groupID primitive.ObjectID, inv models.Invitation) error
	SetInvitationStatus(ctx context.Context, groupID, userID primitive.ObjectID, status models.InvitationStatus, at time.Time) error
}

type mongoGroupRepository struct {
	coll *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) GroupRepository {
	return &mongoGroupRepository{coll: db.Collection(CollGroups)}
}

func (r *mongoGroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID.IsZero() {
		group.ID = primitive.NewObjectID()
	}
	if group.Invitations == nil {
		group.Invitations = []models.Invitation{}
	}
	_, err := r.coll.InsertOne(ctx, group)
	return wrapWriteErr(err)
}

func (r *mongoGroupRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	var group models.Group
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return &group, nil
}

func (r *mongoGroupRepository) GetByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(&group)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return &group, nil
}

// ListVisible returns public groups plus the caller's private ones.
func (r *mongoGroupRepository) ListVisible(ctx context.Context, memberOf []primitive.ObjectID) ([]models.Group, error) {
	if memberOf == nil {
		memberOf = []primitive.ObjectID{}
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"is_private": false},
		bson.M{"_id": bson.M{"$in": memberOf}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := make([]models.Group, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *mongoGroupRepository) ListWithPendingInvitationFor(ctx context.Context, userID primitive.ObjectID) ([]models.Group, error) {
	filter := bson.M{"invitations": bson.M{"$elemMatch": bson.M{
		"user_id": userID,
		"status":  models.InvitationPending,
	}}}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	groups := make([]models.Group, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *mongoGroupRepository) Update(ctx context.Context, group *models.Group) error {
	update := bson.M{"$set": bson.M{
		"name":        group.Name,
		"description": group.Description,
		"is_private":  group.IsPrivate,
		"max_members": group.MaxMembers,
		"updated_at":  group.UpdatedAt,
	}}
	res, err := r.coll.UpdateByID(ctx, group.ID, update)
	if err != nil {
		return wrapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoGroupRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddInvitation appends an invitation unless the user already has a pending
// one in this group. The guard keeps concurrent invites from stacking up.
func (r *mongoGroupRepository) AddInvitation(ctx context.Context, groupID primitive.ObjectID, inv models.Invitation) error {
	filter := bson.M{
		"_id": groupID,
		"invitations": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"user_id": inv.UserID,
			"status":  models.InvitationPending,
		}}},
	}
	update := bson.M{
		"$push": bson.M{"invitations": inv},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrDuplicate
	}
	return nil
}

// SetInvitationStatus flips the user's pending invitation to the given status.
// ErrNotFound means no pending invitation exists.
func (r *mongoGroupRepository) SetInvitationStatus(ctx context.Context, groupID, userID primitive.ObjectID, status models.InvitationStatus, at time.Time) error {
	filter := bson.M{
		"_id": groupID,
		"invitations": bson.M{"$elemMatch": bson.M{
			"user_id": userID,
			"status":  models.InvitationPending,
		}},
	}
	update := bson.M{"$set": bson.M{
		"invitations.$[inv].status":       status,
		"invitations.$[inv].responded_at": at,
		"updated_at":                      at,
	}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{
			"inv.user_id": userID,
			"inv.status":  models.InvitationPending,
		}},
	})
	res, err := r.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
