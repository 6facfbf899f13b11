package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"places-server/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// public projections never read the password back out of the store.
var withoutPassword = bson.M{"password": 0}

type MongoUserRepository struct {
	collection *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{collection: db.Collection("users")}
}

// EnsureIndexes creates the unique username index.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("create users.username index: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) Create(ctx context.Context, u *models.User) error {
	u.ID = primitive.NewObjectID().Hex()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, u); err != nil {
		u.ID = ""
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *MongoUserRepository) List(ctx context.Context) ([]models.User, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoUserRepository) Search(ctx context.Context, query string) ([]models.User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	return r.find(ctx, bson.M{
		"$or": []bson.M{
			{"username": bson.M{"$regex": pattern}},
			{"name": bson.M{"$regex": pattern}},
		},
	})
}

func (r *MongoUserRepository) find(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetProjection(withoutPassword))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	set := bson.M{}
	if upd.Name != "" {
		set["name"] = upd.Name
	}
	if upd.Email != "" {
		set["email"] = upd.Email
	}
	if upd.Avatar != "" {
		set["avatar"] = upd.Avatar
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}
	return r.update(ctx, id, bson.M{"$set": set})
}

func (r *MongoUserRepository) AddFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	return r.update(ctx, id, bson.M{"$addToSet": bson.M{"friends": friendID}})
}

func (r *MongoUserRepository) RemoveFriend(ctx context.Context, id, friendID string) (*models.User, error) {
	return r.update(ctx, id, bson.M{"$pull": bson.M{"friends": friendID}})
}

func (r *MongoUserRepository) update(ctx context.Context, id string, update bson.M) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
