package repository

import (
	"context"
	"errors"
	"time"

	"places-server/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoPlaceRepository struct {
	collection *mongo.Collection
}

func NewMongoPlaceRepository(db *mongo.Database) *MongoPlaceRepository {
	return &MongoPlaceRepository{collection: db.Collection("places")}
}

// EnsureIndexes adds the owner index used by the per-user listing.
func (r *MongoPlaceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}},
	})
	return err
}

func (r *MongoPlaceRepository) Create(ctx context.Context, p *models.Place) error {
	p.ID = primitive.NewObjectID().Hex()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, p); err != nil {
		p.ID = ""
		return err
	}
	return nil
}

func (r *MongoPlaceRepository) FindByID(ctx context.Context, id string) (*models.Place, error) {
	var place models.Place
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&place); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &place, nil
}

func (r *MongoPlaceRepository) List(ctx context.Context) ([]models.Place, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoPlaceRepository) ListByOwner(ctx context.Context, userID string) ([]models.Place, error) {
	return r.find(ctx, bson.M{"userId": userID})
}

func (r *MongoPlaceRepository) find(ctx context.Context, filter bson.M) ([]models.Place, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	places := []models.Place{}
	if err := cursor.All(ctx, &places); err != nil {
		return nil, err
	}
	return places, nil
}

func (r *MongoPlaceRepository) Update(ctx context.Context, id string, in models.PlaceInput) (*models.Place, error) {
	set := bson.M{}
	if in.Name != "" {
		set["name"] = in.Name
	}
	if in.Description != "" {
		set["description"] = in.Description
	}
	if in.Location != "" {
		set["location"] = in.Location
	}
	if in.Rating > 0 {
		set["rating"] = in.Rating
	}
	if in.Image != "" {
		set["image"] = in.Image
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var place models.Place
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&place)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &place, nil
}

func (r *MongoPlaceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
