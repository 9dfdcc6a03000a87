package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

// ItemRepository defines the interface for item data operations
type ItemRepository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItemByID(ctx context.Context, id string) (*models.Item, error)
	ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int64, error)
	UpdateItem(ctx context.Context, id string, item *models.Item) (*models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) (*models.Item, error)
	AdjustLikesCount(ctx context.Context, id string, delta int) (int, error)
	AdjustCommentsCount(ctx context.Context, id string, delta int) (int, error)
}

// MongoItemRepository implements ItemRepository for MongoDB
type MongoItemRepository struct {
	collection *mongo.Collection
}

// NewMongoItemRepository creates a new MongoItemRepository
func NewMongoItemRepository(db *mongo.Database) *MongoItemRepository {
	return &MongoItemRepository{collection: db.Collection("items")}
}

func objectID(id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid item ID format %q: %w", id, ErrItemNotFound)
	}
	return objID, nil
}

// CreateItem creates a new item in MongoDB
func (r *MongoItemRepository) CreateItem(ctx context.Context, item *models.Item) error {
	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	item.Version = 1
	_, err := r.collection.InsertOne(ctx, item)
	return err
}

// GetItemByID retrieves an item by ID from MongoDB
func (r *MongoItemRepository) GetItemByID(ctx context.Context, id string) (*models.Item, error) {
	objID, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var item models.Item
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListItems retrieves items newest first, with the total number matching the filter
func (r *MongoItemRepository) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int64, error) {
	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Tag != "" {
		query["tags"] = filter.Tag
	}
	if filter.AuthorID != "" {
		query["author_id"] = filter.AuthorID
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	var items []models.Item
	findOptions := options.Find().SetSkip(filter.Skip).SetLimit(filter.Limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateItem writes the editable fields and returns the updated document
func (r *MongoItemRepository) UpdateItem(ctx context.Context, id string, item *models.Item) (*models.Item, error) {
	objID, err := objectID(id)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": bson.M{
			"title":      item.Title,
			"content":    item.Content,
			"tags":       item.Tags,
			"updated_at": time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	return r.findOneAndUpdate(ctx, objID, update)
}

// DeleteItem deletes an item by ID from MongoDB
func (r *MongoItemRepository) DeleteItem(ctx context.Context, id string) error {
	objID, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// IncrementViewCount counts one view and returns the updated document
func (r *MongoItemRepository) IncrementViewCount(ctx context.Context, id string) (*models.Item, error) {
	objID, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOneAndUpdate(ctx, objID, bson.M{"$inc": bson.M{"view_count": 1}})
}

// AdjustLikesCount moves the likes count by delta and returns the new value
func (r *MongoItemRepository) AdjustLikesCount(ctx context.Context, id string, delta int) (int, error) {
	return r.adjustCounter(ctx, id, "likes_count", delta)
}

// AdjustCommentsCount moves the comments count by delta and returns the new value
func (r *MongoItemRepository) AdjustCommentsCount(ctx context.Context, id string, delta int) (int, error) {
	return r.adjustCounter(ctx, id, "comments_count", delta)
}

func (r *MongoItemRepository) adjustCounter(ctx context.Context, id, field string, delta int) (int, error) {
	objID, err := objectID(id)
	if err != nil {
		return 0, err
	}
	item, err := r.findOneAndUpdate(ctx, objID, bson.M{"$inc": bson.M{field: delta, "version": 1}})
	if err != nil {
		return 0, err
	}
	if field == "likes_count" {
		return item.LikesCount, nil
	}
	return item.CommentsCount, nil
}

func (r *MongoItemRepository) findOneAndUpdate(ctx context.Context, objID primitive.ObjectID, update bson.M) (*models.Item, error) {
	var item models.Item
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objID}, update, opts).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}
