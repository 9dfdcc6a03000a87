package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// Item represents a thread or success story stored in MongoDB
type Item struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Kind          string             `json:"kind" bson:"kind"`
	Title         string             `json:"title,omitempty" bson:"title,omitempty"`
	AuthorID      string             `json:"author_id" bson:"author_id"` // identity of the member who created the item
	AuthorName    string             `json:"author_name" bson:"author_name"`
	Content       string             `json:"content" bson:"content"`
	Tags          []string           `json:"tags,omitempty" bson:"tags,omitempty"`
	LikesCount    int                `json:"likes_count" bson:"likes_count"`
	CommentsCount int                `json:"comments_count" bson:"comments_count"`
	ViewCount     int                `json:"view_count" bson:"view_count"`
	Version       int64              `json:"version" bson:"version"` // bumped on every mutation
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// ToEntity converts the document to the wire record. likeIDs and replies may be nil.
func (i *Item) ToEntity(likeIDs []string, replies []entity.Reply) entity.Item {
	return entity.Item{
		ID:           i.ID.Hex(),
		Kind:         i.Kind,
		Title:        i.Title,
		Author:       i.AuthorName,
		AuthorID:     i.AuthorID,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
		Content:      i.Content,
		Tags:         i.Tags,
		LikeIDs:      entity.NewLikeSet(likeIDs...),
		LikeCount:    i.LikesCount,
		ViewCount:    i.ViewCount,
		CommentCount: i.CommentsCount,
		Replies:      replies,
		Version:      i.Version,
	}
}

// ItemFilter narrows item listings
type ItemFilter struct {
	Kind     string
	Tag      string
	AuthorID string
	Skip     int64
	Limit    int64
}
