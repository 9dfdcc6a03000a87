package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// Reply represents a reply on an item. ParentReplyID, when set, always names a
// root reply of the same item.
type Reply struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ItemID        string         `json:"item_id" gorm:"index"` // MongoDB ObjectID of the item as hex string
	AuthorID      string         `json:"author_id" gorm:"index"`
	AuthorName    string         `json:"author_name"`
	Content       string         `json:"content"`
	ParentReplyID *string        `json:"parent_reply_id" gorm:"index"`
	LikesCount    int            `json:"likes_count"`
	CreatedAt     time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a random id to new replies
func (r *Reply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ToEntity converts the row to the wire record
func (r *Reply) ToEntity(likeIDs []string) entity.Reply {
	out := entity.Reply{
		ID:         r.ID,
		ItemID:     r.ItemID,
		AuthorID:   r.AuthorID,
		AuthorName: r.AuthorName,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt,
		LikeIDs:    entity.NewLikeSet(likeIDs...),
		LikeCount:  r.LikesCount,
	}
	if r.ParentReplyID != nil {
		out.ParentReplyID = entity.ParentOf(*r.ParentReplyID)
	}
	return out
}
