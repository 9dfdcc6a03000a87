package models

import "time"

// ReplyLike represents a like on a reply
type ReplyLike struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ReplyID   string    `json:"reply_id" gorm:"index;uniqueIndex:idx_reply_user_like"`
	UserID    string    `json:"user_id" gorm:"index;uniqueIndex:idx_reply_user_like"`
	CreatedAt time.Time `json:"created_at"`
}
