package models

import "gorm.io/gorm"

// Like represents a like on an item
type Like struct {
	gorm.Model
	ItemID string `json:"item_id" gorm:"index;uniqueIndex:idx_item_user_like"` // ID of the item that was liked (MongoDB ObjectID as string)
	UserID string `json:"user_id" gorm:"index;uniqueIndex:idx_item_user_like"` // ID of the member who liked the item
}
