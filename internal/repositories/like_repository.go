package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

// LikeRepository defines the interface for item like operations
type LikeRepository interface {
	ToggleLike(ctx context.Context, itemID, userID string) (bool, error)
	GetLikerIDsByItem(ctx context.Context, itemIDs []string) (map[string][]string, error)
	DeleteLikesByItemID(ctx context.Context, itemID string) error
}

// PostgresLikeRepository implements LikeRepository for PostgreSQL
type PostgresLikeRepository struct {
	db *gorm.DB
}

// NewPostgresLikeRepository creates a new PostgresLikeRepository
func NewPostgresLikeRepository(db *gorm.DB) *PostgresLikeRepository {
	return &PostgresLikeRepository{db: db}
}

// ToggleLike adds the user's like or removes it when present. It reports
// whether the user likes the item afterwards.
func (r *PostgresLikeRepository) ToggleLike(ctx context.Context, itemID, userID string) (bool, error) {
	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var like models.Like
		err := tx.Where("item_id = ? AND user_id = ?", itemID, userID).First(&like).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			liked = true
			return tx.Create(&models.Like{ItemID: itemID, UserID: userID}).Error
		}
		if err != nil {
			return err
		}
		return tx.Unscoped().Delete(&like).Error
	})
	return liked, err
}

// GetLikerIDsByItem returns the ids of the members who like each of the items
func (r *PostgresLikeRepository) GetLikerIDsByItem(ctx context.Context, itemIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var likes []models.Like
	if err := r.db.WithContext(ctx).Where("item_id IN ?", itemIDs).Find(&likes).Error; err != nil {
		return nil, err
	}
	for _, l := range likes {
		out[l.ItemID] = append(out[l.ItemID], l.UserID)
	}
	return out, nil
}

// DeleteLikesByItemID removes every like of an item
func (r *PostgresLikeRepository) DeleteLikesByItemID(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).Unscoped().Where("item_id = ?", itemID).Delete(&models.Like{}).Error
}
