package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

// ReplyLikeRepository defines the interface for reply like operations
type ReplyLikeRepository interface {
	ToggleReplyLike(ctx context.Context, replyID, userID string) (bool, error)
	GetLikerIDsByReply(ctx context.Context, replyIDs []string) (map[string][]string, error)
}

type postgresReplyLikeRepository struct {
	db *gorm.DB
}

func NewPostgresReplyLikeRepository(db *gorm.DB) ReplyLikeRepository {
	return &postgresReplyLikeRepository{db: db}
}

func (r *postgresReplyLikeRepository) ToggleReplyLike(ctx context.Context, replyID, userID string) (bool, error) {
	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var like models.ReplyLike
		err := tx.Where("reply_id = ? AND user_id = ?", replyID, userID).First(&like).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			liked = true
			return tx.Create(&models.ReplyLike{ReplyID: replyID, UserID: userID}).Error
		}
		if err != nil {
			return err
		}
		return tx.Delete(&like).Error
	})
	return liked, err
}

func (r *postgresReplyLikeRepository) GetLikerIDsByReply(ctx context.Context, replyIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(replyIDs))
	if len(replyIDs) == 0 {
		return out, nil
	}
	var likes []models.ReplyLike
	if err := r.db.WithContext(ctx).Where("reply_id IN ?", replyIDs).Find(&likes).Error; err != nil {
		return nil, err
	}
	for _, l := range likes {
		out[l.ReplyID] = append(out[l.ReplyID], l.UserID)
	}
	return out, nil
}
