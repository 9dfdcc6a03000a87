package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

// ReplyRepository defines the interface for reply data operations
type ReplyRepository interface {
	CreateReply(ctx context.Context, reply *models.Reply) error
	GetReplyByID(ctx context.Context, id string) (*models.Reply, error)
	GetRepliesByItemID(ctx context.Context, itemID string) ([]models.Reply, error)
	UpdateReply(ctx context.Context, reply *models.Reply) error
	DeleteReply(ctx context.Context, id string) error
	DeleteRepliesByItemID(ctx context.Context, itemID string) error
	AdjustLikesCount(ctx context.Context, id string, delta int) (int, error)
}

// PostgresReplyRepository implements ReplyRepository for PostgreSQL
type PostgresReplyRepository struct {
	db *gorm.DB
}

// NewPostgresReplyRepository creates a new PostgresReplyRepository
func NewPostgresReplyRepository(db *gorm.DB) *PostgresReplyRepository {
	return &PostgresReplyRepository{db: db}
}

// CreateReply creates a new reply in PostgreSQL
func (r *PostgresReplyRepository) CreateReply(ctx context.Context, reply *models.Reply) error {
	return r.db.WithContext(ctx).Create(reply).Error
}

// GetReplyByID retrieves a reply by ID from PostgreSQL
func (r *PostgresReplyRepository) GetReplyByID(ctx context.Context, id string) (*models.Reply, error) {
	var reply models.Reply
	if err := r.db.WithContext(ctx).First(&reply, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReplyNotFound
		}
		return nil, err
	}
	return &reply, nil
}

// GetRepliesByItemID retrieves the replies of an item in arrival order
func (r *PostgresReplyRepository) GetRepliesByItemID(ctx context.Context, itemID string) ([]models.Reply, error) {
	var replies []models.Reply
	if err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Order("created_at asc").Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}

// UpdateReply updates an existing reply in PostgreSQL
func (r *PostgresReplyRepository) UpdateReply(ctx context.Context, reply *models.Reply) error {
	return r.db.WithContext(ctx).Save(reply).Error
}

// DeleteReply deletes a reply by ID from PostgreSQL
func (r *PostgresReplyRepository) DeleteReply(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Reply{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReplyNotFound
	}
	return nil
}

// DeleteRepliesByItemID deletes every reply of an item
func (r *PostgresReplyRepository) DeleteRepliesByItemID(ctx context.Context, itemID string) error {
	return r.db.WithContext(ctx).Where("item_id = ?", itemID).Delete(&models.Reply{}).Error
}

// AdjustLikesCount moves the likes count of a reply by delta and returns the new value
func (r *PostgresReplyRepository) AdjustLikesCount(ctx context.Context, id string, delta int) (int, error) {
	var reply models.Reply
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Reply{}).Where("id = ?", id).UpdateColumn("likes_count", gorm.Expr("likes_count + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrReplyNotFound
		}
		return tx.First(&reply, "id = ?", id).Error
	})
	if err != nil {
		return 0, err
	}
	return reply.LikesCount, nil
}
