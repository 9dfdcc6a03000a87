package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// LikeHandler handles HTTP requests related to likes
type LikeHandler struct {
	likeRepository      repositories.LikeRepository
	replyLikeRepository repositories.ReplyLikeRepository
	itemRepository      repositories.ItemRepository // To update like counts on items
	replyRepository     repositories.ReplyRepository
	publisher           Publisher
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(likeRepo repositories.LikeRepository, replyLikeRepo repositories.ReplyLikeRepository, itemRepo repositories.ItemRepository, replyRepo repositories.ReplyRepository, publisher Publisher) *LikeHandler {
	return &LikeHandler{
		likeRepository:      likeRepo,
		replyLikeRepository: replyLikeRepo,
		itemRepository:      itemRepo,
		replyRepository:     replyRepo,
		publisher:           publisher,
	}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/items/:id/like", h.ToggleLike)
	g.POST("/items/:id/replies/:replyId/like", h.ToggleReplyLike)
}

// ToggleLike likes the item, or takes the caller's like back
func (h *LikeHandler) ToggleLike(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	itemID := c.Param("id")
	// Verify item exists
	if _, err := h.itemRepository.GetItemByID(ctx, itemID); err != nil {
		return storageError(err)
	}

	liked, err := h.likeRepository.ToggleLike(ctx, itemID, identity.ID)
	if err != nil {
		return storageError(err)
	}
	count, err := h.itemRepository.AdjustLikesCount(ctx, itemID, likeDelta(liked))
	if err != nil {
		return storageError(err)
	}

	publish(h.publisher, entity.EventLike, itemID, entity.LikePayload{
		LikeCount: count,
		UserID:    identity.ID,
		IsLiked:   &liked,
	})
	return c.JSON(http.StatusOK, entity.LikeResult{LikeCount: count, IsLiked: liked})
}

// ToggleReplyLike likes a reply, or takes the caller's like back
func (h *LikeHandler) ToggleReplyLike(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	itemID := c.Param("id")
	reply, err := h.replyRepository.GetReplyByID(ctx, c.Param("replyId"))
	if err != nil {
		return storageError(err)
	}
	if reply.ItemID != itemID {
		return echo.NewHTTPError(http.StatusNotFound, "Reply not found")
	}

	liked, err := h.replyLikeRepository.ToggleReplyLike(ctx, reply.ID, identity.ID)
	if err != nil {
		return storageError(err)
	}
	count, err := h.replyRepository.AdjustLikesCount(ctx, reply.ID, likeDelta(liked))
	if err != nil {
		return storageError(err)
	}

	publish(h.publisher, entity.EventLike, itemID, entity.LikePayload{
		LikeCount: count,
		UserID:    identity.ID,
		IsLiked:   &liked,
		ReplyID:   reply.ID,
	})
	return c.JSON(http.StatusOK, entity.LikeResult{LikeCount: count, IsLiked: liked})
}

func likeDelta(liked bool) int {
	if liked {
		return 1
	}
	return -1
}
