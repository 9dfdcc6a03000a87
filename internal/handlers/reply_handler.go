package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/replytree"
)

// ReplyHandler handles HTTP requests related to replies
type ReplyHandler struct {
	replyRepository repositories.ReplyRepository
	itemRepository  repositories.ItemRepository
	publisher       Publisher
}

// NewReplyHandler creates a new ReplyHandler
func NewReplyHandler(replyRepo repositories.ReplyRepository, itemRepo repositories.ItemRepository, publisher Publisher) *ReplyHandler {
	return &ReplyHandler{
		replyRepository: replyRepo,
		itemRepository:  itemRepo,
		publisher:       publisher,
	}
}

// RegisterReplyRoutes registers reply-related routes
func (h *ReplyHandler) RegisterReplyRoutes(g *echo.Group) {
	g.POST("/items/:id/replies", h.CreateReply)
	g.PUT("/items/:id/replies/:replyId", h.UpdateReply)
	g.DELETE("/items/:id/replies/:replyId", h.DeleteReply)
}

// CreateReply adds a reply to an item. A reply to a child reply is stored
// under the child's root so threads stay two levels deep.
func (h *ReplyHandler) CreateReply(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req entity.CreateReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	itemID := c.Param("id")
	if _, err := h.itemRepository.GetItemByID(ctx, itemID); err != nil {
		return storageError(err)
	}

	var parent *string
	if req.ParentReplyID != nil {
		rows, err := h.replyRepository.GetRepliesByItemID(ctx, itemID)
		if err != nil {
			return storageError(err)
		}
		existing := make([]entity.Reply, len(rows))
		for i := range rows {
			existing[i] = rows[i].ToEntity(nil)
		}
		if _, err := replytree.ResolveTarget(existing, *req.ParentReplyID); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Parent reply does not belong to this item")
		}
		parent = replytree.Flatten(existing, req.ParentReplyID)
	}

	reply := &models.Reply{
		ItemID:        itemID,
		AuthorID:      identity.ID,
		AuthorName:    identity.Name,
		Content:       req.Content,
		ParentReplyID: parent,
	}
	if err := h.replyRepository.CreateReply(ctx, reply); err != nil {
		return storageError(err)
	}

	count, err := h.itemRepository.AdjustCommentsCount(ctx, itemID, 1)
	if err != nil {
		return storageError(err)
	}

	out := reply.ToEntity(nil)
	publish(h.publisher, entity.EventComment, itemID, entity.CommentPayload{Reply: out, CommentCount: &count})
	return c.JSON(http.StatusCreated, out)
}

// UpdateReply edits a reply owned by the caller
func (h *ReplyHandler) UpdateReply(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req entity.UpdateReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	reply, err := h.ownReply(c, identity)
	if err != nil {
		return err
	}

	reply.Content = req.Content
	if err := h.replyRepository.UpdateReply(ctx, reply); err != nil {
		return storageError(err)
	}

	out := reply.ToEntity(nil)
	// likes are not part of an edit; leave the client's like set alone
	out.LikeIDs = nil
	publish(h.publisher, entity.EventCommentUpdated, reply.ItemID, entity.CommentPayload{Reply: out})
	return c.JSON(http.StatusOK, out)
}

// DeleteReply deletes a reply owned by the caller
func (h *ReplyHandler) DeleteReply(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	reply, err := h.ownReply(c, identity)
	if err != nil {
		return err
	}

	if err := h.replyRepository.DeleteReply(ctx, reply.ID); err != nil {
		return storageError(err)
	}
	payload := entity.CommentDeletedPayload{ReplyID: reply.ID}
	count, err := h.itemRepository.AdjustCommentsCount(ctx, reply.ItemID, -1)
	switch {
	case err == nil:
		payload.CommentCount = &count
	case !errors.Is(err, repositories.ErrItemNotFound):
		return storageError(err)
	}

	publish(h.publisher, entity.EventCommentDeleted, reply.ItemID, payload)
	return c.NoContent(http.StatusNoContent)
}

// ownReply loads the reply named in the path and checks that the caller wrote it
func (h *ReplyHandler) ownReply(c echo.Context, identity models.Identity) (*models.Reply, error) {
	reply, err := h.replyRepository.GetReplyByID(c.Request().Context(), c.Param("replyId"))
	if err != nil {
		return nil, storageError(err)
	}
	if reply.ItemID != c.Param("id") {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Reply not found")
	}
	if reply.AuthorID != identity.ID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "You can only change your own replies")
	}
	return reply, nil
}
