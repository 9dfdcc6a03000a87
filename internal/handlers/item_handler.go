package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
	"github.com/anonto42/nano-midea/memberhub/internal/repositories"
	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

const defaultPageSize = 20

// ItemHandler handles HTTP requests related to threads and stories
type ItemHandler struct {
	itemRepository      repositories.ItemRepository
	replyRepository     repositories.ReplyRepository
	likeRepository      repositories.LikeRepository
	replyLikeRepository repositories.ReplyLikeRepository
	publisher           Publisher
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(itemRepo repositories.ItemRepository, replyRepo repositories.ReplyRepository, likeRepo repositories.LikeRepository, replyLikeRepo repositories.ReplyLikeRepository, publisher Publisher) *ItemHandler {
	return &ItemHandler{
		itemRepository:      itemRepo,
		replyRepository:     replyRepo,
		likeRepository:      likeRepo,
		replyLikeRepository: replyLikeRepo,
		publisher:           publisher,
	}
}

// RegisterItemRoutes registers item-related routes
func (h *ItemHandler) RegisterItemRoutes(g *echo.Group) {
	g.GET("/items", h.ListItems)
	g.POST("/items", h.CreateItem)
	g.GET("/items/:id", h.GetItem)
	g.PUT("/items/:id", h.UpdateItem)
	g.DELETE("/items/:id", h.DeleteItem)
}

// ListItems returns a page of items, newest first
func (h *ItemHandler) ListItems(c echo.Context) error {
	var filter entity.ListFilter
	if err := c.Bind(&filter); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}
	validate := validator.New()
	if err := validate.Struct(filter); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}

	ctx := c.Request().Context()
	items, total, err := h.itemRepository.ListItems(ctx, models.ItemFilter{
		Kind:     filter.Kind,
		Tag:      filter.Tag,
		AuthorID: filter.Author,
		Skip:     int64(filter.Skip),
		Limit:    int64(filter.Limit),
	})
	if err != nil {
		return storageError(err)
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID.Hex()
	}
	likers, err := h.likeRepository.GetLikerIDsByItem(ctx, ids)
	if err != nil {
		return storageError(err)
	}

	page := entity.ItemPage{
		Items: make([]entity.Item, len(items)),
		Meta: entity.PageMeta{
			Skip:       filter.Skip,
			Limit:      filter.Limit,
			TotalItems: total,
			HasMore:    int64(filter.Skip+len(items)) < total,
		},
	}
	for i := range items {
		page.Items[i] = items[i].ToEntity(likers[ids[i]], nil)
	}
	return c.JSON(http.StatusOK, page)
}

// GetItem returns an item with all of its replies and counts the view
func (h *ItemHandler) GetItem(c echo.Context) error {
	ctx := c.Request().Context()
	item, err := h.itemRepository.IncrementViewCount(ctx, c.Param("id"))
	if err != nil {
		return storageError(err)
	}
	out, err := h.detail(ctx, item)
	if err != nil {
		return storageError(err)
	}
	return c.JSON(http.StatusOK, out)
}

// detail assembles the full wire record of an item
func (h *ItemHandler) detail(ctx context.Context, item *models.Item) (entity.Item, error) {
	id := item.ID.Hex()
	rows, err := h.replyRepository.GetRepliesByItemID(ctx, id)
	if err != nil {
		return entity.Item{}, err
	}
	replyIDs := make([]string, len(rows))
	for i := range rows {
		replyIDs[i] = rows[i].ID
	}
	replyLikers, err := h.replyLikeRepository.GetLikerIDsByReply(ctx, replyIDs)
	if err != nil {
		return entity.Item{}, err
	}
	itemLikers, err := h.likeRepository.GetLikerIDsByItem(ctx, []string{id})
	if err != nil {
		return entity.Item{}, err
	}

	replies := make([]entity.Reply, len(rows))
	for i := range rows {
		replies[i] = rows[i].ToEntity(replyLikers[rows[i].ID])
	}
	return item.ToEntity(itemLikers[id], replies), nil
}

// CreateItem creates a new thread or story
func (h *ItemHandler) CreateItem(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req entity.CreateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	item := &models.Item{
		Kind:       req.Kind,
		Title:      req.Title,
		AuthorID:   identity.ID,
		AuthorName: identity.Name,
		Content:    req.Content,
		Tags:       req.Tags,
	}
	if err := h.itemRepository.CreateItem(c.Request().Context(), item); err != nil {
		return storageError(err)
	}

	out := item.ToEntity(nil, nil)
	publish(h.publisher, entity.EventItemCreated, out.ID, out)
	return c.JSON(http.StatusCreated, out)
}

// UpdateItem edits an item owned by the caller
func (h *ItemHandler) UpdateItem(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req entity.UpdateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	item, err := h.itemRepository.GetItemByID(ctx, c.Param("id"))
	if err != nil {
		return storageError(err)
	}
	if item.AuthorID != identity.ID {
		return echo.NewHTTPError(http.StatusForbidden, "You can only edit your own items")
	}

	if req.Title != "" {
		item.Title = req.Title
	}
	if req.Content != "" {
		item.Content = req.Content
	}
	if req.Tags != nil {
		item.Tags = req.Tags
	}
	item.UpdatedAt = time.Now().UTC()

	updated, err := h.itemRepository.UpdateItem(ctx, c.Param("id"), item)
	if err != nil {
		return storageError(err)
	}
	likers, err := h.likeRepository.GetLikerIDsByItem(ctx, []string{updated.ID.Hex()})
	if err != nil {
		return storageError(err)
	}

	out := updated.ToEntity(likers[updated.ID.Hex()], nil)
	publish(h.publisher, entity.EventItemUpdated, out.ID, out)
	return c.JSON(http.StatusOK, out)
}

// DeleteItem deletes an item owned by the caller together with its replies and likes
func (h *ItemHandler) DeleteItem(c echo.Context) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	itemID := c.Param("id")
	item, err := h.itemRepository.GetItemByID(ctx, itemID)
	if err != nil {
		return storageError(err)
	}
	if item.AuthorID != identity.ID {
		return echo.NewHTTPError(http.StatusForbidden, "You can only delete your own items")
	}

	if err := h.itemRepository.DeleteItem(ctx, itemID); err != nil {
		return storageError(err)
	}
	if err := h.replyRepository.DeleteRepliesByItemID(ctx, itemID); err != nil {
		return storageError(err)
	}
	if err := h.likeRepository.DeleteLikesByItemID(ctx, itemID); err != nil {
		return storageError(err)
	}

	publish(h.publisher, entity.EventItemDeleted, itemID, nil)
	return c.NoContent(http.StatusNoContent)
}
