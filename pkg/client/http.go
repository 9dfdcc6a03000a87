package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// API is the backend surface the session depends on.
type API interface {
	ListItems(ctx context.Context, filter entity.ListFilter) (entity.ItemPage, error)
	GetItem(ctx context.Context, id string) (entity.Item, error)
	CreateItem(ctx context.Context, req entity.CreateItemRequest) (entity.Item, error)
	UpdateItem(ctx context.Context, id string, req entity.UpdateItemRequest) (entity.Item, error)
	DeleteItem(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, itemID string) (entity.LikeResult, error)
	ToggleReplyLike(ctx context.Context, itemID, replyID string) (entity.LikeResult, error)
	CreateReply(ctx context.Context, itemID string, req entity.CreateReplyRequest) (entity.Reply, error)
	UpdateReply(ctx context.Context, itemID, replyID string, req entity.UpdateReplyRequest) (entity.Reply, error)
	DeleteReply(ctx context.Context, itemID, replyID string) error
}

// HTTPClient calls the REST endpoints under /api/v1.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient returns a client for the API rooted at baseURL, for example
// "http://localhost:8080/api/v1". A nil httpClient uses a client with a 10s timeout.
func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// ListItems fetches one page of items.
func (c *HTTPClient) ListItems(ctx context.Context, filter entity.ListFilter) (entity.ItemPage, error) {
	q := url.Values{}
	if filter.Kind != "" {
		q.Set("kind", filter.Kind)
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	if filter.Author != "" {
		q.Set("author", filter.Author)
	}
	if filter.Skip > 0 {
		q.Set("skip", strconv.Itoa(filter.Skip))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/items"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page entity.ItemPage
	err := c.do(ctx, "list items", http.MethodGet, path, nil, &page)
	return page, err
}

// GetItem fetches one item with its replies. The server counts it as a view.
func (c *HTTPClient) GetItem(ctx context.Context, id string) (entity.Item, error) {
	var it entity.Item
	err := c.do(ctx, "get item", http.MethodGet, "/items/"+url.PathEscape(id), nil, &it)
	return it, err
}

func (c *HTTPClient) CreateItem(ctx context.Context, req entity.CreateItemRequest) (entity.Item, error) {
	var it entity.Item
	err := c.do(ctx, "create item", http.MethodPost, "/items", req, &it)
	return it, err
}

func (c *HTTPClient) UpdateItem(ctx context.Context, id string, req entity.UpdateItemRequest) (entity.Item, error) {
	var it entity.Item
	err := c.do(ctx, "update item", http.MethodPut, "/items/"+url.PathEscape(id), req, &it)
	return it, err
}

func (c *HTTPClient) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, "delete item", http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil)
}

// ToggleLike flips the caller's like on an item.
func (c *HTTPClient) ToggleLike(ctx context.Context, itemID string) (entity.LikeResult, error) {
	var res entity.LikeResult
	err := c.do(ctx, "like item", http.MethodPost, "/items/"+url.PathEscape(itemID)+"/like", nil, &res)
	return res, err
}

// ToggleReplyLike flips the caller's like on a reply.
func (c *HTTPClient) ToggleReplyLike(ctx context.Context, itemID, replyID string) (entity.LikeResult, error) {
	var res entity.LikeResult
	err := c.do(ctx, "like reply", http.MethodPost, replyPath(itemID, replyID)+"/like", nil, &res)
	return res, err
}

func (c *HTTPClient) CreateReply(ctx context.Context, itemID string, req entity.CreateReplyRequest) (entity.Reply, error) {
	var r entity.Reply
	err := c.do(ctx, "create reply", http.MethodPost, "/items/"+url.PathEscape(itemID)+"/replies", req, &r)
	return r, err
}

func (c *HTTPClient) UpdateReply(ctx context.Context, itemID, replyID string, req entity.UpdateReplyRequest) (entity.Reply, error) {
	var r entity.Reply
	err := c.do(ctx, "update reply", http.MethodPut, replyPath(itemID, replyID), req, &r)
	return r, err
}

func (c *HTTPClient) DeleteReply(ctx context.Context, itemID, replyID string) error {
	return c.do(ctx, "delete reply", http.MethodDelete, replyPath(itemID, replyID), nil, nil)
}

func replyPath(itemID, replyID string) string {
	return "/items/" + url.PathEscape(itemID) + "/replies/" + url.PathEscape(replyID)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		glog.V(1).Infof("[api]%s %s error = %s\n", method, path, err)
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	glog.V(2).Infof("[api]%s %s %d\n", method, path, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil {
			e.Message = strings.TrimSpace(string(raw))
		}
		return &RequestError{Op: op, Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
