package client

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/reconcile"
)

func init() {
	flag.Set("logtostderr", "true")
}

var created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeAPI serves canned answers; hooks run instead of the default behaviour.
type fakeAPI struct {
	mu    sync.Mutex
	items map[string]entity.Item
	calls []string

	like        func() (entity.LikeResult, error)
	createReply func(req entity.CreateReplyRequest) (entity.Reply, error)
	deleteItem  func() error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]entity.Item{
		"T1": {
			ID:           "T1",
			Author:       "ana",
			CreatedAt:    created,
			Content:      "thread",
			LikeIDs:      entity.NewLikeSet("u2"),
			LikeCount:    5,
			ViewCount:    3,
			CommentCount: 2,
			Replies: []entity.Reply{
				{ID: "R1", AuthorID: "u2", AuthorName: "bo", Content: "root", CreatedAt: created},
				{ID: "R2", AuthorID: "u3", AuthorName: "cy", Content: "child", CreatedAt: created, ParentReplyID: entity.ParentOf("R1")},
			},
		},
	}}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListItems(ctx context.Context, filter entity.ListFilter) (entity.ItemPage, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	page := entity.ItemPage{Meta: entity.PageMeta{Limit: filter.Limit, TotalItems: int64(len(f.items))}}
	for _, it := range f.items {
		it.Replies = nil
		page.Items = append(page.Items, it)
	}
	return page, nil
}

func (f *fakeAPI) GetItem(ctx context.Context, id string) (entity.Item, error) {
	f.record("get " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return entity.Item{}, &RequestError{Op: "get item", Status: http.StatusNotFound}
	}
	it.ViewCount++
	f.items[id] = it
	return it.Clone(), nil
}

func (f *fakeAPI) CreateItem(ctx context.Context, req entity.CreateItemRequest) (entity.Item, error) {
	f.record("create item")
	return entity.Item{ID: "T2", Kind: req.Kind, Content: req.Content, Author: "eve", AuthorID: "u1", CreatedAt: created}, nil
}

func (f *fakeAPI) UpdateItem(ctx context.Context, id string, req entity.UpdateItemRequest) (entity.Item, error) {
	f.record("update item")
	return entity.Item{ID: id, Content: req.Content, Title: req.Title, Version: 9, LikeCount: 5, CommentCount: 2}, nil
}

func (f *fakeAPI) DeleteItem(ctx context.Context, id string) error {
	f.record("delete item")
	if f.deleteItem != nil {
		return f.deleteItem()
	}
	return nil
}

func (f *fakeAPI) ToggleLike(ctx context.Context, itemID string) (entity.LikeResult, error) {
	f.record("like")
	if f.like != nil {
		return f.like()
	}
	return entity.LikeResult{LikeCount: 6, IsLiked: true}, nil
}

func (f *fakeAPI) ToggleReplyLike(ctx context.Context, itemID, replyID string) (entity.LikeResult, error) {
	f.record("like reply")
	return entity.LikeResult{LikeCount: 1, IsLiked: true}, nil
}

func (f *fakeAPI) CreateReply(ctx context.Context, itemID string, req entity.CreateReplyRequest) (entity.Reply, error) {
	f.record("reply")
	if f.createReply != nil {
		return f.createReply(req)
	}
	return entity.Reply{ID: "R3", AuthorID: "u1", AuthorName: "eve", Content: req.Content, CreatedAt: created, ParentReplyID: req.ParentReplyID}, nil
}

func (f *fakeAPI) UpdateReply(ctx context.Context, itemID, replyID string, req entity.UpdateReplyRequest) (entity.Reply, error) {
	f.record("update reply")
	return entity.Reply{ID: replyID, Content: req.Content}, nil
}

func (f *fakeAPI) DeleteReply(ctx context.Context, itemID, replyID string) error {
	f.record("delete reply")
	return nil
}

// fakePush hands events to the session and counts room holders.
type fakePush struct {
	events chan entity.Event

	mu    sync.Mutex
	rooms map[string]int
}

func newFakePush() *fakePush {
	return &fakePush{events: make(chan entity.Event), rooms: map[string]int{}}
}

func (p *fakePush) Events() <-chan entity.Event { return p.events }

func (p *fakePush) Subscribe(room string) func() {
	p.mu.Lock()
	p.rooms[room]++
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.rooms[room]--
			p.mu.Unlock()
		})
	}
}

func (p *fakePush) holders(room string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rooms[room]
}

func newTestSession(t *testing.T, api *fakeAPI, push *fakePush, cfg SessionConfig) *Session {
	cfg.UserID = "u1"
	cfg.UserName = "eve"
	var p Push
	if push != nil {
		p = push
	}
	s := NewSession(context.Background(), api, p, cfg)
	t.Cleanup(s.Close)
	_, err := s.OpenItem(context.Background(), "T1")
	assert.Equal(t, nil, err)
	return s
}

func TestSessionLike(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil, SessionConfig{})

	assert.Equal(t, nil, s.Like(context.Background(), "T1"))
	it, _ := s.Item("T1")
	assert.Equal(t, 6, it.LikeCount)
	assert.Equal(t, true, it.LikeIDs.Has("u1"))
	assert.Equal(t, 4, it.ViewCount)
}

func TestSessionLikeRollback(t *testing.T) {
	api := newFakeAPI()
	api.like = func() (entity.LikeResult, error) {
		return entity.LikeResult{}, &RequestError{Op: "like item", Status: http.StatusInternalServerError}
	}
	var notified []error
	s := newTestSession(t, api, nil, SessionConfig{
		Notifier: NotifierFunc(func(err error) { notified = append(notified, err) }),
	})
	before := s.Items()

	err := s.Like(context.Background(), "T1")
	var reqErr *RequestError
	assert.Equal(t, true, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
	assert.Equal(t, before, s.Items())
	assert.Equal(t, 1, len(notified))
}

func TestSessionCommentValidation(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil, SessionConfig{})
	before := s.Items()

	_, err := s.Comment(context.Background(), "T1", "", "")
	assert.Equal(t, true, errors.Is(err, ErrValidation))
	var vErr *ValidationError
	assert.Equal(t, true, errors.As(err, &vErr))
	assert.Equal(t, "required", vErr.Fields["Content"])

	assert.Equal(t, before, s.Items())
	for _, call := range api.Calls() {
		assert.NotEqual(t, "reply", call)
	}
}

func TestSessionCommentToChild(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil, SessionConfig{})

	target, err := s.ComposeTarget("T1", "R2")
	assert.Equal(t, nil, err)
	assert.Equal(t, "@cy ", target.Mention)

	var sent entity.CreateReplyRequest
	api.createReply = func(req entity.CreateReplyRequest) (entity.Reply, error) {
		sent = req
		return entity.Reply{ID: "R3", AuthorID: "u1", AuthorName: "eve", Content: req.Content, ParentReplyID: req.ParentReplyID}, nil
	}
	r, err := s.Comment(context.Background(), "T1", "R2", target.Mention+"agreed")
	assert.Equal(t, nil, err)
	assert.Equal(t, "R1", *sent.ParentReplyID)
	assert.Equal(t, "R3", r.ID)

	tree := s.Tree("T1")
	assert.Equal(t, 1, len(tree.Roots))
	children := tree.ChildrenByParent["R1"]
	assert.Equal(t, 2, len(children))
	assert.Equal(t, "R3", children[1].ID)
	assert.Equal(t, "", children[1].TempID)

	it, _ := s.Item("T1")
	assert.Equal(t, 3, it.CommentCount)
}

func TestSessionCommentFailure(t *testing.T) {
	api := newFakeAPI()
	api.createReply = func(entity.CreateReplyRequest) (entity.Reply, error) {
		return entity.Reply{}, &RequestError{Op: "create reply", Err: errors.New("connection refused")}
	}
	s := newTestSession(t, api, nil, SessionConfig{})
	before := s.Items()

	_, err := s.Comment(context.Background(), "T1", "", "hello")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, before, s.Items())
}

func TestSessionOwnEchoBeforeResponse(t *testing.T) {
	api := newFakeAPI()
	push := newFakePush()
	reconciled := make(chan reconcile.Result, 1)
	s := newTestSession(t, api, push, SessionConfig{
		OnEvent: func(ev entity.Event, res reconcile.Result) { reconciled <- res },
	})

	posted := entity.Reply{ID: "R3", AuthorID: "u1", AuthorName: "eve", Content: "hello", CreatedAt: created}
	api.createReply = func(entity.CreateReplyRequest) (entity.Reply, error) {
		// the echo overtakes the response
		ev, _ := entity.NewEvent(entity.EventComment, "T1", entity.CommentPayload{Reply: posted})
		push.events <- ev
		res := <-reconciled
		assert.Equal(t, reconcile.Duplicate, res.Kind)
		return posted, nil
	}

	_, err := s.Comment(context.Background(), "T1", "", "hello")
	assert.Equal(t, nil, err)

	it, _ := s.Item("T1")
	assert.Equal(t, 3, len(it.Replies))
	assert.Equal(t, "R3", it.Replies[2].ID)
	assert.Equal(t, 3, it.CommentCount)
}

func TestSessionOpenItemRemoved(t *testing.T) {
	api := newFakeAPI()
	push := newFakePush()
	removed := make(chan string, 1)
	s := newTestSession(t, api, push, SessionConfig{
		OnOpenItemRemoved: func(itemID string) { removed <- itemID },
	})
	assert.Equal(t, 1, push.holders(entity.ItemRoom("T1")))
	assert.Equal(t, "T1", s.Open())

	ev, _ := entity.NewEvent(entity.EventItemDeleted, "T1", nil)
	push.events <- ev
	assert.Equal(t, "T1", <-removed)

	assert.Equal(t, "", s.Open())
	assert.Equal(t, 0, push.holders(entity.ItemRoom("T1")))
	_, ok := s.Item("T1")
	assert.Equal(t, false, ok)
}

func TestSessionViewItemReleases(t *testing.T) {
	api := newFakeAPI()
	push := newFakePush()
	s := NewSession(context.Background(), api, push, SessionConfig{UserID: "u1"})
	defer s.Close()

	boom := errors.New("render failed")
	err := s.ViewItem(context.Background(), "T1", func(ctx context.Context, it entity.Item) error {
		assert.Equal(t, 1, push.holders(entity.ItemRoom("T1")))
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, push.holders(entity.ItemRoom("T1")))

	_, err = s.OpenItem(context.Background(), "missing")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, 0, push.holders(entity.ItemRoom("missing")))

	err = s.WithRoom(context.Background(), entity.FeedRoom, func(ctx context.Context) error {
		assert.Equal(t, 1, push.holders(entity.FeedRoom))
		return nil
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, push.holders(entity.FeedRoom))
}

func TestSessionDeleteOpenItem(t *testing.T) {
	api := newFakeAPI()
	push := newFakePush()
	s := newTestSession(t, api, push, SessionConfig{})

	assert.Equal(t, nil, s.DeleteItem(context.Background(), "T1"))
	assert.Equal(t, "", s.Open())
	assert.Equal(t, 0, len(s.Items()))
	assert.Equal(t, 0, push.holders(entity.ItemRoom("T1")))
}

func TestSessionOwnDeleteEchoKeepsCallbackQuiet(t *testing.T) {
	api := newFakeAPI()
	push := newFakePush()
	removed := make(chan string, 1)
	s := newTestSession(t, api, push, SessionConfig{
		OnOpenItemRemoved: func(itemID string) { removed <- itemID },
	})
	// the push copy of our own delete lands before the response
	api.deleteItem = func() error {
		ev, _ := entity.NewEvent(entity.EventItemDeleted, "T1", nil)
		push.events <- ev
		return nil
	}

	assert.Equal(t, nil, s.DeleteItem(context.Background(), "T1"))
	assert.Equal(t, 0, len(removed))
	assert.Equal(t, "", s.Open())
	assert.Equal(t, 0, len(s.Items()))
	assert.Equal(t, 0, push.holders(entity.ItemRoom("T1")))
}

func TestSessionDeleteRollback(t *testing.T) {
	api := newFakeAPI()
	api.deleteItem = func() error {
		return &RequestError{Op: "delete item", Status: http.StatusForbidden, Message: "not the owner"}
	}
	s := newTestSession(t, api, nil, SessionConfig{})
	before := s.Items()

	err := s.DeleteItem(context.Background(), "T1")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, before, s.Items())
	assert.Equal(t, "T1", s.Open())
}

func TestSessionEditAndCreate(t *testing.T) {
	api := newFakeAPI()
	s := newTestSession(t, api, nil, SessionConfig{})

	it, err := s.EditItem(context.Background(), "T1", entity.UpdateItemRequest{Content: "rewritten", Title: "title"})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(9), it.Version)
	local, _ := s.Item("T1")
	assert.Equal(t, "rewritten", local.Content)
	assert.Equal(t, "title", local.Title)

	r, err := s.EditReply(context.Background(), "T1", "R1", "edited")
	assert.Equal(t, nil, err)
	assert.Equal(t, "edited", r.Content)

	_, err = s.CreateItem(context.Background(), entity.CreateItemRequest{Kind: "poll", Content: "x"})
	assert.Equal(t, true, errors.Is(err, ErrValidation))

	story, err := s.CreateItem(context.Background(), entity.CreateItemRequest{Kind: entity.KindStory, Content: "we did it"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "T2", story.ID)
	assert.Equal(t, "T2", s.Items()[0].ID)

	assert.Equal(t, nil, s.LikeReply(context.Background(), "T1", "R1"))
	assert.Equal(t, nil, s.DeleteReply(context.Background(), "T1", "R2"))
	local, _ = s.Item("T1")
	assert.Equal(t, 1, len(local.Replies))
	assert.Equal(t, 1, local.Replies[0].LikeCount)
}

func TestSessionLoadItems(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(context.Background(), api, nil, SessionConfig{UserID: "u1"})
	defer s.Close()

	meta, err := s.LoadItems(context.Background(), entity.ListFilter{Limit: 20})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1), meta.TotalItems)
	assert.Equal(t, 1, len(s.Items()))

	_, err = s.LoadItems(context.Background(), entity.ListFilter{Limit: 500})
	assert.Equal(t, true, errors.Is(err, ErrValidation))
}

func TestSessionClosed(t *testing.T) {
	s := NewSession(context.Background(), newFakeAPI(), nil, SessionConfig{UserID: "u1"})
	s.Close()
	s.Close()

	err := s.Like(context.Background(), "T1")
	assert.Equal(t, ErrClosed, err)
	_, err = s.HandleEvent(entity.Event{Type: entity.EventItemDeleted, ItemID: "T1"})
	assert.Equal(t, ErrClosed, err)
}
