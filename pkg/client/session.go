// Package client is the member hub client: the REST API, the push subscriber and
// the Session that keeps a local view of items consistent with both.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/optimistic"
	"github.com/anonto42/nano-midea/memberhub/pkg/reconcile"
	"github.com/anonto42/nano-midea/memberhub/pkg/replytree"
	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

// Push is a source of room-scoped events. *Subscriber implements it.
type Push interface {
	Events() <-chan entity.Event
	Subscribe(room string) (release func())
}

// Notifier shows a transient message for a failed user action.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }

// SessionConfig configures a Session. Callbacks run on the session's event
// loop and must not call back into the Session.
type SessionConfig struct {
	UserID   string
	UserName string

	Notifier Notifier
	// OnOpenItemRemoved is called when the item in the detail view is deleted
	// by someone else.
	OnOpenItemRemoved func(itemID string)
	// OnEvent is called after every push event is reconciled.
	OnEvent func(ev entity.Event, res reconcile.Result)
}

// Session owns the local view. One goroutine runs every store access; API
// calls run on the caller's goroutine and post their outcome back.
type Session struct {
	api  API
	push Push
	cfg  SessionConfig

	store   *store.Store
	applier *optimistic.Applier
	rec     *reconcile.Reconciler

	// loop-owned
	releaseOpen func()

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// NewSession starts a session. push may be nil when no live updates are wanted.
func NewSession(ctx context.Context, api API, push Push, cfg SessionConfig) *Session {
	st := store.New()
	cancelCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		api:     api,
		push:    push,
		cfg:     cfg,
		store:   st,
		applier: optimistic.NewApplier(st),
		rec:     reconcile.New(st, cfg.UserID),
		ops:     make(chan func()),
		ctx:     cancelCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)

	var events <-chan entity.Event
	if s.push != nil {
		events = s.push.Events()
	}
	for {
		select {
		case <-s.ctx.Done():
			if s.releaseOpen != nil {
				s.releaseOpen()
				s.releaseOpen = nil
			}
			return
		case fn := <-s.ops:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() {
		defer close(done)
		fn()
	}:
	case <-s.ctx.Done():
		return ErrClosed
	}
	<-done
	return nil
}

func (s *Session) handleEvent(ev entity.Event) reconcile.Result {
	res := s.rec.Apply(ev)
	if res.Kind == reconcile.OpenItemRemoved {
		if s.releaseOpen != nil {
			s.releaseOpen()
			s.releaseOpen = nil
		}
		if s.cfg.OnOpenItemRemoved != nil {
			s.cfg.OnOpenItemRemoved(res.ItemID)
		}
	}
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev, res)
	}
	return res
}

// HandleEvent reconciles an event delivered outside the push source.
func (s *Session) HandleEvent(ev entity.Event) (reconcile.Result, error) {
	var res reconcile.Result
	err := s.do(func() { res = s.handleEvent(ev) })
	return res, err
}

// Close stops the event loop and releases every subscription the session holds.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Session) notify(err error) {
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}
	glog.Warningf("[session]%s\n", err)
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(err)
	}
}

// Subscribe joins a push room for the caller's scope. The returned release
// must run on every exit path; see WithRoom.
func (s *Session) Subscribe(room string) (release func()) {
	if s.push == nil {
		return func() {}
	}
	return s.push.Subscribe(room)
}

// WithRoom holds a subscription to room while fn runs.
func (s *Session) WithRoom(ctx context.Context, room string, fn func(ctx context.Context) error) error {
	release := s.Subscribe(room)
	defer release()
	return fn(ctx)
}

// LoadItems fetches a page of items into the local view.
func (s *Session) LoadItems(ctx context.Context, filter entity.ListFilter) (entity.PageMeta, error) {
	if err := validateRequest(filter); err != nil {
		return entity.PageMeta{}, err
	}
	page, err := s.api.ListItems(ctx, filter)
	if err != nil {
		return entity.PageMeta{}, err
	}
	err = s.do(func() {
		for _, it := range page.Items {
			s.store.UpsertItem(it)
		}
	})
	return page.Meta, err
}

// OpenItem shows one item in the detail view: it joins the item's room, loads
// the item with its replies and marks it open. A previously open item is closed.
func (s *Session) OpenItem(ctx context.Context, itemID string) (entity.Item, error) {
	// join first so nothing between the fetch and the join is missed
	release := s.Subscribe(entity.ItemRoom(itemID))
	it, err := s.api.GetItem(ctx, itemID)
	if err != nil {
		release()
		return entity.Item{}, err
	}

	var out entity.Item
	err = s.do(func() {
		if s.releaseOpen != nil {
			s.releaseOpen()
		}
		s.releaseOpen = release
		s.store.UpsertItem(it)
		s.rec.SetOpen(itemID)
		out, _ = s.store.Item(itemID)
	})
	if err != nil {
		release()
		return entity.Item{}, err
	}
	return out, nil
}

// CloseItem closes the detail view and leaves its room.
func (s *Session) CloseItem() error {
	return s.do(s.closeOpen)
}

func (s *Session) closeOpen() {
	if s.releaseOpen != nil {
		s.releaseOpen()
		s.releaseOpen = nil
	}
	s.rec.SetOpen("")
}

// ViewItem opens itemID for the duration of fn.
func (s *Session) ViewItem(ctx context.Context, itemID string, fn func(ctx context.Context, it entity.Item) error) error {
	it, err := s.OpenItem(ctx, itemID)
	if err != nil {
		return err
	}
	defer s.CloseItem()
	return fn(ctx, it)
}

// Open returns the id of the item in the detail view, or "".
func (s *Session) Open() string {
	var id string
	s.do(func() { id = s.rec.Open() })
	return id
}

// Items returns the local view in display order.
func (s *Session) Items() []entity.Item {
	var out []entity.Item
	s.do(func() { out = s.store.Items() })
	return out
}

// Item returns one item from the local view.
func (s *Session) Item(itemID string) (entity.Item, bool) {
	var it entity.Item
	var ok bool
	s.do(func() { it, ok = s.store.Item(itemID) })
	return it, ok
}

// Tree returns the organized replies of an item.
func (s *Session) Tree(itemID string) replytree.Tree {
	var t replytree.Tree
	s.do(func() { t = replytree.Organize(s.store.Replies(itemID)) })
	return t
}

// apply runs an optimistic mutation on the loop.
func (s *Session) apply(fn func() (*optimistic.Mutation, error)) (*optimistic.Mutation, error) {
	var m *optimistic.Mutation
	var applyErr error
	if err := s.do(func() { m, applyErr = fn() }); err != nil {
		return nil, err
	}
	return m, applyErr
}

// settle resolves m with ok or rolls it back when err is set.
func (s *Session) settle(m *optimistic.Mutation, err error, ok func()) error {
	doErr := s.do(func() {
		if err != nil {
			m.Rollback()
			return
		}
		ok()
	})
	if err != nil {
		s.notify(err)
		return err
	}
	return doErr
}

// Like toggles the user's like on an item.
func (s *Session) Like(ctx context.Context, itemID string) error {
	m, err := s.apply(func() (*optimistic.Mutation, error) {
		return s.applier.ApplyLike(s.cfg.UserID, itemID)
	})
	if err != nil {
		return err
	}
	res, err := s.api.ToggleLike(ctx, itemID)
	return s.settle(m, err, func() { m.ResolveLike(res) })
}

// LikeReply toggles the user's like on a reply.
func (s *Session) LikeReply(ctx context.Context, itemID, replyID string) error {
	m, err := s.apply(func() (*optimistic.Mutation, error) {
		return s.applier.ApplyReplyLike(s.cfg.UserID, itemID, replyID)
	})
	if err != nil {
		return err
	}
	res, err := s.api.ToggleReplyLike(ctx, itemID, replyID)
	return s.settle(m, err, func() { m.ResolveLike(res) })
}

// ComposeTarget returns where a reply "to" toReplyID will be posted and the
// mention the composer should start with. An empty toReplyID starts a new root.
func (s *Session) ComposeTarget(itemID, toReplyID string) (replytree.Target, error) {
	var t replytree.Target
	var targetErr error
	if err := s.do(func() {
		t, targetErr = replytree.ResolveTarget(s.store.Replies(itemID), toReplyID)
	}); err != nil {
		return replytree.Target{}, err
	}
	return t, targetErr
}

// Comment posts a reply to an item. toReplyID names the reply being answered,
// or is empty for a new root; answers to children attach to their root.
func (s *Session) Comment(ctx context.Context, itemID, toReplyID, content string) (entity.Reply, error) {
	req := entity.CreateReplyRequest{Content: content}
	if err := validateRequest(req); err != nil {
		return entity.Reply{}, err
	}

	m, err := s.apply(func() (*optimistic.Mutation, error) {
		target, err := replytree.ResolveTarget(s.store.Replies(itemID), toReplyID)
		if err != nil {
			return nil, err
		}
		req.ParentReplyID = target.ParentReplyID
		return s.applier.ApplyComment(optimistic.CommentInput{
			ItemID:        itemID,
			UserID:        s.cfg.UserID,
			UserName:      s.cfg.UserName,
			Content:       content,
			ParentReplyID: target.ParentReplyID,
		})
	})
	if err != nil {
		return entity.Reply{}, err
	}

	r, err := s.api.CreateReply(ctx, itemID, req)
	if err := s.settle(m, err, func() { m.ResolveComment(r) }); err != nil {
		return entity.Reply{}, err
	}
	return r, nil
}

// CreateItem posts a new item and puts it at the head of the view. It is not
// applied optimistically: the item has no id until the server assigns one.
func (s *Session) CreateItem(ctx context.Context, req entity.CreateItemRequest) (entity.Item, error) {
	if err := validateRequest(req); err != nil {
		return entity.Item{}, err
	}
	it, err := s.api.CreateItem(ctx, req)
	if err != nil {
		s.notify(err)
		return entity.Item{}, err
	}
	// the push echo may have inserted it already
	err = s.do(func() {
		if !s.store.PrependItem(it) {
			s.store.UpsertItem(it)
		}
	})
	return it, err
}

// EditItem updates an item. New content shows immediately.
func (s *Session) EditItem(ctx context.Context, itemID string, req entity.UpdateItemRequest) (entity.Item, error) {
	if err := validateRequest(req); err != nil {
		return entity.Item{}, err
	}
	var m *optimistic.Mutation
	if req.Content != "" {
		var err error
		m, err = s.apply(func() (*optimistic.Mutation, error) {
			return s.applier.ApplyEdit(itemID, "", req.Content)
		})
		if err != nil {
			return entity.Item{}, err
		}
	}

	it, err := s.api.UpdateItem(ctx, itemID, req)
	if m == nil {
		if err != nil {
			s.notify(err)
			return entity.Item{}, err
		}
		return it, s.do(func() { s.store.UpsertItem(it) })
	}
	if err := s.settle(m, err, func() { m.ResolveItem(it) }); err != nil {
		return entity.Item{}, err
	}
	return it, nil
}

// EditReply replaces the content of a reply.
func (s *Session) EditReply(ctx context.Context, itemID, replyID, content string) (entity.Reply, error) {
	req := entity.UpdateReplyRequest{Content: content}
	if err := validateRequest(req); err != nil {
		return entity.Reply{}, err
	}
	m, err := s.apply(func() (*optimistic.Mutation, error) {
		return s.applier.ApplyEdit(itemID, replyID, content)
	})
	if err != nil {
		return entity.Reply{}, err
	}
	r, err := s.api.UpdateReply(ctx, itemID, replyID, req)
	if err := s.settle(m, err, func() { m.ResolveReply(r) }); err != nil {
		return entity.Reply{}, err
	}
	return r, nil
}

// DeleteItem removes an item. Deleting the open item closes the detail view
// once the server confirms.
func (s *Session) DeleteItem(ctx context.Context, itemID string) error {
	m, err := s.apply(func() (*optimistic.Mutation, error) {
		return s.applier.ApplyDelete(itemID, "")
	})
	if err != nil {
		return err
	}
	err = s.api.DeleteItem(ctx, itemID)
	return s.settle(m, err, func() {
		m.Resolve()
		if s.rec.Open() == itemID {
			s.closeOpen()
		}
	})
}

// DeleteReply removes a reply.
func (s *Session) DeleteReply(ctx context.Context, itemID, replyID string) error {
	m, err := s.apply(func() (*optimistic.Mutation, error) {
		return s.applier.ApplyDelete(itemID, replyID)
	})
	if err != nil {
		return err
	}
	err = s.api.DeleteReply(ctx, itemID, replyID)
	return s.settle(m, err, m.Resolve)
}
