package optimistic

import (
	"flag"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

func init() {
	flag.Set("logtostderr", "true")
}

func newTestStore() *store.Store {
	st := store.New()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	st.UpsertItem(entity.Item{
		ID:           "T1",
		Kind:         entity.KindThread,
		Author:       "ana",
		AuthorID:     "u9",
		CreatedAt:    created,
		Content:      "first thread",
		Tags:         []string{"wheelchairs"},
		LikeIDs:      entity.NewLikeSet("u2", "u3"),
		LikeCount:    5,
		CommentCount: 2,
		Version:      4,
		Replies: []entity.Reply{
			{ID: "R1", AuthorID: "u2", AuthorName: "bo", Content: "root", CreatedAt: created},
			{ID: "R2", AuthorID: "u3", AuthorName: "cy", Content: "child", CreatedAt: created, ParentReplyID: entity.ParentOf("R1")},
		},
	})
	st.UpsertItem(entity.Item{ID: "T2", Author: "dee", Content: "second", CreatedAt: created})
	return st
}

func TestTempID(t *testing.T) {
	a := NewTempID()
	b := NewTempID()
	assert.Equal(t, true, IsTempID(a))
	assert.NotEqual(t, a, b)
	assert.Equal(t, false, IsTempID("R1"))
}

func TestLikeResolve(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)

	m, err := a.ApplyLike("u1", "T1")
	assert.Equal(t, nil, err)
	assert.Equal(t, KindLike, m.Kind)
	assert.Equal(t, "T1", m.TargetID)

	it, _ := st.Item("T1")
	assert.Equal(t, 6, it.LikeCount)
	assert.Equal(t, true, it.LikeIDs.Has("u1"))
	assert.Equal(t, true, st.IsPending("T1", store.FieldLikes))
	assert.Equal(t, 1, a.InFlight())

	m.ResolveLike(entity.LikeResult{LikeCount: 6, IsLiked: true})
	after, _ := st.Item("T1")
	assert.Equal(t, it, after)
	assert.Equal(t, 0, st.PendingCount())
	assert.Equal(t, 0, a.InFlight())

	// a stale duplicate of the same response changes nothing
	m.ResolveLike(entity.LikeResult{LikeCount: 6, IsLiked: true})
	again, _ := st.Item("T1")
	assert.Equal(t, after, again)
}

func TestLikeRollbackRestoresSnapshot(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)
	before := st.Items()

	m, err := a.ApplyLike("u2", "T1")
	assert.Equal(t, nil, err)
	it, _ := st.Item("T1")
	assert.Equal(t, 4, it.LikeCount)
	assert.Equal(t, false, it.LikeIDs.Has("u2"))

	m.Rollback()
	assert.Equal(t, before, st.Items())
	assert.Equal(t, 0, st.PendingCount())
	assert.Equal(t, true, m.Settled())

	// nil membership sets survive a round trip
	m, _ = a.ApplyLike("u1", "T2")
	m.Rollback()
	assert.Equal(t, before, st.Items())
}

func TestLikeRapidToggles(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)

	first, _ := a.ApplyLike("u1", "T1")
	second, _ := a.ApplyLike("u1", "T1")
	it, _ := st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)
	assert.Equal(t, false, it.LikeIDs.Has("u1"))
	assert.Equal(t, 2, a.InFlight())

	// the first answer arrives while the second click is still in flight
	first.ResolveLike(entity.LikeResult{LikeCount: 6, IsLiked: true})
	it, _ = st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)
	assert.Equal(t, false, it.LikeIDs.Has("u1"))

	second.ResolveLike(entity.LikeResult{LikeCount: 5, IsLiked: false})
	it, _ = st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)
	assert.Equal(t, false, it.LikeIDs.Has("u1"))
	assert.Equal(t, 0, st.PendingCount())
}

func TestLikeLateAnswerIsSuperseded(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)

	first, _ := a.ApplyLike("u1", "T1")
	second, _ := a.ApplyLike("u1", "T1")

	second.ResolveLike(entity.LikeResult{LikeCount: 5, IsLiked: false})
	assert.Equal(t, true, first.Settled())
	assert.Equal(t, 0, a.InFlight())

	first.ResolveLike(entity.LikeResult{LikeCount: 6, IsLiked: true})
	it, _ := st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)
	assert.Equal(t, false, it.LikeIDs.Has("u1"))

	first.Rollback()
	it, _ = st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)
}

func TestLikeRollbackInsideChain(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)
	before := st.Items()

	first, _ := a.ApplyLike("u1", "T1")
	second, _ := a.ApplyLike("u1", "T1")

	second.Rollback()
	it, _ := st.Item("T1")
	assert.Equal(t, 6, it.LikeCount)
	assert.Equal(t, true, it.LikeIDs.Has("u1"))

	first.Rollback()
	assert.Equal(t, before, st.Items())
	assert.Equal(t, 0, a.InFlight())
}

func TestLikeResolveWithoutBody(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)

	m, _ := a.ApplyLike("u1", "T1")
	m.Resolve()
	it, _ := st.Item("T1")
	assert.Equal(t, 6, it.LikeCount)
	assert.Equal(t, true, it.LikeIDs.Has("u1"))
	assert.Equal(t, 0, a.InFlight())
}

func TestReplyLike(t *testing.T) {
	st := newTestStore()
	a := NewApplier(st)

	_, err := a.ApplyReplyLike("u1", "T1", "missing")
	assert.Equal(t, ErrUnknownReply, err)
	_, err = a.ApplyLike("u1", "nope")
	assert.Equal(t, ErrUnknownItem, err)

	m, err := a.ApplyReplyLike("u1", "T1", "R2")
	assert.Equal(t, nil, err)
	assert.Equal(t, "R2", m.TargetID)
	r, _ := st.Reply("T1", "R2")
	assert.Equal(t, 1, r.LikeCount)
	assert.Equal(t, true, r.LikeIDs.Has("u1"))

	// the item's own counter is untouched
	it, _ := st.Item("T1")
	assert.Equal(t, 5, it.LikeCount)

	m.ResolveLike(entity.LikeResult{LikeCount: 3, IsLiked: true})
	r, _ = st.Reply("T1", "R2")
	assert.Equal(t, 3, r.LikeCount)
	assert.Equal(t, true, r.LikeIDs.Has("u1"))
}
