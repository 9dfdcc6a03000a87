package optimistic

import (
	"slices"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

// likeChain tracks the toggles in flight on one like target. base is the last
// server-confirmed state (or the state before the first toggle); the store
// always shows base with every live toggle replayed on top, in click order.
type likeChain struct {
	itemID  string
	replyID string
	base    likeState
	live    []*Mutation
}

type likeState struct {
	ids   entity.LikeSet
	count int
}

func (ls likeState) clone() likeState {
	return likeState{ids: ls.ids.Clone(), count: ls.count}
}

func (ls *likeState) setMember(userID string, member bool) {
	if !member {
		delete(ls.ids, userID)
		return
	}
	if ls.ids == nil {
		ls.ids = entity.LikeSet{}
	}
	ls.ids[userID] = struct{}{}
}

// toggle flips userID's membership and moves the count by exactly one.
func (ls *likeState) toggle(userID string) {
	if ls.ids.Has(userID) {
		delete(ls.ids, userID)
		ls.count--
		return
	}
	if ls.ids == nil {
		ls.ids = entity.LikeSet{}
	}
	ls.ids[userID] = struct{}{}
	ls.count++
}

// ApplyLike toggles userID's like on an item. The count moves by exactly one
// per toggle; it is never recomputed from the membership set.
func (a *Applier) ApplyLike(userID, itemID string) (*Mutation, error) {
	if _, ok := a.store.Item(itemID); !ok {
		return nil, ErrUnknownItem
	}
	return a.applyLike(userID, itemID, ""), nil
}

// ApplyReplyLike toggles userID's like on a reply.
func (a *Applier) ApplyReplyLike(userID, itemID, replyID string) (*Mutation, error) {
	if _, ok := a.store.Item(itemID); !ok {
		return nil, ErrUnknownItem
	}
	if !a.store.HasReply(itemID, replyID) {
		return nil, ErrUnknownReply
	}
	return a.applyLike(userID, itemID, replyID), nil
}

func (a *Applier) applyLike(userID, itemID, replyID string) *Mutation {
	m := a.newMutation(KindLike, itemID, replyID, store.FieldLikes)
	m.userID = userID
	m.chainKey = itemID + "/" + replyID

	c, ok := a.chains[m.chainKey]
	if !ok {
		c = &likeChain{itemID: itemID, replyID: replyID, base: a.readLikes(itemID, replyID)}
		a.chains[m.chainKey] = c
	}
	c.live = append(c.live, m)

	next := a.readLikes(itemID, replyID)
	next.toggle(userID)
	a.writeLikes(itemID, replyID, next)
	a.markPending(m)
	return m
}

// ResolveLike applies the server's answer to this toggle. The answer becomes
// the confirmed base; older toggles still in flight are superseded and newer
// ones are replayed on top, so the last click always wins.
func (m *Mutation) ResolveLike(res entity.LikeResult) {
	if m.settle() != nil {
		return
	}
	a := m.applier
	c, ok := a.chains[m.chainKey]
	if !ok {
		return
	}
	i := slices.Index(c.live, m)
	if i < 0 {
		return
	}
	for _, older := range c.live[:i] {
		older.settle()
	}
	c.live = slices.Clone(c.live[i+1:])

	c.base = a.readLikes(c.itemID, c.replyID)
	c.base.setMember(m.userID, res.IsLiked)
	c.base.count = res.LikeCount
	a.replayLikes(m.chainKey, c)
}

// confirmedLike is the state this toggle produced, as if the server agreed.
func (m *Mutation) confirmedLike() entity.LikeResult {
	c, ok := m.applier.chains[m.chainKey]
	if !ok {
		return entity.LikeResult{}
	}
	state := c.base.clone()
	for _, live := range c.live {
		state.toggle(live.userID)
		if live == m {
			break
		}
	}
	return entity.LikeResult{LikeCount: state.count, IsLiked: state.ids.Has(m.userID)}
}

func (m *Mutation) rollbackLike() {
	if m.settle() != nil {
		return
	}
	a := m.applier
	c, ok := a.chains[m.chainKey]
	if !ok {
		return
	}
	i := slices.Index(c.live, m)
	if i < 0 {
		return
	}
	c.live = slices.Delete(c.live, i, i+1)
	a.replayLikes(m.chainKey, c)
}

// replayLikes writes base plus every live toggle to the store.
func (a *Applier) replayLikes(key string, c *likeChain) {
	state := c.base.clone()
	for _, m := range c.live {
		state.toggle(m.userID)
	}
	a.writeLikes(c.itemID, c.replyID, state)
	if len(c.live) == 0 {
		delete(a.chains, key)
	}
}

func (a *Applier) readLikes(itemID, replyID string) likeState {
	if replyID == "" {
		it, _ := a.store.Item(itemID)
		return likeState{ids: it.LikeIDs, count: it.LikeCount}
	}
	r, _ := a.store.Reply(itemID, replyID)
	return likeState{ids: r.LikeIDs, count: r.LikeCount}
}

func (a *Applier) writeLikes(itemID, replyID string, ls likeState) {
	if replyID == "" {
		a.store.UpdateItem(itemID, func(it *entity.Item) {
			it.LikeIDs = ls.ids.Clone()
			it.LikeCount = ls.count
		})
		return
	}
	a.store.UpdateReply(itemID, replyID, func(r *entity.Reply) {
		r.LikeIDs = ls.ids.Clone()
		r.LikeCount = ls.count
	})
}
