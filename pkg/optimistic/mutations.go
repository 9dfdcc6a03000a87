package optimistic

import (
	"github.com/golang/glog"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/replytree"
	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

// CommentInput describes a reply composed locally.
type CommentInput struct {
	TempID        string
	ItemID        string
	UserID        string
	UserName      string
	Content       string
	ParentReplyID *string
}

// ApplyComment appends a placeholder reply whose id is the temp id and bumps
// the item's comment count. The declared parent is flattened to its root.
func (a *Applier) ApplyComment(in CommentInput) (*Mutation, error) {
	if _, ok := a.store.Item(in.ItemID); !ok {
		return nil, ErrUnknownItem
	}
	if in.TempID == "" {
		in.TempID = NewTempID()
	}

	m := a.newMutation(KindComment, in.ItemID, "", store.FieldReplies)
	m.TempID = in.TempID

	placeholder := entity.Reply{
		ID:            in.TempID,
		ItemID:        in.ItemID,
		AuthorID:      in.UserID,
		AuthorName:    in.UserName,
		Content:       in.Content,
		CreatedAt:     m.LocalTimestamp,
		ParentReplyID: replytree.Flatten(a.store.Replies(in.ItemID), in.ParentReplyID),
		TempID:        in.TempID,
	}
	a.store.UpsertReply(in.ItemID, placeholder)
	a.store.UpdateItem(in.ItemID, func(it *entity.Item) { it.CommentCount++ })
	a.markPending(m)

	m.restore = func() {
		// the push echo may already have replaced the placeholder
		if !a.store.RemoveReply(in.ItemID, in.TempID) {
			return
		}
		a.store.UpdateItem(in.ItemID, func(it *entity.Item) {
			if it.CommentCount > 0 {
				it.CommentCount--
			}
		})
	}
	return m, nil
}

// ResolveComment swaps the placeholder for the created reply, in place.
func (m *Mutation) ResolveComment(r entity.Reply) {
	if m.settle() != nil {
		return
	}
	st := m.applier.store
	if st.ReplaceReply(m.itemID, m.TempID, r) == store.Collapsed {
		// the push copy was counted on top of the placeholder
		st.UpdateItem(m.itemID, func(it *entity.Item) {
			if it.CommentCount > 0 {
				it.CommentCount--
			}
		})
	}
	glog.V(2).Infof("[optimistic]comment %s -> %s\n", m.TempID, r.ID)
}

// ApplyEdit replaces the content of an item, or of one of its replies when
// replyID is set.
func (a *Applier) ApplyEdit(itemID, replyID, content string) (*Mutation, error) {
	it, ok := a.store.Item(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}
	m := a.newMutation(KindEdit, itemID, replyID, store.FieldContent)

	if replyID == "" {
		prev := it.Content
		a.store.UpdateItem(itemID, func(it *entity.Item) { it.Content = content })
		m.restore = func() {
			a.store.UpdateItem(itemID, func(it *entity.Item) { it.Content = prev })
		}
		a.markPending(m)
		return m, nil
	}

	r, ok := a.store.Reply(itemID, replyID)
	if !ok {
		return nil, ErrUnknownReply
	}
	prev := r.Content
	a.store.UpdateReply(itemID, replyID, func(r *entity.Reply) { r.Content = content })
	m.restore = func() {
		a.store.UpdateReply(itemID, replyID, func(r *entity.Reply) { r.Content = prev })
	}
	a.markPending(m)
	return m, nil
}

// ResolveItem merges the item returned by the server.
func (m *Mutation) ResolveItem(it entity.Item) {
	if m.settle() != nil {
		return
	}
	m.applier.store.UpsertItem(it)
}

// ResolveReply merges the reply returned by the server.
func (m *Mutation) ResolveReply(r entity.Reply) {
	if m.settle() != nil {
		return
	}
	m.applier.store.UpsertReply(m.itemID, r)
}

// ApplyDelete removes an item, or one of its replies when replyID is set.
// Rollback puts the entity back at its former position. A deleted item stays
// marked FieldRemoved until the mutation settles, and marks other mutations
// hold on it survive the removal.
func (a *Applier) ApplyDelete(itemID, replyID string) (*Mutation, error) {
	it, ok := a.store.Item(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}

	if replyID == "" {
		m := a.newMutation(KindDelete, itemID, "", store.FieldRemoved)
		at := a.store.ItemIndex(itemID)
		a.markPending(m)
		a.store.DetachItem(itemID)
		m.restore = func() {
			a.store.InsertItemAt(at, it)
		}
		return m, nil
	}

	m := a.newMutation(KindDelete, itemID, replyID, store.FieldReplies)

	at := a.store.ReplyIndex(itemID, replyID)
	if at < 0 {
		return nil, ErrUnknownReply
	}
	r := it.Replies[at]
	a.store.RemoveReply(itemID, replyID)
	a.store.UpdateItem(itemID, func(it *entity.Item) {
		if it.CommentCount > 0 {
			it.CommentCount--
		}
	})
	m.restore = func() {
		if a.store.InsertReplyAt(itemID, at, r) {
			a.store.UpdateItem(itemID, func(it *entity.Item) { it.CommentCount++ })
		}
	}
	return m, nil
}
