// Package reconcile merges push events into an entity store.
//
// Events are applied in arrival order. Every handler is idempotent: replaying
// an event leaves the store unchanged. Events that reference entities the store
// does not hold, or that cannot be decoded, are dropped and logged; the store is
// a read cache and there is nothing to repair.
package reconcile

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/store"
)

// ResultKind classifies what Apply did with an event.
type ResultKind int

const (
	// Applied means the store changed.
	Applied ResultKind = iota
	// Duplicate means the event described state the store already held.
	Duplicate
	// Dropped means the event was ignored.
	Dropped
	// OpenItemRemoved means the item shown in the detail view was deleted.
	OpenItemRemoved
)

func (k ResultKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Dropped:
		return "dropped"
	case OpenItemRemoved:
		return "open-item-removed"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result reports the outcome of one event.
type Result struct {
	Kind   ResultKind
	ItemID string
	Reason string
}

// Reconciler applies events on behalf of one signed-in user.
type Reconciler struct {
	store  *store.Store
	userID string
	open   string
}

// New returns a reconciler for userID writing into st.
func New(st *store.Store, userID string) *Reconciler {
	return &Reconciler{store: st, userID: userID}
}

// SetOpen records the item shown in the detail view. An empty id closes it.
func (r *Reconciler) SetOpen(itemID string) {
	r.open = itemID
}

// Open returns the item shown in the detail view, or "".
func (r *Reconciler) Open() string {
	return r.open
}

// Apply merges one event into the store.
func (r *Reconciler) Apply(ev entity.Event) Result {
	var res Result
	switch ev.Type {
	case entity.EventLike:
		res = r.like(ev)
	case entity.EventComment:
		res = r.comment(ev)
	case entity.EventCommentUpdated:
		res = r.commentUpdated(ev)
	case entity.EventCommentDeleted:
		res = r.commentDeleted(ev)
	case entity.EventItemCreated:
		res = r.itemCreated(ev)
	case entity.EventItemUpdated:
		res = r.itemUpdated(ev)
	case entity.EventItemDeleted:
		res = r.itemDeleted(ev)
	default:
		res = drop(ev, "unknown event type")
	}
	if res.ItemID == "" {
		res.ItemID = ev.ItemID
	}
	if glog.V(2) {
		glog.Infof("[reconcile]%s %s: %s\n", ev.Type, ev.ItemID, res.Kind)
	}
	return res
}

func drop(ev entity.Event, reason string) Result {
	glog.V(1).Infof("[reconcile]drop %s %q: %s\n", ev.Type, ev.ItemID, reason)
	return Result{Kind: Dropped, ItemID: ev.ItemID, Reason: reason}
}

func (r *Reconciler) like(ev entity.Event) Result {
	var p entity.LikePayload
	if err := ev.Decode(&p); err != nil {
		return drop(ev, err.Error())
	}
	if _, ok := r.store.Item(ev.ItemID); !ok {
		return drop(ev, "unknown item")
	}

	target := ev.ItemID
	var ids entity.LikeSet
	var count int
	if p.ReplyID == "" {
		it, _ := r.store.Item(ev.ItemID)
		ids, count = it.LikeIDs, it.LikeCount
	} else {
		reply, ok := r.store.Reply(ev.ItemID, p.ReplyID)
		if !ok {
			return drop(ev, "unknown reply")
		}
		target = p.ReplyID
		ids, count = reply.LikeIDs, reply.LikeCount
	}

	changed := count != p.LikeCount
	count = p.LikeCount

	// Membership is only known for the signed-in user. A toggle still in
	// flight owns the local membership until it settles.
	if p.UserID == r.userID && p.IsLiked != nil && !r.store.IsPending(target, store.FieldLikes) {
		if ids.Has(r.userID) != *p.IsLiked {
			changed = true
			ids = ids.Clone()
			if *p.IsLiked {
				if ids == nil {
					ids = entity.LikeSet{}
				}
				ids[r.userID] = struct{}{}
			} else {
				delete(ids, r.userID)
			}
		}
	}
	if !changed {
		return Result{Kind: Duplicate}
	}

	if p.ReplyID == "" {
		r.store.UpdateItem(ev.ItemID, func(it *entity.Item) {
			it.LikeIDs = ids
			it.LikeCount = count
		})
	} else {
		r.store.UpdateReply(ev.ItemID, p.ReplyID, func(reply *entity.Reply) {
			reply.LikeIDs = ids
			reply.LikeCount = count
		})
	}
	return Result{Kind: Applied}
}

func (r *Reconciler) comment(ev entity.Event) Result {
	var p entity.CommentPayload
	if err := ev.Decode(&p); err != nil {
		return drop(ev, err.Error())
	}
	if p.Reply.ID == "" {
		return drop(ev, "reply without id")
	}
	if _, ok := r.store.Item(ev.ItemID); !ok {
		return drop(ev, "unknown item")
	}

	// The reply may already be here: the HTTP response of our own post
	// resolved first, or this is a redelivery.
	if r.store.HasReply(ev.ItemID, p.Reply.ID) {
		r.setCommentCount(ev.ItemID, p.CommentCount, 0)
		return Result{Kind: Duplicate}
	}

	// Our own post whose response is still in flight: swap the placeholder
	// now so the reply never shows twice.
	if p.Reply.AuthorID == r.userID {
		if tempID, ok := r.store.FindPlaceholder(ev.ItemID, r.userID, p.Reply.Content, p.Reply.ParentReplyID); ok {
			r.store.ReplaceReply(ev.ItemID, tempID, p.Reply)
			return Result{Kind: Duplicate, Reason: "own echo"}
		}
	}

	// An own reply that matched no placeholder may still be the echo of a post
	// in flight whose content the server normalized. Its placeholder is already
	// counted; remember the copy so the swap can take the extra count back.
	held := r.store.IsPending(ev.ItemID, store.FieldReplies)
	r.store.UpsertReply(ev.ItemID, p.Reply)
	r.setCommentCount(ev.ItemID, p.CommentCount, 1)
	if held && p.Reply.AuthorID == r.userID {
		r.store.MarkEcho(ev.ItemID, p.Reply.ID)
	}
	return Result{Kind: Applied}
}

// setCommentCount takes the server count when given and no local reply
// mutation holds the counter; otherwise it moves the local count by delta.
func (r *Reconciler) setCommentCount(itemID string, count *int, delta int) {
	r.store.UpdateItem(itemID, func(it *entity.Item) {
		if count != nil && !r.store.IsPending(itemID, store.FieldReplies) {
			it.CommentCount = *count
			return
		}
		it.CommentCount = max(it.CommentCount+delta, 0)
	})
}

func (r *Reconciler) commentUpdated(ev entity.Event) Result {
	var p entity.CommentPayload
	if err := ev.Decode(&p); err != nil {
		return drop(ev, err.Error())
	}
	before, ok := r.store.Reply(ev.ItemID, p.Reply.ID)
	if !ok {
		return drop(ev, "unknown reply")
	}
	r.store.UpsertReply(ev.ItemID, p.Reply)
	after, _ := r.store.Reply(ev.ItemID, p.Reply.ID)
	if before.Content == after.Content && before.LikeCount == after.LikeCount {
		return Result{Kind: Duplicate}
	}
	return Result{Kind: Applied}
}

func (r *Reconciler) commentDeleted(ev entity.Event) Result {
	var p entity.CommentDeletedPayload
	if err := ev.Decode(&p); err != nil {
		return drop(ev, err.Error())
	}
	if _, ok := r.store.Item(ev.ItemID); !ok {
		return drop(ev, "unknown item")
	}
	if !r.store.RemoveReply(ev.ItemID, p.ReplyID) {
		r.setCommentCount(ev.ItemID, p.CommentCount, 0)
		return Result{Kind: Duplicate}
	}
	r.setCommentCount(ev.ItemID, p.CommentCount, -1)
	return Result{Kind: Applied}
}

func (r *Reconciler) itemCreated(ev entity.Event) Result {
	var it entity.Item
	if err := ev.Decode(&it); err != nil {
		return drop(ev, err.Error())
	}
	if it.ID == "" {
		it.ID = ev.ItemID
	}
	if it.ID == "" {
		return drop(ev, "item without id")
	}
	// our own creation echoed back, or a redelivery
	if !r.store.PrependItem(it) {
		return Result{Kind: Duplicate, ItemID: it.ID}
	}
	return Result{Kind: Applied, ItemID: it.ID}
}

func (r *Reconciler) itemUpdated(ev entity.Event) Result {
	var it entity.Item
	if err := ev.Decode(&it); err != nil {
		return drop(ev, err.Error())
	}
	if it.ID == "" {
		it.ID = ev.ItemID
	}
	if _, ok := r.store.Item(it.ID); !ok {
		return drop(ev, "unknown item")
	}
	r.store.UpsertItem(it)
	return Result{Kind: Applied, ItemID: it.ID}
}

func (r *Reconciler) itemDeleted(ev entity.Event) Result {
	// Our own delete, echoed before its response. The mutation owns the item
	// and the detail view until it settles.
	if r.store.IsPending(ev.ItemID, store.FieldRemoved) {
		return Result{Kind: Duplicate, Reason: "own delete"}
	}
	removed := r.store.RemoveItem(ev.ItemID)
	if ev.ItemID != "" && ev.ItemID == r.open {
		r.open = ""
		return Result{Kind: OpenItemRemoved}
	}
	if !removed {
		return Result{Kind: Duplicate}
	}
	return Result{Kind: Applied}
}
