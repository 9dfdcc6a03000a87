// Package store is the in-memory entity store backing a client view: the items
// currently displayed and their replies, keyed by id.
//
// A Store is not safe for concurrent use. client.Session confines every access
// to a single event loop goroutine.
package store

import (
	"slices"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// Field identifies a group of entity fields an optimistic mutation may hold.
type Field uint8

const (
	FieldLikes Field = 1 << iota
	FieldContent
	FieldReplies
	// FieldRemoved marks an item deleted locally and not yet confirmed.
	FieldRemoved
)

// Outcome reports what an upsert did.
type Outcome int

const (
	// NotFound means the parent item of a reply is not in the store.
	NotFound Outcome = iota
	Inserted
	Merged
	// Collapsed means a placeholder was swapped and a counted echo of the same
	// reply was dropped.
	Collapsed
)

type pendingMark struct {
	baseVersion int64
	refs        int
}

type pendingKey struct {
	id    string
	field Field
}

// Store holds items in display order, each owning its replies in arrival order.
type Store struct {
	items   []*entity.Item
	index   map[string]*entity.Item
	pending map[pendingKey]*pendingMark
	// echoes holds own replies that arrived by push while their placeholder
	// was still shown and were counted on arrival.
	echoes map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		index:   make(map[string]*entity.Item),
		pending: make(map[pendingKey]*pendingMark),
		echoes:  make(map[string]struct{}),
	}
}

// Len returns the number of items held.
func (s *Store) Len() int {
	return len(s.items)
}

// Item returns a deep copy of the item with the given id.
func (s *Store) Item(id string) (entity.Item, bool) {
	it, ok := s.index[id]
	if !ok {
		return entity.Item{}, false
	}
	return it.Clone(), true
}

// Items returns deep copies of all items in display order.
func (s *Store) Items() []entity.Item {
	out := make([]entity.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// ItemIndex returns the display position of the item, or -1.
func (s *Store) ItemIndex(id string) int {
	return slices.IndexFunc(s.items, func(it *entity.Item) bool { return it.ID == id })
}

// Reply returns a deep copy of one reply.
func (s *Store) Reply(itemID, replyID string) (entity.Reply, bool) {
	it, ok := s.index[itemID]
	if !ok {
		return entity.Reply{}, false
	}
	i := replyIndex(it, replyID)
	if i < 0 {
		return entity.Reply{}, false
	}
	return it.Replies[i].Clone(), true
}

// Replies returns deep copies of an item's replies in arrival order.
func (s *Store) Replies(itemID string) []entity.Reply {
	it, ok := s.index[itemID]
	if !ok {
		return nil
	}
	return it.Clone().Replies
}

// ReplyIndex returns the position of the reply within its item, or -1.
func (s *Store) ReplyIndex(itemID, replyID string) int {
	it, ok := s.index[itemID]
	if !ok {
		return -1
	}
	return replyIndex(it, replyID)
}

// HasReply reports whether the item holds a reply with the given id.
func (s *Store) HasReply(itemID, replyID string) bool {
	return s.ReplyIndex(itemID, replyID) >= 0
}

// UpsertItem inserts the item at the end of the list or merges it into the
// existing record with the same id.
func (s *Store) UpsertItem(in entity.Item) Outcome {
	cur, ok := s.index[in.ID]
	if !ok {
		s.insertItemAt(len(s.items), in)
		return Inserted
	}
	s.mergeItem(cur, in)
	return Merged
}

// PrependItem inserts the item at the head of the list. It returns false and
// leaves the store untouched when an item with the same id is already present.
func (s *Store) PrependItem(in entity.Item) bool {
	if _, ok := s.index[in.ID]; ok {
		return false
	}
	s.insertItemAt(0, in)
	return true
}

// InsertItemAt places the item at position i (clamped) unless the id is present.
func (s *Store) InsertItemAt(i int, in entity.Item) bool {
	if _, ok := s.index[in.ID]; ok {
		return false
	}
	s.insertItemAt(i, in)
	return true
}

func (s *Store) insertItemAt(i int, in entity.Item) {
	it := in.Clone()
	it.Replies = nil
	i = min(max(i, 0), len(s.items))
	s.items = slices.Insert(s.items, i, &it)
	s.index[it.ID] = &it
	for _, r := range in.Replies {
		s.upsertReply(&it, r)
	}
}

// RemoveItem drops the item and its replies along with every pending mark held
// on the item. Removing an unknown id is a no-op.
func (s *Store) RemoveItem(id string) bool {
	return s.removeItem(id, true)
}

// DetachItem drops the item and its replies but keeps its pending marks, so
// mutations still in flight against it stay accounted for if it comes back.
func (s *Store) DetachItem(id string) bool {
	return s.removeItem(id, false)
}

func (s *Store) removeItem(id string, clearMarks bool) bool {
	it, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	s.items = slices.DeleteFunc(s.items, func(it *entity.Item) bool { return it.ID == id })
	if clearMarks {
		s.clearAll(id)
		for _, r := range it.Replies {
			delete(s.echoes, r.ID)
		}
	}
	return true
}

// UpdateItem runs fn against the stored item. It returns false for unknown ids.
func (s *Store) UpdateItem(id string, fn func(*entity.Item)) bool {
	it, ok := s.index[id]
	if !ok {
		return false
	}
	fn(it)
	return true
}

// UpsertReply inserts the reply at the end of the item's reply list or merges
// it into the reply with the same id.
func (s *Store) UpsertReply(itemID string, r entity.Reply) Outcome {
	it, ok := s.index[itemID]
	if !ok {
		return NotFound
	}
	return s.upsertReply(it, r)
}

func (s *Store) upsertReply(it *entity.Item, in entity.Reply) Outcome {
	if i := replyIndex(it, in.ID); i >= 0 {
		s.mergeReply(&it.Replies[i], in)
		return Merged
	}
	r := in.Clone()
	r.ItemID = it.ID
	it.Replies = append(it.Replies, r)
	return Inserted
}

// InsertReplyAt places the reply at position i (clamped) unless the id is present.
func (s *Store) InsertReplyAt(itemID string, i int, in entity.Reply) bool {
	it, ok := s.index[itemID]
	if !ok || replyIndex(it, in.ID) >= 0 {
		return false
	}
	r := in.Clone()
	r.ItemID = itemID
	i = min(max(i, 0), len(it.Replies))
	it.Replies = slices.Insert(it.Replies, i, r)
	return true
}

// ReplaceReply swaps the placeholder tempID for the authoritative reply at the
// same position. When the authoritative id is already present elsewhere (its
// push echo arrived first) that copy is dropped so exactly one instance stays.
// Without a placeholder the reply is upserted.
func (s *Store) ReplaceReply(itemID, tempID string, r entity.Reply) Outcome {
	it, ok := s.index[itemID]
	if !ok {
		return NotFound
	}
	return s.replaceReply(it, tempID, r)
}

func (s *Store) replaceReply(it *entity.Item, tempID string, r entity.Reply) Outcome {
	at := replyIndex(it, tempID)
	if at < 0 {
		delete(s.echoes, r.ID)
		return s.upsertReply(it, r)
	}
	out := Merged
	if dup := replyIndex(it, r.ID); dup >= 0 && dup != at {
		it.Replies = slices.Delete(it.Replies, dup, dup+1)
		if dup < at {
			at--
		}
		if _, ok := s.echoes[r.ID]; ok {
			out = Collapsed
		}
	}
	delete(s.echoes, r.ID)
	next := r.Clone()
	next.ItemID = it.ID
	next.TempID = ""
	it.Replies[at] = next
	s.clearAll(tempID)
	return out
}

// MarkEcho records that replyID, an own reply whose placeholder is still
// shown, was counted when its push copy arrived. ReplaceReply reports
// Collapsed when it later drops that copy.
func (s *Store) MarkEcho(itemID, replyID string) {
	if s.HasReply(itemID, replyID) {
		s.echoes[replyID] = struct{}{}
	}
}

// FindPlaceholder returns the temp id of an unconfirmed reply by authorID with
// the given content and parent, if any.
func (s *Store) FindPlaceholder(itemID, authorID, content string, parent *string) (string, bool) {
	it, ok := s.index[itemID]
	if !ok {
		return "", false
	}
	return findPlaceholder(it, authorID, content, parent)
}

func findPlaceholder(it *entity.Item, authorID, content string, parent *string) (string, bool) {
	for _, r := range it.Replies {
		if r.TempID != "" && r.AuthorID == authorID && r.Content == content && sameParent(r.ParentReplyID, parent) {
			return r.TempID, true
		}
	}
	return "", false
}

// RemoveReply drops a reply. Removing an unknown id is a no-op.
func (s *Store) RemoveReply(itemID, replyID string) bool {
	it, ok := s.index[itemID]
	if !ok {
		return false
	}
	i := replyIndex(it, replyID)
	if i < 0 {
		return false
	}
	it.Replies = slices.Delete(it.Replies, i, i+1)
	s.clearAll(replyID)
	delete(s.echoes, replyID)
	return true
}

// UpdateReply runs fn against the stored reply. It returns false for unknown ids.
func (s *Store) UpdateReply(itemID, replyID string, fn func(*entity.Reply)) bool {
	it, ok := s.index[itemID]
	if !ok {
		return false
	}
	i := replyIndex(it, replyID)
	if i < 0 {
		return false
	}
	fn(&it.Replies[i])
	return true
}

// MarkPending records that an optimistic mutation holds field of entity id.
// Marks are reference counted; baseVersion keeps the oldest value.
func (s *Store) MarkPending(id string, field Field, baseVersion int64) {
	k := pendingKey{id, field}
	if m, ok := s.pending[k]; ok {
		m.refs++
		return
	}
	s.pending[k] = &pendingMark{baseVersion: baseVersion, refs: 1}
}

// ClearPending releases one reference taken by MarkPending.
func (s *Store) ClearPending(id string, field Field) {
	k := pendingKey{id, field}
	m, ok := s.pending[k]
	if !ok {
		return
	}
	if m.refs--; m.refs <= 0 {
		delete(s.pending, k)
	}
}

// IsPending reports whether an optimistic mutation holds field of entity id.
func (s *Store) IsPending(id string, field Field) bool {
	_, ok := s.pending[pendingKey{id, field}]
	return ok
}

// PendingCount returns the number of entity fields currently held.
func (s *Store) PendingCount() int {
	return len(s.pending)
}

func (s *Store) clearAll(id string) {
	for k := range s.pending {
		if k.id == id {
			delete(s.pending, k)
		}
	}
}

// keeps reports whether the local value of field must survive an incoming
// record with the given version.
func (s *Store) keeps(id string, field Field, incoming int64) bool {
	m, ok := s.pending[pendingKey{id, field}]
	return ok && incoming <= m.baseVersion
}

func (s *Store) mergeItem(cur *entity.Item, in entity.Item) {
	if in.Kind != "" {
		cur.Kind = in.Kind
	}
	if in.Author != "" {
		cur.Author = in.Author
	}
	if in.AuthorID != "" {
		cur.AuthorID = in.AuthorID
	}
	if !in.CreatedAt.IsZero() {
		cur.CreatedAt = in.CreatedAt
	}
	if !in.UpdatedAt.IsZero() {
		cur.UpdatedAt = in.UpdatedAt
	}
	if in.Tags != nil {
		cur.Tags = slices.Clone(in.Tags)
	}
	if !s.keeps(cur.ID, FieldContent, in.Version) {
		if in.Title != "" {
			cur.Title = in.Title
		}
		if in.Content != "" {
			cur.Content = in.Content
		}
	}
	if !s.keeps(cur.ID, FieldLikes, in.Version) {
		cur.LikeCount = in.LikeCount
		if in.LikeIDs != nil {
			cur.LikeIDs = in.LikeIDs.Clone()
		}
	}
	if !s.keeps(cur.ID, FieldReplies, in.Version) {
		cur.CommentCount = in.CommentCount
	}
	cur.ViewCount = max(cur.ViewCount, in.ViewCount)
	cur.Version = max(cur.Version, in.Version)
	for _, r := range in.Replies {
		// a re-fetch may return our own post before its response settles
		if replyIndex(cur, r.ID) < 0 {
			if tempID, ok := findPlaceholder(cur, r.AuthorID, r.Content, r.ParentReplyID); ok {
				s.replaceReply(cur, tempID, r)
				continue
			}
		}
		s.upsertReply(cur, r)
	}
}

func (s *Store) mergeReply(cur *entity.Reply, in entity.Reply) {
	if in.AuthorID != "" {
		cur.AuthorID = in.AuthorID
	}
	if in.AuthorName != "" {
		cur.AuthorName = in.AuthorName
	}
	if !in.CreatedAt.IsZero() {
		cur.CreatedAt = in.CreatedAt
	}
	if in.ParentReplyID != nil {
		p := *in.ParentReplyID
		cur.ParentReplyID = &p
	}
	if in.Content != "" && !s.IsPending(cur.ID, FieldContent) {
		cur.Content = in.Content
	}
	if !s.IsPending(cur.ID, FieldLikes) {
		cur.LikeCount = in.LikeCount
		if in.LikeIDs != nil {
			cur.LikeIDs = in.LikeIDs.Clone()
		}
	}
}

func replyIndex(it *entity.Item, replyID string) int {
	return slices.IndexFunc(it.Replies, func(r entity.Reply) bool { return r.ID == replyID })
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
