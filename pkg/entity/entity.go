// Package entity holds the records exchanged between the community backend and
// its clients. JSON field names are part of the public contract.
package entity

import (
	"encoding/json"
	"slices"
	"time"
)

// Item kinds
const (
	KindThread = "thread"
	KindStory  = "story"
)

// LikeSet is the set of user ids that liked an entity. It travels as a JSON array.
type LikeSet map[string]struct{}

// NewLikeSet builds a set from the given ids.
func NewLikeSet(ids ...string) LikeSet {
	s := make(LikeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether userID is a member of the set.
func (s LikeSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

// Slice returns the members in sorted order.
func (s LikeSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy of the set. A nil set stays nil.
func (s LikeSet) Clone() LikeSet {
	if s == nil {
		return nil
	}
	out := make(LikeSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s LikeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *LikeSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	if ids == nil {
		*s = nil
		return nil
	}
	*s = NewLikeSet(ids...)
	return nil
}

// Item is a top-level discussion unit: a forum thread or a success story.
type Item struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind,omitempty"`
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author"`
	AuthorID     string    `json:"authorId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags"`
	LikeIDs      LikeSet   `json:"likeIds"`
	LikeCount    int       `json:"likeCount"`
	ViewCount    int       `json:"viewCount"`
	CommentCount int       `json:"commentCount"`
	Replies      []Reply   `json:"replies,omitempty"`
	// Version is bumped by the server on every mutation of the item.
	Version int64 `json:"version"`
}

// Clone returns a deep copy of the item, replies included.
func (i Item) Clone() Item {
	out := i
	out.Tags = slices.Clone(i.Tags)
	out.LikeIDs = i.LikeIDs.Clone()
	if i.Replies != nil {
		out.Replies = make([]Reply, len(i.Replies))
		for n, r := range i.Replies {
			out.Replies[n] = r.Clone()
		}
	}
	return out
}

// Reply is a comment attached to an item.
type Reply struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"itemId,omitempty"`
	AuthorID      string    `json:"authorId"`
	AuthorName    string    `json:"authorName"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	ParentReplyID *string   `json:"parentReplyId"`
	LikeIDs       LikeSet   `json:"likeIds"`
	LikeCount     int       `json:"likeCount"`
	// TempID is set only on client-side placeholders awaiting server confirmation.
	TempID string `json:"tempId,omitempty"`
}

// IsRoot reports whether the reply has no parent.
func (r Reply) IsRoot() bool {
	return r.ParentReplyID == nil
}

// Clone returns a deep copy of the reply.
func (r Reply) Clone() Reply {
	out := r
	out.LikeIDs = r.LikeIDs.Clone()
	if r.ParentReplyID != nil {
		p := *r.ParentReplyID
		out.ParentReplyID = &p
	}
	return out
}

// ParentOf returns a pointer to a copy of id, or nil when id is empty.
func ParentOf(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// LikeResult is the server response to a like toggle.
type LikeResult struct {
	LikeCount int  `json:"likeCount"`
	IsLiked   bool `json:"isLiked"`
}

// PageMeta describes a page of a list response.
type PageMeta struct {
	Skip       int   `json:"skip"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	HasMore    bool  `json:"hasMore"`
}

// ItemPage is the response body of GET /items.
type ItemPage struct {
	Items []Item   `json:"items"`
	Meta  PageMeta `json:"meta"`
}
