// Package replytree organizes a flat list of replies into the two-level
// structure shown under an item: root replies and their flattened children.
//
// Every reply attaches to its nearest root ancestor, so a reply to a reply to
// a root is displayed as a sibling of the reply it answered. The same rule
// decides where a newly composed reply is posted (see ResolveTarget).
package replytree

import (
	"errors"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
)

// ErrUnknownReply is returned by ResolveTarget when the replied-to id is absent.
var ErrUnknownReply = errors.New("replytree: reply not found")

// Root is a top-level reply with its flattened children.
type Root struct {
	Reply    entity.Reply
	Children []entity.Reply
}

// Tree is the organized form of one item's replies.
type Tree struct {
	Roots            []entity.Reply
	ChildrenByParent map[string][]entity.Reply
}

// Threads pairs each root with its children, in root order.
func (t Tree) Threads() []Root {
	out := make([]Root, len(t.Roots))
	for i, r := range t.Roots {
		out[i] = Root{Reply: r, Children: t.ChildrenByParent[r.ID]}
	}
	return out
}

// Len returns the number of replies in the tree.
func (t Tree) Len() int {
	n := len(t.Roots)
	for _, c := range t.ChildrenByParent {
		n += len(c)
	}
	return n
}

// Organize builds the tree. Input order is arrival order and is kept for both
// roots and children. Output replies are copies whose ParentReplyID names the
// root they are displayed under (nil for roots).
func Organize(replies []entity.Reply) Tree {
	byID := make(map[string]*entity.Reply, len(replies))
	for i := range replies {
		byID[replies[i].ID] = &replies[i]
	}

	t := Tree{ChildrenByParent: make(map[string][]entity.Reply)}
	for _, r := range replies {
		out := r.Clone()
		root := rootOf(byID, r)
		if root == r.ID {
			out.ParentReplyID = nil
			t.Roots = append(t.Roots, out)
			continue
		}
		out.ParentReplyID = entity.ParentOf(root)
		t.ChildrenByParent[root] = append(t.ChildrenByParent[root], out)
	}
	return t
}

// rootOf walks the parent chain of r and returns the id of its nearest root
// ancestor. A reply whose parent is missing, or whose chain loops, is a root.
func rootOf(byID map[string]*entity.Reply, r entity.Reply) string {
	cur := r
	seen := map[string]bool{cur.ID: true}
	for cur.ParentReplyID != nil {
		parent, ok := byID[*cur.ParentReplyID]
		if !ok {
			return cur.ID
		}
		if seen[parent.ID] {
			return r.ID
		}
		seen[parent.ID] = true
		cur = *parent
	}
	return cur.ID
}

// Target is where a composed reply is posted and what the composer pre-fills.
type Target struct {
	// ParentReplyID is the root the new reply attaches to, nil for a new root.
	ParentReplyID *string
	// Mention is "@name " when answering a child reply, otherwise empty.
	Mention string
}

// ResolveTarget decides the parent for a reply composed "to" toReplyID.
// Answering a root targets that root. Answering a child targets the child's
// root ancestor and mentions the child's author instead of nesting deeper.
// An empty toReplyID starts a new root.
func ResolveTarget(replies []entity.Reply, toReplyID string) (Target, error) {
	if toReplyID == "" {
		return Target{}, nil
	}
	byID := make(map[string]*entity.Reply, len(replies))
	for i := range replies {
		byID[replies[i].ID] = &replies[i]
	}
	to, ok := byID[toReplyID]
	if !ok {
		return Target{}, ErrUnknownReply
	}
	root := rootOf(byID, *to)
	t := Target{ParentReplyID: entity.ParentOf(root)}
	if root != to.ID && to.AuthorName != "" {
		t.Mention = "@" + to.AuthorName + " "
	}
	return t, nil
}

// Flatten returns the parent a reply declaring parentID should be stored under.
func Flatten(replies []entity.Reply, parentID *string) *string {
	if parentID == nil {
		return nil
	}
	t, err := ResolveTarget(replies, *parentID)
	if err != nil {
		return entity.ParentOf(*parentID)
	}
	return t.ParentReplyID
}
