package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/optimistic"
	"github.com/anonto42/nano-midea/memberhub/pkg/replytree"
)

func likeMark(likes entity.LikeSet, userID string) string {
	if userID != "" && likes.Has(userID) {
		return "♥"
	}
	return "♡"
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) > max {
		return string([]rune(s)[:max-1]) + "…"
	}
	return s
}

func renderFeed(w io.Writer, items []entity.Item, userID string) {
	for _, it := range items {
		fmt.Fprintf(w, "%s [%s] %s: %s  %s%d  replies %d  views %d\n",
			it.ID, it.Kind, it.Author, oneLine(it.Content, 60),
			likeMark(it.LikeIDs, userID), it.LikeCount, it.CommentCount, it.ViewCount)
	}
}

func renderItem(w io.Writer, it entity.Item, tree replytree.Tree, userID string) {
	if it.Title != "" {
		fmt.Fprintf(w, "%s\n", it.Title)
	}
	fmt.Fprintf(w, "%s: %s\n", it.Author, it.Content)
	fmt.Fprintf(w, "%s%d  replies %d  views %d\n", likeMark(it.LikeIDs, userID), it.LikeCount, it.CommentCount, it.ViewCount)
	for _, th := range tree.Threads() {
		renderReply(w, "  ", th.Reply, userID)
		for _, child := range th.Children {
			renderReply(w, "    ", child, userID)
		}
	}
}

func renderReply(w io.Writer, indent string, r entity.Reply, userID string) {
	id := r.ID
	if optimistic.IsTempID(id) {
		id = "(sending)"
	}
	fmt.Fprintf(w, "%s%s %s: %s  %s%d\n", indent, id, r.AuthorName, oneLine(r.Content, 80), likeMark(r.LikeIDs, userID), r.LikeCount)
}
