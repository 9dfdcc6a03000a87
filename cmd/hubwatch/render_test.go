package main

import (
	"bytes"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/anonto42/nano-midea/memberhub/pkg/entity"
	"github.com/anonto42/nano-midea/memberhub/pkg/replytree"
)

func TestRenderItem(t *testing.T) {
	replies := []entity.Reply{
		{ID: "R1", AuthorName: "Ann", Content: "first"},
		{ID: "R2", AuthorName: "Bob", Content: "answer", ParentReplyID: entity.ParentOf("R1"), LikeIDs: entity.NewLikeSet("u1"), LikeCount: 1},
		{ID: "tmp-01hx", AuthorName: "Me", Content: "sending\nnow"},
	}
	it := entity.Item{ID: "T1", Author: "Ann", Content: "hello", LikeCount: 2, CommentCount: 3, Replies: replies}

	var buf bytes.Buffer
	renderItem(&buf, it, replytree.Organize(replies), "u1")
	assert.Equal(t, "Ann: hello\n"+
		"♡2  replies 3  views 0\n"+
		"  R1 Ann: first  ♡0\n"+
		"    R2 Bob: answer  ♥1\n"+
		"  (sending) Me: sending now  ♡0\n", buf.String())
}

func TestRenderFeed(t *testing.T) {
	var buf bytes.Buffer
	renderFeed(&buf, []entity.Item{{ID: "T1", Kind: "story", Author: "Ann", Content: "we did it", LikeIDs: entity.NewLikeSet("u1"), LikeCount: 4}}, "u1")
	assert.Equal(t, "T1 [story] Ann: we did it  ♥4  replies 0  views 0\n", buf.String())
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
	assert.Equal(t, "a b", oneLine(" a \n b ", 5))
}
