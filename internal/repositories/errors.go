package repositories

import "errors"

var (
	// ErrItemNotFound is returned when no item matches the given id
	ErrItemNotFound = errors.New("item not found")
	// ErrReplyNotFound is returned when no reply matches the given id
	ErrReplyNotFound = errors.New("reply not found")
)
