package entity

import (
	"encoding/json"
	"fmt"
)

// EventType names a push event.
type EventType string

const (
	EventLike           EventType = "like"
	EventComment        EventType = "comment"
	EventCommentUpdated EventType = "comment-updated"
	EventCommentDeleted EventType = "comment-deleted"
	EventItemCreated    EventType = "item-created"
	EventItemUpdated    EventType = "item-updated"
	EventItemDeleted    EventType = "item-deleted"
)

// FeedRoom receives every event. ItemRoom receives events for a single item.
const FeedRoom = "feed"

// ItemRoom returns the room name for one item's detail view.
func ItemRoom(itemID string) string {
	return "item:" + itemID
}

// Event is a push notification delivered over a room subscription.
type Event struct {
	Type    EventType       `json:"type"`
	ItemID  string          `json:"itemId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent encodes payload into an event envelope.
func NewEvent(typ EventType, itemID string, payload any) (Event, error) {
	ev := Event{Type: typ, ItemID: itemID}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	ev.Payload = raw
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event for %q has no payload", e.Type, e.ItemID)
	}
	return json.Unmarshal(e.Payload, v)
}

// LikePayload accompanies EventLike. ReplyID is set when a reply was liked.
type LikePayload struct {
	LikeCount int    `json:"likeCount"`
	UserID    string `json:"userId,omitempty"`
	IsLiked   *bool  `json:"isLiked,omitempty"`
	ReplyID   string `json:"replyId,omitempty"`
}

// CommentPayload accompanies EventComment and EventCommentUpdated.
type CommentPayload struct {
	Reply        Reply `json:"reply"`
	CommentCount *int  `json:"commentCount,omitempty"`
}

// CommentDeletedPayload accompanies EventCommentDeleted.
type CommentDeletedPayload struct {
	ReplyID      string `json:"replyId"`
	CommentCount *int   `json:"commentCount,omitempty"`
}

// SubscribeMessage is sent by clients to join or leave a room.
type SubscribeMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)
