package entity

// CreateItemRequest defines the request body for creating a thread or story
type CreateItemRequest struct {
	Kind    string   `json:"kind" validate:"required,oneof=thread story"`
	Title   string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Content string   `json:"content" validate:"required,min=1,max=5000"`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,min=1,max=32"`
}

// UpdateItemRequest defines the request body for editing an item
type UpdateItemRequest struct {
	Title   string   `json:"title,omitempty" validate:"omitempty,max=200"`
	Content string   `json:"content,omitempty" validate:"omitempty,min=1,max=5000"`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,max=10,dive,min=1,max=32"`
}

// CreateReplyRequest defines the request body for posting a reply
type CreateReplyRequest struct {
	Content       string  `json:"content" validate:"required,min=1,max=2000"`
	ParentReplyID *string `json:"parentReplyId,omitempty" validate:"omitempty,min=1"`
}

// UpdateReplyRequest defines the request body for editing a reply
type UpdateReplyRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// ListFilter narrows GET /items.
type ListFilter struct {
	Kind   string `query:"kind" validate:"omitempty,oneof=thread story"`
	Tag    string `query:"tag"`
	Author string `query:"author"`
	Skip   int    `query:"skip" validate:"min=0"`
	Limit  int    `query:"limit" validate:"min=0,max=50"`
}
