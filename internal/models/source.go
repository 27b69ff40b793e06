package models

import "time"

// SourceAuthor identifies the author of a SourceItem on its origin platform.
type SourceAuthor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// SourceItemMetadata carries plugin-level context for a fetched item.
type SourceItemMetadata struct {
	InReplyToID  string `json:"in_reply_to_id,omitempty"`
	SourcePlugin string `json:"source_plugin"`
	SearchID     string `json:"search_id"`
}

// SourceItem is one raw item returned by a source plugin, before intent
// classification. Not persisted.
type SourceItem struct {
	ID         string             `json:"id"`
	ExternalID string             `json:"external_id"`
	Content    string             `json:"content"`
	Author     SourceAuthor       `json:"author"`
	CreatedAt  time.Time          `json:"created_at"`
	Media      []string           `json:"media,omitempty"`
	Metadata   SourceItemMetadata `json:"metadata"`
}
