package ingest

import (
	"time"

	"github.com/curatorhq/curator/internal/models"
)

// Command tokens recognized anywhere in an item's text, case-insensitively.
const (
	TokenSubmit  = "!submit"
	TokenApprove = "!approve"
	TokenReject  = "!reject"
)

// SystemCuratorID is used as the curator identity for items ingested
// directly from a search, with no human curation command attached.
const SystemCuratorID = "system"

// Intent is the result of classifying one source item. It is a closed set:
// only the types in this package implement it.
type Intent interface {
	isIntent()
}

// DirectSubmissionIntent is a submit command whose own item carries the
// content, e.g. "!submit great thread" with no reply target.
type DirectSubmissionIntent struct {
	Item            models.SourceItem
	CuratorNotes    string
	TargetFeedHints []string
	SubmittedAt     time.Time
}

// ContentItemIntent is plain content with no command in it; the curator
// fields default to the system placeholder.
type ContentItemIntent struct {
	Item            models.SourceItem
	TargetFeedHints []string
}

// PendingSubmissionCommandIntent is the first half of a two-phase submit:
// a "!submit" reply whose target content is a separate item that must be
// resolved within the same batch.
type PendingSubmissionCommandIntent struct {
	TargetExternalID        string
	CuratorID               string
	CuratorUsername         string
	CuratorPlatformID       string
	CuratorActionExternalID string
	CuratorNotes            string
	TargetFeedHints         []string
	SubmittedAt             time.Time
}

// ModerationCommandIntent is an approve or reject reply.
type ModerationCommandIntent struct {
	TargetExternalID  string
	Action            string
	ModeratorID       string
	ModeratorUsername string
	Notes             string
	CommandExternalID string
	CommandTimestamp  time.Time
}

// UnknownIntent marks an item that looked like a command but could not be
// interpreted; the resolver logs and drops these.
type UnknownIntent struct {
	Item   models.SourceItem
	Reason string
}

func (DirectSubmissionIntent) isIntent()         {}
func (ContentItemIntent) isIntent()              {}
func (PendingSubmissionCommandIntent) isIntent() {}
func (ModerationCommandIntent) isIntent()        {}
func (UnknownIntent) isIntent()                  {}
