package store

import (
	"context"

	"github.com/curatorhq/curator/internal/models"
)

// SubmissionStore is the persistence contract for canonical submissions,
// moderation audit entries, and the per-curator daily quota counters.
// Lookup methods return (nil, nil) when the record does not exist.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, externalID string) (*models.Submission, error)
	// GetSubmissionByCuratorAction finds the submission whose curation
	// command item has the given external id. Moderators usually reply to
	// the curation command rather than the content itself.
	GetSubmissionByCuratorAction(ctx context.Context, actionExternalID string) (*models.Submission, error)
	// CreateSubmission inserts the submission unless a row with the same
	// external id already exists. It reports whether a new row was written;
	// a conflict is not an error.
	CreateSubmission(ctx context.Context, sub *models.Submission) (bool, error)
	SaveModerationEntry(ctx context.Context, entry *models.ModerationEntry) error
	ListModerationEntries(ctx context.Context, feedID string) ([]models.ModerationEntry, error)

	GetDailySubmissionCount(ctx context.Context, curatorID, day string) (int, error)
	IncrementDailySubmissionCount(ctx context.Context, curatorID, day string) error
}

// FeedStore is the persistence contract for feed configuration and the
// per-feed moderation links.
type FeedStore interface {
	GetFeed(ctx context.Context, feedID string) (*models.Feed, error)
	ListFeeds(ctx context.Context) ([]models.Feed, error)
	SaveFeed(ctx context.Context, feed *models.Feed) error

	GetFeedLink(ctx context.Context, submissionID uint, feedID string) (*models.SubmissionFeedLink, error)
	CreateFeedLink(ctx context.Context, link *models.SubmissionFeedLink) error
	// UpdateFeedLinkStatus moves a link out of pending. The write is a
	// compare-and-set on the pending status; it reports false when the link
	// was already moderated, which callers treat as a no-op.
	UpdateFeedLinkStatus(ctx context.Context, submissionID uint, feedID, status, responseExternalID string) (bool, error)
	ListFeedLinks(ctx context.Context, feedID, status string) ([]models.SubmissionFeedLink, error)
}

// Store bundles the repository contracts behind one transactional handle.
type Store interface {
	SubmissionStore
	FeedStore
}

// TxRunner runs a function inside one database transaction. Every store
// call made through the handle passed to fn shares that transaction; fn
// returning an error rolls the whole unit of work back.
type TxRunner interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
