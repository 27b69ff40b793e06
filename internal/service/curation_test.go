package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/ingest"
	"github.com/curatorhq/curator/internal/models"
	"github.com/curatorhq/curator/internal/store"
)

type fakeProcessor struct {
	calls []string
	ctxs  []context.Context
	err   error
}

func (f *fakeProcessor) Process(ctx context.Context, sub *models.Submission, feed *models.Feed) error {
	f.calls = append(f.calls, sub.ExternalID+"/"+feed.ID)
	f.ctxs = append(f.ctxs, ctx)
	return f.err
}

func newTestService(t *testing.T, maxDaily int) (*CurationService, *store.GormStore, *fakeProcessor) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Feed{},
		&models.Submission{},
		&models.SubmissionFeedLink{},
		&models.ModerationEntry{},
		&models.DailyQuota{},
	))

	st := store.NewGormStore(db)
	processor := &fakeProcessor{}
	svc := NewCurationService(
		&config.CurationConfig{BotUsername: "curatorbot", MaxDailySubmissions: maxDaily},
		st,
		processor,
		zap.NewNop(),
	)
	return svc, st, processor
}

func seedFeed(t *testing.T, st *store.GormStore, feed models.Feed) {
	t.Helper()
	require.NoError(t, st.SaveFeed(context.Background(), &feed))
}

func submissionBy(curator, externalID string) models.Submission {
	return models.Submission{
		ExternalID:              externalID,
		AuthorPlatformID:        "u-carol",
		AuthorUsername:          "carol",
		Content:                 "interesting content",
		PostedAt:                time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		SubmittedAt:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CuratorID:               "u-" + curator,
		CuratorUsername:         curator,
		CuratorPlatformID:       "u-" + curator,
		CuratorActionExternalID: "cmd-" + externalID,
		CuratorNotes:            "worth a look",
	}
}

func TestSubmissionByNonModeratorStaysPending(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-1"), "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, sub)

	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, models.StatusPending, link.Status)

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSubmissionByModeratorIsAutoApproved(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-2"), "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-2")
	require.NoError(t, err)
	require.NotNil(t, sub)

	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, models.StatusApproved, link.Status)

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionApprove, entries[0].Action)
	assert.Equal(t, "u-bob", entries[0].ModeratorAccountID)
	assert.Equal(t, "worth a look", entries[0].Note)
}

func TestModeratorResubmissionApprovesPendingLink(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-3"), "f1", "twitter"))
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-3"), "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-3")
	require.NoError(t, err)
	// Dedup kept alice's row.
	assert.Equal(t, "alice", sub.CuratorUsername)

	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, link.Status)

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u-bob", entries[0].ModeratorAccountID)
}

func TestExplicitApprovalByReplyToCurationCommand(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-4"), "f1", "twitter"))

	cmd := ModerationCommand{
		TargetExternalID:  "cmd-t-4", // the curation command item, not the content
		Action:            models.ActionApprove,
		ModeratorID:       "u-bob",
		ModeratorUsername: "bob",
		Note:              "good one",
		CommandExternalID: "cmd-approve-1",
		CommandTimestamp:  time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-4")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, link.Status)
	assert.Equal(t, "cmd-approve-1", link.ModerationResponseExternalID)

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionApprove, entries[0].Action)
	assert.Equal(t, "good one", entries[0].Note)
}

func TestRejectMovesLinkToRejected(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-5"), "f1", "twitter"))

	cmd := ModerationCommand{
		TargetExternalID:  "t-5",
		Action:            models.ActionReject,
		ModeratorID:       "u-bob",
		ModeratorUsername: "bob",
		CommandExternalID: "cmd-reject-1",
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-5")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, link.Status)
}

func TestModerationIsIdempotent(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-6"), "f1", "twitter"))

	cmd := ModerationCommand{
		TargetExternalID:  "t-6",
		Action:            models.ActionApprove,
		ModeratorID:       "u-bob",
		ModeratorUsername: "bob",
		CommandExternalID: "cmd-approve-2",
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApprovedLinkIsTerminal(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-7"), "f1", "twitter"))

	approve := ModerationCommand{TargetExternalID: "t-7", Action: models.ActionApprove, ModeratorUsername: "bob", CommandExternalID: "c1"}
	reject := ModerationCommand{TargetExternalID: "t-7", Action: models.ActionReject, ModeratorUsername: "bob", CommandExternalID: "c2"}
	require.NoError(t, svc.HandleModeration(ctx, approve, "f1", "twitter"))
	require.NoError(t, svc.HandleModeration(ctx, reject, "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-7")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, link.Status)
}

func TestUnauthorizedModeratorIsIgnored(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-8"), "f1", "twitter"))

	cmd := ModerationCommand{
		TargetExternalID:  "t-8",
		Action:            models.ActionApprove,
		ModeratorUsername: "mallory",
		CommandExternalID: "c3",
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-8")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, link.Status)
}

func TestModeratorOfOtherFeedCannotApprove(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})
	seedFeed(t, st, models.Feed{ID: "f2", Approvers: models.PlatformUserList{"twitter": {"eve"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-9"), "f1", "twitter"))

	// eve passes the coarse system-wide gate but is not an approver on f1.
	cmd := ModerationCommand{
		TargetExternalID:  "t-9",
		Action:            models.ActionApprove,
		ModeratorUsername: "eve",
		CommandExternalID: "c4",
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-9")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, link.Status)
}

func TestModerationOfUnknownTargetIsIgnored(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	cmd := ModerationCommand{
		TargetExternalID:  "never-seen",
		Action:            models.ActionApprove,
		ModeratorUsername: "bob",
		CommandExternalID: "c5",
	}
	require.NoError(t, svc.HandleModeration(ctx, cmd, "f1", "twitter"))

	entries, err := st.ListModerationEntries(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDailyQuotaBlocksNewSubmissions(t *testing.T) {
	svc, st, _ := newTestService(t, 2)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-10"), "f1", "twitter"))
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-11"), "f1", "twitter"))
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-12"), "f1", "twitter"))

	over, err := st.GetSubmission(ctx, "t-12")
	require.NoError(t, err)
	assert.Nil(t, over, "submission over quota must not be created")

	kept, err := st.GetSubmission(ctx, "t-11")
	require.NoError(t, err)
	assert.NotNil(t, kept, "prior submissions stay untouched")
}

func TestQuotaNotConsumedByResubmission(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{}})
	seedFeed(t, st, models.Feed{ID: "f2", Approvers: models.PlatformUserList{}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-13"), "f1", "twitter"))
	// Routing the same item into a second feed reuses the row and skips the
	// quota entirely.
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-13"), "f2", "twitter"))

	count, err := st.GetDailySubmissionCount(ctx, "u-alice", models.QuotaDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sub, err := st.GetSubmission(ctx, "t-13")
	require.NoError(t, err)
	for _, feedID := range []string{"f1", "f2"} {
		link, err := st.GetFeedLink(ctx, sub.ID, feedID)
		require.NoError(t, err)
		require.NotNil(t, link, "expected link in %s", feedID)
	}
}

func systemSubmission(externalID string) models.Submission {
	return models.Submission{
		ExternalID:        externalID,
		AuthorPlatformID:  "u-carol",
		AuthorUsername:    "carol",
		Content:           "search result",
		CuratorID:         ingest.SystemCuratorID,
		CuratorUsername:   ingest.SystemCuratorID,
		CuratorPlatformID: ingest.SystemCuratorID,
	}
}

func TestSystemIngestionBypassesQuota(t *testing.T) {
	svc, st, _ := newTestService(t, 2)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1"})

	// The quota rate-limits human curators; search ingestion keeps flowing
	// past the per-day maximum.
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("t-sys-%d", i)
		require.NoError(t, svc.HandleSubmission(ctx, systemSubmission(id), "f1", "twitter"))

		sub, err := st.GetSubmission(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, sub, "system item %s must be created", id)
	}

	count, err := st.GetDailySubmissionCount(ctx, ingest.SystemCuratorID, models.QuotaDay(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBlacklistIsPerFeed(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Blacklist: models.PlatformUserList{"twitter": {"carol"}}})
	seedFeed(t, st, models.Feed{ID: "f2"})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-14"), "f1", "twitter"))
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-14"), "f2", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-14")
	require.NoError(t, err)
	require.NotNil(t, sub, "submission row is created even when the feed skips it")

	blocked, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Nil(t, blocked, "blacklisted author must not be linked")

	allowed, err := st.GetFeedLink(ctx, sub.ID, "f2")
	require.NoError(t, err)
	assert.NotNil(t, allowed)
	assert.Equal(t, models.StatusPending, allowed.Status)
}

func TestBlacklistWildcardAppliesAcrossPlatforms(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Blacklist: models.PlatformUserList{"all": {"carol"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-15"), "f1", "mastodon"))

	sub, err := st.GetSubmission(ctx, "t-15")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestMissingFeedKeepsSubmission(t *testing.T) {
	svc, st, _ := newTestService(t, 10)
	ctx := context.Background()

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("alice", "t-16"), "ghost", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-16")
	require.NoError(t, err)
	assert.NotNil(t, sub)
}

func TestApprovalTriggersStreamProcessor(t *testing.T) {
	svc, st, proc := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{
		ID:        "f1",
		Approvers: models.PlatformUserList{"twitter": {"bob"}},
		Stream:    models.StreamOutput{Enabled: true, WebhookURL: "https://example.com/hook"},
	})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-17"), "f1", "twitter"))

	require.Len(t, proc.calls, 1)
	assert.Equal(t, "t-17/f1", proc.calls[0])
}

func TestStreamProcessorNotCalledWhenDisabled(t *testing.T) {
	svc, st, proc := newTestService(t, 10)
	ctx := context.Background()
	seedFeed(t, st, models.Feed{ID: "f1", Approvers: models.PlatformUserList{"twitter": {"bob"}}})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-18"), "f1", "twitter"))
	assert.Empty(t, proc.calls)
}

func TestStreamDispatchOutlivesCycleCancellation(t *testing.T) {
	svc, st, proc := newTestService(t, 10)
	seedFeed(t, st, models.Feed{
		ID:        "f1",
		Approvers: models.PlatformUserList{"twitter": {"bob"}},
		Stream:    models.StreamOutput{Enabled: true, WebhookURL: "https://example.com/hook"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-20"), "f1", "twitter"))
	cancel()

	require.Len(t, proc.calls, 1)
	// The processor's context is detached from the cycle but still bounded.
	assert.NoError(t, proc.ctxs[0].Err())
	_, hasDeadline := proc.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
}

func TestStreamFailureDoesNotUndoApproval(t *testing.T) {
	svc, st, proc := newTestService(t, 10)
	proc.err = assert.AnError
	ctx := context.Background()
	seedFeed(t, st, models.Feed{
		ID:        "f1",
		Approvers: models.PlatformUserList{"twitter": {"bob"}},
		Stream:    models.StreamOutput{Enabled: true, WebhookURL: "https://example.com/hook"},
	})

	require.NoError(t, svc.HandleSubmission(ctx, submissionBy("bob", "t-19"), "f1", "twitter"))

	sub, err := st.GetSubmission(ctx, "t-19")
	require.NoError(t, err)
	link, err := st.GetFeedLink(ctx, sub.ID, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, link.Status)
}
