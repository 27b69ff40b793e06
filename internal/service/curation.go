package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/ingest"
	"github.com/curatorhq/curator/internal/models"
	"github.com/curatorhq/curator/internal/store"
)

// ModerationCommand is a resolved approve/reject command handed to the
// state machine.
type ModerationCommand struct {
	TargetExternalID  string
	Action            string
	ModeratorID       string
	ModeratorUsername string
	Note              string
	CommandExternalID string
	CommandTimestamp  time.Time
}

// ServiceError wraps a repository or transaction failure with enough
// context to diagnose it. Expected conditions (quota, blacklist, missing
// target, already moderated) never surface as errors; they are logged
// decisions inside the transaction.
type ServiceError struct {
	Op         string
	ExternalID string
	FeedID     string
	Err        error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed for submission %q in feed %q: %v", e.Op, e.ExternalID, e.FeedID, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// CurationService owns the submission and moderation state machine. Each
// entry point runs as one database transaction; the pending-status guard is
// evaluated inside that transaction, which is what makes concurrent
// moderation attempts safe.
type CurationService struct {
	cfg       *config.CurationConfig
	store     store.TxRunner
	processor Processor
	logger    *zap.Logger
}

func NewCurationService(cfg *config.CurationConfig, st store.TxRunner, processor Processor, logger *zap.Logger) *CurationService {
	return &CurationService{
		cfg:       cfg,
		store:     st,
		processor: processor,
		logger:    logger,
	}
}

// approvalOutcome carries what the transaction decided, so the stream
// processor can run after commit. Distribution failure never rolls back the
// moderation decision.
type approvalOutcome struct {
	submission *models.Submission
	feed       *models.Feed
}

// HandleSubmission creates or reuses the canonical submission for
// sub.ExternalID and routes it into the target feed. Quota, blacklist, and
// already-linked conditions are soft failures: they log, skip this feed,
// and commit whatever unrelated work already happened.
func (s *CurationService) HandleSubmission(ctx context.Context, sub models.Submission, feedID, platform string) error {
	var outcome *approvalOutcome

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.GetSubmission(ctx, sub.ExternalID)
		if err != nil {
			return err
		}

		if current == nil {
			// The quota rate-limits human curators. Items the service ingests
			// on its own behalf are exempt, or search ingestion would stall
			// after max_daily_submissions items per day.
			if sub.CuratorPlatformID != ingest.SystemCuratorID {
				day := models.QuotaDay(time.Now())
				count, err := tx.GetDailySubmissionCount(ctx, sub.CuratorPlatformID, day)
				if err != nil {
					return err
				}
				if count >= s.cfg.MaxDailySubmissions {
					s.logger.Warn("Daily submission quota reached, dropping submission",
						zap.String("curator", sub.CuratorUsername),
						zap.String("external_id", sub.ExternalID),
						zap.Int("count", count),
						zap.Int("max", s.cfg.MaxDailySubmissions))
					return nil
				}

				if err := tx.IncrementDailySubmissionCount(ctx, sub.CuratorPlatformID, day); err != nil {
					return err
				}
			}

			created, err := tx.CreateSubmission(ctx, &sub)
			if err != nil {
				return err
			}
			if created {
				current = &sub
			} else {
				// Lost a concurrent insert race; reuse the winner's row.
				current, err = tx.GetSubmission(ctx, sub.ExternalID)
				if err != nil {
					return err
				}
				if current == nil {
					return fmt.Errorf("submission %s vanished after conflicting insert", sub.ExternalID)
				}
			}
		}

		feed, err := tx.GetFeed(ctx, feedID)
		if err != nil {
			return err
		}
		if feed == nil {
			s.logger.Warn("Target feed not found, submission kept without routing",
				zap.String("feed_id", feedID),
				zap.String("external_id", current.ExternalID))
			return nil
		}

		// Blacklist and approver checks apply to the actor of this call, not
		// the curator recorded on a previously stored row.
		if feed.IsBlacklisted(platform, current.AuthorUsername) || feed.IsBlacklisted(platform, sub.CuratorUsername) {
			s.logger.Warn("Blacklisted actor, skipping feed",
				zap.String("feed_id", feedID),
				zap.String("author", current.AuthorUsername),
				zap.String("curator", sub.CuratorUsername))
			return nil
		}

		link, err := tx.GetFeedLink(ctx, current.ID, feedID)
		if err != nil {
			return err
		}
		if link != nil {
			// Re-submission by an approver of a still-pending link counts as
			// an approval; anything else is a no-op.
			if link.Status == models.StatusPending && feed.IsApprover(platform, sub.CuratorUsername) {
				approved, err := s.autoApprove(ctx, tx, current, sub, feed)
				if err != nil {
					return err
				}
				if approved {
					outcome = &approvalOutcome{submission: current, feed: feed}
				}
			}
			return nil
		}

		if err := tx.CreateFeedLink(ctx, &models.SubmissionFeedLink{
			SubmissionID: current.ID,
			FeedID:       feedID,
			Status:       models.StatusPending,
		}); err != nil {
			return err
		}

		s.logger.Info("Submission routed to feed",
			zap.String("external_id", current.ExternalID),
			zap.String("feed_id", feedID),
			zap.String("curator", current.CuratorUsername))

		if feed.IsApprover(platform, sub.CuratorUsername) {
			approved, err := s.autoApprove(ctx, tx, current, sub, feed)
			if err != nil {
				return err
			}
			if approved {
				outcome = &approvalOutcome{submission: current, feed: feed}
			}
		}

		return nil
	})
	if err != nil {
		return &ServiceError{Op: "handleSubmission", ExternalID: sub.ExternalID, FeedID: feedID, Err: err}
	}

	s.dispatch(ctx, outcome)
	return nil
}

// HandleModeration applies an explicit approve/reject command to a pending
// feed link. Unauthorized moderators, unknown targets, and already-moderated
// links are soft failures.
func (s *CurationService) HandleModeration(ctx context.Context, cmd ModerationCommand, feedID, platform string) error {
	var outcome *approvalOutcome

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		authorized, err := s.isModeratorAnywhere(ctx, tx, platform, cmd.ModeratorUsername)
		if err != nil {
			return err
		}
		if !authorized {
			s.logger.Warn("Moderation command from unauthorized account",
				zap.String("moderator", cmd.ModeratorUsername),
				zap.String("platform", platform))
			return nil
		}

		sub, err := tx.GetSubmission(ctx, cmd.TargetExternalID)
		if err != nil {
			return err
		}
		if sub == nil {
			// Moderators reply to the curation command item as often as to
			// the content itself.
			sub, err = tx.GetSubmissionByCuratorAction(ctx, cmd.TargetExternalID)
			if err != nil {
				return err
			}
		}
		if sub == nil {
			s.logger.Warn("Moderation target not found",
				zap.String("target_external_id", cmd.TargetExternalID),
				zap.String("moderator", cmd.ModeratorUsername))
			return nil
		}

		feed, err := tx.GetFeed(ctx, feedID)
		if err != nil {
			return err
		}
		if feed == nil {
			s.logger.Warn("Moderation target feed not found", zap.String("feed_id", feedID))
			return nil
		}

		if !feed.IsApprover(platform, cmd.ModeratorUsername) {
			s.logger.Warn("Moderator not authorized for feed",
				zap.String("moderator", cmd.ModeratorUsername),
				zap.String("feed_id", feedID))
			return nil
		}

		link, err := tx.GetFeedLink(ctx, sub.ID, feedID)
		if err != nil {
			return err
		}
		if link == nil || link.Status != models.StatusPending {
			// Covers both "never routed here" and "already moderated".
			s.logger.Info("Moderation skipped, link not pending",
				zap.String("external_id", sub.ExternalID),
				zap.String("feed_id", feedID))
			return nil
		}

		status := models.StatusRejected
		if cmd.Action == models.ActionApprove {
			status = models.StatusApproved
		}

		// The status write is the compare-and-set; the entry is appended only
		// when this call won, so a concurrent moderation never double-applies.
		updated, err := tx.UpdateFeedLinkStatus(ctx, sub.ID, feed.ID, status, cmd.CommandExternalID)
		if err != nil {
			return err
		}
		if !updated {
			s.logger.Info("Moderation lost to a concurrent decision",
				zap.String("external_id", sub.ExternalID),
				zap.String("feed_id", feed.ID))
			return nil
		}

		if err := tx.SaveModerationEntry(ctx, &models.ModerationEntry{
			SubmissionID:       sub.ID,
			FeedID:             feed.ID,
			ModeratorAccountID: cmd.ModeratorID,
			Action:             cmd.Action,
			Note:               cmd.Note,
			ResponseExternalID: cmd.CommandExternalID,
			Timestamp:          cmd.CommandTimestamp,
		}); err != nil {
			return err
		}

		s.logger.Info("Moderation applied",
			zap.String("external_id", sub.ExternalID),
			zap.String("feed_id", feed.ID),
			zap.String("action", cmd.Action),
			zap.String("moderator", cmd.ModeratorUsername))

		if status == models.StatusApproved {
			outcome = &approvalOutcome{submission: sub, feed: feed}
		}
		return nil
	})
	if err != nil {
		return &ServiceError{Op: "handleModeration", ExternalID: cmd.TargetExternalID, FeedID: feedID, Err: err}
	}

	s.dispatch(ctx, outcome)
	return nil
}

// autoApprove records the approval made implicitly by an approver's own
// submit command. current is the persisted row; actor carries the curator
// identity and command references of this call. Returns false when the link
// was moderated concurrently and nothing was written.
func (s *CurationService) autoApprove(ctx context.Context, tx store.Store, current *models.Submission, actor models.Submission, feed *models.Feed) (bool, error) {
	updated, err := tx.UpdateFeedLinkStatus(ctx, current.ID, feed.ID, models.StatusApproved, actor.CuratorActionExternalID)
	if err != nil {
		return false, err
	}
	if !updated {
		s.logger.Info("Auto-approval lost to a concurrent decision",
			zap.String("external_id", current.ExternalID),
			zap.String("feed_id", feed.ID))
		return false, nil
	}

	if err := tx.SaveModerationEntry(ctx, &models.ModerationEntry{
		SubmissionID:       current.ID,
		FeedID:             feed.ID,
		ModeratorAccountID: actor.CuratorID,
		Action:             models.ActionApprove,
		Note:               actor.CuratorNotes,
		ResponseExternalID: actor.CuratorActionExternalID,
		Timestamp:          actor.SubmittedAt,
	}); err != nil {
		return false, err
	}

	s.logger.Info("Submission auto-approved by moderator",
		zap.String("external_id", current.ExternalID),
		zap.String("feed_id", feed.ID),
		zap.String("moderator", actor.CuratorUsername))
	return true, nil
}

// isModeratorAnywhere is the coarse gate: the account must be an approver on
// at least one feed for this platform before any lookup happens.
func (s *CurationService) isModeratorAnywhere(ctx context.Context, tx store.Store, platform, username string) (bool, error) {
	feeds, err := tx.ListFeeds(ctx)
	if err != nil {
		return false, err
	}
	for i := range feeds {
		if feeds[i].IsApprover(platform, username) {
			return true, nil
		}
	}
	return false, nil
}

// dispatch hands an approved submission to the stream processor after the
// transaction committed. Errors are logged only. The approval is already
// durable at this point, so delivery runs detached from the caller's
// cancellation: a scheduler shutdown mid-cycle must not cut short the
// processor's retries. A timeout still bounds it.
func (s *CurationService) dispatch(ctx context.Context, outcome *approvalOutcome) {
	if outcome == nil || s.processor == nil || !outcome.feed.Stream.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	defer cancel()

	if err := s.processor.Process(ctx, outcome.submission, outcome.feed); err != nil {
		s.logger.Error("Stream processing failed after approval",
			zap.String("external_id", outcome.submission.ExternalID),
			zap.String("feed_id", outcome.feed.ID),
			zap.Error(err))
	}
}
