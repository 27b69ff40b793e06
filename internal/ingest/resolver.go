package ingest

import (
	"time"

	"go.uber.org/zap"

	"github.com/curatorhq/curator/internal/models"
)

// ClassifiedItem pairs a source item with its classified intent. The raw
// item is kept alongside so pending commands can be stitched to targets
// fetched in the same batch.
type ClassifiedItem struct {
	Item   models.SourceItem
	Intent Intent
}

// Action is a resolved, executable action produced from one ingest batch.
type Action interface {
	isAction()
}

// SubmitAction creates or routes a submission.
type SubmitAction struct {
	Submission models.Submission
	FeedHints  []string
}

// ModerateAction applies an approve/reject command.
type ModerateAction struct {
	Command ModerationCommandIntent
}

func (SubmitAction) isAction()   {}
func (ModerateAction) isAction() {}

// Resolver stitches two-phase submit commands to their target content within
// a single fetch batch.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve processes one batch of classified items in source order. Pending
// submit commands whose target appears in the batch are synthesized into
// full submissions, replacing the target's own pass-through; orphaned
// commands and unknown intents are logged and dropped.
func (r *Resolver) Resolve(batch []ClassifiedItem) []Action {
	index := make(map[string]models.SourceItem, len(batch))
	for _, ci := range batch {
		index[ci.Item.ExternalID] = ci.Item
	}

	// Targets claimed by an in-batch submit command. Their own pass-through
	// must be suppressed: otherwise the system-curated copy wins the dedup
	// and the command's curator attribution is lost.
	claimed := make(map[string]bool)
	for _, ci := range batch {
		if intent, ok := ci.Intent.(PendingSubmissionCommandIntent); ok {
			if _, found := index[intent.TargetExternalID]; found {
				claimed[intent.TargetExternalID] = true
			}
		}
	}

	actions := make([]Action, 0, len(batch))
	for _, ci := range batch {
		switch intent := ci.Intent.(type) {
		case DirectSubmissionIntent:
			actions = append(actions, SubmitAction{
				Submission: submissionFromItem(intent.Item, intent.Item, intent.CuratorNotes, intent.SubmittedAt),
				FeedHints:  intent.TargetFeedHints,
			})

		case ContentItemIntent:
			if claimed[intent.Item.ExternalID] {
				continue
			}
			sub := submissionFromItem(intent.Item, intent.Item, "", intent.Item.CreatedAt)
			sub.CuratorID = SystemCuratorID
			sub.CuratorUsername = SystemCuratorID
			sub.CuratorPlatformID = SystemCuratorID
			actions = append(actions, SubmitAction{
				Submission: sub,
				FeedHints:  intent.TargetFeedHints,
			})

		case PendingSubmissionCommandIntent:
			target, ok := index[intent.TargetExternalID]
			if !ok {
				// No durable retry: a command whose target was not fetched in
				// this batch is dropped.
				r.logger.Warn("Dropping orphaned submit command",
					zap.String("command_external_id", intent.CuratorActionExternalID),
					zap.String("target_external_id", intent.TargetExternalID),
					zap.String("curator", intent.CuratorUsername))
				continue
			}

			sub := models.Submission{
				ExternalID:              target.ExternalID,
				AuthorPlatformID:        target.Author.ID,
				AuthorUsername:          target.Author.Username,
				Content:                 target.Content,
				Media:                   models.StringArray(target.Media),
				PostedAt:                target.CreatedAt,
				SubmittedAt:             intent.SubmittedAt,
				CuratorID:               intent.CuratorID,
				CuratorUsername:         intent.CuratorUsername,
				CuratorPlatformID:       intent.CuratorPlatformID,
				CuratorActionExternalID: intent.CuratorActionExternalID,
				CuratorNotes:            intent.CuratorNotes,
			}
			actions = append(actions, SubmitAction{Submission: sub, FeedHints: intent.TargetFeedHints})

		case ModerationCommandIntent:
			actions = append(actions, ModerateAction{Command: intent})

		case UnknownIntent:
			r.logger.Warn("Dropping unclassifiable item",
				zap.String("external_id", intent.Item.ExternalID),
				zap.String("reason", intent.Reason))
		}
	}

	return actions
}

func submissionFromItem(content, command models.SourceItem, notes string, submittedAt time.Time) models.Submission {
	return models.Submission{
		ExternalID:              content.ExternalID,
		AuthorPlatformID:        content.Author.ID,
		AuthorUsername:          content.Author.Username,
		Content:                 content.Content,
		Media:                   models.StringArray(content.Media),
		PostedAt:                content.CreatedAt,
		SubmittedAt:             submittedAt,
		CuratorID:               command.Author.ID,
		CuratorUsername:         command.Author.Username,
		CuratorPlatformID:       command.Author.ID,
		CuratorActionExternalID: command.ExternalID,
		CuratorNotes:            notes,
	}
}
