package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/curatorhq/curator/internal/ingest"
	"github.com/curatorhq/curator/internal/source"
)

// Pipeline runs one ingest cycle: fetch from every registered source,
// classify, resolve pending commands within the batch, then feed the
// resulting actions through the curation state machine.
type Pipeline struct {
	registry   *source.Registry
	classifier *ingest.Classifier
	resolver   *ingest.Resolver
	curation   *CurationService
	logger     *zap.Logger
}

func NewPipeline(registry *source.Registry, classifier *ingest.Classifier, resolver *ingest.Resolver, curation *CurationService, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		registry:   registry,
		classifier: classifier,
		resolver:   resolver,
		curation:   curation,
		logger:     logger,
	}
}

// RunCycle polls every source once. Failures in one source or one action
// never stop the rest of the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	logger := p.logger.With(zap.String("cycle_id", cycleID))
	start := time.Now()

	var actionCount int
	for _, plugin := range p.registry.All() {
		cfg, err := p.registry.Config(plugin.Name())
		if err != nil {
			logger.Error("Missing source config", zap.String("source", plugin.Name()), zap.Error(err))
			continue
		}

		items, err := plugin.Fetch(ctx, source.Search{ID: cfg.SearchID, FeedID: cfg.FeedID})
		if err != nil {
			logger.Error("Source fetch failed",
				zap.String("source", plugin.Name()),
				zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}

		batch := make([]ingest.ClassifiedItem, 0, len(items))
		for _, item := range items {
			batch = append(batch, ingest.ClassifiedItem{
				Item:   item,
				Intent: p.classifier.Classify(item),
			})
		}

		actions := p.resolver.Resolve(batch)
		actionCount += len(actions)

		for _, action := range actions {
			switch a := action.(type) {
			case ingest.SubmitAction:
				if err := p.curation.HandleSubmission(ctx, a.Submission, cfg.FeedID, plugin.Platform()); err != nil {
					logger.Error("Submission handling failed",
						zap.String("external_id", a.Submission.ExternalID),
						zap.Error(err))
				}
			case ingest.ModerateAction:
				cmd := ModerationCommand{
					TargetExternalID:  a.Command.TargetExternalID,
					Action:            a.Command.Action,
					ModeratorID:       a.Command.ModeratorID,
					ModeratorUsername: a.Command.ModeratorUsername,
					Note:              a.Command.Notes,
					CommandExternalID: a.Command.CommandExternalID,
					CommandTimestamp:  a.Command.CommandTimestamp,
				}
				if err := p.curation.HandleModeration(ctx, cmd, cfg.FeedID, plugin.Platform()); err != nil {
					logger.Error("Moderation handling failed",
						zap.String("target_external_id", cmd.TargetExternalID),
						zap.Error(err))
				}
			}
		}
	}

	logger.Info("Ingest cycle completed",
		zap.Int("actions", actionCount),
		zap.Duration("duration", time.Since(start)))
}
