package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/curatorhq/curator/internal/models"
)

// GormStore implements the repository contracts on top of gorm. The zero
// value is not usable; construct with NewGormStore.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTx runs fn inside one transaction; the Store handed to fn routes all
// calls through that transaction.
func (s *GormStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) GetSubmission(ctx context.Context, externalID string) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) GetSubmissionByCuratorAction(ctx context.Context, actionExternalID string) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.WithContext(ctx).
		Where("curator_action_external_id = ?", actionExternalID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query submission by curator action: %w", err)
	}
	return &sub, nil
}

func (s *GormStore) CreateSubmission(ctx context.Context, sub *models.Submission) (bool, error) {
	// Insert-or-ignore on external_id so concurrent ingestion of the same
	// item never produces a duplicate row.
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(sub)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create submission: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) SaveModerationEntry(ctx context.Context, entry *models.ModerationEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save moderation entry: %w", err)
	}
	return nil
}

func (s *GormStore) ListModerationEntries(ctx context.Context, feedID string) ([]models.ModerationEntry, error) {
	var entries []models.ModerationEntry
	if err := s.db.WithContext(ctx).
		Where("feed_id = ?", feedID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list moderation entries: %w", err)
	}
	return entries, nil
}

func (s *GormStore) GetDailySubmissionCount(ctx context.Context, curatorID, day string) (int, error) {
	var quota models.DailyQuota
	err := s.db.WithContext(ctx).
		Where("curator_id = ? AND day = ?", curatorID, day).
		First(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query daily quota: %w", err)
	}
	return quota.Count, nil
}

func (s *GormStore) IncrementDailySubmissionCount(ctx context.Context, curatorID, day string) error {
	// Upsert keyed on (curator, UTC day): a fresh day starts a new row at 1,
	// the same day increments in place. Single statement, so concurrent
	// submissions never lose an update.
	quota := models.DailyQuota{CuratorID: curatorID, Day: day, Count: 1}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "curator_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&quota).Error
	if err != nil {
		return fmt.Errorf("failed to increment daily quota: %w", err)
	}
	return nil
}

func (s *GormStore) GetFeed(ctx context.Context, feedID string) (*models.Feed, error) {
	var feed models.Feed
	err := s.db.WithContext(ctx).Where("id = ?", feedID).First(&feed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	return &feed, nil
}

func (s *GormStore) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	var feeds []models.Feed
	if err := s.db.WithContext(ctx).Find(&feeds).Error; err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

func (s *GormStore) SaveFeed(ctx context.Context, feed *models.Feed) error {
	if err := s.db.WithContext(ctx).Save(feed).Error; err != nil {
		return fmt.Errorf("failed to save feed: %w", err)
	}
	return nil
}

func (s *GormStore) GetFeedLink(ctx context.Context, submissionID uint, feedID string) (*models.SubmissionFeedLink, error) {
	var link models.SubmissionFeedLink
	err := s.db.WithContext(ctx).
		Where("submission_id = ? AND feed_id = ?", submissionID, feedID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feed link: %w", err)
	}
	return &link, nil
}

func (s *GormStore) CreateFeedLink(ctx context.Context, link *models.SubmissionFeedLink) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("failed to create feed link: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateFeedLinkStatus(ctx context.Context, submissionID uint, feedID, status, responseExternalID string) (bool, error) {
	// The pending guard is part of the WHERE clause, not a prior read, so
	// two concurrent moderation attempts cannot both apply: the second one
	// re-evaluates against the committed row and matches nothing.
	result := s.db.WithContext(ctx).
		Model(&models.SubmissionFeedLink{}).
		Where("submission_id = ? AND feed_id = ? AND status = ?", submissionID, feedID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":                          status,
			"moderation_response_external_id": responseExternalID,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update feed link status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) ListFeedLinks(ctx context.Context, feedID, status string) ([]models.SubmissionFeedLink, error) {
	q := s.db.WithContext(ctx).Where("feed_id = ?", feedID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var links []models.SubmissionFeedLink
	if err := q.Order("created_at ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list feed links: %w", err)
	}
	return links, nil
}
