package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/curatorhq/curator/internal/models"
	"github.com/curatorhq/curator/pkg/util"
)

// Processor distributes an approved submission to a feed's stream output.
// It owns its own retry policy; the state machine treats it as
// fire-and-forget.
type Processor interface {
	Process(ctx context.Context, sub *models.Submission, feed *models.Feed) error
}

// WebhookProcessor posts approved submissions to the feed's webhook URL and
// records each attempt as a StreamDelivery row.
type WebhookProcessor struct {
	db     *gorm.DB
	logger *zap.Logger
	client *retryablehttp.Client
}

func NewWebhookProcessor(db *gorm.DB, logger *zap.Logger) *WebhookProcessor {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil

	return &WebhookProcessor{
		db:     db,
		logger: logger,
		client: client,
	}
}

type streamPayload struct {
	FeedID     string             `json:"feed_id"`
	Channel    string             `json:"channel,omitempty"`
	Submission *models.Submission `json:"submission"`
}

func (p *WebhookProcessor) Process(ctx context.Context, sub *models.Submission, feed *models.Feed) error {
	delivery := &models.StreamDelivery{
		SubmissionID: sub.ID,
		FeedID:       feed.ID,
		Status:       "pending",
	}
	if err := p.db.WithContext(ctx).Create(delivery).Error; err != nil {
		p.logger.Error("Failed to record stream delivery",
			zap.String("feed_id", feed.ID),
			zap.Error(err))
	}

	err := p.post(ctx, sub, feed)
	if err != nil {
		p.updateDelivery(ctx, delivery, "failed", err.Error())
		return err
	}

	now := time.Now()
	delivery.DeliveredAt = &now
	p.updateDelivery(ctx, delivery, "delivered", "")

	p.logger.Info("Submission streamed",
		zap.String("external_id", sub.ExternalID),
		zap.String("feed_id", feed.ID))
	return nil
}

func (p *WebhookProcessor) post(ctx context.Context, sub *models.Submission, feed *models.Feed) error {
	if feed.Stream.WebhookURL == "" {
		return fmt.Errorf("feed %s has stream output enabled but no webhook URL", feed.ID)
	}

	body, err := json.Marshal(streamPayload{
		FeedID:     feed.ID,
		Channel:    feed.Stream.Channel,
		Submission: sub,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, feed.Stream.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, util.Truncate(string(respBody), 500))
	}

	return nil
}

func (p *WebhookProcessor) updateDelivery(ctx context.Context, delivery *models.StreamDelivery, status, errMsg string) {
	delivery.Status = status
	delivery.Error = errMsg
	if err := p.db.WithContext(ctx).Save(delivery).Error; err != nil {
		p.logger.Error("Failed to update stream delivery",
			zap.Uint("delivery_id", delivery.ID),
			zap.Error(err))
	}
}
