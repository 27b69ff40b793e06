package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Submission statuses for a SubmissionFeedLink. pending is the initial state;
// approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Moderation actions recorded in ModerationEntry rows.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// StringArray represents a PostgreSQL text[] type
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle PostgreSQL array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		return s.Scan(string(v))
	default:
		return errors.New(fmt.Sprintf("cannot scan %T into StringArray", value))
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(s))
	for i, v := range s {
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// Submission is the canonical curated-content record. One row exists per
// origin-platform item, keyed by ExternalID; the row is immutable after
// creation, all per-feed state lives on SubmissionFeedLink.
type Submission struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	ExternalID       string      `gorm:"uniqueIndex;not null;size:255" json:"external_id"`
	AuthorPlatformID string      `gorm:"size:255" json:"author_platform_id"`
	AuthorUsername   string      `gorm:"size:255;index" json:"author_username"`
	Content          string      `gorm:"type:text" json:"content"`
	Media            StringArray `gorm:"type:text[]" json:"media"`

	// PostedAt is the origin-platform timestamp of the content item;
	// SubmittedAt is when the curation command was issued.
	PostedAt    time.Time `json:"posted_at"`
	SubmittedAt time.Time `json:"submitted_at"`

	CuratorID               string `gorm:"size:255" json:"curator_id"`
	CuratorUsername         string `gorm:"size:255;index" json:"curator_username"`
	CuratorPlatformID       string `gorm:"size:255;index" json:"curator_platform_id"`
	CuratorActionExternalID string `gorm:"size:255" json:"curator_action_external_id"`
	CuratorNotes            string `gorm:"type:text" json:"curator_notes"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	Links []SubmissionFeedLink `gorm:"foreignKey:SubmissionID" json:"links,omitempty"`
}

// SubmissionFeedLink tracks the moderation status of one submission in one
// feed. The (submission_id, feed_id) pair is unique; status only moves
// forward from pending.
type SubmissionFeedLink struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubmissionID uint   `gorm:"not null;uniqueIndex:idx_submission_feed" json:"submission_id"`
	FeedID       string `gorm:"not null;size:100;uniqueIndex:idx_submission_feed" json:"feed_id"`
	Status       string `gorm:"size:50;default:'pending'" json:"status"`

	ModerationResponseExternalID string `gorm:"size:255" json:"moderation_response_external_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ModerationEntry is an append-only audit record of an approve/reject
// decision, whether explicit or auto-approval.
type ModerationEntry struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	SubmissionID       uint      `gorm:"not null;index" json:"submission_id"`
	FeedID             string    `gorm:"not null;size:100;index" json:"feed_id"`
	ModeratorAccountID string    `gorm:"size:255" json:"moderator_account_id"`
	Action             string    `gorm:"size:50;not null" json:"action"`
	Note               string    `gorm:"type:text" json:"note"`
	ResponseExternalID string    `gorm:"size:255" json:"response_external_id"`
	Timestamp          time.Time `json:"timestamp"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DailyQuota counts submissions per curator per UTC day. Rows for past days
// are simply left behind; reads always key on today's bucket.
type DailyQuota struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CuratorID string `gorm:"not null;size:255;uniqueIndex:idx_quota_curator_day" json:"curator_id"`
	Day       string `gorm:"not null;size:10;uniqueIndex:idx_quota_curator_day" json:"day"`
	Count     int    `gorm:"default:0" json:"count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuotaDay formats t as the UTC day bucket key.
func QuotaDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
