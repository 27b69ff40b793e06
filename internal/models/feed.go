package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/curatorhq/curator/pkg/util"
)

// PlatformUserList maps a platform key ("twitter", "mastodon", or the
// wildcard "all") to a list of usernames. Stored as jsonb.
type PlatformUserList map[string][]string

// Scan implements the sql.Scanner interface
func (p *PlatformUserList) Scan(value interface{}) error {
	if value == nil {
		*p = PlatformUserList{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		if v == "" {
			*p = PlatformUserList{}
			return nil
		}
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into PlatformUserList", value)
	}
}

// Value implements the driver.Valuer interface
func (p PlatformUserList) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether username is listed under platform. Comparison is
// case-insensitive and tolerates a leading @ on either side.
func (p PlatformUserList) Contains(platform, username string) bool {
	normalized := util.NormalizeUsername(username)
	for _, u := range p[platform] {
		if util.NormalizeUsername(u) == normalized {
			return true
		}
	}
	return false
}

// ContainsWithWildcard checks both the platform list and the "all" list.
func (p PlatformUserList) ContainsWithWildcard(platform, username string) bool {
	return p.Contains(platform, username) || p.Contains("all", username)
}

// StreamOutput configures downstream distribution of approved submissions
// for one feed.
type StreamOutput struct {
	Enabled    bool   `gorm:"default:false" json:"enabled"`
	WebhookURL string `gorm:"size:500" json:"webhook_url"`
	Channel    string `gorm:"size:255" json:"channel"`
}

// Feed is a curated feed with its moderation configuration. Approvers and
// Blacklist are keyed by platform; moderation is always evaluated per feed.
type Feed struct {
	ID          string           `gorm:"primaryKey;size:100" json:"id"`
	DisplayName string           `gorm:"size:255" json:"display_name"`
	Approvers   PlatformUserList `gorm:"type:jsonb" json:"approvers"`
	Blacklist   PlatformUserList `gorm:"type:jsonb" json:"blacklist"`
	Stream      StreamOutput     `gorm:"embedded;embeddedPrefix:stream_" json:"stream"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// IsApprover reports whether username may approve or reject submissions in
// this feed for the given platform.
func (f *Feed) IsApprover(platform, username string) bool {
	return f.Approvers.Contains(platform, username)
}

// IsBlacklisted reports whether username is blocked from this feed on the
// given platform, including the "all" wildcard list.
func (f *Feed) IsBlacklisted(platform, username string) bool {
	return f.Blacklist.ContainsWithWildcard(platform, username)
}
