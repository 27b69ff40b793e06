package ingest

import (
	"regexp"
	"strings"

	"github.com/curatorhq/curator/internal/models"
)

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	// A command token, optionally followed by one @mention which is part of
	// the command rather than the curator's note.
	submitPattern  = regexp.MustCompile(`(?i)!submit(\s+@\w+)?`)
	approvePattern = regexp.MustCompile(`(?i)!approve(\s+@\w+)?`)
	rejectPattern  = regexp.MustCompile(`(?i)!reject(\s+@\w+)?`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Classifier maps raw source items to typed intents. It is pure: no I/O and
// no side effects, so one instance can be shared across feeds.
type Classifier struct {
	botUsername string
}

func NewClassifier(botUsername string) *Classifier {
	return &Classifier{botUsername: botUsername}
}

// Classify determines the intent of a single item. Token matching is
// case-insensitive substring matching with a fixed priority: submit, then
// approve, then reject, then plain content.
func (c *Classifier) Classify(item models.SourceItem) Intent {
	text := strings.ToLower(item.Content)
	hints := extractHashtags(item.Content)

	switch {
	case strings.Contains(text, TokenSubmit):
		if item.Author.Username == "" && item.Author.ID == "" {
			return UnknownIntent{Item: item, Reason: "submit command has no parseable author"}
		}

		notes := c.extractNotes(item.Content, submitPattern)
		if item.Metadata.InReplyToID != "" {
			return PendingSubmissionCommandIntent{
				TargetExternalID:        item.Metadata.InReplyToID,
				CuratorID:               item.Author.ID,
				CuratorUsername:         item.Author.Username,
				CuratorPlatformID:       item.Author.ID,
				CuratorActionExternalID: item.ExternalID,
				CuratorNotes:            notes,
				TargetFeedHints:         hints,
				SubmittedAt:             item.CreatedAt,
			}
		}

		// The command item is both command and content.
		return DirectSubmissionIntent{
			Item:            item,
			CuratorNotes:    notes,
			TargetFeedHints: hints,
			SubmittedAt:     item.CreatedAt,
		}

	case strings.Contains(text, TokenApprove):
		return c.moderationIntent(item, models.ActionApprove, approvePattern)

	case strings.Contains(text, TokenReject):
		return c.moderationIntent(item, models.ActionReject, rejectPattern)

	default:
		return ContentItemIntent{Item: item, TargetFeedHints: hints}
	}
}

func (c *Classifier) moderationIntent(item models.SourceItem, action string, pattern *regexp.Regexp) Intent {
	if item.Metadata.InReplyToID == "" {
		return UnknownIntent{Item: item, Reason: "moderation command missing reply target"}
	}

	return ModerationCommandIntent{
		TargetExternalID:  item.Metadata.InReplyToID,
		Action:            action,
		ModeratorID:       item.Author.ID,
		ModeratorUsername: item.Author.Username,
		Notes:             c.extractNotes(item.Content, pattern),
		CommandExternalID: item.ExternalID,
		CommandTimestamp:  item.CreatedAt,
	}
}

// extractNotes strips the command token (plus an optional trailing mention),
// the bot's own mention, and all hashtags, leaving the curator's free-text
// note. Returns "" when nothing remains.
func (c *Classifier) extractNotes(content string, pattern *regexp.Regexp) string {
	note := pattern.ReplaceAllString(content, " ")
	if c.botUsername != "" {
		selfMention := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(c.botUsername) + `\b`)
		note = selfMention.ReplaceAllString(note, " ")
	}
	note = hashtagPattern.ReplaceAllString(note, " ")
	note = whitespaceRuns.ReplaceAllString(note, " ")
	return strings.TrimSpace(note)
}

func extractHashtags(content string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}
