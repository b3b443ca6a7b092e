package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/malbeclabs/rentreclaim/utils/pkg/retry"
	"github.com/slack-go/slack"
)

// SlackAPI is the subset of the slack-go client the bot calls.
type SlackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
	RemoveReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Client wraps the Slack API client with retries and mention handling.
type Client struct {
	api       SlackAPI
	raw       *slack.Client
	botUserID string
	log       *slog.Logger
	retry     retry.Config
}

// NewClient creates a Slack client for socket mode.
func NewClient(botToken, appToken string, log *slog.Logger) *Client {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Client{
		api:   api,
		raw:   api,
		log:   log,
		retry: retry.DefaultConfig(),
	}
}

// newClientWithAPI is used by tests to substitute the Slack API.
func newClientWithAPI(api SlackAPI, log *slog.Logger) *Client {
	return &Client{
		api:   api,
		log:   log,
		retry: retry.Config{MaxAttempts: 3},
	}
}

// API returns the underlying Slack API client. It is nil for test clients.
func (c *Client) API() *slack.Client {
	return c.raw
}

// Initialize performs an auth test and returns the bot user ID.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	authTest, err := c.api.AuthTestContext(ctx)
	if err != nil {
		c.log.Warn("slack: auth test failed", "error", err)
		return "", err
	}

	c.botUserID = authTest.UserID
	c.log.Info("slack: auth test successful", "user_id", authTest.UserID, "team", authTest.Team, "bot_id", authTest.BotID)
	return c.botUserID, nil
}

func (c *Client) BotUserID() string {
	return c.botUserID
}

// PostMessage posts mrkdwn text to a channel, threaded under threadTS when set.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	err := retry.Do(ctx, c.retry, func() error {
		_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
		return err
	})
	if err != nil {
		MessagesPostedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to post message after retries: %w", err)
	}
	MessagesPostedTotal.WithLabelValues("success").Inc()
	return nil
}

// AddReaction adds an emoji reaction to a message. Missing scopes are not
// retried.
func (c *Client) AddReaction(ctx context.Context, channelID, timestamp, emoji string) error {
	itemRef := slack.NewRefToMessage(channelID, timestamp)
	err := retry.Do(ctx, c.retry, func() error {
		return c.api.AddReactionContext(ctx, emoji, itemRef)
	})
	if err != nil {
		if strings.Contains(err.Error(), "missing_scope") {
			c.log.Error("slack: reactions:write scope is missing from the bot token", "error", err)
		} else {
			c.log.Warn("slack: failed to add reaction", "emoji", emoji, "channel", channelID, "error", err)
		}
		return err
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, timestamp, emoji string) error {
	itemRef := slack.NewRefToMessage(channelID, timestamp)
	err := retry.Do(ctx, c.retry, func() error {
		return c.api.RemoveReactionContext(ctx, emoji, itemRef)
	})
	if err != nil {
		c.log.Debug("slack: failed to remove reaction", "emoji", emoji, "error", err)
	}
	return err
}

// IsBotMentioned checks if the bot is mentioned in the given text.
func (c *Client) IsBotMentioned(text string) bool {
	if c.botUserID == "" {
		return false
	}
	return strings.Contains(text, "<@"+c.botUserID+">") || strings.Contains(text, "<@"+c.botUserID+"|")
}

// RemoveBotMention strips <@BOT> and <@BOT|name> mentions from text.
func (c *Client) RemoveBotMention(text string) string {
	if c.botUserID == "" {
		return strings.TrimSpace(text)
	}
	text = strings.ReplaceAll(text, "<@"+c.botUserID+">", "")
	if strings.Contains(text, "<@"+c.botUserID+"|") {
		re := regexp.MustCompile(fmt.Sprintf(`<@%s\|[^>]+>`, regexp.QuoteMeta(c.botUserID)))
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
