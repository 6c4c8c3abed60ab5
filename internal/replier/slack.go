package replier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
)

// SlackPrefix marks user IDs that belong to Slack members.
const SlackPrefix = "slack:"

const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack delivers replies as direct messages from a bot.
type Slack struct {
	client slackClient
	logger *slog.Logger
}

// NewSlack creates a Slack replier authenticated with a bot token.
func NewSlack(token string, logger *slog.Logger) *Slack {
	return newSlack(slackapi.New(token), logger)
}

func newSlack(c slackClient, logger *slog.Logger) *Slack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{client: c, logger: logger}
}

// Claims implements Claimer.
func (s *Slack) Claims(userID string) bool {
	return strings.HasPrefix(userID, SlackPrefix)
}

// SendReply implements Replier. Posting to a member ID opens the bot's
// direct-message channel with them.
func (s *Slack) SendReply(ctx context.Context, _, userID, text string) error {
	member := strings.TrimPrefix(userID, SlackPrefix)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, member, slackapi.MsgOptionText(text, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors, honoring the RetryAfter hint.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
