// Package replier delivers final answers to customers. Each channel
// implements SendReply; Multi fans a reply out to every channel that
// claims the recipient.
package replier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Replier delivers one reply to one end user.
type Replier interface {
	SendReply(ctx context.Context, businessID, userID, text string) error
}

// Claimer is implemented by channels that only serve some users, for
// example email recipients or Slack members.
type Claimer interface {
	Claims(userID string) bool
}

// Multi sends each reply to all channels that claim the user. A channel
// that does not implement Claimer claims everyone.
type Multi struct {
	channels []named
	logger   *slog.Logger
}

type named struct {
	name string
	r    Replier
}

// NewMulti creates an empty fan-out.
func NewMulti(logger *slog.Logger) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{logger: logger.With("component", "replier")}
}

// Add registers a channel under name.
func (m *Multi) Add(name string, r Replier) {
	m.channels = append(m.channels, named{name: name, r: r})
}

// Len reports the number of registered channels.
func (m *Multi) Len() int { return len(m.channels) }

// SendReply implements Replier. Delivery fails only when every claiming
// channel failed, or when no channel claims the user.
func (m *Multi) SendReply(ctx context.Context, businessID, userID, text string) error {
	var errs []error
	delivered := 0
	for _, ch := range m.channels {
		if c, ok := ch.r.(Claimer); ok && !c.Claims(userID) {
			continue
		}
		if err := ch.r.SendReply(ctx, businessID, userID, text); err != nil {
			m.logger.Warn("reply channel failed", "channel", ch.name, "user", userID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		delivered++
	}
	if delivered > 0 {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("no reply channel for user %q", userID)
	}
	return errors.Join(errs...)
}

// Log writes replies to the structured log. It is the channel of last
// resort for local runs.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log replier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// SendReply implements Replier.
func (l *Log) SendReply(_ context.Context, businessID, userID, text string) error {
	l.logger.Info("reply", "business", businessID, "user", userID, "text", text)
	return nil
}

// Func adapts a plain function to Replier.
type Func func(ctx context.Context, businessID, userID, text string) error

// SendReply implements Replier.
func (f Func) SendReply(ctx context.Context, businessID, userID, text string) error {
	return f(ctx, businessID, userID, text)
}
