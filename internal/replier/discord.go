package replier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordPrefix marks user IDs that belong to Discord users.
const DiscordPrefix = "discord:"

// discordMessageLimit is Discord's maximum message length.
const discordMessageLimit = 2000

// discordSession abstracts the discordgo.Session methods we use.
type discordSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord delivers replies as direct messages from a bot.
type Discord struct {
	sess   discordSession
	logger *slog.Logger
}

// NewDiscord creates a Discord replier authenticated with a bot token.
// Only the REST API is used, so no gateway connection is opened.
func NewDiscord(token string, logger *slog.Logger) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return newDiscord(s, logger), nil
}

func newDiscord(s discordSession, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{sess: s, logger: logger}
}

// Claims implements Claimer.
func (d *Discord) Claims(userID string) bool {
	return strings.HasPrefix(userID, DiscordPrefix)
}

// SendReply implements Replier.
func (d *Discord) SendReply(ctx context.Context, _, userID, text string) error {
	ch, err := d.sess.UserChannelCreate(strings.TrimPrefix(userID, DiscordPrefix), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: open dm channel: %w", err)
	}
	for _, chunk := range splitMessage(text, discordMessageLimit) {
		if _, err := d.sess.ChannelMessageSend(ch.ID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// splitMessage breaks text into pieces of at most limit runes,
// preferring line boundaries.
func splitMessage(text string, limit int) []string {
	var out []string
	for len([]rune(text)) > limit {
		r := []rune(text)
		cut := limit
		if i := strings.LastIndex(string(r[:limit]), "\n"); i > 0 {
			cut = len([]rune(string(r[:limit])[:i]))
		}
		out = append(out, strings.TrimRight(string(r[:cut]), "\n"))
		text = strings.TrimLeft(string(r[cut:]), "\n")
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
