package replier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers replies to customers whose user ID is an email
// address. The reply text is treated as markdown and sent as
// multipart/alternative plain text and HTML.
type Email struct {
	cfg    EmailConfig
	send   sendFunc
	logger *slog.Logger
}

// NewEmail creates an email replier.
func NewEmail(cfg EmailConfig, logger *slog.Logger) *Email {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Subject == "" {
		cfg.Subject = "Sua mensagem"
	}
	return &Email{cfg: cfg, send: smtp.SendMail, logger: logger}
}

// Claims implements Claimer.
func (e *Email) Claims(userID string) bool {
	_, err := mail.ParseAddress(userID)
	return err == nil && strings.Contains(userID, "@")
}

// SendReply implements Replier.
func (e *Email) SendReply(_ context.Context, _, userID, text string) error {
	msg, err := composeMessage(e.cfg.From, userID, e.cfg.Subject, text, time.Now())
	if err != nil {
		return err
	}

	from, err := mail.ParseAddress(e.cfg.From)
	if err != nil {
		return fmt.Errorf("parse from address %q: %w", e.cfg.From, err)
	}
	to, err := mail.ParseAddress(userID)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", userID, err)
	}

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	if err := e.send(addr, auth, from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	e.logger.Debug("email reply sent", "to", to.Address, "bytes", len(msg))
	return nil
}

// composeMessage builds an RFC 5322 message with text/plain and
// text/html alternatives rendered from markdown.
func composeMessage(fromAddr, toAddr, subject, body string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	from, err := mail.ParseAddress(fromAddr)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", fromAddr, err)
	}
	to, err := mail.ParseAddress(toAddr)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", toAddr, err)
	}
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	html, err := RenderHTML(body)
	if err != nil {
		return nil, fmt.Errorf("render markdown to HTML: %w", err)
	}
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", markdownToPlain(body)},
		{"text/html; charset=utf-8", wrapHTML(html)},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.Set("Content-Type", p.contentType)
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.content); err != nil {
			return nil, fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("close %s part: %w", p.contentType, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderHTML converts reply markdown to an HTML fragment.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wrapHTML(fragment string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, fragment)
}

var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// markdownToPlain strips inline markdown formatting.
func markdownToPlain(md string) string {
	s := mdLink.ReplaceAllString(md, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
