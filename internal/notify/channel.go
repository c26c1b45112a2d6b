package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
	"github.com/eyenet/eyenet-monitor/internal/logger"
)

// ChannelType identifies a notification transport.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelDiscord ChannelType = "discord"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Recipients []string // email only
	WebhookURL string   // discord only
	Subject    string
	Body       string
	Severity   alerts.Level
}

// Channel delivers rendered notifications over one transport.
type Channel interface {
	// Send delivers the message. Errors are returned to the caller;
	// retry policy is owned by the aggregator.
	Send(ctx context.Context, msg Message) error

	// Test performs a real delivery with harmless content to validate
	// credentials and reachability.
	Test(ctx context.Context) error

	Type() ChannelType
}

// EmailChannel sends mail through the SendGrid API.
type EmailChannel struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewEmailChannel creates an email channel with the given SendGrid API key
// and sender identity.
func NewEmailChannel(apiKey, from, fromName string) *EmailChannel {
	return &EmailChannel{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (c *EmailChannel) Type() ChannelType { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("email send: no recipients")
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(c.fromName, c.from))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, addr := range msg.Recipients {
		p.AddTos(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Body))

	resp, err := c.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}

	logger.Debug("email notification sent",
		"recipients", len(msg.Recipients),
		"subject", msg.Subject)
	return nil
}

// Test sends a short message to the configured sender address so a bad API
// key or an unverified sender surfaces immediately.
func (c *EmailChannel) Test(ctx context.Context) error {
	return c.Send(ctx, Message{
		Recipients: []string{c.from},
		Subject:    "EyeNet notification test",
		Body:       "This is a test of the EyeNet email notification channel.",
		Severity:   alerts.LevelInfo,
	})
}

// DiscordChannel posts messages to a Discord webhook URL.
type DiscordChannel struct {
	httpClient *http.Client
	webhookURL string
}

// NewDiscordChannel creates a discord channel. The default webhook URL can
// be overridden per message.
func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (c *DiscordChannel) Type() ChannelType { return ChannelDiscord }

// discordPayload is the webhook body. Only the fields we use.
type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// severityColor maps alert levels to Discord embed colors.
func severityColor(level alerts.Level) int {
	switch level {
	case alerts.LevelCritical:
		return 0x992d22 // dark red
	case alerts.LevelError:
		return 0xe74c3c // red
	case alerts.LevelWarning:
		return 0xf1c40f // yellow
	default:
		return 0x3498db // blue
	}
}

func (c *DiscordChannel) Send(ctx context.Context, msg Message) error {
	url := msg.WebhookURL
	if url == "" {
		url = c.webhookURL
	}
	if url == "" {
		return fmt.Errorf("discord send: no webhook URL")
	}

	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       msg.Subject,
			Description: truncate(msg.Body, 4000),
			Color:       severityColor(msg.Severity),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord send: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord send: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord send: status %d: %s", resp.StatusCode, string(b))
	}

	logger.Debug("discord notification sent", "subject", msg.Subject)
	return nil
}

func (c *DiscordChannel) Test(ctx context.Context) error {
	return c.Send(ctx, Message{
		Subject:  "EyeNet notification test",
		Body:     "This is a test of the EyeNet Discord notification channel.",
		Severity: alerts.LevelInfo,
	})
}

// truncate caps s at max bytes on a rune boundary. Discord rejects embeds
// over 4096 characters.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
