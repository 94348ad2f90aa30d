package alarm

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"gopkg.in/gomail.v2"

	"github.com/taskqueue/orchestrator/internal/config"
	"github.com/taskqueue/orchestrator/internal/model"
)

// NotificationChannel fans an alarm out to an operator-facing transport.
// A channel's Send must honor ctx's deadline and never panic; the Alarm
// Engine treats every channel independently so one failing channel never
// blocks or fails the others.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, a *model.Alarm) error
}

// SlackChannel posts an alarm to a Slack incoming webhook, the direct
// generalization of a plain HTTP webhook POST.
type SlackChannel struct {
	WebhookURL string
	Channel    string
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, a *model.Alarm) error {
	if c.WebhookURL == "" {
		return fmt.Errorf("alarm: slack channel has no webhook configured")
	}
	color := "warning"
	switch a.Severity {
	case model.SeverityCritical, model.SeverityError:
		color = "danger"
	case model.SeverityInfo:
		color = "good"
	}

	msg := &slack.WebhookMessage{
		Channel: c.Channel,
		Attachments: []slack.Attachment{
			{
				Color: color,
				Title: a.Title,
				Text:  a.Description,
				Fields: []slack.AttachmentField{
					{Title: "Type", Value: string(a.AlarmType), Short: true},
					{Title: "Severity", Value: string(a.Severity), Short: true},
					{Title: "Queue", Value: a.QueueName, Short: true},
					{Title: "Occurrences", Value: fmt.Sprintf("%d", a.OccurrenceCount), Short: true},
				},
			},
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- slack.PostWebhookContext(ctx, c.WebhookURL, msg) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SMTPChannel emails an alarm via a plain SMTP relay, generalizing the
// EmailNotificationChannel smtplib pattern.
type SMTPChannel struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

func (c *SMTPChannel) Name() string { return "smtp" }

func (c *SMTPChannel) Send(ctx context.Context, a *model.Alarm) error {
	if c.Host == "" || len(c.Recipients) == 0 {
		return fmt.Errorf("alarm: smtp channel has no host or recipients configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.From)
	m.SetHeader("To", c.Recipients...)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", a.Severity, a.Title))
	m.SetBody("text/plain", fmt.Sprintf(
		"%s\n\ntype: %s\nqueue: %s\ncomponent: %s\noccurrences: %d\ntriggered_at: %s\n",
		a.Description, a.AlarmType, a.QueueName, a.Component, a.OccurrenceCount, a.TriggeredAt,
	))

	d := gomail.NewDialer(c.Host, c.Port, c.Username, c.Password)

	errCh := make(chan error, 1)
	go func() { errCh <- d.DialAndSend(m) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChannelsFromConfig builds the configured set of notification channels,
// skipping any channel left unconfigured.
func ChannelsFromConfig(cfg config.NotificationConfig) []NotificationChannel {
	var channels []NotificationChannel
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, &SlackChannel{WebhookURL: cfg.SlackWebhookURL, Channel: cfg.SlackChannel})
	}
	if cfg.SMTPHost != "" && len(cfg.SMTPRecipients) > 0 {
		channels = append(channels, &SMTPChannel{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			From:       cfg.SMTPFrom,
			Recipients: cfg.SMTPRecipients,
		})
	}
	return channels
}
