package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/sessionguard/pkg/logger"
)

// EmailService defines the outbound mail the auth core sends
type EmailService interface {
	SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error
	SendLockdownAlert(ctx context.Context, to []string, alert LockdownAlert) error
}

// LockdownAlert describes one system-wide lockdown event
type LockdownAlert struct {
	ID        string
	Attempts  int
	Threshold int
	Window    time.Duration
	At        time.Time
}

// SESClient is the subset of the SES API used here
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService loads the default AWS credential chain for region
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESEmailServiceWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

// NewSESEmailServiceWithClient wraps an existing client
func NewSESEmailServiceWithClient(client SESClient, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{client: client, fromAddress: fromAddress, logger: logger}
}

func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	text := fmt.Sprintf(`Password reset

Someone asked to reset the password for this account. Use the link below to choose a new one:

%s

The link expires at %s. If you did not ask for a reset you can ignore this message.
`, link, expiresAt.UTC().Format(time.RFC1123))

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>Password reset</h2>
<p>Someone asked to reset the password for this account. Use the link below to choose a new one:</p>
<p><a href="%s">Reset password</a></p>
<p>The link expires at %s. If you did not ask for a reset you can ignore this message.</p>
</body></html>`, link, expiresAt.UTC().Format(time.RFC1123))

	return s.send(ctx, []string{to}, "Reset your password", text, html)
}

func (s *AWSSESEmailService) SendLockdownAlert(ctx context.Context, to []string, alert LockdownAlert) error {
	if len(to) == 0 {
		return nil
	}

	text := fmt.Sprintf(`Login lockdown engaged

%d failed logins were recorded in the last %s, reaching the system threshold of %d.
All logins are refused until the count falls below the threshold.

Time: %s
Reference: %s
`, alert.Attempts, alert.Window, alert.Threshold, alert.At.UTC().Format(time.RFC3339), alert.ID)

	html := "<pre>" + text + "</pre>"
	return s.send(ctx, to, "[sessionguard] Login lockdown engaged", text, html)
}

func (s *AWSSESEmailService) send(ctx context.Context, to []string, subject, text, html string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html)},
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Int("recipients", len(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService is used when SES is not configured. It only logs.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	s.logger.Info("password reset email (not sent, email disabled)",
		slog.String("to", pkglogger.SanitizedEmail(to)),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendLockdownAlert(ctx context.Context, to []string, alert LockdownAlert) error {
	masked := make([]string, len(to))
	for i, addr := range to {
		masked[i] = pkglogger.SanitizedEmail(addr)
	}
	s.logger.Warn("lockdown alert (not sent, email disabled)",
		slog.String("alert_id", alert.ID),
		slog.Int("attempts", alert.Attempts),
		slog.Int("threshold", alert.Threshold),
		slog.String("to", strings.Join(masked, ",")))
	return nil
}
