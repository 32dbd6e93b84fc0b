package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"

	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/pkg/logger"
)

// AlertDispatcher delivers one alert notification to one recipient
type AlertDispatcher interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// sesSender is the part of the SES client the dispatcher uses
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertDispatcher sends alert emails using AWS SES. Sends are paced by a
// token bucket so an alert burst stays under the account's send rate.
type SESAlertDispatcher struct {
	sesClient sesSender
	from      string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewSESAlertDispatcher creates a new AWS SES alert dispatcher
func NewSESAlertDispatcher(ctx context.Context, region, fromAddress, fromName string, sendsPerSecond float64, logger *slog.Logger) (*SESAlertDispatcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESAlertDispatcher(ses.NewFromConfig(cfg), fromAddress, fromName, sendsPerSecond, logger), nil
}

func newSESAlertDispatcher(client sesSender, fromAddress, fromName string, sendsPerSecond float64, logger *slog.Logger) *SESAlertDispatcher {
	from := fromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	if sendsPerSecond <= 0 {
		sendsPerSecond = 1
	}

	return &SESAlertDispatcher{
		sesClient: client,
		from:      from,
		limiter:   rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		logger:    logger,
	}
}

// Send waits for a send slot, then delivers the message
func (s *SESAlertDispatcher) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("alert send cancelled: %w", err)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send alert email via SES",
			slog.String("recipient", logger.MaskIdentity(recipient)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("alert email sent",
		slog.String("recipient", logger.MaskIdentity(recipient)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogAlertDispatcher writes alerts to the log instead of sending them. Used
// when email delivery is disabled.
type LogAlertDispatcher struct {
	logger *slog.Logger
}

func NewLogAlertDispatcher(logger *slog.Logger) *LogAlertDispatcher {
	return &LogAlertDispatcher{logger: logger}
}

func (d *LogAlertDispatcher) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	d.logger.WarnContext(ctx, "security alert",
		slog.String("recipient", logger.MaskIdentity(recipient)),
		slog.String("subject", subject),
	)
	return nil
}

// alertSubject is the email subject line for an alert
func alertSubject(alert *models.SecurityAlert) string {
	return fmt.Sprintf("[%s] Security alert: %s", strings.ToUpper(string(alert.Severity)), alert.Title)
}

// renderAlertEmail builds the HTML body for an alert notification
func renderAlertEmail(alert *models.SecurityAlert, assessment *models.ThreatAssessment) string {
	ind := assessment.Indicators
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8d7da; padding: 20px; text-align: center; border-radius: 4px; }
        table { border-collapse: collapse; width: 100%%; }
        td { padding: 6px; border-bottom: 1px solid #eee; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
            <p>Severity: <strong>%s</strong></p>
        </div>
        <p>%s</p>
        <table>
            <tr><td>Threat level</td><td>%s (score %d)</td></tr>
            <tr><td>Failed logins</td><td>%d</td></tr>
            <tr><td>Suspicious IPs</td><td>%d</td></tr>
            <tr><td>Error events</td><td>%d</td></tr>
            <tr><td>Blocked IPs</td><td>%d</td></tr>
            <tr><td>CSRF failures</td><td>%d</td></tr>
            <tr><td>Lockouts</td><td>%d</td></tr>
        </table>
        <div class="footer">
            <p>Alert %s raised at %s. Acknowledge it from the security dashboard.</p>
        </div>
    </div>
</body>
</html>
`,
		html.EscapeString(alert.Title),
		html.EscapeString(string(alert.Severity)),
		html.EscapeString(alert.Message),
		assessment.Level, assessment.Score,
		ind.FailedLogins, ind.SuspiciousIPs, ind.ErrorEvents, ind.BlockedIPs, ind.CSRFFailures, ind.Lockouts,
		alert.ID, alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	)
}
