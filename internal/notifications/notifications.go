// Package notifications delivers terminal scan outcomes to Slack and email.
// Delivery is best effort: failures are logged and never propagate back into
// scan processing.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/ebsight/ebsight/internal/models"
)

// Outcome shades a notification. Slack colors and email header colors key
// off it.
type Outcome string

const (
	OutcomeGood    Outcome = "good"
	OutcomeWarning Outcome = "warning"
	OutcomeDanger  Outcome = "danger"
)

// Notification is one message to fan out to the enabled channels.
type Notification struct {
	Title     string
	Message   string
	Outcome   Outcome
	Data      map[string]interface{}
	Timestamp time.Time
}

type Config struct {
	Slack SlackConfig
	Email EmailConfig
}

type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Channel    string
}

type EmailConfig struct {
	Enabled  bool
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

type Service struct {
	config Config
	logger *slog.Logger
	client *http.Client
}

func NewService(config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyScanCompleted announces a finished scan. Region errors downgrade the
// outcome to a warning but the scan still counts as completed.
func (s *Service) NotifyScanCompleted(ctx context.Context, rec *models.ScanRecord) {
	outcome := OutcomeGood
	message := fmt.Sprintf("Scan %s completed: %d volumes found", rec.ScanID, rec.VolumesFound)
	if len(rec.Errors) > 0 {
		outcome = OutcomeWarning
		message = fmt.Sprintf("Scan %s completed with %d region errors: %d volumes found",
			rec.ScanID, len(rec.Errors), rec.VolumesFound)
	}

	data := map[string]interface{}{
		"tenant_id":     rec.TenantID,
		"scan_id":       rec.ScanID.String(),
		"volumes_found": rec.VolumesFound,
	}
	if rec.CompletedAt != nil {
		data["duration"] = rec.CompletedAt.Sub(rec.StartedAt).Round(time.Second).String()
	}
	if len(rec.Errors) > 0 {
		data["region_errors"] = strings.Join(rec.Errors, "; ")
	}

	s.send(ctx, &Notification{
		Title:     "Scan Completed",
		Message:   message,
		Outcome:   outcome,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// NotifyScanFailed announces a scan that reached the failed state.
func (s *Service) NotifyScanFailed(ctx context.Context, rec *models.ScanRecord) {
	s.send(ctx, &Notification{
		Title:   "Scan Failed",
		Message: fmt.Sprintf("Scan %s failed: %s", rec.ScanID, rec.ErrorMessage),
		Outcome: OutcomeDanger,
		Data: map[string]interface{}{
			"tenant_id": rec.TenantID,
			"scan_id":   rec.ScanID.String(),
			"error":     rec.ErrorMessage,
		},
		Timestamp: time.Now(),
	})
}

func (s *Service) send(ctx context.Context, notif *Notification) {
	if s.config.Slack.Enabled {
		if err := s.sendSlack(ctx, notif); err != nil {
			s.logger.Error("slack notification failed", "title", notif.Title, "error", err)
		}
	}

	if s.config.Email.Enabled {
		if err := s.sendEmail(notif); err != nil {
			s.logger.Error("email notification failed", "title", notif.Title, "error", err)
		}
	}
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *Service) sendSlack(ctx context.Context, notif *Notification) error {
	fields := make([]slackField, 0, len(notif.Data))
	for _, key := range []string{"tenant_id", "scan_id", "volumes_found", "duration", "region_errors", "error"} {
		value, ok := notif.Data[key]
		if !ok {
			continue
		}
		fields = append(fields, slackField{
			Title: key,
			Value: fmt.Sprintf("%v", value),
			Short: key != "region_errors" && key != "error",
		})
	}

	msg := slackMessage{
		Channel: s.config.Slack.Channel,
		Attachments: []slackAttachment{
			{
				Color:     outcomeToColor(notif.Outcome),
				Title:     notif.Title,
				Text:      notif.Message,
				Fallback:  fmt.Sprintf("%s: %s", notif.Title, notif.Message),
				Fields:    fields,
				Footer:    "EBSight",
				Timestamp: notif.Timestamp.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.Slack.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	s.logger.Info("slack notification sent", "title", notif.Title)

	return nil
}

func outcomeToColor(outcome Outcome) string {
	switch outcome {
	case OutcomeDanger:
		return "#FF0000"
	case OutcomeWarning:
		return "#FFA500"
	default:
		return "#36A64F"
	}
}

func (s *Service) sendEmail(notif *Notification) error {
	subject := fmt.Sprintf("[EBSight] %s", notif.Title)
	body, err := s.formatEmailBody(notif)
	if err != nil {
		return err
	}

	msg := s.buildEmailMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)

	// Servers without authentication are common in internal deployments;
	// only authenticate when credentials are configured.
	var auth smtp.Auth
	if s.config.Email.Username != "" {
		auth = smtp.PlainAuth("", s.config.Email.Username, s.config.Email.Password, s.config.Email.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, s.config.Email.From, s.config.Email.To, []byte(msg)); err != nil {
		return err
	}

	s.logger.Info("email notification sent", "title", notif.Title, "recipients", len(s.config.Email.To))

	return nil
}

func (s *Service) buildEmailMessage(subject, body string) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.Email.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.Email.To, ",")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}

func (s *Service) formatEmailBody(notif *Notification) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; }
        .header { padding: 20px; background: {{.HeaderColor}}; color: white; border-radius: 8px 8px 0 0; }
        .content { padding: 20px; }
        .data-table { width: 100%; border-collapse: collapse; margin-top: 15px; }
        .data-table td { padding: 8px; border-bottom: 1px solid #eee; }
        .data-table td:first-child { font-weight: bold; width: 30%; }
        .footer { padding: 15px 20px; background: #f9f9f9; border-radius: 0 0 8px 8px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h2 style="margin:0;">{{.Title}}</h2>
        </div>
        <div class="content">
            <p>{{.Message}}</p>
            {{if .HasData}}
            <table class="data-table">
                {{range $key, $value := .Data}}
                <tr>
                    <td>{{$key}}</td>
                    <td>{{$value}}</td>
                </tr>
                {{end}}
            </table>
            {{end}}
        </div>
        <div class="footer">
            <p>This is an automated message from EBSight.</p>
            <p>Generated at: {{.Timestamp}}</p>
        </div>
    </div>
</body>
</html>
`
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}

	headerColor := "#2196F3"
	switch notif.Outcome {
	case OutcomeDanger:
		headerColor = "#F44336"
	case OutcomeWarning:
		headerColor = "#FF9800"
	}

	data := map[string]interface{}{
		"Title":       notif.Title,
		"Message":     notif.Message,
		"HeaderColor": headerColor,
		"Data":        notif.Data,
		"HasData":     len(notif.Data) > 0,
		"Timestamp":   notif.Timestamp.Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
