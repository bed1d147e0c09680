package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/taxcore/src/config"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
)

const extractionFailedSubject = "We could not read one of your tax documents"

func NewNotifier() Notifier {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Notifier will default to mock.")
		return &MockNotifier{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing notifier", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockNotifier.")
			return &MockNotifier{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunNotifier{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockNotifier.")
			return &MockNotifier{}
		}
		return &SMTPNotifier{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
		}
	default:
		logger.L.Info("Defaulting to MockNotifier.")
		return &MockNotifier{}
	}
}

func extractionFailedBody(doc models.Document) string {
	return fmt.Sprintf(`Hello,

We were unable to read the document "%s" that you uploaded on %s.

Reason: %s

You can assign the document type or enter the values by hand from your
return's document list. Your other documents were not affected.

Thanks,
The Taxcore Team`, doc.FileName, doc.CreatedAt.Format("January 2, 2006"), doc.ErrorMessage)
}

type SMTPNotifier struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

func (s *SMTPNotifier) NotifyExtractionFailed(ctx context.Context, toEmail string, doc models.Document) error {
	from := s.SenderEmail
	to := []string{toEmail}

	header := make(map[string]string)
	header["From"] = from
	header["To"] = toEmail
	header["Subject"] = extractionFailedSubject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + extractionFailedBody(doc)
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, to, []byte(message)); err != nil {
		logger.FromContext(ctx).Error("Failed to send extraction failure email via SMTP", "error", err, "to", toEmail, "documentID", doc.ID)
		return fmt.Errorf("failed to send extraction failure email via SMTP: %w", err)
	}
	logger.FromContext(ctx).Info("Extraction failure email sent via SMTP", "to", toEmail, "documentID", doc.ID)
	return nil
}

type MailgunNotifier struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunNotifier) NotifyExtractionFailed(ctx context.Context, toEmail string, doc models.Document) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, extractionFailedSubject, extractionFailedBody(doc), toEmail)
	message.AddTag("extraction-failed")

	ctx, cancel := context.WithTimeout(ctx, time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to send extraction failure email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.FromContext(ctx).Info("Extraction failure email sent via Mailgun", "to", toEmail, "id", id, "documentID", doc.ID)
	return nil
}

// Notification is one message recorded by MockNotifier.
type Notification struct {
	To         string
	DocumentID string
	Reason     string
}

// MockNotifier logs instead of sending and keeps what it would have sent.
type MockNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (m *MockNotifier) NotifyExtractionFailed(ctx context.Context, toEmail string, doc models.Document) error {
	m.mu.Lock()
	m.sent = append(m.sent, Notification{To: toEmail, DocumentID: doc.ID, Reason: doc.ErrorMessage})
	m.mu.Unlock()
	logger.FromContext(ctx).Info("MockNotifier: Would send extraction failure email.", "to", toEmail, "documentID", doc.ID, "fileName", doc.FileName)
	return nil
}

func (m *MockNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
