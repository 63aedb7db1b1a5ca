package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds SMTP configuration.
type SMTPConfig struct {
	Host     string        // SMTP server host
	Port     int           // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string        // SMTP username (optional)
	Password string        // SMTP password (optional)
	From     string        // From address
	AppName  string        // Product name shown in subjects and footers
	Timeout  time.Duration // Dial timeout
}

// Validate validates the SMTP configuration.
func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// SMTPMailer sends notification emails over SMTP.
type SMTPMailer struct {
	config    SMTPConfig
	templates *Templates
	now       func() time.Time
}

// NewSMTPMailer creates a new SMTP mailer.
func NewSMTPMailer(config SMTPConfig) (*SMTPMailer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SMTP config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.AppName == "" {
		config.AppName = "Riskline"
	}

	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &SMTPMailer{
		config:    config,
		templates: templates,
		now:       time.Now,
	}, nil
}

// Name returns "smtp".
func (m *SMTPMailer) Name() string {
	return "smtp"
}

// SendEmail renders the email and delivers it to every recipient.
func (m *SMTPMailer) SendEmail(ctx context.Context, email Email) (Delivery, error) {
	if err := validateEmail(email); err != nil {
		return Delivery{}, err
	}

	now := m.now()
	data := EmailToTemplateData(email, m.config.AppName, now)

	htmlBody, err := m.templates.RenderHTML(&data)
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to render HTML template: %w", err)
	}

	plainBody, err := m.templates.RenderPlain(&data)
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to render plain template: %w", err)
	}

	subject := email.Subject
	if subject == "" {
		subject = fmt.Sprintf("[%s] %s", m.config.AppName, email.Title)
	}

	d := Delivery{
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), m.config.Host),
		SentAt:    now,
	}
	msg := m.buildMIMEMessage(email.To, subject, d, plainBody, htmlBody)

	if err := m.sendMail(ctx, email.To, msg); err != nil {
		return Delivery{}, err
	}
	return d, nil
}

// Close is a no-op for the SMTP mailer.
func (m *SMTPMailer) Close() error {
	return nil
}

// buildMIMEMessage builds a MIME multipart message with HTML and plain text.
func (m *SMTPMailer) buildMIMEMessage(to []string, subject string, d Delivery, plainBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("----=_Part_%d", d.SentAt.UnixNano())

	var msg strings.Builder

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", d.SentAt.Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: %s\r\n", d.MessageID))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	// Plain text part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(plainBody)
	msg.WriteString("\r\n")

	// HTML part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	// End boundary
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(msg.String())
}

// sendMail sends the email via SMTP.
func (m *SMTPMailer) sendMail(ctx context.Context, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.config.Host, fmt.Sprint(m.config.Port))

	tlsConfig := &tls.Config{
		ServerName: m.config.Host,
	}

	var client *smtp.Client
	var err error

	if m.config.Port == 465 {
		// Implicit TLS (SMTPS)
		client, err = m.connectImplicitTLS(ctx, addr, tlsConfig)
	} else {
		// STARTTLS (port 587 or 25)
		client, err = m.connectSTARTTLS(ctx, addr, tlsConfig)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if m.config.Username != "" && m.config.Password != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(m.config.From)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, rcpt := range to {
		if strings.TrimSpace(rcpt) == "" {
			continue
		}
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// connectImplicitTLS connects using implicit TLS (port 465).
func (m *SMTPMailer) connectImplicitTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: m.config.Timeout},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return smtp.NewClient(conn, m.config.Host)
}

// connectSTARTTLS connects using STARTTLS (port 587 or 25).
func (m *SMTPMailer) connectSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: m.config.Timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 {
			return addr[start+1 : end]
		}
	}
	return strings.TrimSpace(addr)
}
