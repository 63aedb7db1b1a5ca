package notifier

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSMTPConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  SMTPConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  SMTPConfig{},
			wantErr: true,
			errMsg:  "SMTP host is required",
		},
		{
			name:    "missing port",
			config:  SMTPConfig{Host: "smtp.example.com"},
			wantErr: true,
			errMsg:  "SMTP port is required",
		},
		{
			name:    "missing from",
			config:  SMTPConfig{Host: "smtp.example.com", Port: 587},
			wantErr: true,
			errMsg:  "from address is required",
		},
		{
			name:   "valid config",
			config: SMTPConfig{Host: "smtp.example.com", Port: 587, From: "alerts@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTemplatesRender(t *testing.T) {
	templates, err := LoadTemplates()
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}

	data := EmailToTemplateData(Email{
		To:       []string{"pm@acme.test"},
		Title:    "Deadline at risk: Apollo",
		Message:  "Forecast misses the deadline by 30 days.\nScope is now locked.",
		Category: "alarm",
		Link:     "https://app.example.com/projects/p1",
	}, "Riskline", time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))

	html, err := templates.RenderHTML(&data)
	if err != nil {
		t.Fatalf("failed to render HTML: %v", err)
	}
	for _, want := range []string{"Deadline at risk: Apollo", "Scope is now locked.", "https://app.example.com/projects/p1", "#d32f2f", "ALARM"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}

	plain, err := templates.RenderPlain(&data)
	if err != nil {
		t.Fatalf("failed to render plain: %v", err)
	}
	if !strings.Contains(plain, "[ALARM] Deadline at risk: Apollo") {
		t.Errorf("plain missing title line, got:\n%s", plain)
	}
	if !strings.Contains(plain, "Hi pm@acme.test,") {
		t.Error("plain missing greeting")
	}
}

func TestCategoryColor(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"alarm", "#d32f2f"},
		{"alert", "#f57c00"},
		{"info", "#1976d2"},
		{"unknown", "#757575"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			if got := categoryColor(tt.category); got != tt.want {
				t.Errorf("categoryColor(%q) = %q, want %q", tt.category, got, tt.want)
			}
		})
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	mailer := &SMTPMailer{config: SMTPConfig{From: "Riskline <alerts@example.com>"}}
	d := Delivery{MessageID: "<id@example.com>", SentAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}

	msg := string(mailer.buildMIMEMessage([]string{"a@example.com", "b@example.com"}, "Test Subject", d, "Plain body", "<html>HTML body</html>"))

	for _, want := range []string{
		"From: Riskline <alerts@example.com>",
		"To: a@example.com, b@example.com",
		"Subject: Test Subject",
		"Message-ID: <id@example.com>",
		"MIME-Version: 1.0",
		"multipart/alternative",
		"Plain body",
		"<html>HTML body</html>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"test@example.com", "test@example.com"},
		{"Test User <test@example.com>", "test@example.com"},
		{" padded@example.com ", "padded@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := extractEmail(tt.input); got != tt.want {
				t.Errorf("extractEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// mockSMTPServer is a minimal SMTP server that records received messages.
type mockSMTPServer struct {
	listener net.Listener
	messages [][]byte
	rcpts    []string
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func newMockSMTPServer(t *testing.T) *mockSMTPServer {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	server := &mockSMTPServer{listener: listener}
	server.wg.Add(1)
	go server.serve()
	return server
}

func (s *mockSMTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *mockSMTPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(line string) {
		writer.WriteString(line + "\r\n")
		writer.Flush()
	}

	reply("220 localhost SMTP Mock Server")

	var dataMode bool
	var messageData []byte

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if dataMode {
			if line == "." {
				dataMode = false
				s.mu.Lock()
				s.messages = append(s.messages, messageData)
				s.mu.Unlock()
				messageData = nil
				reply("250 OK")
				continue
			}
			messageData = append(messageData, []byte(line+"\n")...)
			continue
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			writer.WriteString("250-localhost\r\n")
			reply("250 OK")
		case strings.HasPrefix(upper, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO"):
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line)
			s.mu.Unlock()
			reply("250 OK")
		case upper == "DATA":
			reply("354 Start mail input")
			dataMode = true
		case upper == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("500 Unknown command")
		}
	}
}

func (s *mockSMTPServer) close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *mockSMTPServer) getMessages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([][]byte, len(s.messages))
	copy(result, s.messages)
	return result
}

func TestSMTPMailerSendWithMockSMTP(t *testing.T) {
	server := newMockSMTPServer(t)
	defer server.close()

	host, portStr, _ := net.SplitHostPort(server.listener.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPConfig{Host: host, Port: port, From: "alerts@example.com"})
	if err != nil {
		t.Fatalf("failed to create mailer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d, err := mailer.SendEmail(ctx, Email{
		To:       []string{"pm@acme.test", "Admin <admin@acme.test>"},
		Title:    "Low velocity: Apollo",
		Message:  "Average accuracy 70%",
		Category: "alert",
	})
	if err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}
	if d.MessageID == "" {
		t.Error("delivery has no message id")
	}

	messages := server.getMessages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := string(messages[0])
	if !strings.Contains(msg, "Subject: [Riskline] Low velocity: Apollo") {
		t.Errorf("message missing subject, got:\n%s", msg)
	}

	server.mu.Lock()
	rcpts := len(server.rcpts)
	server.mu.Unlock()
	if rcpts != 2 {
		t.Errorf("expected 2 RCPT commands, got %d", rcpts)
	}
}

func TestSMTPMailerRejectsEmptyRecipients(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: 2525, From: "alerts@example.com"})
	if err != nil {
		t.Fatalf("failed to create mailer: %v", err)
	}
	if _, err := mailer.SendEmail(context.Background(), Email{To: []string{" "}}); err != ErrNoRecipients {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}
