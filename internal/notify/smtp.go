package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bigkaa/gomediahub/internal/config"
)

// SMTPSender отправляет одноразовые коды по электронной почте.
// Соединение устанавливается на каждое письмо: объём рассылки мал,
// а долгоживущее SMTP-соединение рвётся по таймаутам серверов.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	useTLS   bool
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSMTPSender создаёт SMTP-транспорт из конфигурации.
func NewSMTPSender(cfg *config.Config, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		useTLS:   cfg.SMTPUseTLS,
		timeout:  cfg.SMTPTimeout,
		logger:   logger.With(slog.String("component", "notify_smtp")),
	}
}

func (s *SMTPSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	subject := "Your OTP Code"
	body := fmt.Sprintf("Your OTP code is: %s\n\nThis code will expire in %d minutes.\n",
		code, int(ttl.Minutes()))

	if err := s.send(ctx, email, subject, body); err != nil {
		return fmt.Errorf("ошибка отправки письма на %s: %w", email, err)
	}
	s.logger.Info("Код подтверждения отправлен", slog.String("email", email))
	return nil
}

// send выполняет полный SMTP-диалог: STARTTLS, аутентификация, письмо.
func (s *SMTPSender) send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("соединение с SMTP-сервером: %w", err)
	}
	// Общий дедлайн на весь диалог.
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("установка дедлайна: %w", err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP-клиент: %w", err)
	}
	defer client.Close()

	if s.useTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("аутентификация: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	msg := buildMessage(s.from, to, subject, body)
	if _, err := wc.Write([]byte(msg)); err != nil {
		wc.Close()
		return fmt.Errorf("запись тела письма: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("завершение письма: %w", err)
	}

	return client.Quit()
}

// buildMessage собирает RFC 5322 сообщение с заголовками.
func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}
