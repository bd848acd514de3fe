// Пакет notify — порт уведомлений: доставка одноразовых кодов пользователю.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Sender — транспорт доставки одноразового кода.
type Sender interface {
	// SendOTP доставляет код подтверждения на адрес email.
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// LogSender пишет код в журнал вместо отправки письма.
// Используется в разработке и как резервный транспорт при сбое SMTP.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender создаёт журнальный транспорт.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "notify_log"))}
}

func (s *LogSender) SendOTP(_ context.Context, email, code string, ttl time.Duration) error {
	s.logger.Info("Одноразовый код подтверждения (SMTP не используется)",
		slog.String("email", email),
		slog.String("code", code),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// FallbackSender пробует основной транспорт и при ошибке
// деградирует к резервному. Сбой доставки не прерывает регистрацию.
type FallbackSender struct {
	primary  Sender
	fallback Sender
	logger   *slog.Logger
}

// NewFallbackSender создаёт транспорт с резервом.
func NewFallbackSender(primary, fallback Sender, logger *slog.Logger) *FallbackSender {
	return &FallbackSender{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "notify_fallback")),
	}
}

func (s *FallbackSender) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	err := s.primary.SendOTP(ctx, email, code, ttl)
	if err == nil {
		return nil
	}
	s.logger.Warn("Сбой основного транспорта доставки, переключаемся на резервный",
		slog.String("email", email),
		slog.String("error", err.Error()),
	)
	return s.fallback.SendOTP(ctx, email, code, ttl)
}
