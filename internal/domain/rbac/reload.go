// reload.go — периодическое перечитывание allowlist из .env файла.
// Список администраторов редактируется без рестарта процесса: значение
// MH_ADMIN_EMAILS перечитывается из файла и атомарно подменяет снимок.
package rbac

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvAdminEmailsKey — ключ в .env файле со списком администраторов.
const EnvAdminEmailsKey = "MH_ADMIN_EMAILS"

// LoadFromEnvFile читает список администраторов из .env файла.
// Возвращает nil без ошибки, если ключ отсутствует или пуст.
func LoadFromEnvFile(path string) ([]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(values[EnvAdminEmailsKey])
	if raw == "" {
		return nil, nil
	}

	var emails []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

// Reloader — фоновое перечитывание allowlist из .env файла.
type Reloader struct {
	allowlist *Allowlist
	path      string
	interval  time.Duration
	logger    *slog.Logger
}

// NewReloader создаёт Reloader.
// interval <= 0 отключает перечитывание (Run сразу возвращается).
func NewReloader(allowlist *Allowlist, path string, interval time.Duration, logger *slog.Logger) *Reloader {
	return &Reloader{
		allowlist: allowlist,
		path:      path,
		interval:  interval,
		logger:    logger.With(slog.String("component", "allowlist_reloader")),
	}
}

// Run перечитывает allowlist с заданным интервалом до отмены контекста.
// Ошибка чтения файла не фатальна: действующим остаётся прежний снимок.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 || r.path == "" {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emails, err := LoadFromEnvFile(r.path)
			if err != nil {
				r.logger.Warn("Ошибка перечитывания allowlist, действует прежний снимок",
					slog.String("path", r.path),
					slog.String("error", err.Error()),
				)
				continue
			}

			before := r.allowlist.Size()
			r.allowlist.Replace(emails)

			if len(emails) != before {
				r.logger.Info("Allowlist администраторов обновлён",
					slog.Int("size", len(emails)),
				)
			}
		}
	}
}
