// Пакет middleware — HTTP middleware Mediahub: охрана защищённых маршрутов.
// auth.go — цепочка проверок доступа: аутентификация, подтверждение email,
// роль. Проверки упорядочены и не дублируются обработчиками.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/gomediahub/internal/api/errors"
	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/repository"
	"github.com/bigkaa/gomediahub/internal/ui/auth"
)

// Стабильные пользовательские сообщения об отказе в доступе.
const (
	MsgLoginRequired  = "Please log in to access this page."
	MsgVerifyRequired = "Please verify your email before accessing this page."
	MsgAdminRequired  = "Admin access required."
)

// contextKey — тип для ключей контекста (избегаем коллизий между пакетами).
type contextKey string

const (
	// ContextKeySession — данные сессии в контексте запроса.
	ContextKeySession contextKey = "session"
	// ContextKeyAccount — учётная запись, перечитанная из хранилища.
	ContextKeyAccount contextKey = "account"
)

// AccountReader — читает учётную запись при каждой проверке доступа.
// Кешировать verified в сессии нельзя: состояние меняется между запросами.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
}

// Gate — цепочка проверок доступа к защищённым маршрутам.
// Порядок фиксирован: сначала аутентификация и подтверждение email
// (RequireVerified), затем роль (RequireAdmin / RequireUserOnly).
type Gate struct {
	sessionManager *auth.SessionManager
	accounts       AccountReader
	allowlist      *rbac.Allowlist
	logger         *slog.Logger
}

// NewGate создаёт цепочку проверок доступа.
func NewGate(
	sessionManager *auth.SessionManager,
	accounts AccountReader,
	allowlist *rbac.Allowlist,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		sessionManager: sessionManager,
		accounts:       accounts,
		allowlist:      allowlist,
		logger:         logger.With(slog.String("component", "access_gate")),
	}
}

// isAPIRequest определяет, как отвечать на отказ: API-клиенты получают
// структурированный JSON, браузер — flash и redirect.
func isAPIRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// RequireVerified — первая ступень: аутентифицированный принципал
// с подтверждённым email. Учётная запись перечитывается из хранилища
// при каждом запросе; ошибка хранилища закрывает доступ, а не открывает.
func (g *Gate) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Извлекаем сессию из cookie
		session, err := g.sessionManager.GetSessionFromRequest(r)
		if err != nil {
			g.logger.Debug("Ошибка чтения сессии",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr),
			)
			// Повреждённый cookie — очищаем и отказываем
			g.sessionManager.ClearSessionCookie(w)
			g.unauthenticated(w, r)
			return
		}
		if session == nil || session.IsExpired() {
			g.unauthenticated(w, r)
			return
		}

		// 2. Перечитываем учётную запись: сессия могла пережить
		// удаление записи, флаг verified мог измениться.
		acc, err := g.accounts.GetByID(r.Context(), session.AccountID)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrNotFound):
			// Запись удалили, а сессия пережила её.
			g.sessionManager.ClearSessionCookie(w)
			g.unauthenticated(w, r)
			return
		default:
			g.logger.Error("Ошибка чтения учётной записи при проверке доступа",
				slog.String("account_id", session.AccountID),
				slog.String("error", err.Error()),
			)
			// Недоступность хранилища закрывает доступ, а не открывает.
			g.storeFailure(w, r)
			return
		}

		// 3. Подтверждение email
		if !acc.Verified {
			g.unverified(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, session)
		ctx = context.WithValue(ctx, ContextKeyAccount, acc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin — вторая ступень: роль admin по текущему списку
// администраторов. Всегда навешивается ПОСЛЕ RequireVerified.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromContext(r.Context())
		if acc == nil {
			// RequireAdmin без RequireVerified — ошибка сборки маршрутов.
			g.logger.Error("RequireAdmin вызван без RequireVerified",
				slog.String("path", r.URL.Path))
			g.unauthenticated(w, r)
			return
		}
		if g.allowlist.Resolve(acc.Email) != rbac.RoleAdmin {
			g.forbidden(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUserOnly — операции только для обычных пользователей:
// администраторы перенаправляются в свою панель.
func (g *Gate) RequireUserOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromContext(r.Context())
		if acc == nil {
			g.unauthenticated(w, r)
			return
		}
		if g.allowlist.Resolve(acc.Email) == rbac.RoleAdmin {
			if isAPIRequest(r) {
				apierrors.Forbidden(w, "операция доступна только пользователям")
				return
			}
			http.Redirect(w, r, "/api/admin/stats", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		apierrors.Unauthorized(w, MsgLoginRequired)
		return
	}
	SetFlash(w, MsgLoginRequired)
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

func (g *Gate) unverified(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		apierrors.Unverified(w, MsgVerifyRequired)
		return
	}
	SetFlash(w, MsgVerifyRequired)
	http.Redirect(w, r, "/auth/verify", http.StatusFound)
}

func (g *Gate) forbidden(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		apierrors.Forbidden(w, MsgAdminRequired)
		return
	}
	SetFlash(w, MsgAdminRequired)
	http.Redirect(w, r, "/gallery", http.StatusFound)
}

func (g *Gate) storeFailure(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		apierrors.ServiceUnavailable(w, "проверка доступа временно невозможна")
		return
	}
	SetFlash(w, MsgLoginRequired)
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil если запрос не прошёл через RequireVerified.
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeySession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}

// AccountFromContext извлекает перечитанную учётную запись из контекста.
// Возвращает nil если запрос не прошёл через RequireVerified.
func AccountFromContext(ctx context.Context) *model.Account {
	acc, ok := ctx.Value(ContextKeyAccount).(*model.Account)
	if !ok {
		return nil
	}
	return acc
}
