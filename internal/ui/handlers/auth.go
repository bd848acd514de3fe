// auth.go — обработчики аутентификации Mediahub:
// локальная регистрация с подтверждением email по одноразовому коду
// и федерация через Google OIDC (Authorization Code + PKCE).
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/gomediahub/internal/api/errors"
	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/service"
	"github.com/bigkaa/gomediahub/internal/ui/auth"
	"github.com/bigkaa/gomediahub/internal/ui/middleware"
)

// Имя cookie для хранения PKCE state (code_verifier + state).
const stateCookieName = "mediahub_auth_state"

// stateCookieMaxAge — максимальный возраст state cookie (5 минут).
const stateCookieMaxAge = 5 * 60

// AuthHandler — обработчики аутентификации.
type AuthHandler struct {
	accounts   *service.AccountService
	federation *service.FederationService
	allowlist  *rbac.Allowlist

	sessionManager *auth.SessionManager
	// oidcClient и idTokenVerifier — nil, если федерация Google не настроена.
	oidcClient      *auth.OIDCClient
	idTokenVerifier *auth.IDTokenVerifier

	// baseURL — внешний базовый URL сервиса; если пуст, определяется
	// из заголовков запроса (X-Forwarded-*).
	baseURL string
	// secureCookie — использовать Secure flag для state cookie.
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	accounts *service.AccountService,
	federation *service.FederationService,
	allowlist *rbac.Allowlist,
	sessionManager *auth.SessionManager,
	oidcClient *auth.OIDCClient,
	idTokenVerifier *auth.IDTokenVerifier,
	baseURL string,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts:        accounts,
		federation:      federation,
		allowlist:       allowlist,
		sessionManager:  sessionManager,
		oidcClient:      oidcClient,
		idTokenVerifier: idTokenVerifier,
		baseURL:         baseURL,
		secureCookie:    secureCookie,
		logger:          logger.With(slog.String("component", "ui_auth")),
	}
}

// accountResponse — представление учётной записи в ответах API.
// Роль вычисляется по allowlist в момент формирования ответа.
type accountResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Role     string `json:"role"`
}

func (h *AuthHandler) mapAccount(acc *model.Account) accountResponse {
	return accountResponse{
		ID:       acc.ID,
		Email:    acc.Email,
		Verified: acc.Verified,
		Role:     h.allowlist.Resolve(acc.Email),
	}
}

// credentialsRequest — тело запросов register и login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// verifyRequest — тело запроса verify.
type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// emailRequest — тело запроса resend.
type emailRequest struct {
	Email string `json:"email"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// HandleRegister — POST /auth/register.
// Создаёт неподтверждённую учётную запись и отправляет одноразовый код.
// Сессия не открывается до подтверждения email.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.Info("Учётная запись зарегистрирована", slog.String("email", acc.Email))
	writeJSON(w, http.StatusCreated, h.mapAccount(acc))
}

// HandleLogin — POST /auth/login.
// Вход по паролю. Открывает сессию только для подтверждённых учётных записей.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.openSession(w, acc); err != nil {
		return
	}

	h.logger.Info("Вход выполнен", slog.String("email", acc.Email))
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}

// HandleVerify — POST /auth/verify.
// Погашает одноразовый код, подтверждает email и открывает сессию.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.accounts.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.openSession(w, acc); err != nil {
		return
	}

	h.logger.Info("Email подтверждён", slog.String("email", acc.Email))
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}

// HandleResend — POST /auth/resend.
// Выпускает новый одноразовый код для неподтверждённой учётной записи.
func (h *AuthHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ResendOTP(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// HandleLogout — POST /auth/logout.
// Очищает session cookie. Идемпотентен.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe — GET /auth/me.
// Возвращает текущую учётную запись с ролью, вычисленной на момент запроса.
// Требует пройденный RequireVerified: учётная запись берётся из контекста.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		apierrors.Unauthorized(w, middleware.MsgLoginRequired)
		return
	}
	writeJSON(w, http.StatusOK, h.mapAccount(acc))
}

// stateData — данные, сохраняемые в state cookie на время auth flow.
type stateData struct {
	// State — CSRF state parameter.
	State string `json:"state"`
	// CodeVerifier — PKCE code_verifier для обмена code → tokens.
	CodeVerifier string `json:"code_verifier"`
}

// HandleGoogleLogin — GET /auth/google/login.
// Генерирует PKCE и state, сохраняет их в short-lived cookie,
// redirect на Google authorize endpoint.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidcClient == nil {
		apierrors.ServiceUnavailable(w, "Федерация через Google не настроена")
		return
	}

	pkce, err := auth.GeneratePKCE()
	if err != nil {
		h.logger.Error("Ошибка генерации PKCE", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	sd := &stateData{
		State:        state,
		CodeVerifier: pkce.CodeVerifier,
	}
	sdJSON, _ := json.Marshal(sd)
	sdEncoded := base64.URLEncoding.EncodeToString(sdJSON)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    sdEncoded,
		Path:     "/auth",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	authorizeURL := h.oidcClient.AuthorizeURL(h.buildRedirectURI(r), state, pkce.CodeChallenge)

	h.logger.Debug("Redirect на Google login",
		slog.String("authorize_url", authorizeURL),
	)

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleGoogleCallback — GET /auth/google/callback.
// Проверяет state, обменивает code на tokens, валидирует ID token,
// создаёт или связывает учётную запись и открывает сессию.
// При любой ошибке федерации учётные записи не изменяются.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidcClient == nil || h.idTokenVerifier == nil {
		apierrors.ServiceUnavailable(w, "Федерация через Google не настроена")
		return
	}

	// 1. Проверяем ошибку от провайдера
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		errDesc := r.URL.Query().Get("error_description")
		h.logger.Warn("Google вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", errDesc),
		)
		http.Error(w, fmt.Sprintf("Ошибка авторизации: %s — %s", errCode, errDesc), http.StatusBadRequest)
		return
	}

	// 2. Извлекаем authorization code и state
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "Отсутствует code или state", http.StatusBadRequest)
		return
	}

	// 3. Извлекаем и валидируем state cookie
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		h.logger.Warn("State cookie отсутствует", slog.String("error", err.Error()))
		http.Error(w, "Сессия авторизации истекла, попробуйте ещё раз", http.StatusBadRequest)
		return
	}

	sdJSON, err := base64.URLEncoding.DecodeString(stateCookie.Value)
	if err != nil {
		h.logger.Warn("Ошибка декодирования state cookie", slog.String("error", err.Error()))
		http.Error(w, "Некорректный state cookie", http.StatusBadRequest)
		return
	}

	var sd stateData
	if err := json.Unmarshal(sdJSON, &sd); err != nil {
		h.logger.Warn("Ошибка парсинга state cookie", slog.String("error", err.Error()))
		http.Error(w, "Некорректный state cookie", http.StatusBadRequest)
		return
	}

	// 4. Валидируем state (CSRF-защита)
	if sd.State != state {
		h.logger.Warn("State mismatch (возможная CSRF атака)",
			slog.String("expected", sd.State),
			slog.String("received", state),
		)
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	// 5. Удаляем state cookie (одноразовый)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	// 6. Обмениваем code на tokens
	tokenResp, err := h.oidcClient.ExchangeCode(r.Context(), code, h.buildRedirectURI(r), sd.CodeVerifier)
	if err != nil {
		h.logger.Error("Ошибка обмена code на tokens", slog.String("error", err.Error()))
		http.Error(w, "Ошибка аутентификации", http.StatusInternalServerError)
		return
	}

	// 7. Валидируем ID token (подпись, издатель, аудитория, срок)
	claims, err := h.idTokenVerifier.Verify(r.Context(), tokenResp.IDToken)
	if err != nil {
		h.logger.Warn("ID token не прошёл валидацию", slog.String("error", err.Error()))
		http.Error(w, "Ошибка аутентификации", http.StatusBadGateway)
		return
	}

	// 8. Создаём или связываем учётную запись
	acc, err := h.federation.FederatedLogin(r.Context(), &service.Identity{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Subject:       claims.Subject,
	})
	if err != nil {
		h.logger.Warn("Федеративный вход отклонён",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()),
		)
		middleware.SetFlash(w, middleware.MsgLoginRequired)
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}

	// 9. Открываем сессию
	if err := h.openSession(w, acc); err != nil {
		return
	}

	h.logger.Info("Федеративный вход выполнен",
		slog.String("email", acc.Email),
		slog.String("role", h.allowlist.Resolve(acc.Email)),
	)

	http.Redirect(w, r, "/gallery", http.StatusFound)
}

// openSession шифрует и устанавливает session cookie.
// Роль в сессию не записывается: она вычисляется при каждой проверке.
func (h *AuthHandler) openSession(w http.ResponseWriter, acc *model.Account) error {
	sd := auth.NewSessionData(acc.ID, acc.Email)
	if err := h.sessionManager.SetSessionCookie(w, sd); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка создания сессии")
		return err
	}
	return nil
}

// buildRedirectURI формирует callback redirect URI.
// Использует настроенный baseURL, иначе — заголовки запроса.
func (h *AuthHandler) buildRedirectURI(r *http.Request) string {
	return h.buildBaseURL(r) + "/auth/google/callback"
}

// buildBaseURL формирует базовый URL (scheme + host).
// Учитывает X-Forwarded-* заголовки от reverse proxy / API Gateway.
func (h *AuthHandler) buildBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}

	return scheme + "://" + host
}
