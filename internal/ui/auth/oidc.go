// oidc.go — OIDC-клиент для входа через Google.
// Реализует Authorization Code Flow с PKCE (RFC 7636).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OIDC endpoints Google. Фиксированы в Google OpenID discovery document
// и меняются крайне редко, поэтому discovery на старте не выполняется.
const (
	GoogleAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL     = "https://oauth2.googleapis.com/token"
	GoogleJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	GoogleIssuer       = "https://accounts.google.com"
)

// OIDCClient — клиент для обмена с OAuth endpoints провайдера.
// Confidential client (с client_secret), дополнительно защищён PKCE.
type OIDCClient struct {
	// clientID — OAuth Client ID.
	clientID string
	// clientSecret — OAuth Client Secret.
	clientSecret string
	// authorizeURL — endpoint авторизации провайдера.
	authorizeURL string
	// tokenURL — endpoint обмена code → tokens.
	tokenURL string
	// httpClient — HTTP-клиент с таймаутом.
	httpClient *http.Client
}

// OIDCConfig — конфигурация OIDC-клиента.
type OIDCConfig struct {
	// ClientID — OAuth Client ID.
	ClientID string
	// ClientSecret — OAuth Client Secret.
	ClientSecret string
	// AuthorizeURL — endpoint авторизации. Пустое значение — Google.
	AuthorizeURL string
	// TokenURL — endpoint обмена кода. Пустое значение — Google.
	TokenURL string
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout).
	HTTPClient *http.Client
	// Timeout — таймаут HTTP-запросов (MH_OAUTH_TIMEOUT). Используется при HTTPClient == nil.
	Timeout time.Duration
}

// NewOIDCClient создаёт новый OIDC-клиент на основе конфигурации.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = GoogleAuthorizeURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OIDCClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authorizeURL: authorizeURL,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
	}
}

// PKCEParams — параметры PKCE для одного auth flow.
type PKCEParams struct {
	// CodeVerifier — случайная строка для PKCE (хранится в state cookie).
	CodeVerifier string
	// CodeChallenge — SHA-256 хеш code_verifier (отправляется в authorize URL).
	CodeChallenge string
}

// GeneratePKCE генерирует пару code_verifier / code_challenge (S256).
// code_verifier: 43-128 символов, base64url(random bytes).
// code_challenge: base64url(SHA-256(code_verifier)).
func GeneratePKCE() (*PKCEParams, error) {
	// 32 bytes → 43 символа base64url (без padding)
	verifierBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, verifierBytes); err != nil {
		return nil, fmt.Errorf("ошибка генерации code_verifier: %w", err)
	}
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	// code_challenge = base64url(SHA-256(code_verifier))
	hash := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEParams{
		CodeVerifier:  codeVerifier,
		CodeChallenge: codeChallenge,
	}, nil
}

// AuthorizeURL формирует URL для redirect пользователя на страницу входа провайдера.
// redirectURI — URL callback (например, http://localhost:8000/auth/google/callback).
// state — случайный state parameter для CSRF-защиты.
// codeChallenge — PKCE code_challenge (S256).
func (c *OIDCClient) AuthorizeURL(redirectURI, state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"scope":                 {"openid email profile"},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
	}
	return c.authorizeURL + "?" + params.Encode()
}

// TokenResponse — ответ от token endpoint провайдера.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

// TokenError — ошибка от token endpoint провайдера.
type TokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode обменивает authorization code на tokens через token endpoint.
// code — authorization code от callback провайдера.
// redirectURI — тот же redirect URI, что использовался в authorize URL.
// codeVerifier — PKCE code_verifier (из state cookie).
func (c *OIDCClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}

	return c.doTokenRequest(ctx, data)
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// doTokenRequest выполняет POST-запрос к token endpoint провайдера.
func (c *OIDCClient) doTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr TokenError
		if jsonErr := json.Unmarshal(body, &tokenErr); jsonErr == nil && tokenErr.Error != "" {
			return nil, fmt.Errorf("token endpoint error: %s — %s", tokenErr.Error, tokenErr.Description)
		}
		return nil, fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга token response: %w", err)
	}

	return &tokenResp, nil
}
