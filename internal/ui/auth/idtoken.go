// idtoken.go — проверка подписи и claims ID-токена провайдера.
// Ключи подписи берутся из JWKS endpoint с фоновым обновлением.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Интервал фонового обновления JWKS.
const jwksRefreshInterval = 1 * time.Hour

// Допуск на рассинхронизацию часов при проверке exp/iat.
const idTokenLeeway = 30 * time.Second

// IDTokenClaims — интересующие нас claims ID-токена.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	// Email — адрес пользователя по утверждению провайдера.
	Email string `json:"email"`
	// EmailVerified — подтвердил ли провайдер этот адрес.
	EmailVerified bool `json:"email_verified"`
}

// IDTokenVerifier проверяет подпись, издателя и аудиторию ID-токена.
type IDTokenVerifier struct {
	jwks keyfunc.Keyfunc
	// issuers — допустимые значения iss. Google выдаёт как
	// "https://accounts.google.com", так и "accounts.google.com".
	issuers  []string
	audience string
	logger   *slog.Logger
}

// NewIDTokenVerifier создаёт верификатор с JWKS по URL.
// jwksURL — endpoint ключей подписи провайдера.
// audience — наш OAuth Client ID (claim aud).
func NewIDTokenVerifier(jwksURL, issuer, audience string, logger *slog.Logger) (*IDTokenVerifier, error) {
	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если провайдер ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return newIDTokenVerifier(kf, issuer, audience, logger), nil
}

// NewIDTokenVerifierWithKeyfunc создаёт верификатор с предоставленной keyfunc.
// Используется в тестах для подстановки локальных ключей.
func NewIDTokenVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer, audience string, logger *slog.Logger) *IDTokenVerifier {
	return newIDTokenVerifier(kf, issuer, audience, logger)
}

func newIDTokenVerifier(kf keyfunc.Keyfunc, issuer, audience string, logger *slog.Logger) *IDTokenVerifier {
	issuers := []string{issuer}
	if issuer == GoogleIssuer {
		issuers = append(issuers, "accounts.google.com")
	}
	return &IDTokenVerifier{
		jwks:     kf,
		issuers:  issuers,
		audience: audience,
		logger:   logger.With(slog.String("component", "idtoken_verifier")),
	}
}

// Verify проверяет ID-токен и возвращает его claims.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawToken string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, v.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(idTokenLeeway),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("проверка ID-токена: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("ID-токен не прошёл проверку")
	}

	// Издателя проверяем вручную: допустимы два варианта iss.
	issuerOK := false
	for _, iss := range v.issuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("недопустимый издатель ID-токена: %q", claims.Issuer)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("ID-токен без subject")
	}

	return claims, nil
}
