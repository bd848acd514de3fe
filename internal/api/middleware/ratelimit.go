// ratelimit.go — ограничение частоты запросов к auth-endpoints по IP.
// Token bucket на клиента, защита от перебора паролей и кодов.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/gomediahub/internal/api/errors"
)

// Бездействующие клиенты выбрасываются из таблицы по TTL.
const visitorTTL = 10 * time.Minute

// visitor — лимитер одного клиента с отметкой последнего обращения.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — ограничитель частоты запросов по IP клиента.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewRateLimiter создаёт ограничитель: rps запросов в секунду
// с всплесками до burst на каждый IP.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With(slog.String("component", "rate_limiter")),
	}
}

// Middleware возвращает HTTP middleware, отвечающий 429 при превышении лимита.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			rl.logger.Warn("Превышен лимит запросов",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			apierrors.TooManyRequests(w, "слишком много запросов, повторите позже")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow регистрирует обращение клиента и проверяет лимит.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok {
		// Попутная уборка: выбрасываем давно молчащих клиентов,
		// отдельная goroutine не нужна.
		for addr, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) > visitorTTL {
				delete(rl.visitors, addr)
			}
		}
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// clientIP извлекает IP клиента: первый адрес X-Forwarded-For
// (за reverse proxy) или RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
