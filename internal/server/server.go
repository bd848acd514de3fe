// Пакет server — HTTP-сервер Mediahub с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apihandlers "github.com/bigkaa/gomediahub/internal/api/handlers"
	apimiddleware "github.com/bigkaa/gomediahub/internal/api/middleware"
	"github.com/bigkaa/gomediahub/internal/config"
	uihandlers "github.com/bigkaa/gomediahub/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/gomediahub/internal/ui/middleware"
)

// Deps — зависимости сервера: обработчики и guard-цепочки.
type Deps struct {
	AuthHandler    *uihandlers.AuthHandler
	ContentHandler *uihandlers.ContentHandler
	HealthHandler  *apihandlers.HealthHandler
	Gate           *uimiddleware.Gate
	// AuthLimiter — rate limiter для /auth/* (защита OTP и паролей
	// от перебора). Может быть nil в тестах.
	AuthLimiter *apimiddleware.RateLimiter
}

// Server — HTTP-сервер Mediahub.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	router := NewRouter(logger, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает таблицу маршрутов.
// Вынесен из New для использования в httptest.
func NewRouter(logger *slog.Logger, deps Deps) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(apimiddleware.MetricsMiddleware())
	router.Use(apimiddleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)

	// Health и metrics — публичные, проверяются Kubernetes напрямую
	router.Get("/health/live", deps.HealthHandler.HealthLive)
	router.Get("/health/ready", deps.HealthHandler.HealthReady)
	router.Get("/metrics", deps.HealthHandler.GetMetrics)

	// Аутентификация — публичные маршруты под rate limiter
	router.Group(func(r chi.Router) {
		if deps.AuthLimiter != nil {
			r.Use(deps.AuthLimiter.Middleware)
		}
		r.Post("/auth/register", deps.AuthHandler.HandleRegister)
		r.Post("/auth/login", deps.AuthHandler.HandleLogin)
		r.Post("/auth/verify", deps.AuthHandler.HandleVerify)
		r.Post("/auth/resend", deps.AuthHandler.HandleResend)
		r.Get("/auth/google/login", deps.AuthHandler.HandleGoogleLogin)
		r.Get("/auth/google/callback", deps.AuthHandler.HandleGoogleCallback)
	})

	router.Post("/auth/logout", deps.AuthHandler.HandleLogout)

	// Подтверждённые учётные записи: сессия + перечитывание из хранилища
	router.Group(func(r chi.Router) {
		r.Use(deps.Gate.RequireVerified)

		r.Get("/auth/me", deps.AuthHandler.HandleMe)
		r.Get("/gallery", deps.ContentHandler.HandleGallery)
		r.Get("/api/uploads", deps.ContentHandler.HandleListUploads)
		r.Get("/api/chat", deps.ContentHandler.HandleListChat)
		r.Post("/api/chat", deps.ContentHandler.HandlePostChat)

		// Создание загрузок — только для обычных пользователей
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.RequireUserOnly)
			r.Post("/api/uploads", deps.ContentHandler.HandleCreateUpload)
		})

		// Административные маршруты: роль вычисляется на каждый запрос
		r.Group(func(r chi.Router) {
			r.Use(deps.Gate.RequireAdmin)
			r.Get("/api/admin/stats", deps.ContentHandler.HandleAdminStats)
			r.Get("/api/admin/chat", deps.ContentHandler.HandleAdminChat)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
