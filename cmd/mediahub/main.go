// Точка входа Mediahub — ядро аутентификации и авторизации
// приложения для хранения контента. Загружает конфигурацию,
// подключается к PostgreSQL, применяет миграции, собирает сервисный
// слой (учётные записи, OTP, федерация, контент), запускает фоновые
// задачи (перечитывание allowlist, topologymetrics) и HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	apihandlers "github.com/bigkaa/gomediahub/internal/api/handlers"
	apimiddleware "github.com/bigkaa/gomediahub/internal/api/middleware"
	"github.com/bigkaa/gomediahub/internal/config"
	"github.com/bigkaa/gomediahub/internal/database"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/notify"
	"github.com/bigkaa/gomediahub/internal/repository"
	"github.com/bigkaa/gomediahub/internal/server"
	"github.com/bigkaa/gomediahub/internal/service"
	"github.com/bigkaa/gomediahub/internal/ui/auth"
	uihandlers "github.com/bigkaa/gomediahub/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/gomediahub/internal/ui/middleware"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Mediahub запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Allowlist администраторов: начальный снимок из переменной
	// окружения, затем периодическое перечитывание из .env файла.
	// Роль никогда не сохраняется в БД или сессии.
	adminEmails := cfg.AdminEmails
	if cfg.EnvFile != "" {
		if fileEmails, loadErr := rbac.LoadFromEnvFile(cfg.EnvFile); loadErr == nil && fileEmails != nil {
			adminEmails = fileEmails
		}
	}
	allowlist := rbac.NewAllowlist(adminEmails)
	logger.Info("Allowlist администраторов загружен", slog.Int("size", allowlist.Size()))

	reloader := rbac.NewReloader(allowlist, cfg.EnvFile, cfg.AllowlistReloadInterval, logger)
	go reloader.Run(ctx)

	// 6. Доставка одноразовых кодов: SMTP с деградацией в лог,
	// либо только лог, если SMTP не настроен.
	var sender notify.Sender
	if cfg.SMTPConfigured() {
		sender = notify.NewFallbackSender(
			notify.NewSMTPSender(cfg, logger),
			notify.NewLogSender(logger),
			logger,
		)
		logger.Info("Доставка кодов: SMTP", slog.String("host", cfg.SMTPHost))
	} else {
		sender = notify.NewLogSender(logger)
		logger.Warn("SMTP не настроен, коды подтверждения пишутся в лог")
	}

	// 7. Repositories
	accountRepo := repository.NewAccountRepository(pool)
	otpRepo := repository.NewOTPRepository(pool)
	uploadRepo := repository.NewUploadRepository(pool)
	chatRepo := repository.NewChatRepository(pool)

	// 7.1 Фоновая уборка истёкших одноразовых кодов.
	// Корректность проверок кода от неё не зависит, это только гигиена БД.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, gcErr := otpRepo.DeleteExpired(ctx, time.Now())
				if gcErr != nil {
					logger.Warn("Ошибка уборки истёкших кодов", slog.String("error", gcErr.Error()))
					continue
				}
				if deleted > 0 {
					logger.Debug("Истёкшие одноразовые коды удалены", slog.Int64("count", deleted))
				}
			}
		}
	}()

	// 8. Services
	accountSvc := service.NewAccountService(
		accountRepo, otpRepo, allowlist, sender,
		cfg.MinPasswordLength, cfg.OTPTTL, logger,
	)
	federationSvc := service.NewFederationService(accountRepo, logger)
	uploadSvc := service.NewUploadService(uploadRepo, logger)
	chatSvc := service.NewChatService(chatRepo, logger)
	statsSvc := service.NewStatsService(accountRepo, uploadRepo, chatRepo, logger)

	// 9. Сессии (AES-256-GCM cookie)
	sessionManager, err := auth.NewSessionManager(cfg.SessionKey, cfg.SecureCookies)
	if err != nil {
		logger.Error("Ошибка инициализации менеджера сессий", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Федерация через Google OIDC (опциональна)
	var (
		oidcClient      *auth.OIDCClient
		idTokenVerifier *auth.IDTokenVerifier
		jwksURL         string
	)
	if cfg.GoogleConfigured() {
		oidcClient = auth.NewOIDCClient(auth.OIDCConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		})
		idTokenVerifier, err = auth.NewIDTokenVerifier(
			auth.GoogleJWKSURL, auth.GoogleIssuer, cfg.GoogleClientID, logger,
		)
		if err != nil {
			logger.Error("Ошибка инициализации JWKS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		jwksURL = auth.GoogleJWKSURL
		logger.Info("Федерация Google включена")
	} else {
		logger.Info("Федерация Google не настроена, доступен только локальный вход")
	}

	// 11. Topologymetrics: PostgreSQL (critical) + JWKS провайдера (non-critical)
	dephealthSvc, err := service.NewDephealthService(
		"mediahub", cfg.DephealthGroup, pgDB, cfg.DatabaseDSN(),
		jwksURL, cfg.DephealthCheckInterval, logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации topologymetrics", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dephealthSvc.Stop()

	// 12. Handlers и guard-цепочки
	authHandler := uihandlers.NewAuthHandler(
		accountSvc, federationSvc, allowlist, sessionManager,
		oidcClient, idTokenVerifier,
		cfg.BaseURL, cfg.SecureCookies, logger,
	)
	contentHandler := uihandlers.NewContentHandler(uploadSvc, chatSvc, statsSvc, allowlist, logger)
	healthHandler := apihandlers.NewHealthHandler(database.NewReadinessChecker(pool))
	gate := uimiddleware.NewGate(sessionManager, accountSvc, allowlist, logger)
	authLimiter := apimiddleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, logger)

	// 13. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, server.Deps{
		AuthHandler:    authHandler,
		ContentHandler: contentHandler,
		HealthHandler:  healthHandler,
		Gate:           gate,
		AuthLimiter:    authLimiter,
	})

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
