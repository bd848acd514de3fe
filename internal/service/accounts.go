// Пакет service — бизнес-логика Mediahub.
// accounts.go — жизненный цикл локальных учётных записей:
// регистрация, вход по паролю, подтверждение email одноразовым кодом.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/notify"
	"github.com/bigkaa/gomediahub/internal/repository"
)

// otpLength — длина числового одноразового кода.
const otpLength = 6

// dummyHash — bcrypt-хеш случайной строки. Сравнение с ним при
// неизвестном email выравнивает время ответа, чтобы по задержке
// нельзя было определить существование учётной записи.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("mediahub-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("инициализация dummy-хеша: %v", err))
	}
	return h
}()

// AccountService — сервис учётных записей.
type AccountService struct {
	accounts   repository.AccountRepository
	otps       repository.OTPRepository
	allowlist  *rbac.Allowlist
	sender     notify.Sender
	minPassLen int
	otpTTL     time.Duration
	logger     *slog.Logger
}

// NewAccountService создаёт сервис учётных записей.
func NewAccountService(
	accounts repository.AccountRepository,
	otps repository.OTPRepository,
	allowlist *rbac.Allowlist,
	sender notify.Sender,
	minPassLen int,
	otpTTL time.Duration,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:   accounts,
		otps:       otps,
		allowlist:  allowlist,
		sender:     sender,
		minPassLen: minPassLen,
		otpTTL:     otpTTL,
		logger:     logger.With(slog.String("component", "account_service")),
	}
}

// Register регистрирует локальную учётную запись и отправляет код
// подтверждения. Повторная регистрация НЕподтверждённой учётной записи
// обновляет хеш пароля и выдаёт новый код; подтверждённая —
// ErrDuplicateEmail. Email из списка администраторов отклоняется:
// локальная регистрация никогда не создаёт привилегированную
// учётную запись.
func (s *AccountService) Register(ctx context.Context, email, password string) (*model.Account, error) {
	email = rbac.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	if len(password) < s.minPassLen {
		return nil, ErrWeakPassword
	}
	if s.allowlist.Contains(email) {
		return nil, ErrAdminEmailReserved
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Verified {
			return nil, ErrDuplicateEmail
		}
		// Неподтверждённая учётная запись: пользователь регистрируется
		// заново — обновляем пароль и выдаём новый код.
		if err := s.accounts.UpdatePasswordHash(ctx, email, string(hash)); err != nil {
			return nil, fmt.Errorf("обновление пароля: %w", err)
		}
		if err := s.issueOTP(ctx, email); err != nil {
			return nil, err
		}
		s.logger.Info("Повторная регистрация неподтверждённой учётной записи",
			slog.String("email", email))
		return existing, nil

	case errors.Is(err, repository.ErrNotFound):
		acc, err := s.accounts.CreateLocal(ctx, email, string(hash))
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Гонка с параллельной регистрацией того же email.
				return nil, ErrDuplicateEmail
			}
			return nil, fmt.Errorf("создание учётной записи: %w", err)
		}
		if err := s.issueOTP(ctx, email); err != nil {
			return nil, err
		}
		s.logger.Info("Учётная запись зарегистрирована", slog.String("email", email))
		return acc, nil

	default:
		return nil, fmt.Errorf("поиск учётной записи: %w", err)
	}
}

// Login проверяет пароль. Неизвестный email, учётная запись без пароля
// (только OAuth) и неверный пароль дают одинаковую ErrInvalidCredentials.
// Неподтверждённая учётная запись с верным паролем — ErrAccountUnverified.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.Account, error) {
	email = rbac.NormalizeEmail(email)

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Выравнивание времени ответа.
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password)) //nolint:errcheck
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск учётной записи: %w", err)
	}

	if !acc.HasUsablePassword() {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password)) //nolint:errcheck
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !acc.Verified {
		return nil, ErrAccountUnverified
	}

	s.logger.Info("Вход по паролю", slog.String("email", email))
	return acc, nil
}

// VerifyEmail потребляет одноразовый код и подтверждает email.
// При гонке двух запросов с одним кодом успешен ровно один.
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string) (*model.Account, error) {
	email = rbac.NormalizeEmail(email)

	err := s.otps.Consume(ctx, email, code, time.Now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCodeNotFound):
		return nil, ErrCodeNotFound
	case errors.Is(err, repository.ErrCodeExpired):
		return nil, ErrCodeExpired
	case errors.Is(err, repository.ErrCodeConsumed):
		return nil, ErrCodeAlreadyUsed
	default:
		return nil, fmt.Errorf("потребление кода: %w", err)
	}

	if err := s.accounts.MarkVerified(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("подтверждение email: %w", err)
	}

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("чтение учётной записи: %w", err)
	}

	s.logger.Info("Email подтверждён", slog.String("email", email))
	return acc, nil
}

// ResendOTP выдаёт новый код для неподтверждённой учётной записи.
// Ранее выданные коды остаются действительными до истечения срока.
func (s *AccountService) ResendOTP(ctx context.Context, email string) error {
	email = rbac.NormalizeEmail(email)

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("поиск учётной записи: %w", err)
	}
	if acc.Verified {
		return ErrAlreadyVerified
	}

	return s.issueOTP(ctx, email)
}

// GetByID возвращает учётную запись по идентификатору.
func (s *AccountService) GetByID(ctx context.Context, id string) (*model.Account, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение учётной записи: %w", err)
	}
	return acc, nil
}

// issueOTP генерирует код, сохраняет его и отправляет пользователю.
// Сбой доставки не прерывает операцию: транспорт сам деградирует
// к журналу (см. notify.FallbackSender), остальные ошибки пишем в Warn.
func (s *AccountService) issueOTP(ctx context.Context, email string) error {
	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("генерация кода: %w", err)
	}

	now := time.Now()
	otp := &model.OneTimeCode{
		Email:     email,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.otpTTL),
	}
	if err := s.otps.Insert(ctx, otp); err != nil {
		return fmt.Errorf("сохранение кода: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code, s.otpTTL); err != nil {
		s.logger.Warn("Сбой доставки кода подтверждения",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// generateOTP возвращает криптографически случайный числовой код
// фиксированной длины, с ведущими нулями.
func generateOTP() (string, error) {
	maxCode := big.NewInt(1)
	for i := 0; i < otpLength; i++ {
		maxCode.Mul(maxCode, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, maxCode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}
