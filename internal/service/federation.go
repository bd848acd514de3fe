// federation.go — вход через внешнего провайдера идентификации.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/repository"
)

// Identity — проверенное утверждение внешнего провайдера о пользователе.
type Identity struct {
	// Email — адрес из ID-токена
	Email string
	// EmailVerified — подтверждён ли адрес на стороне провайдера
	EmailVerified bool
	// Subject — стабильный идентификатор субъекта у провайдера (sub)
	Subject string
}

// FederationService — связывание внешних идентичностей с учётными записями.
type FederationService struct {
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewFederationService создаёт сервис федерации.
func NewFederationService(accounts repository.AccountRepository, logger *slog.Logger) *FederationService {
	return &FederationService{
		accounts: accounts,
		logger:   logger.With(slog.String("component", "federation_service")),
	}
}

// FederatedLogin создаёт учётную запись по утверждению провайдера или
// привязывает существующую. Любой дефект утверждения — ErrFederationFailed,
// без создания и изменения учётных записей. Привязка к email, уже
// связанному с другим субъектом, также отклоняется.
func (s *FederationService) FederatedLogin(ctx context.Context, identity *Identity) (*model.Account, error) {
	email := rbac.NormalizeEmail(identity.Email)
	if email == "" || identity.Subject == "" {
		return nil, fmt.Errorf("%w: неполное утверждение провайдера", ErrFederationFailed)
	}
	if !identity.EmailVerified {
		// Провайдер не подтвердил адрес — не доверяем утверждению.
		return nil, fmt.Errorf("%w: email не подтверждён провайдером", ErrFederationFailed)
	}

	acc, err := s.accounts.CreateOrLinkOAuth(ctx, email, identity.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("Попытка привязки к учётной записи с другим субъектом",
				slog.String("email", email))
			return nil, fmt.Errorf("%w: учётная запись связана с другой идентичностью", ErrFederationFailed)
		}
		return nil, fmt.Errorf("создание или привязка учётной записи: %w", err)
	}

	s.logger.Info("Вход через внешнего провайдера", slog.String("email", email))
	return acc, nil
}
