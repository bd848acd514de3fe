package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
)

// AccountRepository — хранилище учётных записей.
// Email всегда нормализуется на входе; уникальность обеспечивается
// ограничением БД, а не предварительным SELECT.
type AccountRepository interface {
	// CreateLocal создаёт неподтверждённую учётную запись с паролем.
	// Возвращает ErrConflict, если email уже занят.
	CreateLocal(ctx context.Context, email, passwordHash string) (*model.Account, error)
	// CreateOrLinkOAuth атомарно создаёт подтверждённую учётную запись
	// по OAuth-утверждению или связывает существующую несвязанную.
	// Идемпотентна для одной и той же пары (email, subject); возвращает
	// ErrConflict, если email уже связан с другим subject.
	CreateOrLinkOAuth(ctx context.Context, email, subject string) (*model.Account, error)
	// UpdatePasswordHash заменяет хеш пароля учётной записи.
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
	// MarkVerified устанавливает verified=true. Идемпотентна.
	MarkVerified(ctx context.Context, email string) error
	// GetByEmail возвращает учётную запись по нормализованному email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetByID возвращает учётную запись по UUID.
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// Count возвращает количество учётных записей.
	Count(ctx context.Context) (int, error)
}

// accountRepo — реализация AccountRepository.
type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий учётных записей.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `id, email, password_hash, verified, oauth_subject, created_at, updated_at`

func (r *accountRepo) CreateLocal(ctx context.Context, email, passwordHash string) (*model.Account, error) {
	query := fmt.Sprintf(`
		INSERT INTO accounts (email, password_hash, verified)
		VALUES ($1, $2, FALSE)
		RETURNING %s`, accountColumns)

	acc := &model.Account{}
	err := scanAccount(r.db.QueryRow(ctx, query, rbac.NormalizeEmail(email), passwordHash), acc)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка создания учётной записи: %w", err)
	}
	return acc, nil
}

func (r *accountRepo) CreateOrLinkOAuth(ctx context.Context, email, subject string) (*model.Account, error) {
	// Единственный conditional insert-or-update по email: под конкурентными
	// первыми входами с одного провайдера не возникает дубликатов.
	// WHERE отфильтровывает учётные записи, уже связанные с ДРУГИМ subject:
	// в этом случае строка не возвращается и мы отвечаем ErrConflict.
	query := fmt.Sprintf(`
		INSERT INTO accounts (email, verified, oauth_subject)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (email) DO UPDATE SET
			oauth_subject = COALESCE(accounts.oauth_subject, EXCLUDED.oauth_subject),
			verified = TRUE,
			updated_at = now()
		WHERE accounts.oauth_subject IS NULL OR accounts.oauth_subject = EXCLUDED.oauth_subject
		RETURNING %s`, accountColumns)

	acc := &model.Account{}
	err := scanAccount(r.db.QueryRow(ctx, query, rbac.NormalizeEmail(email), subject), acc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка create-or-link учётной записи: %w", err)
	}
	return acc, nil
}

func (r *accountRepo) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE email = $1`,
		rbac.NormalizeEmail(email), passwordHash,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления хеша пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepo) MarkVerified(ctx context.Context, email string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET verified = TRUE, updated_at = now()
		WHERE email = $1`,
		rbac.NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("ошибка подтверждения учётной записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE email = $1`, accountColumns)

	acc := &model.Account{}
	err := scanAccount(r.db.QueryRow(ctx, query, rbac.NormalizeEmail(email)), acc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи по email: %w", err)
	}
	return acc, nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)

	acc := &model.Account{}
	err := scanAccount(r.db.QueryRow(ctx, query, id), acc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения учётной записи по id: %w", err)
	}
	return acc, nil
}

func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта учётных записей: %w", err)
	}
	return count, nil
}

// scanAccount читает строку accounts в модель.
func scanAccount(row pgx.Row, acc *model.Account) error {
	return row.Scan(
		&acc.ID, &acc.Email, &acc.PasswordHash, &acc.Verified,
		&acc.OAuthSubject, &acc.CreatedAt, &acc.UpdatedAt,
	)
}
