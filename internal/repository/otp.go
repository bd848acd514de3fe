package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
)

// Ошибки проверки одноразовых кодов.
var (
	// ErrCodeNotFound — код для этой пары (email, code) не выдавался.
	ErrCodeNotFound = errors.New("одноразовый код не найден")
	// ErrCodeExpired — срок действия кода истёк.
	ErrCodeExpired = errors.New("срок действия одноразового кода истёк")
	// ErrCodeConsumed — код уже был использован.
	ErrCodeConsumed = errors.New("одноразовый код уже использован")
)

// OTPRepository — журнал одноразовых кодов подтверждения email.
type OTPRepository interface {
	// Insert сохраняет новый код. Ранее выданные коды не отзываются:
	// корректность обеспечивают проверки consumed/expires_at в Consume.
	Insert(ctx context.Context, otp *model.OneTimeCode) error
	// Consume атомарно потребляет код: единственный conditional UPDATE
	// по consumed = FALSE и expires_at > now. Из N конкурентных попыток
	// с одним кодом успешна ровно одна; остальные получают ErrCodeConsumed.
	// Возвращает ErrCodeNotFound / ErrCodeExpired / ErrCodeConsumed.
	Consume(ctx context.Context, email, code string, now time.Time) error
	// DeleteExpired удаляет коды с expires_at < before. Только уборка:
	// корректность проверок от неё не зависит.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// otpRepo — реализация OTPRepository.
type otpRepo struct {
	db DBTX
}

// NewOTPRepository создаёт журнал одноразовых кодов.
func NewOTPRepository(db DBTX) OTPRepository {
	return &otpRepo{db: db}
}

func (r *otpRepo) Insert(ctx context.Context, otp *model.OneTimeCode) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO one_time_codes (email, code, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rbac.NormalizeEmail(otp.Email), otp.Code, otp.IssuedAt, otp.ExpiresAt,
	).Scan(&otp.ID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения одноразового кода: %w", err)
	}
	return nil
}

func (r *otpRepo) Consume(ctx context.Context, email, code string, now time.Time) error {
	normalized := rbac.NormalizeEmail(email)

	// Атомарный check-and-set: условие consumed = FALSE гарантирует,
	// что два конкурентных запроса не потребят один код дважды.
	tag, err := r.db.Exec(ctx, `
		UPDATE one_time_codes SET consumed = TRUE
		WHERE email = $1 AND code = $2 AND consumed = FALSE AND expires_at > $3`,
		normalized, code, now,
	)
	if err != nil {
		return fmt.Errorf("ошибка потребления одноразового кода: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Потребить не удалось — классифицируем причину по последнему
	// выданному коду с этой парой (email, code).
	var consumed bool
	var expiresAt time.Time
	err = r.db.QueryRow(ctx, `
		SELECT consumed, expires_at FROM one_time_codes
		WHERE email = $1 AND code = $2
		ORDER BY issued_at DESC
		LIMIT 1`,
		normalized, code,
	).Scan(&consumed, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("ошибка классификации одноразового кода: %w", err)
	}

	// Непотреблённая и непросроченная строка не могла пройти мимо
	// UPDATE выше, так что остаются два случая.
	if consumed {
		return ErrCodeConsumed
	}
	return ErrCodeExpired
}

func (r *otpRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM one_time_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления истёкших кодов: %w", err)
	}
	return tag.RowsAffected(), nil
}
