package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gomediahub/internal/domain/model"
)

// UploadRepository — хранилище загрузок галереи.
type UploadRepository interface {
	// Create сохраняет загрузку с заданным ID и заполняет CreatedAt.
	Create(ctx context.Context, upload *model.Upload) error
	// List возвращает все загрузки, новые первыми.
	List(ctx context.Context, limit, offset int) ([]*model.Upload, error)
	// ListByAccount возвращает загрузки одного аккаунта, новые первыми.
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*model.Upload, error)
	// Count возвращает общее число загрузок.
	Count(ctx context.Context) (int64, error)
	// CountBySentiment возвращает число загрузок по каждой метке тональности.
	CountBySentiment(ctx context.Context) (map[string]int64, error)
}

type uploadRepo struct {
	db DBTX
}

// NewUploadRepository создаёт хранилище загрузок.
func NewUploadRepository(db DBTX) UploadRepository {
	return &uploadRepo{db: db}
}

const uploadColumns = `id, account_id, title, description, sentiment, media_ref, created_at`

func (r *uploadRepo) Create(ctx context.Context, upload *model.Upload) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO uploads (id, account_id, title, description, sentiment, media_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		upload.ID, upload.AccountID, upload.Title, upload.Description, upload.Sentiment, upload.MediaRef,
	).Scan(&upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения загрузки: %w", err)
	}
	return nil
}

func (r *uploadRepo) List(ctx context.Context, limit, offset int) ([]*model.Upload, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка загрузок: %w", err)
	}
	defer rows.Close()
	return scanUploads(rows)
}

func (r *uploadRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*model.Upload, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+uploadColumns+` FROM uploads
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения загрузок аккаунта: %w", err)
	}
	defer rows.Close()
	return scanUploads(rows)
}

func (r *uploadRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта загрузок: %w", err)
	}
	return count, nil
}

func (r *uploadRepo) CountBySentiment(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sentiment, COUNT(*) FROM uploads GROUP BY sentiment`,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта загрузок по тональности: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var sentiment string
		var count int64
		if err := rows.Scan(&sentiment, &count); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки подсчёта: %w", err)
		}
		counts[sentiment] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода строк подсчёта: %w", err)
	}
	return counts, nil
}

func scanUploads(rows pgx.Rows) ([]*model.Upload, error) {
	var uploads []*model.Upload
	for rows.Next() {
		var u model.Upload
		err := rows.Scan(&u.ID, &u.AccountID, &u.Title, &u.Description,
			&u.Sentiment, &u.MediaRef, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения загрузки: %w", err)
		}
		uploads = append(uploads, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода загрузок: %w", err)
	}
	return uploads, nil
}
