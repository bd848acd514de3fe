package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/gomediahub/internal/domain/model"
)

// ChatRepository — хранилище сообщений чата поддержки.
// Каждый тред привязан к аккаунту пользователя; администратор
// отвечает в чужих тредах с sender_role = admin.
type ChatRepository interface {
	// Create сохраняет сообщение с заданным ID и заполняет CreatedAt.
	Create(ctx context.Context, msg *model.ChatMessage) error
	// ListByAccount возвращает сообщения треда аккаунта в хронологическом порядке.
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*model.ChatMessage, error)
	// ListAll возвращает сообщения всех тредов, новые первыми.
	ListAll(ctx context.Context, limit, offset int) ([]*model.ChatMessage, error)
	// Count возвращает общее число сообщений.
	Count(ctx context.Context) (int64, error)
}

type chatRepo struct {
	db DBTX
}

// NewChatRepository создаёт хранилище сообщений чата.
func NewChatRepository(db DBTX) ChatRepository {
	return &chatRepo{db: db}
}

const chatColumns = `id, account_id, sender_role, body, created_at`

func (r *chatRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO chat_messages (id, account_id, sender_role, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		msg.ID, msg.AccountID, msg.SenderRole, msg.Body,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сообщения чата: %w", err)
	}
	return nil
}

func (r *chatRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*model.ChatMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chatColumns+` FROM chat_messages
		WHERE account_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сообщений треда: %w", err)
	}
	defer rows.Close()
	return scanChatMessages(rows)
}

func (r *chatRepo) ListAll(ctx context.Context, limit, offset int) ([]*model.ChatMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chatColumns+` FROM chat_messages
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения всех сообщений: %w", err)
	}
	defer rows.Close()
	return scanChatMessages(rows)
}

func (r *chatRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сообщений: %w", err)
	}
	return count, nil
}

func scanChatMessages(rows pgx.Rows) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		err := rows.Scan(&m.ID, &m.AccountID, &m.SenderRole, &m.Body, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения сообщения чата: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода сообщений чата: %w", err)
	}
	return msgs, nil
}
