// content.go — контент-сервисы: галерея загрузок и чат поддержки.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/repository"
)

// Границы пагинации списков.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// clampPage приводит limit/offset к допустимым границам.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// UploadService — сервис галереи загрузок.
type UploadService struct {
	uploads repository.UploadRepository
	logger  *slog.Logger
}

// NewUploadService создаёт сервис галереи.
func NewUploadService(uploads repository.UploadRepository, logger *slog.Logger) *UploadService {
	return &UploadService{
		uploads: uploads,
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// Create сохраняет загрузку пользователя.
func (s *UploadService) Create(ctx context.Context, accountID, title, description, sentiment, mediaRef string) (*model.Upload, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: пустой заголовок", ErrValidation)
	}
	if !model.IsValidSentiment(sentiment) {
		return nil, fmt.Errorf("%w: недопустимая метка тональности %q", ErrValidation, sentiment)
	}
	if strings.TrimSpace(mediaRef) == "" {
		return nil, fmt.Errorf("%w: пустая ссылка на медиа", ErrValidation)
	}

	up := &model.Upload{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Sentiment:   sentiment,
		MediaRef:    mediaRef,
	}
	if err := s.uploads.Create(ctx, up); err != nil {
		return nil, fmt.Errorf("сохранение загрузки: %w", err)
	}

	s.logger.Info("Загрузка добавлена",
		slog.String("account_id", accountID),
		slog.String("upload_id", up.ID),
	)
	return up, nil
}

// Gallery возвращает общую ленту загрузок, новые первыми.
func (s *UploadService) Gallery(ctx context.Context, limit, offset int) ([]*model.Upload, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.uploads.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение галереи: %w", err)
	}
	return list, nil
}

// ListByAccount возвращает загрузки одного пользователя.
func (s *UploadService) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*model.Upload, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.uploads.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение загрузок аккаунта: %w", err)
	}
	return list, nil
}

// ChatService — сервис чата поддержки.
type ChatService struct {
	chat   repository.ChatRepository
	logger *slog.Logger
}

// NewChatService создаёт сервис чата.
func NewChatService(chat repository.ChatRepository, logger *slog.Logger) *ChatService {
	return &ChatService{
		chat:   chat,
		logger: logger.With(slog.String("component", "chat_service")),
	}
}

// Post добавляет сообщение в тред аккаунта accountID от имени senderEmail.
// Роль отправителя вычисляется по текущему списку администраторов,
// никогда не принимается от клиента.
func (s *ChatService) Post(ctx context.Context, accountID, senderEmail, body string, allowlist *rbac.Allowlist) (*model.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: пустое сообщение", ErrValidation)
	}

	msg := &model.ChatMessage{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		SenderRole: allowlist.Resolve(senderEmail),
		Body:       body,
	}
	if err := s.chat.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("сохранение сообщения: %w", err)
	}
	return msg, nil
}

// Thread возвращает тред одного аккаунта в хронологическом порядке.
func (s *ChatService) Thread(ctx context.Context, accountID string, limit, offset int) ([]*model.ChatMessage, error) {
	limit, offset = clampPage(limit, offset)
	msgs, err := s.chat.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение треда: %w", err)
	}
	return msgs, nil
}

// AllThreads возвращает сообщения всех тредов, новые первыми.
// Используется только административной панелью.
func (s *ChatService) AllThreads(ctx context.Context, limit, offset int) ([]*model.ChatMessage, error) {
	limit, offset = clampPage(limit, offset)
	msgs, err := s.chat.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение всех тредов: %w", err)
	}
	return msgs, nil
}
