// stats.go — агрегированная статистика для административной панели.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/gomediahub/internal/repository"
)

// Stats — сводка по содержимому Mediahub.
type Stats struct {
	// Accounts — число учётных записей
	Accounts int `json:"accounts"`
	// Uploads — общее число загрузок
	Uploads int64 `json:"uploads"`
	// UploadsBySentiment — число загрузок по каждой метке тональности
	UploadsBySentiment map[string]int64 `json:"uploads_by_sentiment"`
	// ChatMessages — общее число сообщений чата
	ChatMessages int64 `json:"chat_messages"`
}

// StatsService — сервис статистики.
type StatsService struct {
	accounts repository.AccountRepository
	uploads  repository.UploadRepository
	chat     repository.ChatRepository
	logger   *slog.Logger
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(
	accounts repository.AccountRepository,
	uploads repository.UploadRepository,
	chat repository.ChatRepository,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		accounts: accounts,
		uploads:  uploads,
		chat:     chat,
		logger:   logger.With(slog.String("component", "stats_service")),
	}
}

// Collect собирает сводку по учётным записям, загрузкам и чату.
func (s *StatsService) Collect(ctx context.Context) (*Stats, error) {
	accounts, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт учётных записей: %w", err)
	}
	uploads, err := s.uploads.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт загрузок: %w", err)
	}
	bySentiment, err := s.uploads.CountBySentiment(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт по тональности: %w", err)
	}
	messages, err := s.chat.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт сообщений: %w", err)
	}

	return &Stats{
		Accounts:           accounts,
		Uploads:            uploads,
		UploadsBySentiment: bySentiment,
		ChatMessages:       messages,
	}, nil
}
