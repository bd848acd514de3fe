package model

import "time"

// Допустимые метки тональности загрузки.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Upload — загрузка пользователя в галерею.
type Upload struct {
	// ID — UUID загрузки
	ID string
	// AccountID — владелец
	AccountID string
	// Title — заголовок
	Title string
	// Description — описание
	Description string
	// Sentiment — метка тональности (positive, neutral, negative)
	Sentiment string
	// MediaRef — ссылка на медиа-объект во внешнем хранилище
	MediaRef string
	// CreatedAt — время создания
	CreatedAt time.Time
}

// ChatMessage — сообщение чата поддержки.
type ChatMessage struct {
	// ID — UUID сообщения
	ID string
	// AccountID — владелец треда (пользователь, которому принадлежит диалог)
	AccountID string
	// SenderRole — кто отправил сообщение (user, admin)
	SenderRole string
	// Body — текст сообщения
	Body string
	// CreatedAt — время отправки
	CreatedAt time.Time
}

// IsValidSentiment проверяет, является ли строка допустимой меткой тональности.
func IsValidSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}
