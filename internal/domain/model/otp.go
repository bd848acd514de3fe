package model

import "time"

// OneTimeCode — одноразовый код подтверждения email.
// Код переходит consumed=false → true ровно один раз; повторное
// использование и использование после expires_at отклоняются.
type OneTimeCode struct {
	// ID — UUID записи
	ID string
	// Email — адрес, которому выдан код
	Email string
	// Code — числовой код фиксированной длины
	Code string
	// IssuedAt — время выдачи
	IssuedAt time.Time
	// ExpiresAt — IssuedAt + настроенный TTL
	ExpiresAt time.Time
	// Consumed — использован ли код
	Consumed bool
}

// Expired сообщает, истёк ли код на момент now.
func (c *OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
