// Пакет model — доменные модели Mediahub.
package model

import "time"

// Account — учётная запись пользователя.
// Роль НЕ хранится в учётной записи: она вычисляется при каждой проверке
// через rbac.Allowlist по email (см. internal/domain/rbac).
type Account struct {
	// ID — UUID учётной записи, назначается при создании
	ID string
	// Email — нормализованный адрес (trim + lowercase), уникальный
	Email string
	// PasswordHash — bcrypt-хеш пароля; nil для OAuth-only учётных записей
	PasswordHash *string
	// Verified — подтверждён ли email (false при локальной регистрации,
	// true сразу для учётных записей, созданных через OAuth)
	Verified bool
	// OAuthSubject — идентификатор субъекта у внешнего провайдера (sub);
	// nil если учётная запись не связана с провайдером
	OAuthSubject *string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// HasUsablePassword сообщает, можно ли войти в учётную запись по паролю.
func (a *Account) HasUsablePassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}
