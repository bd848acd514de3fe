// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrDuplicateEmail — учётная запись с таким email уже существует.
	ErrDuplicateEmail = errors.New("учётная запись с таким email уже существует")
	// ErrWeakPassword — пароль короче настроенного минимума.
	ErrWeakPassword = errors.New("пароль слишком короткий")
	// ErrAdminEmailReserved — email входит в список администраторов:
	// локальная регистрация не может породить привилегированную учётную запись.
	ErrAdminEmailReserved = errors.New("email зарезервирован для администратора")
	// ErrInvalidCredentials — неизвестный email или неверный пароль.
	// Единая ошибка для обоих случаев, чтобы не раскрывать существование
	// учётной записи.
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrAccountUnverified — email учётной записи не подтверждён.
	ErrAccountUnverified = errors.New("email учётной записи не подтверждён")
	// ErrAlreadyVerified — email уже подтверждён.
	ErrAlreadyVerified = errors.New("email уже подтверждён")
	// ErrCodeNotFound — одноразовый код не найден.
	ErrCodeNotFound = errors.New("одноразовый код не найден")
	// ErrCodeExpired — срок действия одноразового кода истёк.
	ErrCodeExpired = errors.New("срок действия одноразового кода истёк")
	// ErrCodeAlreadyUsed — одноразовый код уже использован.
	ErrCodeAlreadyUsed = errors.New("одноразовый код уже использован")
	// ErrFederationFailed — сбой обмена с внешним провайдером идентификации.
	ErrFederationFailed = errors.New("сбой входа через внешнего провайдера")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
