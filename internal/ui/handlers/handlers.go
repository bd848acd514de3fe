// Пакет handlers — HTTP-обработчики Mediahub: аутентификация,
// галерея, чат поддержки, административная статистика.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/gomediahub/internal/api/errors"
	"github.com/bigkaa/gomediahub/internal/service"
)

// writeJSON сериализует data в тело ответа с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parsePagination извлекает limit и offset из query-параметров.
// Некорректные значения игнорируются, нормализация — на стороне сервиса.
func parsePagination(r *http.Request) (limit, offset int) {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrWeakPassword):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrAdminEmailReserved):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrDuplicateEmail):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.InvalidCredentials(w, err.Error())
	case errors.Is(err, service.ErrAccountUnverified):
		apierrors.Unverified(w, err.Error())
	case errors.Is(err, service.ErrAlreadyVerified):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrCodeNotFound),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrCodeAlreadyUsed):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrFederationFailed):
		apierrors.FederationFailed(w, err.Error())
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
