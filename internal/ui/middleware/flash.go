// flash.go — одноразовые flash-сообщения в cookie.
// Сообщение живёт один запрос: устанавливается при redirect,
// читается и гасится при отрисовке следующей страницы.
package middleware

import (
	"encoding/base64"
	"errors"
	"net/http"
)

// Имя cookie для flash-сообщения.
const FlashCookieName = "mediahub_flash"

// SetFlash устанавливает flash-сообщение для следующего запроса.
// Значение кодируется base64: в cookie нельзя класть пробелы и запятые.
func SetFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.URLEncoding.EncodeToString([]byte(message)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash читает flash-сообщение из запроса и гасит cookie.
// Возвращает пустую строку, если сообщения нет.
func PopFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			clearFlash(w)
		}
		return ""
	}
	clearFlash(w)

	decoded, err := base64.URLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func clearFlash(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
