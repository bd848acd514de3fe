package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestSessionEncryptDecryptRoundTrip проверяет шифрование и дешифрование SessionData.
func TestSessionEncryptDecryptRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}

	original := NewSessionData("acc-12345", "user@example.com")

	// Шифруем
	encrypted, err := sm.Encrypt(original)
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	if encrypted == "" {
		t.Fatal("Зашифрованная строка пустая")
	}

	// Дешифруем
	decrypted, err := sm.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Ошибка дешифрования: %v", err)
	}

	// Сравниваем поля
	if decrypted.AccountID != original.AccountID {
		t.Errorf("AccountID: want %q, got %q", original.AccountID, decrypted.AccountID)
	}
	if decrypted.Email != original.Email {
		t.Errorf("Email: want %q, got %q", original.Email, decrypted.Email)
	}
	if decrypted.IssuedAt != original.IssuedAt {
		t.Errorf("IssuedAt: want %d, got %d", original.IssuedAt, decrypted.IssuedAt)
	}
	if decrypted.ExpiresAt != original.ExpiresAt {
		t.Errorf("ExpiresAt: want %d, got %d", original.ExpiresAt, decrypted.ExpiresAt)
	}
}

// TestSessionManagerWithStringKey проверяет инициализацию с произвольной строкой-ключом.
func TestSessionManagerWithStringKey(t *testing.T) {
	sm, err := NewSessionManager("my-secret-key-for-testing", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager с string-ключом: %v", err)
	}

	data := NewSessionData("acc-1", "user@example.com")

	encrypted, err := sm.Encrypt(data)
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	decrypted, err := sm.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Ошибка дешифрования: %v", err)
	}

	if decrypted.AccountID != data.AccountID {
		t.Errorf("AccountID: want %q, got %q", data.AccountID, decrypted.AccountID)
	}
}

// TestSessionDecryptWithWrongKey проверяет, что дешифрование чужим ключом не работает.
func TestSessionDecryptWithWrongKey(t *testing.T) {
	sm1, _ := NewSessionManager("key-one", false)
	sm2, _ := NewSessionManager("key-two", false)

	data := NewSessionData("acc-1", "user@example.com")
	encrypted, err := sm1.Encrypt(data)
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	// Попытка дешифрования другим ключом должна завершиться ошибкой
	_, err = sm2.Decrypt(encrypted)
	if err == nil {
		t.Error("Ожидалась ошибка при дешифровании чужим ключом")
	}
}

// TestSessionDecryptTampered проверяет, что подмена байтов cookie обнаруживается.
func TestSessionDecryptTampered(t *testing.T) {
	sm, _ := NewSessionManager("key-one", false)

	encrypted, err := sm.Encrypt(NewSessionData("acc-1", "user@example.com"))
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	// Портим последний символ base64
	tampered := encrypted[:len(encrypted)-2] + "AA"
	if _, err := sm.Decrypt(tampered); err == nil {
		t.Error("Ожидалась ошибка при дешифровании испорченных данных")
	}

	// Мусор вместо cookie
	if _, err := sm.Decrypt("not-a-session"); err == nil {
		t.Error("Ожидалась ошибка при дешифровании мусора")
	}
}

// TestSessionIsExpired проверяет логику проверки истечения сессии.
func TestSessionIsExpired(t *testing.T) {
	// Сессия, истёкшая в прошлом
	expired := &SessionData{
		ExpiresAt: time.Now().Add(-1 * time.Minute).Unix(),
	}
	if !expired.IsExpired() {
		t.Error("Ожидалось IsExpired()=true для истёкшей сессии")
	}

	// Живая сессия
	fresh := NewSessionData("acc-1", "user@example.com")
	if fresh.IsExpired() {
		t.Error("Ожидалось IsExpired()=false для новой сессии")
	}
}

// TestSessionCookieSetAndGet проверяет установку и чтение session cookie.
func TestSessionCookieSetAndGet(t *testing.T) {
	sm, err := NewSessionManager("cookie-test-key", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}

	data := NewSessionData("acc-42", "user@example.com")

	// Устанавливаем cookie
	rec := httptest.NewRecorder()
	if err := sm.SetSessionCookie(rec, data); err != nil {
		t.Fatalf("Ошибка установки cookie: %v", err)
	}

	cookies := rec.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			sessionCookie = c
			break
		}
	}
	if sessionCookie == nil {
		t.Fatal("Session cookie не установлен")
	}
	if !sessionCookie.HttpOnly {
		t.Error("Cookie должен быть HttpOnly")
	}
	if sessionCookie.Path != "/" {
		t.Errorf("Path: want %q, got %q", "/", sessionCookie.Path)
	}
	if sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Error("Cookie должен иметь SameSite=Lax")
	}

	// Читаем cookie из запроса
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(sessionCookie)

	got, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("Ошибка чтения сессии: %v", err)
	}
	if got == nil {
		t.Fatal("Сессия не прочитана")
	}
	if got.AccountID != data.AccountID {
		t.Errorf("AccountID: want %q, got %q", data.AccountID, got.AccountID)
	}
	if got.Email != data.Email {
		t.Errorf("Email: want %q, got %q", data.Email, got.Email)
	}
}

// TestSessionCookieMissing проверяет поведение при отсутствии cookie.
func TestSessionCookieMissing(t *testing.T) {
	sm, _ := NewSessionManager("cookie-test-key", false)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	got, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("Отсутствие cookie не должно быть ошибкой: %v", err)
	}
	if got != nil {
		t.Error("Сессия должна быть nil при отсутствии cookie")
	}
}

// TestClearSessionCookie проверяет удаление session cookie.
func TestClearSessionCookie(t *testing.T) {
	sm, _ := NewSessionManager("cookie-test-key", false)

	rec := httptest.NewRecorder()
	sm.ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			sessionCookie = c
			break
		}
	}
	if sessionCookie == nil {
		t.Fatal("Cookie удаления не установлен")
	}
	if sessionCookie.MaxAge != -1 {
		t.Errorf("MaxAge: want -1, got %d", sessionCookie.MaxAge)
	}
	if sessionCookie.Value != "" {
		t.Errorf("Value должен быть пустым, got %q", sessionCookie.Value)
	}
}
