package service

import (
	"context"
	"errors"
	"testing"
)

func TestFederatedLogin(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := NewFederationService(accounts, testLogger())
	ctx := context.Background()

	// Новый email — создаётся подтверждённая запись без пароля
	acc, err := svc.FederatedLogin(ctx, &Identity{
		Email: "User@Example.COM", EmailVerified: true, Subject: "google-sub-1",
	})
	if err != nil {
		t.Fatalf("FederatedLogin() ошибка: %v", err)
	}
	if acc.Email != "user@example.com" {
		t.Errorf("Email = %q, хотели нормализованный %q", acc.Email, "user@example.com")
	}
	if !acc.Verified {
		t.Error("Verified = false, хотели true")
	}
	if acc.HasUsablePassword() {
		t.Error("у OAuth-записи появился пароль")
	}

	// Повторный вход — та же запись
	again, err := svc.FederatedLogin(ctx, &Identity{
		Email: "user@example.com", EmailVerified: true, Subject: "google-sub-1",
	})
	if err != nil {
		t.Fatalf("FederatedLogin() повторно: ошибка: %v", err)
	}
	if again.ID != acc.ID {
		t.Errorf("повторный вход создал новую запись: %q != %q", again.ID, acc.ID)
	}
}

func TestFederatedLogin_LinksExistingAccount(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := NewFederationService(accounts, testLogger())
	ctx := context.Background()

	local, err := accounts.CreateLocal(ctx, "user@example.com", "bcrypt-hash")
	if err != nil {
		t.Fatalf("CreateLocal() ошибка: %v", err)
	}

	linked, err := svc.FederatedLogin(ctx, &Identity{
		Email: "user@example.com", EmailVerified: true, Subject: "google-sub-1",
	})
	if err != nil {
		t.Fatalf("FederatedLogin() ошибка: %v", err)
	}
	if linked.ID != local.ID {
		t.Errorf("привязка создала новую запись: %q != %q", linked.ID, local.ID)
	}
	if !linked.Verified {
		t.Error("Verified = false после привязки")
	}
	if !linked.HasUsablePassword() {
		t.Error("пароль потерян при привязке")
	}
}

func TestFederatedLogin_Rejections(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := NewFederationService(accounts, testLogger())
	ctx := context.Background()

	// Запись уже связана с другим субъектом
	if _, err := accounts.CreateOrLinkOAuth(ctx, "taken@example.com", "google-sub-1"); err != nil {
		t.Fatalf("CreateOrLinkOAuth() ошибка: %v", err)
	}

	tests := []struct {
		name     string
		identity *Identity
	}{
		{
			name:     "email не подтверждён провайдером",
			identity: &Identity{Email: "user@example.com", EmailVerified: false, Subject: "sub-1"},
		},
		{
			name:     "пустой email",
			identity: &Identity{Email: "", EmailVerified: true, Subject: "sub-1"},
		},
		{
			name:     "пустой subject",
			identity: &Identity{Email: "user@example.com", EmailVerified: true, Subject: ""},
		},
		{
			name:     "email связан с другим субъектом",
			identity: &Identity{Email: "taken@example.com", EmailVerified: true, Subject: "google-sub-2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := accounts.Count(ctx)
			_, err := svc.FederatedLogin(ctx, tt.identity)
			if !errors.Is(err, ErrFederationFailed) {
				t.Errorf("FederatedLogin() ошибка = %v, хотели ErrFederationFailed", err)
			}
			after, _ := accounts.Count(ctx)
			if before != after {
				t.Error("отклонённый вход изменил число учётных записей")
			}
		})
	}
}
