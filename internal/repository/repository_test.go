package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/gomediahub/internal/config"
	"github.com/bigkaa/gomediahub/internal/database"
	"github.com/bigkaa/gomediahub/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; контейнер и пул закрываются через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("mediahub_test"),
		postgres.WithUsername("mediahub"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("MH_DB_HOST", host)
	os.Setenv("MH_DB_PORT", port.Port())
	os.Setenv("MH_DB_NAME", "mediahub_test")
	os.Setenv("MH_DB_USER", "mediahub")
	os.Setenv("MH_DB_PASSWORD", "test-password")
	os.Setenv("MH_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты AccountRepository ---

func TestAccountLocalLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepository(pool)

	// CreateLocal
	acc, err := repo.CreateLocal(ctx, "Alice@Example.COM", "bcrypt-hash-1")
	if err != nil {
		t.Fatalf("CreateLocal() ошибка: %v", err)
	}
	if acc.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели нормализованный %q", acc.Email, "alice@example.com")
	}
	if acc.Verified {
		t.Error("Verified = true, хотели false при локальной регистрации")
	}
	if !acc.HasUsablePassword() {
		t.Error("HasUsablePassword() = false, хотели true")
	}
	if acc.OAuthSubject != nil {
		t.Errorf("OAuthSubject = %v, хотели nil", *acc.OAuthSubject)
	}

	// Дубликат email (в другом регистре) — конфликт
	_, err = repo.CreateLocal(ctx, "ALICE@example.com", "bcrypt-hash-2")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("CreateLocal() дубликат: ошибка = %v, хотели ErrConflict", err)
	}

	// GetByEmail нормализует аргумент
	got, err := repo.GetByEmail(ctx, "  alice@EXAMPLE.com ")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.ID != acc.ID {
		t.Errorf("GetByEmail().ID = %q, хотели %q", got.ID, acc.ID)
	}

	// GetByID
	got, err = repo.GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("GetByID().Email = %q, хотели %q", got.Email, "alice@example.com")
	}

	// UpdatePasswordHash
	if err := repo.UpdatePasswordHash(ctx, "alice@example.com", "bcrypt-hash-3"); err != nil {
		t.Fatalf("UpdatePasswordHash() ошибка: %v", err)
	}
	got, _ = repo.GetByEmail(ctx, "alice@example.com")
	if got.PasswordHash == nil || *got.PasswordHash != "bcrypt-hash-3" {
		t.Errorf("PasswordHash не обновился")
	}

	// MarkVerified
	if err := repo.MarkVerified(ctx, "alice@example.com"); err != nil {
		t.Fatalf("MarkVerified() ошибка: %v", err)
	}
	got, _ = repo.GetByEmail(ctx, "alice@example.com")
	if !got.Verified {
		t.Error("Verified = false после MarkVerified")
	}

	// MarkVerified несуществующего — ErrNotFound
	if err := repo.MarkVerified(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkVerified() несуществующего: ошибка = %v, хотели ErrNotFound", err)
	}

	// GetByEmail несуществующего — ErrNotFound
	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail() несуществующего: ошибка = %v, хотели ErrNotFound", err)
	}

	// Count
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}

func TestCreateOrLinkOAuth(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepository(pool)

	// Новый аккаунт через OAuth — сразу verified, без пароля
	acc, err := repo.CreateOrLinkOAuth(ctx, "bob@example.com", "google-sub-1")
	if err != nil {
		t.Fatalf("CreateOrLinkOAuth() новый: ошибка: %v", err)
	}
	if !acc.Verified {
		t.Error("Verified = false, хотели true для OAuth-аккаунта")
	}
	if acc.HasUsablePassword() {
		t.Error("HasUsablePassword() = true, хотели false")
	}
	if acc.OAuthSubject == nil || *acc.OAuthSubject != "google-sub-1" {
		t.Errorf("OAuthSubject = %v, хотели google-sub-1", acc.OAuthSubject)
	}

	// Повторный вход с тем же subject — идемпотентно, тот же аккаунт
	again, err := repo.CreateOrLinkOAuth(ctx, "bob@example.com", "google-sub-1")
	if err != nil {
		t.Fatalf("CreateOrLinkOAuth() повторно: ошибка: %v", err)
	}
	if again.ID != acc.ID {
		t.Errorf("ID = %q, хотели тот же %q", again.ID, acc.ID)
	}

	// Тот же email, но другой subject — конфликт, аккаунт не изменился
	_, err = repo.CreateOrLinkOAuth(ctx, "bob@example.com", "google-sub-2")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("CreateOrLinkOAuth() чужой subject: ошибка = %v, хотели ErrConflict", err)
	}
	got, _ := repo.GetByEmail(ctx, "bob@example.com")
	if got.OAuthSubject == nil || *got.OAuthSubject != "google-sub-1" {
		t.Error("OAuthSubject изменился после отклонённой привязки")
	}

	// Привязка к существующему локальному аккаунту: пароль сохраняется,
	// verified становится true
	local, err := repo.CreateLocal(ctx, "carol@example.com", "bcrypt-hash")
	if err != nil {
		t.Fatalf("CreateLocal() ошибка: %v", err)
	}
	linked, err := repo.CreateOrLinkOAuth(ctx, "carol@example.com", "google-sub-3")
	if err != nil {
		t.Fatalf("CreateOrLinkOAuth() привязка: ошибка: %v", err)
	}
	if linked.ID != local.ID {
		t.Errorf("привязка создала новый аккаунт: ID = %q, хотели %q", linked.ID, local.ID)
	}
	if !linked.Verified {
		t.Error("Verified = false после привязки OAuth")
	}
	if !linked.HasUsablePassword() {
		t.Error("пароль потерян при привязке OAuth")
	}
}

// --- Тесты OTPRepository ---

func newOTP(email, code string, ttl time.Duration) *model.OneTimeCode {
	now := time.Now()
	return &model.OneTimeCode{
		Email:     email,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestOTPConsume(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOTPRepository(pool)
	now := time.Now()

	// Валидный код потребляется ровно один раз
	if err := repo.Insert(ctx, newOTP("dave@example.com", "123456", 10*time.Minute)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if err := repo.Consume(ctx, "dave@example.com", "123456", now); err != nil {
		t.Fatalf("Consume() ошибка: %v", err)
	}
	if err := repo.Consume(ctx, "dave@example.com", "123456", now); !errors.Is(err, ErrCodeConsumed) {
		t.Errorf("Consume() повторно: ошибка = %v, хотели ErrCodeConsumed", err)
	}

	// Истёкший код
	if err := repo.Insert(ctx, newOTP("dave@example.com", "654321", -time.Minute)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if err := repo.Consume(ctx, "dave@example.com", "654321", now); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("Consume() истёкшего: ошибка = %v, хотели ErrCodeExpired", err)
	}

	// Несуществующий код
	if err := repo.Consume(ctx, "dave@example.com", "000000", now); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Consume() несуществующего: ошибка = %v, хотели ErrCodeNotFound", err)
	}

	// Чужой код не потребляется по другому email
	if err := repo.Consume(ctx, "eve@example.com", "123456", now); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Consume() по чужому email: ошибка = %v, хотели ErrCodeNotFound", err)
	}
}

func TestOTPReissueKeepsOldCodesValid(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOTPRepository(pool)
	now := time.Now()

	// Повторная выдача не отзывает ранее выданные коды:
	// оба работоспособны до истечения срока или потребления.
	if err := repo.Insert(ctx, newOTP("frank@example.com", "111111", 10*time.Minute)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if err := repo.Insert(ctx, newOTP("frank@example.com", "222222", 10*time.Minute)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	if err := repo.Consume(ctx, "frank@example.com", "111111", now); err != nil {
		t.Errorf("Consume() старого кода: ошибка = %v", err)
	}
	if err := repo.Consume(ctx, "frank@example.com", "222222", now); err != nil {
		t.Errorf("Consume() нового кода: ошибка = %v", err)
	}
}

func TestOTPConsumeConcurrent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOTPRepository(pool)

	if err := repo.Insert(ctx, newOTP("grace@example.com", "777777", 10*time.Minute)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	const workers = 16
	var successes atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := repo.Consume(ctx, "grace@example.com", "777777", time.Now())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrCodeConsumed):
				// ожидаемый проигрыш гонки
			default:
				t.Errorf("Consume() конкурентно: неожиданная ошибка: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("успешных потреблений = %d, хотели ровно 1", got)
	}
}

func TestOTPDeleteExpired(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOTPRepository(pool)

	if err := repo.Insert(ctx, newOTP("heidi@example.com", "333333", -time.Hour)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if err := repo.Insert(ctx, newOTP("heidi@example.com", "444444", time.Hour)); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired() ошибка: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteExpired() = %d, хотели 1", deleted)
	}

	// Живой код остался работоспособным
	if err := repo.Consume(ctx, "heidi@example.com", "444444", time.Now()); err != nil {
		t.Errorf("Consume() после уборки: ошибка = %v", err)
	}
}

// --- Тесты UploadRepository и ChatRepository ---

func TestUploadsAndChat(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	accounts := NewAccountRepository(pool)
	uploads := NewUploadRepository(pool)
	chat := NewChatRepository(pool)

	acc, err := accounts.CreateLocal(ctx, "ivan@example.com", "bcrypt-hash")
	if err != nil {
		t.Fatalf("CreateLocal() ошибка: %v", err)
	}

	// Загрузки с разными метками тональности
	sentiments := []string{
		model.SentimentPositive, model.SentimentPositive, model.SentimentNegative,
	}
	for i, s := range sentiments {
		up := &model.Upload{
			ID:          uuid.New().String(),
			AccountID:   acc.ID,
			Title:       fmt.Sprintf("upload-%d", i),
			Description: "описание",
			Sentiment:   s,
			MediaRef:    fmt.Sprintf("media/%d.jpg", i),
		}
		if err := uploads.Create(ctx, up); err != nil {
			t.Fatalf("Create() загрузки: ошибка: %v", err)
		}
		if up.CreatedAt.IsZero() {
			t.Error("CreatedAt не заполнен после Create()")
		}
	}

	list, err := uploads.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("List() вернул %d записей, хотели 3", len(list))
	}

	byAccount, err := uploads.ListByAccount(ctx, acc.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByAccount() ошибка: %v", err)
	}
	if len(byAccount) != 3 {
		t.Errorf("ListByAccount() вернул %d записей, хотели 3", len(byAccount))
	}

	total, err := uploads.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if total != 3 {
		t.Errorf("Count() = %d, хотели 3", total)
	}

	bySentiment, err := uploads.CountBySentiment(ctx)
	if err != nil {
		t.Fatalf("CountBySentiment() ошибка: %v", err)
	}
	if bySentiment[model.SentimentPositive] != 2 || bySentiment[model.SentimentNegative] != 1 {
		t.Errorf("CountBySentiment() = %v, хотели positive:2 negative:1", bySentiment)
	}

	// Чат: сообщения пользователя и ответ администратора в одном треде
	msgs := []*model.ChatMessage{
		{ID: uuid.New().String(), AccountID: acc.ID, SenderRole: "user", Body: "Здравствуйте, у меня вопрос"},
		{ID: uuid.New().String(), AccountID: acc.ID, SenderRole: "admin", Body: "Слушаю вас"},
	}
	for _, m := range msgs {
		if err := chat.Create(ctx, m); err != nil {
			t.Fatalf("Create() сообщения: ошибка: %v", err)
		}
	}

	thread, err := chat.ListByAccount(ctx, acc.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByAccount() чата: ошибка: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("ListByAccount() чата вернул %d сообщений, хотели 2", len(thread))
	}
	// Хронологический порядок: сначала вопрос, потом ответ
	if thread[0].SenderRole != "user" || thread[1].SenderRole != "admin" {
		t.Errorf("порядок треда: %q, %q; хотели user, admin", thread[0].SenderRole, thread[1].SenderRole)
	}

	all, err := chat.ListAll(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListAll() чата: ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll() чата вернул %d сообщений, хотели 2", len(all))
	}

	msgCount, err := chat.Count(ctx)
	if err != nil {
		t.Fatalf("Count() чата: ошибка: %v", err)
	}
	if msgCount != 2 {
		t.Errorf("Count() чата = %d, хотели 2", msgCount)
	}
}
