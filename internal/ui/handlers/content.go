// content.go — обработчики контента Mediahub: галерея загрузок,
// чат поддержки и административная статистика.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/gomediahub/internal/api/errors"
	"github.com/bigkaa/gomediahub/internal/domain/model"
	"github.com/bigkaa/gomediahub/internal/domain/rbac"
	"github.com/bigkaa/gomediahub/internal/service"
	"github.com/bigkaa/gomediahub/internal/ui/middleware"
)

// ContentHandler — обработчики загрузок, чата и статистики.
type ContentHandler struct {
	uploads   *service.UploadService
	chat      *service.ChatService
	stats     *service.StatsService
	allowlist *rbac.Allowlist
	logger    *slog.Logger
}

// NewContentHandler создаёт новый ContentHandler.
func NewContentHandler(
	uploads *service.UploadService,
	chat *service.ChatService,
	stats *service.StatsService,
	allowlist *rbac.Allowlist,
	logger *slog.Logger,
) *ContentHandler {
	return &ContentHandler{
		uploads:   uploads,
		chat:      chat,
		stats:     stats,
		allowlist: allowlist,
		logger:    logger.With(slog.String("component", "ui_content")),
	}
}

// uploadResponse — представление загрузки в ответах API.
type uploadResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sentiment   string    `json:"sentiment"`
	MediaRef    string    `json:"media_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

func mapUpload(u *model.Upload) uploadResponse {
	return uploadResponse{
		ID:          u.ID,
		AccountID:   u.AccountID,
		Title:       u.Title,
		Description: u.Description,
		Sentiment:   u.Sentiment,
		MediaRef:    u.MediaRef,
		CreatedAt:   u.CreatedAt,
	}
}

func mapUploads(uploads []*model.Upload) []uploadResponse {
	items := make([]uploadResponse, len(uploads))
	for i, u := range uploads {
		items[i] = mapUpload(u)
	}
	return items
}

// chatMessageResponse — представление сообщения чата в ответах API.
type chatMessageResponse struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func mapChatMessage(m *model.ChatMessage) chatMessageResponse {
	return chatMessageResponse{
		ID:         m.ID,
		AccountID:  m.AccountID,
		SenderRole: m.SenderRole,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

func mapChatMessages(msgs []*model.ChatMessage) []chatMessageResponse {
	items := make([]chatMessageResponse, len(msgs))
	for i, m := range msgs {
		items[i] = mapChatMessage(m)
	}
	return items
}

// createUploadRequest — тело запроса создания загрузки.
type createUploadRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Sentiment   string `json:"sentiment"`
	MediaRef    string `json:"media_ref"`
}

// postChatRequest — тело запроса отправки сообщения в чат.
type postChatRequest struct {
	Body string `json:"body"`
}

// HandleGallery — GET /gallery.
// Общая галерея загрузок, новые первыми. Доступ: любой подтверждённый.
func (h *ContentHandler) HandleGallery(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	uploads, err := h.uploads.Gallery(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения галереи", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения галереи")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapUploads(uploads)})
}

// HandleCreateUpload — POST /api/uploads.
// Создаёт загрузку от имени текущей учётной записи.
// Доступ: подтверждённый пользователь (не администратор).
func (h *ContentHandler) HandleCreateUpload(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		apierrors.Unauthorized(w, middleware.MsgLoginRequired)
		return
	}

	var req createUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	upload, err := h.uploads.Create(r.Context(), acc.ID, req.Title, req.Description, req.Sentiment, req.MediaRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.Info("Загрузка создана",
		slog.String("upload_id", upload.ID),
		slog.String("account_id", acc.ID),
	)
	writeJSON(w, http.StatusCreated, mapUpload(upload))
}

// HandleListUploads — GET /api/uploads.
// Загрузки текущей учётной записи.
func (h *ContentHandler) HandleListUploads(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		apierrors.Unauthorized(w, middleware.MsgLoginRequired)
		return
	}

	limit, offset := parsePagination(r)

	uploads, err := h.uploads.ListByAccount(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения загрузок", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения загрузок")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapUploads(uploads)})
}

// HandlePostChat — POST /api/chat.
// Отправляет сообщение в тред текущей учётной записи.
// Роль отправителя вычисляется по allowlist на момент отправки,
// клиент её не передаёт.
func (h *ContentHandler) HandlePostChat(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		apierrors.Unauthorized(w, middleware.MsgLoginRequired)
		return
	}

	var req postChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	msg, err := h.chat.Post(r.Context(), acc.ID, acc.Email, req.Body, h.allowlist)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapChatMessage(msg))
}

// HandleListChat — GET /api/chat.
// Тред текущей учётной записи в хронологическом порядке.
func (h *ContentHandler) HandleListChat(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		apierrors.Unauthorized(w, middleware.MsgLoginRequired)
		return
	}

	limit, offset := parsePagination(r)

	msgs, err := h.chat.Thread(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения треда", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения сообщений")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapChatMessages(msgs)})
}

// HandleAdminStats — GET /api/admin/stats.
// Сводная статистика. Доступ: admin.
func (h *ContentHandler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Collect(r.Context())
	if err != nil {
		h.logger.Error("Ошибка сбора статистики", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка сбора статистики")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleAdminChat — GET /api/admin/chat.
// Все сообщения чата по всем тредам, новые первыми. Доступ: admin.
func (h *ContentHandler) HandleAdminChat(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	msgs, err := h.chat.AllThreads(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Ошибка получения чатов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения сообщений")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapChatMessages(msgs)})
}
