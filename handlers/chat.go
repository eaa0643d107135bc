package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/pkg/ratelimit"
	"github.com/selimgur/vole/services"
)

// ChatHandler, 1:1 sohbet endpoint'lerini yöneten struct.
//
// - chatService: Sohbet iş mantığı (kanal + mesaj CRUD)
// - uploadService: Dosya yükleme (disk save + DB record)
// - messageLimiter: Kullanıcı bazlı mesaj spam koruması (nil ise devre dışı)
// - maxUploadSize: Multipart form parse bellek limiti
type ChatHandler struct {
	chatService    services.ChatService
	uploadService  services.UploadService
	messageLimiter *ratelimit.MessageRateLimiter
	maxUploadSize  int64
}

// NewChatHandler, constructor.
func NewChatHandler(
	chatService services.ChatService,
	uploadService services.UploadService,
	messageLimiter *ratelimit.MessageRateLimiter,
	maxUploadSize int64,
) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		uploadService:  uploadService,
		messageLimiter: messageLimiter,
		maxUploadSize:  maxUploadSize,
	}
}

// createChatChannelRequest, POST /api/chats body'si.
type createChatChannelRequest struct {
	UserID string `json:"user_id"`
}

// ListChannels godoc
// GET /api/chats
// Kullanıcının tüm sohbet kanallarını listeler (karşı taraf bilgisiyle).
func (h *ChatHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	channels, err := h.chatService.ListChannels(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, channels)
}

// CreateOrGetChannel godoc
// POST /api/chats
// İki kullanıcı arasındaki sohbet kanalını bul veya oluştur.
//
// Body: { "user_id": "target_user_id" }
// Response: ChatChannelWithUser (karşı taraf bilgisiyle)
func (h *ChatHandler) CreateOrGetChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	var req createChatChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	channel, err := h.chatService.GetOrCreateChannel(r.Context(), user.ID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, channel)
}

// GetMessages godoc
// GET /api/chats/{channelId}/messages?before=&limit=
// Kanalın mesajlarını cursor-based pagination ile döner.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	beforeID := r.URL.Query().Get("before")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.chatService.GetMessages(r.Context(), user.ID, channelID, beforeID, limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, page)
}

// SendMessage godoc
// POST /api/chats/{channelId}/messages
// Yeni bir mesaj gönderir.
//
// İki format desteklenir:
// 1. JSON: { "content": "mesaj" }
// 2. Multipart: FormValue("content"), File("files")
//
// Dosya yükleme akışı:
// 1. Service ile mesaj oluştur (DB'ye kaydet)
// 2. Multipart ise dosyaları yükle (uploadService.Upload)
// 3. Mesaja attachment'ları ekle
// 4. BroadcastCreate ile WS broadcast (attachment'lar dahil)
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelId")
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	// Spam koruması — kullanıcı bazlı mesaj rate limiting
	if h.messageLimiter != nil && !h.messageLimiter.Allow(user.ID) {
		retryAfter := h.messageLimiter.CooldownSeconds(user.ID)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
			fmt.Sprintf("sending messages too fast, please wait %s",
				ratelimit.FormatRetryMessage(retryAfter)))
		return
	}

	contentType := r.Header.Get("Content-Type")
	var req models.CreateChatMessageRequest

	if isMultipart(contentType) {
		// Multipart: dosya + metin içeren mesaj
		if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}

		req.Content = r.FormValue("content")

		// Dosya var mı kontrol — HasFiles service'e iletilir (boş content kontrolü için)
		if r.MultipartForm != nil && len(r.MultipartForm.File["files"]) > 0 {
			req.HasFiles = true
		}
	} else {
		// JSON: sadece metin mesaj
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// Mesajı oluştur
	msg, err := h.chatService.SendMessage(r.Context(), user.ID, channelID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	// Multipart ise dosyaları yükle
	if isMultipart(contentType) && r.MultipartForm != nil {
		files := r.MultipartForm.File["files"]
		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				continue // Açılamayan dosyayı atla
			}

			attachment, err := h.uploadService.Upload(r.Context(), msg.ID, file, fileHeader)
			file.Close()
			if err != nil {
				continue // Yüklenemeyen dosyayı atla
			}

			msg.Attachments = append(msg.Attachments, *attachment)
		}
	}

	// WS broadcast — dosya yükleme tamamlandıktan sonra
	h.chatService.BroadcastCreate(msg)

	pkg.JSON(w, http.StatusCreated, msg)
}

// EditMessage godoc
// PATCH /api/chats/messages/{id}
// Mesajı düzenler (sadece mesaj sahibi).
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	var req models.UpdateChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatService.EditMessage(r.Context(), user.ID, messageID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, msg)
}

// DeleteMessage godoc
// DELETE /api/chats/messages/{id}
// Mesajı siler (sadece mesaj sahibi).
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return
	}

	if err := h.chatService.DeleteMessage(r.Context(), user.ID, messageID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// isMultipart, Content-Type header'ının multipart form olup olmadığını kontrol eder.
// Header "multipart/form-data; boundary=..." formatında gelir — prefix kontrolü yeterli.
func isMultipart(contentType string) bool {
	return strings.HasPrefix(contentType, "multipart/form-data")
}
