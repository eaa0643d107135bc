package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChatChannel, iki kullanıcı arasındaki mesajlaşma kanalını temsil eder.
//
// user1_id < user2_id sıralaması service katmanında sağlanır.
// Bu sayede aynı iki kullanıcı arasında sadece tek bir kanal oluşabilir
// (UNIQUE constraint user1_id, user2_id çifti üzerinde).
type ChatChannel struct {
	ID            string     `json:"id"`
	User1ID       string     `json:"user1_id"`
	User2ID       string     `json:"user2_id"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"` // Nullable — henüz mesaj yoksa nil
}

// ChatChannelWithUser, kanal bilgisi + karşı taraf kullanıcı bilgisi.
// Frontend'de sohbet listesi render etmek için kullanılır —
// hangi kullanıcıyla konuştuğunu göstermek için karşı tarafın bilgisi gerekli.
type ChatChannelWithUser struct {
	ID            string     `json:"id"`
	OtherUser     *User      `json:"other_user"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"` // Son mesaj aktivitesi — sıralama için
}

// ChatMessage, bir sohbet mesajını temsil eder.
type ChatMessage struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	AuthorID  string     `json:"author_id"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"edited_at"`
	CreatedAt time.Time  `json:"created_at"`

	// JOIN ile doldurulan alanlar
	Author      *User            `json:"author,omitempty"`
	Attachments []ChatAttachment `json:"attachments"`
	Reactions   []ReactionGroup  `json:"reactions"`
}

// ReactionGroup, bir mesajın aynı emojiyle verilen tepkilerinin özeti.
// Frontend "👍 3" şeklinde render eder; Users listesi tooltip ve
// "ben tepki verdim mi?" kontrolü içindir.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ChatAttachment, bir mesaja eklenmiş dosyayı temsil eder.
type ChatAttachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChatMessageRequest, yeni mesaj oluşturma isteği.
//
// HasFiles handler katmanında set edilir — multipart form-data'dan dosya
// varsa true olur, bu durumda Content boş olabilir (sadece dosya mesajı).
type CreateChatMessageRequest struct {
	Content  string `json:"content"`
	HasFiles bool   `json:"-"` // Handler tarafından set edilir, JSON'a dahil değil
}

// Validate, CreateChatMessageRequest'in geçerli olup olmadığını kontrol eder.
// Dosya ekli mesajlarda content boş olabilir.
func (r *CreateChatMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)

	// Dosya varsa ve content boşsa → geçerli (sadece dosya mesajı)
	if r.HasFiles && contentLen == 0 {
		return nil
	}

	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// UpdateChatMessageRequest, mesaj düzenleme isteği.
type UpdateChatMessageRequest struct {
	Content string `json:"content"`
}

// Validate, UpdateChatMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *UpdateChatMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// ChatMessagePage, mesajlar için cursor-based pagination response.
type ChatMessagePage struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}
