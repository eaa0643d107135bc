// Package models — 1:1 arama (call) domain modeli.
//
// Arama durumları (server tarafı):
// - "ringing": Arama başlatıldı, karşı taraf henüz yanıtlamadı
// - "active": Karşı taraf answer gönderdi, WebRTC negotiation sürüyor/tamamlandı
//
// Tüm state ephemeral (in-memory) — DB'ye kaydedilmez.
// Sunucu yeniden başlatılırsa aktif aramalar temizlenir.
package models

import "time"

// CallStatus, aramanın server tarafındaki durumunu temsil eden typed constant.
type CallStatus string

const (
	CallStatusRinging CallStatus = "ringing"
	CallStatusActive  CallStatus = "active"
)

// Call, sunucunun relay ettiği bir 1:1 aramayı temsil eder.
//
// ID server tarafından üretilen, süreç boyunca monoton artan bir tamsayıdır.
// İki taraf da sinyal mesajlarını bu ID ile eşleştirir; eski (sonlanmış)
// bir aramaya ait sinyaller ID üzerinden ayıklanır.
type Call struct {
	ID         int64      `json:"id"`
	CallerID   string     `json:"caller_id"`
	ReceiverID string     `json:"receiver_id"`
	Video      bool       `json:"video"` // true → görüntülü, false → sadece sesli
	Status     CallStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CallNotification, arama event'lerinde karşı tarafa gönderilen payload.
// Caller bilgisi frontend'in "X arıyor" ekranı için gereklidir.
type CallNotification struct {
	CallID          int64   `json:"call_id"`
	FromUserID      string  `json:"from_user_id"`
	FromUsername    string  `json:"from_username"`
	FromDisplayName *string `json:"from_display_name"`
	FromAvatarURL   *string `json:"from_avatar"`
	Video           bool    `json:"video"`
}
