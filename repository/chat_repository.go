package repository

import (
	"context"

	"github.com/selimgur/vole/models"
)

// ChatRepository, 1:1 sohbet veritabanı işlemleri için interface.
//
// Kanal işlemleri:
//   - GetChannelByUsers: İki kullanıcı arasındaki kanalı bul (sıralı çift)
//   - GetChannelByID: ID ile kanal bul
//   - ListChannels: Bir kullanıcının tüm kanallarını listele (karşı taraf bilgisiyle)
//   - CreateChannel: Yeni kanal oluştur
//
// Mesaj işlemleri:
//   - GetMessages: Cursor-based pagination ile mesajları getir
//   - GetMessageByID: Tek mesaj getir
//   - CreateMessage: Yeni mesaj oluştur
//   - UpdateMessage: Mesaj düzenle
//   - DeleteMessage: Mesaj sil
//
// Attachment işlemleri:
//   - CreateAttachment: Yeni dosya eki kaydet
//   - GetAttachmentsByMessageIDs: Birden fazla mesajın dosya eklerini batch yükle (N+1 önleme)
type ChatRepository interface {
	// Channel operations
	GetChannelByUsers(ctx context.Context, user1ID, user2ID string) (*models.ChatChannel, error)
	GetChannelByID(ctx context.Context, id string) (*models.ChatChannel, error)
	ListChannels(ctx context.Context, userID string) ([]models.ChatChannelWithUser, error)
	CreateChannel(ctx context.Context, channel *models.ChatChannel) error

	// Message operations
	GetMessages(ctx context.Context, channelID string, beforeID string, limit int) ([]models.ChatMessage, error)
	GetMessageByID(ctx context.Context, id string) (*models.ChatMessage, error)
	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	UpdateMessage(ctx context.Context, id string, content string) error
	DeleteMessage(ctx context.Context, id string) error

	// Attachment operations
	CreateAttachment(ctx context.Context, attachment *models.ChatAttachment) error
	GetAttachmentsByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ChatAttachment, error)
}
