package services

import (
	"context"
	"fmt"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/repository"
	"github.com/selimgur/vole/ws"
)

// ChatService, 1:1 sohbet iş mantığı interface'i.
//
// Kanal:
//   - GetOrCreateChannel: İki kullanıcı arasındaki kanalı bul veya oluştur
//   - ListChannels: Kullanıcının tüm kanallarını listele
//
// Mesaj:
//   - GetMessages: Cursor-based pagination ile mesajları getir (attachments dahil)
//   - SendMessage: Yeni mesaj gönder
//   - BroadcastCreate: Mesajı dosya ekleri ile birlikte WS broadcast et (handler tarafından çağrılır)
//   - EditMessage: Mesajı düzenle (sadece yazar)
//   - DeleteMessage: Mesajı sil (sadece yazar)
type ChatService interface {
	GetOrCreateChannel(ctx context.Context, userID, otherUserID string) (*models.ChatChannelWithUser, error)
	ListChannels(ctx context.Context, userID string) ([]models.ChatChannelWithUser, error)

	GetMessages(ctx context.Context, userID, channelID string, beforeID string, limit int) (*models.ChatMessagePage, error)
	SendMessage(ctx context.Context, userID, channelID string, req *models.CreateChatMessageRequest) (*models.ChatMessage, error)
	BroadcastCreate(message *models.ChatMessage)
	EditMessage(ctx context.Context, userID, messageID string, req *models.UpdateChatMessageRequest) (*models.ChatMessage, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error

	// NotifyTyping, karşı tarafa "yazıyor..." bildirimi gönderir.
	// WS hub callback'inden çağrılır — HTTP endpoint'i yoktur.
	NotifyTyping(userID, username, channelID string)
}

type chatService struct {
	chatRepo     repository.ChatRepository
	userRepo     repository.UserRepository
	reactionRepo repository.ReactionRepository
	hub          ws.EventPublisher
}

// NewChatService, constructor.
// reactionRepo mesaj listelerini reaction özetleriyle zenginleştirmek için
// gerekir; toggle iş mantığı ReactionService'tedir.
func NewChatService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	reactionRepo repository.ReactionRepository,
	hub ws.EventPublisher,
) ChatService {
	return &chatService{
		chatRepo:     chatRepo,
		userRepo:     userRepo,
		reactionRepo: reactionRepo,
		hub:          hub,
	}
}

// sortUserIDs, iki userID'yi sıralı döndürür.
// Kanal UNIQUE(user1_id, user2_id) constraint'i kullanır.
// Her zaman aynı sıralamayla kaydetmek aynı çiftin tek kanalı olmasını sağlar.
func sortUserIDs(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// broadcastToBothUsers, kanalın her iki kullanıcısına WS event gönderir.
func (s *chatService) broadcastToBothUsers(channel *models.ChatChannel, event ws.Event) {
	s.hub.BroadcastToUser(channel.User1ID, event)
	if channel.User1ID != channel.User2ID {
		s.hub.BroadcastToUser(channel.User2ID, event)
	}
}

// verifyChannelMembership, kullanıcının bu kanalın üyesi olduğunu doğrular.
// Değilse ErrForbidden döner. Başarılıysa kanal objesini döner.
func (s *chatService) verifyChannelMembership(ctx context.Context, userID, channelID string) (*models.ChatChannel, error) {
	channel, err := s.chatRepo.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.User1ID != userID && channel.User2ID != userID {
		return nil, fmt.Errorf("%w: not a member of this channel", pkg.ErrForbidden)
	}
	return channel, nil
}

// verifyMessageAccess, mesajı yükler ve kullanıcının mesajın kanalının
// üyesi olduğunu doğrular. Kanal objesini de döner (broadcast için).
func (s *chatService) verifyMessageAccess(ctx context.Context, userID, messageID string) (*models.ChatMessage, *models.ChatChannel, error) {
	msg, err := s.chatRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}

	channel, err := s.verifyChannelMembership(ctx, userID, msg.ChannelID)
	if err != nil {
		return nil, nil, err
	}

	return msg, channel, nil
}

// enrichMessages, mesaj listesine attachments ve reactions batch yükler.
// 1. Tüm mesaj ID'lerini topla
// 2. Attachments + reactions: ikişer sorgu → map[messageID][]...
// 3. Her mesaja atama + null protection (boş dizi)
func (s *chatService) enrichMessages(ctx context.Context, messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	messageIDs := make([]string, len(messages))
	for i, m := range messages {
		messageIDs[i] = m.ID
	}

	// Batch load — N+1 yerine tek sorgu
	attachmentMap, err := s.chatRepo.GetAttachmentsByMessageIDs(ctx, messageIDs)
	if err != nil {
		return fmt.Errorf("failed to batch load attachments: %w", err)
	}

	reactionMap, err := s.reactionRepo.GetByMessageIDs(ctx, messageIDs)
	if err != nil {
		return fmt.Errorf("failed to batch load reactions: %w", err)
	}

	for i := range messages {
		messages[i].Attachments = attachmentMap[messages[i].ID]
		if messages[i].Attachments == nil {
			messages[i].Attachments = []models.ChatAttachment{}
		}
		messages[i].Reactions = reactionMap[messages[i].ID]
		if messages[i].Reactions == nil {
			messages[i].Reactions = []models.ReactionGroup{}
		}
	}

	return nil
}

// ─── Channel Operations ───

// GetOrCreateChannel, iki kullanıcı arasındaki kanalı bulur.
// Yoksa yeni bir kanal oluşturur ve karşı tarafa WS ile bildirir.
func (s *chatService) GetOrCreateChannel(ctx context.Context, userID, otherUserID string) (*models.ChatChannelWithUser, error) {
	if userID == otherUserID {
		return nil, fmt.Errorf("%w: cannot create a chat with yourself", pkg.ErrBadRequest)
	}

	// Karşı taraf var mı kontrol et
	otherUser, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
	}
	otherUser.PasswordHash = ""

	user1, user2 := sortUserIDs(userID, otherUserID)

	// Mevcut kanalı bul
	existing, err := s.chatRepo.GetChannelByUsers(ctx, user1, user2)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing channel: %w", err)
	}

	if existing != nil {
		// Kanal zaten var
		return &models.ChatChannelWithUser{
			ID:            existing.ID,
			OtherUser:     otherUser,
			CreatedAt:     existing.CreatedAt,
			LastMessageAt: existing.LastMessageAt,
		}, nil
	}

	// Yeni kanal oluştur
	channel := &models.ChatChannel{
		User1ID: user1,
		User2ID: user2,
	}
	if err := s.chatRepo.CreateChannel(ctx, channel); err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	result := &models.ChatChannelWithUser{
		ID:            channel.ID,
		OtherUser:     otherUser,
		CreatedAt:     channel.CreatedAt,
		LastMessageAt: channel.LastMessageAt,
	}

	// Karşı tarafa yeni kanal bilgisini kendi perspektifinden gönder.
	currentUser, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		currentUser.PasswordHash = ""
		s.hub.BroadcastToUser(otherUserID, ws.Event{
			Op: ws.OpChatChannelCreate,
			Data: models.ChatChannelWithUser{
				ID:            channel.ID,
				OtherUser:     currentUser,
				CreatedAt:     channel.CreatedAt,
				LastMessageAt: channel.LastMessageAt,
			},
		})
	}

	// Kanal oluşturana da bildir (kendi diğer tab'ları için)
	s.hub.BroadcastToUser(userID, ws.Event{
		Op:   ws.OpChatChannelCreate,
		Data: result,
	})

	return result, nil
}

// ListChannels, kullanıcının tüm kanallarını listeler.
func (s *chatService) ListChannels(ctx context.Context, userID string) ([]models.ChatChannelWithUser, error) {
	return s.chatRepo.ListChannels(ctx, userID)
}

// ─── Message Operations ───

// GetMessages, kanalın mesajlarını cursor-based pagination ile döner.
// Yetki kontrolü: kullanıcı bu kanalın üyesi olmalı.
//
// 1. Yetki kontrolü
// 2. limit+1 trick (hasMore)
// 3. Ters çevir (DB DESC → frontend ASC)
// 4. Batch load: attachments
func (s *chatService) GetMessages(ctx context.Context, userID, channelID string, beforeID string, limit int) (*models.ChatMessagePage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Yetki kontrolü — kullanıcı bu kanalın üyesi mi?
	if _, err := s.verifyChannelMembership(ctx, userID, channelID); err != nil {
		return nil, err
	}

	messages, err := s.chatRepo.GetMessages(ctx, channelID, beforeID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Ters çevir (DB'den DESC gelir, frontend ASC bekler)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	// Batch load: attachments
	if err := s.enrichMessages(ctx, messages); err != nil {
		return nil, err
	}

	if messages == nil {
		messages = []models.ChatMessage{}
	}

	return &models.ChatMessagePage{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

// SendMessage, yeni bir mesaj gönderir.
//
// 1. Validate request
// 2. Yetki kontrolü (kanal üyeliği)
// 3. DB'ye kaydet
// 4. Yazar bilgisini yükle
// 5. Boş attachment slice'ı ata (null protection)
//
// NOT: Dosya yükleme bu metottan sonra handler'da yapılır.
// Handler, dönen mesaja attachments ekleyip BroadcastCreate() çağırır.
func (s *chatService) SendMessage(ctx context.Context, userID, channelID string, req *models.CreateChatMessageRequest) (*models.ChatMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	// Yetki kontrolü
	if _, err := s.verifyChannelMembership(ctx, userID, channelID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ChannelID: channelID,
		AuthorID:  userID,
		Content:   req.Content,
	}

	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	// Yazar bilgisini yükle
	author, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message author: %w", err)
	}
	author.PasswordHash = ""
	msg.Author = author

	// Null protection — JSON'da null yerine [] döner
	msg.Attachments = []models.ChatAttachment{}
	msg.Reactions = []models.ReactionGroup{}

	return msg, nil
}

// BroadcastCreate, oluşturulan mesajı dosya ekleri ile birlikte
// her iki kullanıcıya WS broadcast eder.
//
// Handler dosyaları yükledikten sonra bu metodu çağırır — böylece
// WS event attachments dahil gönderilir. Gönderen taraf da event'i alır
// ama kendi mesajını "gelen mesaj" olarak göstermez (client tarafı,
// author_id'sine bakarak kendi mesajlarını ayıklar).
func (s *chatService) BroadcastCreate(message *models.ChatMessage) {
	channel, err := s.chatRepo.GetChannelByID(context.Background(), message.ChannelID)
	if err != nil {
		return
	}

	s.broadcastToBothUsers(channel, ws.Event{
		Op:   ws.OpChatMessageCreate,
		Data: message,
	})
}

// EditMessage, bir mesajı düzenler.
// Sadece mesaj sahibi düzenleyebilir.
func (s *chatService) EditMessage(ctx context.Context, userID, messageID string, req *models.UpdateChatMessageRequest) (*models.ChatMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	msg, channel, err := s.verifyMessageAccess(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if msg.AuthorID != userID {
		return nil, fmt.Errorf("%w: you can only edit your own messages", pkg.ErrForbidden)
	}

	if err := s.chatRepo.UpdateMessage(ctx, messageID, req.Content); err != nil {
		return nil, err
	}

	// Güncellenmiş mesajı tekrar yükle (edited_at güncel olsun)
	updated, err := s.chatRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	enriched := []models.ChatMessage{*updated}
	if err := s.enrichMessages(ctx, enriched); err != nil {
		return nil, err
	}

	s.broadcastToBothUsers(channel, ws.Event{
		Op:   ws.OpChatMessageUpdate,
		Data: &enriched[0],
	})

	return &enriched[0], nil
}

// DeleteMessage, bir mesajı siler.
// Sadece mesaj sahibi silebilir.
func (s *chatService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, channel, err := s.verifyMessageAccess(ctx, userID, messageID)
	if err != nil {
		return err
	}

	if msg.AuthorID != userID {
		return fmt.Errorf("%w: you can only delete your own messages", pkg.ErrForbidden)
	}

	if err := s.chatRepo.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.broadcastToBothUsers(channel, ws.Event{
		Op: ws.OpChatMessageDelete,
		Data: map[string]string{
			"id":         messageID,
			"channel_id": msg.ChannelID,
		},
	})

	return nil
}

// NotifyTyping, "yazıyor..." bildirimini kanalın karşı tarafına iletir.
// Üyelik doğrulanamazsa sessizce düşer — typing kritik bir sinyal değildir.
func (s *chatService) NotifyTyping(userID, username, channelID string) {
	channel, err := s.verifyChannelMembership(context.Background(), userID, channelID)
	if err != nil {
		return
	}

	otherID := channel.User1ID
	if otherID == userID {
		otherID = channel.User2ID
	}

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op: ws.OpTypingStart,
		Data: map[string]string{
			"channel_id": channelID,
			"user_id":    userID,
			"username":   username,
		},
	})
}
