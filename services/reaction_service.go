package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/repository"
	"github.com/selimgur/vole/ws"
)

// MaxEmojiLength, bir emoji string'inin maksimum karakter uzunluğu.
// Çoğu emoji 1-2 codepoint'tir ama bazı bileşik emojiler (aile, bayrak vb.)
// 10+ codepoint olabilir. 32 karakter geniş bir güvenlik marjı sağlar.
const MaxEmojiLength = 32

// ReactionService, emoji reaction iş mantığı interface'i.
//
// ToggleReaction: Bir reaction'ı ekler veya kaldırır (toggle pattern).
// Mesajın varlığını ve kullanıcının kanal üyeliğini doğrular, emoji'yi
// validate eder, toggle işlemini yapar ve kanalın iki kullanıcısına
// WS broadcast gönderir.
type ReactionService interface {
	ToggleReaction(ctx context.Context, userID, messageID, emoji string) error
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	chatRepo     repository.ChatRepository
	hub          ws.EventPublisher
}

// NewReactionService, constructor.
// chatRepo: Toggle öncesi mesajın var olduğunu ve kullanıcının mesajın
// kanalına üye olduğunu doğrulamak için gerekir.
func NewReactionService(
	reactionRepo repository.ReactionRepository,
	chatRepo repository.ChatRepository,
	hub ws.EventPublisher,
) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		chatRepo:     chatRepo,
		hub:          hub,
	}
}

// ToggleReaction, bir mesaja emoji reaction ekler veya kaldırır.
//
// Akış:
// 1. Emoji validation — boş veya çok uzun emoji'leri reddet
// 2. Mesaj + üyelik kontrolü — mesaj yoksa 404, kanal üyesi değilse 403
// 3. Toggle — repository'de INSERT or DELETE
// 4. Güncel reaction listesini al — broadcast için
// 5. WS broadcast — kanalın iki kullanıcısını bilgilendir
//
// Toggle pattern: Aynı endpoint'e tekrar çağrılırsa reaction kaldırılır.
// Frontend tek bir "react" butonuyla hem ekle hem kaldır yapabilir.
func (s *reactionService) ToggleReaction(ctx context.Context, userID, messageID, emoji string) error {
	// 1. Emoji validation
	if emoji == "" {
		return fmt.Errorf("%w: emoji is required", pkg.ErrBadRequest)
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLength {
		return fmt.Errorf("%w: emoji too long", pkg.ErrBadRequest)
	}

	// 2. Mesaj var mı ve kullanıcı kanalın üyesi mi kontrol et
	message, err := s.chatRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return err
	}

	channel, err := s.chatRepo.GetChannelByID(ctx, message.ChannelID)
	if err != nil {
		return err
	}
	if channel.User1ID != userID && channel.User2ID != userID {
		return fmt.Errorf("%w: not a member of this channel", pkg.ErrForbidden)
	}

	// 3. Toggle — added true ise reaction eklendi, false ise kaldırıldı
	added, err := s.reactionRepo.Toggle(ctx, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("failed to toggle reaction: %w", err)
	}

	// 4. Güncel reaction listesini al
	reactions, err := s.reactionRepo.GetByMessageID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to get reactions after toggle: %w", err)
	}

	// 5. WS broadcast — kanalın iki kullanıcısına güncel liste gönderilir.
	// actor_id: kim react etti, message_author_id: mesaj sahibi, added: ekleme mi.
	// Frontend bu bilgiyle "başkası benim mesajıma react ekledi" kararı verir.
	event := ws.Event{
		Op: ws.OpChatReactionUpdate,
		Data: map[string]any{
			"message_id":        messageID,
			"channel_id":        message.ChannelID,
			"reactions":         reactions,
			"actor_id":          userID,
			"message_author_id": message.AuthorID,
			"added":             added,
		},
	}
	s.hub.BroadcastToUser(channel.User1ID, event)
	if channel.User1ID != channel.User2ID {
		s.hub.BroadcastToUser(channel.User2ID, event)
	}

	return nil
}
