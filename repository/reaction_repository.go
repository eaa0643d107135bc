package repository

import (
	"context"

	"github.com/selimgur/vole/models"
)

// ReactionRepository, mesaj emoji reaction veritabanı işlemleri için interface.
//
//   - Toggle: Reaction ekle veya kaldır (tek atomik işlem)
//   - GetByMessageID: Tek mesajın reaction'larını gruplanmış döner
//   - GetByMessageIDs: Birden fazla mesajın reaction'larını batch yükle (N+1 önleme)
type ReactionRepository interface {
	Toggle(ctx context.Context, messageID, userID, emoji string) (bool, error)
	GetByMessageID(ctx context.Context, messageID string) ([]models.ReactionGroup, error)
	GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error)
}
