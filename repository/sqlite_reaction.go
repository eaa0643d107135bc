package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/selimgur/vole/models"
)

// sqliteReactionRepo, ReactionRepository interface'inin SQLite implementasyonu.
type sqliteReactionRepo struct {
	db *sql.DB
}

// NewSQLiteReactionRepo, constructor — interface döner.
func NewSQLiteReactionRepo(db *sql.DB) ReactionRepository {
	return &sqliteReactionRepo{db: db}
}

// Toggle, bir reaction'ı ekler veya kaldırır.
//
// Strateji: INSERT OR IGNORE ile eklemeyi dene.
// rowsAffected == 0 → UNIQUE constraint nedeniyle eklenmedi → zaten var → DELETE yap.
// rowsAffected == 1 → başarıyla eklendi.
//
// İki ayrı SELECT + INSERT/DELETE yerine tek bir atomik işlem: UNIQUE
// constraint DB seviyesinde korunduğu için race condition oluşmaz.
func (r *sqliteReactionRepo) Toggle(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	insertQuery := `
		INSERT OR IGNORE INTO chat_reactions (id, message_id, user_id, emoji)
		VALUES (lower(hex(randomblob(8))), ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, insertQuery, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("toggle reaction insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle reaction rows affected: %w", err)
	}

	// INSERT başarılı — yeni reaction eklendi
	if rowsAffected > 0 {
		return true, nil
	}

	// INSERT başarısız (UNIQUE constraint) — reaction zaten var, sil
	deleteQuery := `DELETE FROM chat_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`
	if _, err := r.db.ExecContext(ctx, deleteQuery, messageID, userID, emoji); err != nil {
		return false, fmt.Errorf("toggle reaction delete: %w", err)
	}

	return false, nil
}

// GetByMessageID, tek bir mesajın reaction'larını gruplanmış olarak döner.
//
// GROUP BY emoji ile aynı emojiler birleştirilir, GROUP_CONCAT(user_id) ile
// tepki veren kullanıcılar toplanır. Sonuç: [{emoji: "👍", count: 2, users: [...]}]
func (r *sqliteReactionRepo) GetByMessageID(ctx context.Context, messageID string) ([]models.ReactionGroup, error) {
	query := `
		SELECT emoji, COUNT(*) as count, GROUP_CONCAT(user_id) as users
		FROM chat_reactions
		WHERE message_id = ?
		GROUP BY emoji
		ORDER BY MIN(created_at) ASC`

	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("get reactions by message: %w", err)
	}
	defer rows.Close()

	return scanReactionGroups(rows)
}

// GetByMessageIDs, birden fazla mesajın reaction'larını batch olarak yükler.
// Reaction'ı olmayan mesajlar map'te key olarak bulunmaz.
func (r *sqliteReactionRepo) GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error) {
	if len(messageIDs) == 0 {
		return make(map[string][]models.ReactionGroup), nil
	}

	placeholders := make([]string, len(messageIDs))
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT message_id, emoji, COUNT(*) as count, GROUP_CONCAT(user_id) as users
		FROM chat_reactions
		WHERE message_id IN (%s)
		GROUP BY message_id, emoji
		ORDER BY message_id, MIN(created_at) ASC`,
		strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get reactions by message ids: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.ReactionGroup)
	for rows.Next() {
		var messageID, emoji, usersStr string
		var count int
		if err := rows.Scan(&messageID, &emoji, &count, &usersStr); err != nil {
			return nil, fmt.Errorf("scan reaction group: %w", err)
		}

		result[messageID] = append(result[messageID], models.ReactionGroup{
			Emoji: emoji,
			Count: count,
			Users: strings.Split(usersStr, ","),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction rows: %w", err)
	}

	return result, nil
}

// scanReactionGroups, reaction GROUP BY sorgusunun sonuçlarını parse eder.
func scanReactionGroups(rows *sql.Rows) ([]models.ReactionGroup, error) {
	var groups []models.ReactionGroup
	for rows.Next() {
		var emoji, usersStr string
		var count int
		if err := rows.Scan(&emoji, &count, &usersStr); err != nil {
			return nil, fmt.Errorf("scan reaction group: %w", err)
		}

		groups = append(groups, models.ReactionGroup{
			Emoji: emoji,
			Count: count,
			Users: strings.Split(usersStr, ","),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction rows: %w", err)
	}

	if groups == nil {
		groups = []models.ReactionGroup{}
	}

	return groups, nil
}
