package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
)

// sqliteChatRepo, ChatRepository interface'inin SQLite implementasyonu.
type sqliteChatRepo struct {
	db *sql.DB
}

// NewSQLiteChatRepo, constructor — interface döner.
func NewSQLiteChatRepo(db *sql.DB) ChatRepository {
	return &sqliteChatRepo{db: db}
}

// ─── Channel Operations ───

// GetChannelByUsers, iki kullanıcı arasındaki kanalı döner.
// user1ID ve user2ID sıralı gelmeli (service katmanında sağlanır).
func (r *sqliteChatRepo) GetChannelByUsers(ctx context.Context, user1ID, user2ID string) (*models.ChatChannel, error) {
	var ch models.ChatChannel
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user1_id, user2_id, created_at FROM chat_channels WHERE user1_id = ? AND user2_id = ?",
		user1ID, user2ID,
	).Scan(&ch.ID, &ch.User1ID, &ch.User2ID, &ch.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // Kanal yok — nil döner (hata değil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat channel: %w", err)
	}
	return &ch, nil
}

// GetChannelByID, ID ile kanalı döner.
func (r *sqliteChatRepo) GetChannelByID(ctx context.Context, id string) (*models.ChatChannel, error) {
	var ch models.ChatChannel
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user1_id, user2_id, created_at FROM chat_channels WHERE id = ?",
		id,
	).Scan(&ch.ID, &ch.User1ID, &ch.User2ID, &ch.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chat channel not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat channel: %w", err)
	}
	return &ch, nil
}

// ListChannels, bir kullanıcının tüm kanallarını karşı taraf bilgisiyle döner.
//
// JOIN mantığı:
// chat_channels.user1_id veya user2_id eşleşen kanalları bul,
// karşı tarafı (eşleşmeyen user) users tablosuyla JOIN et.
// Son mesaja göre sıralama: en son mesaj alan kanal üstte.
func (r *sqliteChatRepo) ListChannels(ctx context.Context, userID string) ([]models.ChatChannelWithUser, error) {
	query := `
		SELECT c.id, c.created_at,
			(SELECT MAX(m.created_at) FROM chat_messages m WHERE m.channel_id = c.id) AS last_message_at,
			u.id, u.username, u.display_name, u.avatar_url, u.status
		FROM chat_channels c
		JOIN users u ON u.id = CASE
			WHEN c.user1_id = ? THEN c.user2_id
			ELSE c.user1_id
		END
		WHERE c.user1_id = ? OR c.user2_id = ?
		ORDER BY COALESCE(last_message_at, c.created_at) DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat channels: %w", err)
	}
	defer rows.Close()

	var channels []models.ChatChannelWithUser
	for rows.Next() {
		var ch models.ChatChannelWithUser
		var user models.User
		var lastMessageAt sql.NullTime
		var displayName, avatarURL sql.NullString

		if err := rows.Scan(
			&ch.ID, &ch.CreatedAt, &lastMessageAt,
			&user.ID, &user.Username, &displayName, &avatarURL, &user.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat channel: %w", err)
		}

		if lastMessageAt.Valid {
			ch.LastMessageAt = &lastMessageAt.Time
		}
		if displayName.Valid {
			user.DisplayName = &displayName.String
		}
		if avatarURL.Valid {
			user.AvatarURL = &avatarURL.String
		}

		ch.OtherUser = &user
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat channels: %w", err)
	}

	if channels == nil {
		channels = []models.ChatChannelWithUser{}
	}
	return channels, nil
}

// CreateChannel, yeni bir kanal oluşturur.
func (r *sqliteChatRepo) CreateChannel(ctx context.Context, channel *models.ChatChannel) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO chat_channels (id, user1_id, user2_id) VALUES (lower(hex(randomblob(8))), ?, ?) RETURNING id, created_at",
		channel.User1ID, channel.User2ID,
	).Scan(&channel.ID, &channel.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create chat channel: %w", err)
	}
	return nil
}

// ─── Message Operations ───

// GetMessages, cursor-based pagination ile mesajları döner.
// Mesajlar created_at DESC sıralı döner (service katmanında ters çevrilir).
func (r *sqliteChatRepo) GetMessages(ctx context.Context, channelID string, beforeID string, limit int) ([]models.ChatMessage, error) {
	var rows *sql.Rows
	var err error

	baseQuery := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.status
		FROM chat_messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.channel_id = ?`

	if beforeID != "" {
		rows, err = r.db.QueryContext(ctx, baseQuery+
			" AND m.created_at < (SELECT created_at FROM chat_messages WHERE id = ?)"+
			" ORDER BY m.created_at DESC LIMIT ?",
			channelID, beforeID, limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx, baseQuery+
			" ORDER BY m.created_at DESC LIMIT ?",
			channelID, limit,
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return messages, nil
}

// GetMessageByID, tek bir mesajı döner (yazar bilgisiyle).
func (r *sqliteChatRepo) GetMessageByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.status
		FROM chat_messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.id = ?`, id,
	)

	msg, err := scanChatMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chat message not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat message: %w", err)
	}
	return msg, nil
}

// scanChatMessage, tek bir mesaj satırını (yazar JOIN'li) okur.
func scanChatMessage(row interface{ Scan(dest ...any) error }) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	var author models.User
	var editedAt sql.NullTime
	var displayName, avatarURL sql.NullString

	if err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &editedAt, &msg.CreatedAt,
		&author.ID, &author.Username, &displayName, &avatarURL, &author.Status,
	); err != nil {
		return nil, err
	}

	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	if displayName.Valid {
		author.DisplayName = &displayName.String
	}
	if avatarURL.Valid {
		author.AvatarURL = &avatarURL.String
	}

	msg.Author = &author
	return &msg, nil
}

// CreateMessage, yeni bir mesaj oluşturur.
func (r *sqliteChatRepo) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO chat_messages (id, channel_id, author_id, content) VALUES (lower(hex(randomblob(8))), ?, ?, ?) RETURNING id, created_at",
		msg.ChannelID, msg.AuthorID, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	// created_at SQLite default — timezone issue fix
	msg.CreatedAt = msg.CreatedAt.UTC()
	return nil
}

// UpdateMessage, bir mesajı düzenler.
func (r *sqliteChatRepo) UpdateMessage(ctx context.Context, id string, content string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		"UPDATE chat_messages SET content = ?, edited_at = ? WHERE id = ?",
		content, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update chat message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: chat message not found", pkg.ErrNotFound)
	}
	return nil
}

// DeleteMessage, bir mesajı siler. FK cascade ile attachment kayıtları da silinir.
func (r *sqliteChatRepo) DeleteMessage(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chat message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: chat message not found", pkg.ErrNotFound)
	}
	return nil
}

// ─── Attachment Operations ───

// CreateAttachment, yeni bir dosya eki kaydeder.
func (r *sqliteChatRepo) CreateAttachment(ctx context.Context, attachment *models.ChatAttachment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO chat_attachments (id, message_id, file_name, file_path, file_size, mime_type)
		VALUES (lower(hex(randomblob(8))), ?, ?, ?, ?, ?)
		RETURNING id, created_at`,
		attachment.MessageID, attachment.FileName, attachment.FileURL, attachment.FileSize, attachment.MimeType,
	).Scan(&attachment.ID, &attachment.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create chat attachment: %w", err)
	}
	return nil
}

// GetAttachmentsByMessageIDs, birden fazla mesajın dosya eklerini tek sorguda yükler.
//
// N+1 problemi: 50 mesaj için 50 ayrı attachment sorgusu yerine
// tek bir "WHERE message_id IN (...)" sorgusu — sonuç map ile mesajlara dağıtılır.
func (r *sqliteChatRepo) GetAttachmentsByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ChatAttachment, error) {
	result := make(map[string][]models.ChatAttachment)
	if len(messageIDs) == 0 {
		return result, nil
	}

	// IN (?, ?, ...) placeholder'larını dinamik oluştur
	placeholders := make([]string, len(messageIDs))
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `
		SELECT id, message_id, file_name, file_path, file_size, mime_type, created_at
		FROM chat_attachments
		WHERE message_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.ChatAttachment
		if err := rows.Scan(
			&a.ID, &a.MessageID, &a.FileName, &a.FileURL, &a.FileSize, &a.MimeType, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat attachment: %w", err)
		}
		result[a.MessageID] = append(result[a.MessageID], a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat attachments: %w", err)
	}

	return result, nil
}
