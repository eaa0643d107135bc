package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/ws"
)

// ─── Fake'ler ───

// reactionRow, fake repo'daki tek bir reaction kaydı.
type reactionRow struct {
	userID string
	emoji  string
}

// fakeReactionRepo, repository.ReactionRepository'nin in-memory implementasyonu.
// Kayıtları ekleme sırasıyla tutar — gruplama ilk görülen emoji sırasını korur.
type fakeReactionRepo struct {
	mu   sync.Mutex
	rows map[string][]reactionRow // messageID → reaction'lar
}

func newFakeReactionRepo() *fakeReactionRepo {
	return &fakeReactionRepo{rows: make(map[string][]reactionRow)}
}

func (r *fakeReactionRepo) Toggle(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.rows[messageID]
	for i, row := range rows {
		if row.userID == userID && row.emoji == emoji {
			// Zaten var — kaldır (gerçek repo'daki UNIQUE + DELETE yolu)
			r.rows[messageID] = append(rows[:i], rows[i+1:]...)
			return false, nil
		}
	}

	r.rows[messageID] = append(rows, reactionRow{userID: userID, emoji: emoji})
	return true, nil
}

func (r *fakeReactionRepo) GetByMessageID(ctx context.Context, messageID string) ([]models.ReactionGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groupLocked(messageID), nil
}

func (r *fakeReactionRepo) GetByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]models.ReactionGroup)
	for _, id := range messageIDs {
		if groups := r.groupLocked(id); len(groups) > 0 {
			out[id] = groups
		}
	}
	return out, nil
}

// groupLocked, bir mesajın reaction'larını emoji bazında gruplar.
// İlk görülen emoji sırası korunur (gerçek sorgudaki ORDER BY MIN(created_at)).
func (r *fakeReactionRepo) groupLocked(messageID string) []models.ReactionGroup {
	var groups []models.ReactionGroup
	index := make(map[string]int)
	for _, row := range r.rows[messageID] {
		i, ok := index[row.emoji]
		if !ok {
			index[row.emoji] = len(groups)
			groups = append(groups, models.ReactionGroup{Emoji: row.emoji})
			i = len(groups) - 1
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, row.userID)
	}
	if groups == nil {
		groups = []models.ReactionGroup{}
	}
	return groups
}

// ─── Fixture ───

type reactionFixture struct {
	svc       ReactionService
	chat      ChatService
	chatRepo  *fakeChatRepo
	reactions *fakeReactionRepo
	hub       *fakeHub
}

func newReactionFixture(userIDs ...string) *reactionFixture {
	chatRepo := newFakeChatRepo()
	reactions := newFakeReactionRepo()
	hub := newFakeHub(userIDs...)
	return &reactionFixture{
		svc:       NewReactionService(reactions, chatRepo, hub),
		chat:      NewChatService(chatRepo, newFakeUserRepo(userIDs...), reactions, hub),
		chatRepo:  chatRepo,
		reactions: reactions,
		hub:       hub,
	}
}

// seedMessage, iki kullanıcı arasında kanal + tek mesaj oluşturur.
func (f *reactionFixture) seedMessage(t *testing.T, userA, userB, author string) *models.ChatMessage {
	t.Helper()

	u1, u2 := sortUserIDs(userA, userB)
	channel := &models.ChatChannel{User1ID: u1, User2ID: u2}
	require.NoError(t, f.chatRepo.CreateChannel(context.Background(), channel))

	msg := &models.ChatMessage{ChannelID: channel.ID, AuthorID: author, Content: "selam"}
	require.NoError(t, f.chatRepo.CreateMessage(context.Background(), msg))
	return msg
}

// ─── Testler ───

// TestToggleReactionAddAndRemove — ilk toggle ekler ve iki kullanıcıya da
// broadcast eder; aynı toggle'ın tekrarı reaction'ı kaldırır.
func TestToggleReactionAddAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newReactionFixture("alice", "bob")
	msg := f.seedMessage(t, "alice", "bob", "alice")

	require.NoError(t, f.svc.ToggleReaction(ctx, "bob", msg.ID, "👍"))

	for _, userID := range []string{"alice", "bob"} {
		events := f.hub.eventsFor(userID)
		require.Len(t, events, 1, "user %s should receive the update", userID)
		assert.Equal(t, ws.OpChatReactionUpdate, events[0].Op)

		data := events[0].Data.(map[string]any)
		assert.Equal(t, msg.ID, data["message_id"])
		assert.Equal(t, "bob", data["actor_id"])
		assert.Equal(t, "alice", data["message_author_id"])
		assert.Equal(t, true, data["added"])

		groups := data["reactions"].([]models.ReactionGroup)
		require.Len(t, groups, 1)
		assert.Equal(t, "👍", groups[0].Emoji)
		assert.Equal(t, 1, groups[0].Count)
		assert.Equal(t, []string{"bob"}, groups[0].Users)
	}

	// İkinci toggle — kaldırma
	require.NoError(t, f.svc.ToggleReaction(ctx, "bob", msg.ID, "👍"))

	events := f.hub.eventsFor("alice")
	require.Len(t, events, 2)
	data := events[1].Data.(map[string]any)
	assert.Equal(t, false, data["added"])
	assert.Empty(t, data["reactions"].([]models.ReactionGroup))
}

// TestToggleReactionGroupsByEmoji — aynı emojiye verilen tepkiler tek grupta
// toplanır; grup sırası ilk tepkinin sırasını izler.
func TestToggleReactionGroupsByEmoji(t *testing.T) {
	ctx := context.Background()
	f := newReactionFixture("alice", "bob")
	msg := f.seedMessage(t, "alice", "bob", "alice")

	require.NoError(t, f.svc.ToggleReaction(ctx, "alice", msg.ID, "👍"))
	require.NoError(t, f.svc.ToggleReaction(ctx, "bob", msg.ID, "👍"))
	require.NoError(t, f.svc.ToggleReaction(ctx, "alice", msg.ID, "❤️"))

	events := f.hub.eventsFor("bob")
	require.NotEmpty(t, events)
	groups := events[len(events)-1].Data.(map[string]any)["reactions"].([]models.ReactionGroup)

	require.Len(t, groups, 2)
	assert.Equal(t, "👍", groups[0].Emoji)
	assert.Equal(t, 2, groups[0].Count)
	assert.ElementsMatch(t, []string{"alice", "bob"}, groups[0].Users)
	assert.Equal(t, "❤️", groups[1].Emoji)
	assert.Equal(t, 1, groups[1].Count)
}

// TestToggleReactionValidation — geçersiz emoji, olmayan mesaj ve kanal
// üyesi olmayan kullanıcı reddedilir; broadcast gönderilmez.
func TestToggleReactionValidation(t *testing.T) {
	ctx := context.Background()
	f := newReactionFixture("alice", "bob", "carol")
	msg := f.seedMessage(t, "alice", "bob", "alice")

	err := f.svc.ToggleReaction(ctx, "bob", msg.ID, "")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = f.svc.ToggleReaction(ctx, "bob", msg.ID, strings.Repeat("x", MaxEmojiLength+1))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = f.svc.ToggleReaction(ctx, "bob", "ghost-message", "👍")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	// carol kanalın üyesi değil
	err = f.svc.ToggleReaction(ctx, "carol", msg.ID, "👍")
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	assert.Empty(t, f.hub.eventsFor("alice"))
	assert.Empty(t, f.hub.eventsFor("bob"))
}

// TestGetMessagesIncludesReactions — mesaj listesi reaction özetleriyle
// zenginleştirilir; tepkisiz mesajda liste null değil boş dizidir.
func TestGetMessagesIncludesReactions(t *testing.T) {
	ctx := context.Background()
	f := newReactionFixture("alice", "bob")
	msg := f.seedMessage(t, "alice", "bob", "alice")

	plain := &models.ChatMessage{ChannelID: msg.ChannelID, AuthorID: "bob", Content: "tepkisiz"}
	require.NoError(t, f.chatRepo.CreateMessage(ctx, plain))

	require.NoError(t, f.svc.ToggleReaction(ctx, "bob", msg.ID, "👍"))

	page, err := f.chat.GetMessages(ctx, "alice", msg.ChannelID, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)

	byID := make(map[string]models.ChatMessage)
	for _, m := range page.Messages {
		byID[m.ID] = m
	}

	require.Len(t, byID[msg.ID].Reactions, 1)
	assert.Equal(t, "👍", byID[msg.ID].Reactions[0].Emoji)

	require.NotNil(t, byID[plain.ID].Reactions)
	assert.Empty(t, byID[plain.ID].Reactions)
}
