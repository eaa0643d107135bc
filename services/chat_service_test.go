package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/ws"
)

// ─── Fake Repositories ───

// fakeUserRepo, repository.UserRepository'nin in-memory implementasyonu.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*models.User
}

func newFakeUserRepo(ids ...string) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*models.User)}
	for _, id := range ids {
		r.users[id] = &models.User{ID: id, Username: "user-" + id, PasswordHash: "hash"}
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username already taken", pkg.ErrAlreadyExists)
		}
	}
	if user.ID == "" {
		r.nextID++
		user.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email != nil && *u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
}

func (r *fakeUserRepo) GetAll(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) UpdateStatus(ctx context.Context, userID string, status models.UserStatus) error {
	return nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, userID string, newPasswordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.PasswordHash = newPasswordHash
	}
	return nil
}

func (r *fakeUserRepo) UpdateEmail(ctx context.Context, userID string, email *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.Email = email
	}
	return nil
}

// fakeChatRepo, repository.ChatRepository'nin in-memory implementasyonu.
// Mesajları ekleme sırasıyla tutar — cursor pagination bu sıraya dayanır.
type fakeChatRepo struct {
	mu          sync.Mutex
	nextID      int
	channels    map[string]*models.ChatChannel
	messages    map[string]*models.ChatMessage
	order       map[string][]string // channelID → mesaj ID'leri (eski → yeni)
	attachments map[string][]models.ChatAttachment
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		channels:    make(map[string]*models.ChatChannel),
		messages:    make(map[string]*models.ChatMessage),
		order:       make(map[string][]string),
		attachments: make(map[string][]models.ChatAttachment),
	}
}

func (r *fakeChatRepo) GetChannelByUsers(ctx context.Context, user1ID, user2ID string) (*models.ChatChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		if ch.User1ID == user1ID && ch.User2ID == user2ID {
			copied := *ch
			return &copied, nil
		}
	}
	return nil, nil // kanal yok — hata değil
}

func (r *fakeChatRepo) GetChannelByID(ctx context.Context, id string) (*models.ChatChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: channel not found", pkg.ErrNotFound)
	}
	copied := *ch
	return &copied, nil
}

func (r *fakeChatRepo) ListChannels(ctx context.Context, userID string) ([]models.ChatChannelWithUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ChatChannelWithUser
	for _, ch := range r.channels {
		if ch.User1ID == userID || ch.User2ID == userID {
			out = append(out, models.ChatChannelWithUser{ID: ch.ID, CreatedAt: ch.CreatedAt})
		}
	}
	return out, nil
}

func (r *fakeChatRepo) CreateChannel(ctx context.Context, channel *models.ChatChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	channel.ID = fmt.Sprintf("chan-%d", r.nextID)
	copied := *channel
	r.channels[channel.ID] = &copied
	return nil
}

func (r *fakeChatRepo) GetMessages(ctx context.Context, channelID string, beforeID string, limit int) ([]models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.order[channelID]
	end := len(ids)
	if beforeID != "" {
		for i, id := range ids {
			if id == beforeID {
				end = i
				break
			}
		}
	}

	// Yeniden eskiye doğru limit kadar — gerçek sorgu ORDER BY DESC LIMIT ?
	var out []models.ChatMessage
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *r.messages[ids[i]])
	}
	return out, nil
}

func (r *fakeChatRepo) GetMessageByID(ctx context.Context, id string) (*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	copied := *m
	return &copied, nil
}

func (r *fakeChatRepo) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = fmt.Sprintf("msg-%d", r.nextID)
	copied := *msg
	r.messages[msg.ID] = &copied
	r.order[msg.ChannelID] = append(r.order[msg.ChannelID], msg.ID)
	return nil
}

func (r *fakeChatRepo) UpdateMessage(ctx context.Context, id string, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	m.Content = content
	return nil
}

func (r *fakeChatRepo) DeleteMessage(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	delete(r.messages, id)
	ids := r.order[m.ChannelID]
	for i, mid := range ids {
		if mid == id {
			r.order[m.ChannelID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeChatRepo) CreateAttachment(ctx context.Context, attachment *models.ChatAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	attachment.ID = fmt.Sprintf("att-%d", r.nextID)
	r.attachments[attachment.MessageID] = append(r.attachments[attachment.MessageID], *attachment)
	return nil
}

func (r *fakeChatRepo) GetAttachmentsByMessageIDs(ctx context.Context, messageIDs []string) (map[string][]models.ChatAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]models.ChatAttachment)
	for _, id := range messageIDs {
		if atts, ok := r.attachments[id]; ok {
			out[id] = atts
		}
	}
	return out, nil
}

// ─── Fixture ───

func newChatFixture(userIDs ...string) (ChatService, *fakeChatRepo, *fakeHub) {
	chatRepo := newFakeChatRepo()
	hub := newFakeHub(userIDs...)
	svc := NewChatService(chatRepo, newFakeUserRepo(userIDs...), newFakeReactionRepo(), hub)
	return svc, chatRepo, hub
}

// ─── Testler ───

// TestGetOrCreateChannelIsIdempotent — aynı çift için ikinci çağrı yeni
// kanal açmaz; karşı tarafın parola hash'i response'a sızmaz.
func TestGetOrCreateChannelIsIdempotent(t *testing.T) {
	svc, _, hub := newChatFixture("alice", "bob")
	ctx := context.Background()

	first, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, first.OtherUser)
	assert.Equal(t, "bob", first.OtherUser.ID)
	assert.Empty(t, first.OtherUser.PasswordHash)

	// Yeni kanal her iki tarafa da duyurulur
	assert.Equal(t, ws.OpChatChannelCreate, hub.lastOpFor("alice"))
	assert.Equal(t, ws.OpChatChannelCreate, hub.lastOpFor("bob"))

	second, err := svc.GetOrCreateChannel(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "sorted pair must map to the same channel")
	assert.Equal(t, "alice", second.OtherUser.ID)
	assert.Empty(t, second.OtherUser.PasswordHash)
}

// TestGetOrCreateChannelValidation — kendinle kanal açılamaz, bilinmeyen
// kullanıcı bulunamaz.
func TestGetOrCreateChannelValidation(t *testing.T) {
	svc, _, _ := newChatFixture("alice", "bob")
	ctx := context.Background()

	_, err := svc.GetOrCreateChannel(ctx, "alice", "alice")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = svc.GetOrCreateChannel(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

// TestSendMessageMembership — kanal üyesi olmayan kullanıcı mesaj gönderemez.
func TestSendMessageMembership(t *testing.T) {
	svc, _, _ := newChatFixture("alice", "bob", "carol")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "carol", ch.ID, &models.CreateChatMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

// TestSendMessageAndBroadcast — mesaj yazar bilgisiyle döner; BroadcastCreate
// iki kullanıcıya da chat_message_create iletir.
func TestSendMessageAndBroadcast(t *testing.T) {
	svc, _, hub := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "  merhaba  "})
	require.NoError(t, err)
	assert.Equal(t, "merhaba", msg.Content, "content must be trimmed")
	require.NotNil(t, msg.Author)
	assert.Empty(t, msg.Author.PasswordHash)
	assert.NotNil(t, msg.Attachments, "attachments must be [] not null")

	svc.BroadcastCreate(msg)
	assert.Equal(t, ws.OpChatMessageCreate, hub.lastOpFor("alice"))
	assert.Equal(t, ws.OpChatMessageCreate, hub.lastOpFor("bob"))
}

// TestSendMessageValidation — boş içerik (dosyasız) reddedilir.
func TestSendMessageValidation(t *testing.T) {
	svc, _, _ := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "   "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	// Dosya ekli mesajda boş content geçerlidir
	_, err = svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "", HasFiles: true})
	assert.NoError(t, err)
}

// TestGetMessagesPagination — limit+1 ile hasMore tespiti; mesajlar
// kronolojik sırada döner.
func TestGetMessagesPagination(t *testing.T) {
	svc, _, _ := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{
			Content: fmt.Sprintf("mesaj %d", i),
		})
		require.NoError(t, err)
	}

	page, err := svc.GetMessages(ctx, "bob", ch.ID, "", 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "mesaj 2", page.Messages[0].Content, "chronological order")
	assert.Equal(t, "mesaj 3", page.Messages[1].Content)

	// Cursor ile bir önceki sayfa
	older, err := svc.GetMessages(ctx, "bob", ch.ID, page.Messages[0].ID, 2)
	require.NoError(t, err)
	assert.False(t, older.HasMore)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, "mesaj 1", older.Messages[0].Content)

	// Üye olmayan okuyamaz
	_, err = svc.GetMessages(ctx, "ghost", ch.ID, "", 10)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

// TestEditMessageAuthorOnly — sadece yazar düzenleyebilir; düzenleme
// iki tarafa da broadcast edilir.
func TestEditMessageAuthorOnly(t *testing.T) {
	svc, _, hub := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "ilk hali"})
	require.NoError(t, err)

	_, err = svc.EditMessage(ctx, "bob", msg.ID, &models.UpdateChatMessageRequest{Content: "hack"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	edited, err := svc.EditMessage(ctx, "alice", msg.ID, &models.UpdateChatMessageRequest{Content: "yeni hali"})
	require.NoError(t, err)
	assert.Equal(t, "yeni hali", edited.Content)
	assert.Equal(t, ws.OpChatMessageUpdate, hub.lastOpFor("bob"))
}

// TestDeleteMessageAuthorOnly — sadece yazar silebilir; silme broadcast edilir.
func TestDeleteMessageAuthorOnly(t *testing.T) {
	svc, chatRepo, hub := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "silinecek"})
	require.NoError(t, err)

	err = svc.DeleteMessage(ctx, "bob", msg.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.NoError(t, svc.DeleteMessage(ctx, "alice", msg.ID))
	assert.Equal(t, ws.OpChatMessageDelete, hub.lastOpFor("bob"))

	_, err = chatRepo.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

// TestNotifyTyping — typing bildirimi yalnızca kanalın KARŞI tarafına gider.
func TestNotifyTyping(t *testing.T) {
	svc, _, hub := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)

	aliceBefore := len(hub.eventsFor("alice"))
	svc.NotifyTyping("alice", "user-alice", ch.ID)

	assert.Equal(t, ws.OpTypingStart, hub.lastOpFor("bob"))
	assert.Len(t, hub.eventsFor("alice"), aliceBefore, "sender must not receive their own typing event")
}

// TestUploadAttachmentEnrichment — mesaj geçmişi attachment'larla döner.
func TestUploadAttachmentEnrichment(t *testing.T) {
	svc, chatRepo, _ := newChatFixture("alice", "bob")
	ctx := context.Background()

	ch, err := svc.GetOrCreateChannel(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", ch.ID, &models.CreateChatMessageRequest{Content: "dosya", HasFiles: true})
	require.NoError(t, err)

	require.NoError(t, chatRepo.CreateAttachment(ctx, &models.ChatAttachment{
		MessageID: msg.ID,
		FileName:  "foto.jpg",
		FileURL:   "/api/uploads/abc_foto.jpg",
		MimeType:  "image/jpeg",
	}))

	page, err := svc.GetMessages(ctx, "bob", ch.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Len(t, page.Messages[0].Attachments, 1)
	assert.Equal(t, "foto.jpg", page.Messages[0].Attachments[0].FileName)
}
