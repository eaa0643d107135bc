package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
)

// ─── Fake Repositories ───

// fakeSessionRepo, repository.SessionRepository'nin in-memory implementasyonu.
type fakeSessionRepo struct {
	mu       sync.Mutex
	nextID   int
	sessions map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	session.ID = fmt.Sprintf("sess-%d", r.nextID)
	session.CreatedAt = time.Now()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshToken == refreshToken {
			copied := *s
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: session not found", pkg.ErrNotFound)
}

func (r *fakeSessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context) error { return nil }

// expire, bir refresh token'ın oturumunu geçmişe çeker (test yardımcıları).
func (r *fakeSessionRepo) expire(refreshToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshToken == refreshToken {
			s.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// fakeResetRepo, repository.PasswordResetRepository'nin in-memory implementasyonu.
type fakeResetRepo struct {
	mu     sync.Mutex
	nextID int
	tokens map[string]*models.PasswordResetToken
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{tokens: make(map[string]*models.PasswordResetToken)}
}

func (r *fakeResetRepo) Create(ctx context.Context, token *models.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	token.ID = fmt.Sprintf("reset-%d", r.nextID)
	token.CreatedAt = time.Now()
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeResetRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: reset token not found", pkg.ErrNotFound)
}

func (r *fakeResetRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *fakeResetRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *fakeResetRepo) DeleteExpired(ctx context.Context) error { return nil }

func (r *fakeResetRepo) GetLatestByUserID(ctx context.Context, userID string) (*models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*models.PasswordResetToken
	for _, t := range r.tokens {
		if t.UserID == userID {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no reset token", pkg.ErrNotFound)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	copied := *matches[0]
	return &copied, nil
}

// fakeEmailSender, gönderilen reset token'larını kaydeder.
type fakeEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

type sentEmail struct {
	to    string
	token string
}

func (s *fakeEmailSender) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{to: toEmail, token: token})
	return nil
}

func (s *fakeEmailSender) emails() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentEmail, len(s.sent))
	copy(out, s.sent)
	return out
}

// ─── Fixture ───

type authFixture struct {
	svc      AuthService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	resets   *fakeResetRepo
	mail     *fakeEmailSender
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		resets:   newFakeResetRepo(),
		mail:     &fakeEmailSender{},
	}
	f.svc = NewAuthService(f.users, f.sessions, f.resets, f.mail, "test-secret", 15, 7)
	return f
}

// register, testlerin çoğunun ihtiyacı olan hazır kullanıcıyı oluşturur.
func (f *authFixture) register(t *testing.T, username, password, emailAddr string) *AuthTokens {
	t.Helper()
	tokens, err := f.svc.Register(context.Background(), &models.CreateUserRequest{
		Username: username,
		Password: password,
		Email:    emailAddr,
	})
	require.NoError(t, err)
	return tokens
}

// ─── Testler ───

// TestRegisterReturnsValidTokens — kayıt sonrası dönen access token doğrulanır,
// hash response'a sızmaz ve refresh session'ı persist edilir.
func TestRegisterReturnsValidTokens(t *testing.T) {
	f := newAuthFixture()

	tokens := f.register(t, "selim", "parola-123", "")
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Empty(t, tokens.User.PasswordHash, "hash must never leave the service")

	claims, err := f.svc.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.User.ID, claims.UserID)
	assert.Equal(t, "selim", claims.Username)

	assert.Equal(t, 1, f.sessions.count())
}

// TestRegisterValidation — kısa username/parola ve mükerrer username reddedilir.
func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, &models.CreateUserRequest{Username: "ab", Password: "parola-123"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = f.svc.Register(ctx, &models.CreateUserRequest{Username: "selim", Password: "kisa"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	f.register(t, "selim", "parola-123", "")
	_, err = f.svc.Register(ctx, &models.CreateUserRequest{Username: "selim", Password: "parola-456"})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)
}

// TestLoginRejectsBadCredentials — yanlış parola ve bilinmeyen kullanıcı
// AYNI hatayla döner (enumeration koruması).
func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.register(t, "selim", "parola-123", "")

	_, err := f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "yanlis-parola"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = f.svc.Login(ctx, &models.LoginRequest{Username: "yok-boyle-biri", Password: "parola-123"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	tokens, err := f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "parola-123"})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOnline, tokens.User.Status)
}

// TestRefreshTokenRotation — refresh yeni çift üretir; eski refresh token
// ikinci kez KULLANILAMAZ.
func TestRefreshTokenRotation(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	first := f.register(t, "selim", "parola-123", "")

	second, err := f.svc.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized, "rotated token must be dead")

	assert.Equal(t, 1, f.sessions.count(), "old session must be deleted")
}

// TestRefreshTokenExpired — süresi dolmuş session reddedilir ve silinir.
func TestRefreshTokenExpired(t *testing.T) {
	f := newAuthFixture()
	tokens := f.register(t, "selim", "parola-123", "")

	f.sessions.expire(tokens.RefreshToken)

	_, err := f.svc.RefreshToken(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	assert.Equal(t, 0, f.sessions.count())
}

// TestLogoutRevokesSession — logout sonrası refresh çalışmaz; bilinmeyen
// token ile logout sessizce başarılıdır.
func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	tokens := f.register(t, "selim", "parola-123", "")

	require.NoError(t, f.svc.Logout(ctx, tokens.RefreshToken))

	_, err := f.svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	assert.NoError(t, f.svc.Logout(ctx, "hic-olmayan-token"))
}

// TestValidateAccessTokenRejectsGarbage — imzasız/bozuk token geçmez.
func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.ValidateAccessToken("bozuk.jwt.token")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

// TestChangePassword — yanlış mevcut parola, aynı parola ve kısa parola
// reddedilir; başarılı değişiklik sonrası eski parola artık çalışmaz.
func TestChangePassword(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	tokens := f.register(t, "selim", "parola-123", "")
	userID := tokens.User.ID

	err := f.svc.ChangePassword(ctx, userID, "parola-123", "kisa")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = f.svc.ChangePassword(ctx, userID, "yanlis", "yeni-parola-456")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	err = f.svc.ChangePassword(ctx, userID, "parola-123", "parola-123")
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "new password must differ")

	require.NoError(t, f.svc.ChangePassword(ctx, userID, "parola-123", "yeni-parola-456"))

	_, err = f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "parola-123"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	_, err = f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "yeni-parola-456"})
	assert.NoError(t, err)
}

// TestChangeEmail — parola doğrulaması, format kontrolü ve aynı-email
// reddi; boş email mevcut adresi kaldırır.
func TestChangeEmail(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	tokens := f.register(t, "selim", "parola-123", "selim@example.com")
	userID := tokens.User.ID

	err := f.svc.ChangeEmail(ctx, userID, "yanlis", "yeni@example.com")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	err = f.svc.ChangeEmail(ctx, userID, "parola-123", "gecersiz-email")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = f.svc.ChangeEmail(ctx, userID, "parola-123", "selim@example.com")
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "same email must be rejected")

	require.NoError(t, f.svc.ChangeEmail(ctx, userID, "parola-123", "yeni@example.com"))

	// Boş email → adres kaldırılır; ikinci kaldırma hata döner
	require.NoError(t, f.svc.ChangeEmail(ctx, userID, "parola-123", ""))
	err = f.svc.ChangeEmail(ctx, userID, "parola-123", "")
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "no email left to remove")
}

// TestForgotPasswordEnumerationSafe — kayıtlı olmayan email için de başarı
// görüntüsü verilir, mail çıkmaz.
func TestForgotPasswordEnumerationSafe(t *testing.T) {
	f := newAuthFixture()

	remaining, err := f.svc.ForgotPassword(context.Background(), "yok@example.com")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.Empty(t, f.mail.emails(), "no mail for unknown addresses")
}

// TestForgotPasswordCooldown — art arda istekler cooldown'a takılır;
// sadece ilk istek mail üretir.
func TestForgotPasswordCooldown(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	f.register(t, "selim", "parola-123", "selim@example.com")

	remaining, err := f.svc.ForgotPassword(ctx, "selim@example.com")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	remaining, err = f.svc.ForgotPassword(ctx, "selim@example.com")
	require.NoError(t, err)
	assert.Positive(t, remaining, "second request must hit the cooldown")

	assert.Len(t, f.mail.emails(), 1)
}

// TestResetPasswordFlow — email'deki plaintext token ile şifre sıfırlanır,
// token single-use'dur ve TÜM oturumlar kapanır.
func TestResetPasswordFlow(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	tokens := f.register(t, "selim", "parola-123", "selim@example.com")

	_, err := f.svc.ForgotPassword(ctx, "selim@example.com")
	require.NoError(t, err)

	sent := f.mail.emails()
	require.Len(t, sent, 1)
	assert.Equal(t, "selim@example.com", sent[0].to)

	require.NoError(t, f.svc.ResetPassword(ctx, sent[0].token, "sifirlanmis-789"))

	// Yeni parola çalışır, eski çalışmaz
	_, err = f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "sifirlanmis-789"})
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, &models.LoginRequest{Username: "selim", Password: "parola-123"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	// Eldeki refresh token reset ile geçersiz kılındı
	_, err = f.svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized, "reset must revoke existing sessions")

	// Token single-use
	err = f.svc.ResetPassword(ctx, sent[0].token, "baska-parola-000")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

// TestResetPasswordRejectsBadToken — uydurma token ve kısa parola reddedilir.
func TestResetPasswordRejectsBadToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	err := f.svc.ResetPassword(ctx, "uydurma-token", "gecerli-parola-1")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	err = f.svc.ResetPassword(ctx, "uydurma-token", "kisa")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}
