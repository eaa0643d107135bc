package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoginLimiterBlocksAfterMax — max deneme aşılınca aynı IP bloklanır,
// farklı IP etkilenmez.
func TestLoginLimiterBlocksAfterMax(t *testing.T) {
	rl := NewLoginRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "attempt %d must pass", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "4th attempt must be blocked")
	assert.True(t, rl.Allow("10.0.0.2"), "other IPs are unaffected")

	assert.Positive(t, rl.RetryAfterSeconds("10.0.0.1"))
	assert.Zero(t, rl.RetryAfterSeconds("10.0.0.9"), "unknown IP has no wait")
}

// TestLoginLimiterResetClearsCounter — başarılı login sonrası Reset,
// IP'yi anında serbest bırakır.
func TestLoginLimiterResetClearsCounter(t *testing.T) {
	rl := NewLoginRateLimiter(1, time.Minute)

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))

	rl.Reset("10.0.0.1")
	assert.True(t, rl.Allow("10.0.0.1"))
}

// TestLoginLimiterWindowExpiry — pencere dolunca sayaç kendiliğinden sıfırlanır.
func TestLoginLimiterWindowExpiry(t *testing.T) {
	rl := NewLoginRateLimiter(1, 20*time.Millisecond)

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"), "new window must start after expiry")
}

// TestMessageLimiterCooldown — limit aşımı cooldown başlatır; cooldown
// bitmeden hiçbir mesaj geçmez, bitince yeni pencere açılır.
func TestMessageLimiterCooldown(t *testing.T) {
	rl := NewMessageRateLimiter(2, 100*time.Millisecond, 50*time.Millisecond)

	require.True(t, rl.Allow("user-1"))
	require.True(t, rl.Allow("user-1"))
	require.False(t, rl.Allow("user-1"), "3rd message starts the cooldown")

	assert.Positive(t, rl.CooldownSeconds("user-1"))
	assert.False(t, rl.Allow("user-1"), "nothing passes during cooldown")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("user-1"), "cooldown over, fresh window")
	assert.Zero(t, rl.CooldownSeconds("user-1"))
}

// TestMessageLimiterPerUser — limit kullanıcı başınadır.
func TestMessageLimiterPerUser(t *testing.T) {
	rl := NewMessageRateLimiter(1, time.Minute, time.Minute)

	require.True(t, rl.Allow("user-1"))
	require.False(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-2"))
}

// TestExtractIP — proxy header öncelik sırası: X-Forwarded-For → X-Real-IP → RemoteAddr.
func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = "192.168.1.5:51234"
	assert.Equal(t, "192.168.1.5", ExtractIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", ExtractIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	assert.Equal(t, "198.51.100.1", ExtractIP(r), "first hop of X-Forwarded-For wins")
}

// TestFormatRetryMessage — saniye/dakika formatlaması.
func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "45 second(s)", FormatRetryMessage(45))
	assert.Equal(t, "2 minute(s)", FormatRetryMessage(120))
}
