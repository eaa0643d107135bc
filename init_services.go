// Package main — Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
package main

import (
	"log"
	"time"

	"github.com/selimgur/vole/config"
	"github.com/selimgur/vole/pkg/email"
	"github.com/selimgur/vole/pkg/ratelimit"
	"github.com/selimgur/vole/services"
	"github.com/selimgur/vole/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth      services.AuthService
	User      services.UserService
	Chat      services.ChatService
	Reaction  services.ReactionService
	Upload    services.UploadService
	CallRelay services.CallRelayService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	Login   *ratelimit.LoginRateLimiter
	Message *ratelimit.MessageRateLimiter
}

// initServices, tüm service'leri ve rate limiter'ları oluşturur.
//
// hub, service'ler arası paylaşılan dependency'dir — EventPublisher interface
// olarak geçilir ki service'ler concrete Hub'a bağımlı olmasın.
func initServices(repos *Repositories, hub ws.EventPublisher, cfg *config.Config) (*Services, *RateLimiters) {
	// ─── Email service (opsiyonel) ───
	//
	// API key yoksa emailSender nil kalır — auth service bu durumda reset
	// token'ını log'a yazar (development modu).
	var emailSender email.EmailSender
	if cfg.Email.ResendAPIKey != "" && cfg.Email.From != "" && cfg.Email.AppURL != "" {
		emailSender = email.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Email.AppURL)
		log.Printf("[main] email service enabled (from=%s)", cfg.Email.From)
	} else {
		log.Println("[main] email service disabled (RESEND_API_KEY, EMAIL_FROM or APP_URL not set)")
	}

	authService := services.NewAuthService(
		repos.User, repos.Session, repos.ResetToken, emailSender,
		cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry,
	)

	userService := services.NewUserService(repos.User, hub)
	chatService := services.NewChatService(repos.Chat, repos.User, repos.Reaction, hub)
	reactionService := services.NewReactionService(repos.Reaction, repos.Chat, hub)
	uploadService := services.NewUploadService(repos.Chat, cfg.Upload.Dir, cfg.Upload.MaxSize)
	callRelayService := services.NewCallRelayService(repos.User, hub, cfg.Call.RingTimeoutSeconds)

	// ─── Rate Limiters ───
	loginLimiter := ratelimit.NewLoginRateLimiter(5, 2*time.Minute)
	messageLimiter := ratelimit.NewMessageRateLimiter(5, 5*time.Second, 15*time.Second)

	svcs := &Services{
		Auth:      authService,
		User:      userService,
		Chat:      chatService,
		Reaction:  reactionService,
		Upload:    uploadService,
		CallRelay: callRelayService,
	}

	limiters := &RateLimiters{
		Login:   loginLimiter,
		Message: messageLimiter,
	}

	return svcs, limiters
}
