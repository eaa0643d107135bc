// Package main — Handler katmanı başlatma.
//
// initHandlers, tüm HTTP handler'larını oluşturur.
// Her handler, ihtiyaç duyduğu service interface'lerini constructor'dan alır.
// Handler'lar "thin" dir — sadece HTTP parse + service call + response write.
package main

import (
	"github.com/selimgur/vole/config"
	"github.com/selimgur/vole/handlers"
	"github.com/selimgur/vole/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Chat     *handlers.ChatHandler
	Reaction *handlers.ReactionHandler
	WS       *ws.Handler
}

// initHandlers, tüm handler'ları service ve rate limiter dependency'leri ile oluşturur.
func initHandlers(svcs *Services, limiters *RateLimiters, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		Auth:     handlers.NewAuthHandler(svcs.Auth, limiters.Login),
		User:     handlers.NewUserHandler(svcs.User),
		Chat:     handlers.NewChatHandler(svcs.Chat, svcs.Upload, limiters.Message, cfg.Upload.MaxSize),
		Reaction: handlers.NewReactionHandler(svcs.Reaction),
		WS:       ws.NewHandler(hub, svcs.Auth),
	}
}
