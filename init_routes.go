// Package main — HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar.
// Middleware chain helper'ı burada tanımlıdır:
//   - auth: JWT token doğrulaması
package main

import (
	"net/http"
	"strings"

	"github.com/selimgur/vole/middleware"
	"github.com/selimgur/vole/repository"
	"github.com/selimgur/vole/services"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı: Literal path'ler parametrik path'lerden ÖNCE tanımlanmalı.
// Örnek: "/api/users/me" → "/api/users/{id}" öncesinde,
// yoksa Go router "me" kelimesini bir id olarak yorumlar.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	authService services.AuthService,
	userRepo repository.UserRepository,
	uploadDir string,
) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(authService, userRepo)

	// ─── Middleware Chain Helper ───
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}

	// Auth
	mux.HandleFunc("POST /api/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Auth.Refresh)
	mux.Handle("POST /api/auth/logout", auth(h.Auth.Logout))
	mux.HandleFunc("POST /api/auth/forgot-password", h.Auth.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", h.Auth.ResetPassword)

	// User
	mux.Handle("GET /api/users/me", auth(h.Auth.Me))
	mux.Handle("PATCH /api/users/me/profile", auth(h.User.UpdateMe))
	mux.Handle("POST /api/users/me/password", auth(h.Auth.ChangePassword))
	mux.Handle("PUT /api/users/me/email", auth(h.Auth.ChangeEmail))
	mux.Handle("GET /api/users", auth(h.User.List))
	mux.Handle("GET /api/users/{id}", auth(h.User.Get))

	// Chats
	mux.Handle("GET /api/chats", auth(h.Chat.ListChannels))
	mux.Handle("POST /api/chats", auth(h.Chat.CreateOrGetChannel))
	mux.Handle("GET /api/chats/{channelId}/messages", auth(h.Chat.GetMessages))
	mux.Handle("POST /api/chats/{channelId}/messages", auth(h.Chat.SendMessage))
	mux.Handle("PATCH /api/chats/messages/{id}", auth(h.Chat.EditMessage))
	mux.Handle("DELETE /api/chats/messages/{id}", auth(h.Chat.DeleteMessage))
	mux.Handle("POST /api/chats/messages/{id}/reactions", auth(h.Reaction.Toggle))

	// Static file serving — yüklenen dosyalara erişim
	//
	// http.StripPrefix: URL'den "/api/uploads/" kısmını çıkarır.
	// http.FileServer: Kalan path'i upload dizininde dosya olarak arar.
	// Örnek: GET /api/uploads/abc123_photo.jpg → ./data/uploads/abc123_photo.jpg
	//
	// Path traversal koruması:
	// http.FileServer zaten ".." path'lerini reddeder.
	// Ek güvenlik için sadece dosya isimlerini kabul edip subdirectory'leri reddediyoruz.
	uploadsHandler := http.StripPrefix("/api/uploads/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/") || strings.Contains(r.URL.Path, "\\") {
			http.NotFound(w, r)
			return
		}
		http.FileServer(http.Dir(uploadDir)).ServeHTTP(w, r)
	}))
	mux.Handle("GET /api/uploads/", uploadsHandler)

	// WebSocket — token query parameter ile authenticate edilir
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
