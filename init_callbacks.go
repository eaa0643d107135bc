// Package main — WebSocket Hub callback wire-up.
//
// registerHubCallbacks, Hub'ın presence/typing/call callback'lerini ayarlar.
//
// Bu callback'ler neden burada (main package'da)?
// Hub ws paketinde yaşıyor, ama DB güncellemesi service/repo katmanında.
// Hub'ın service'lere bağımlı olmasını istemiyoruz (Dependency Inversion).
// main package wire-up noktasıdır — tüm katmanları birbirine bağlar.
//
// Callback'ler Hub.Run() goroutine'inden ayrı goroutine'de çalışır
// (addClient/removeClient içinde `go callback()` ile çağrılır),
// böylece Hub'ın mutex Lock'u ile BroadcastToAll'ın RLock'u çakışmaz.
package main

import (
	"context"
	"log"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/repository"
	"github.com/selimgur/vole/services"
	"github.com/selimgur/vole/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini register eder.
//
// Parametre olarak aldığı dependency'ler:
// - hub: callback'lerin bağlanacağı WebSocket Hub
// - userRepo: presence callback'lerinde DB güncelleme için
// - chatService: typing callback'inde kanal üyelik kontrolü için
// - callRelayService: arama event'leri ve disconnect cleanup için
func registerHubCallbacks(
	hub *ws.Hub,
	userRepo repository.UserRepository,
	chatService services.ChatService,
	callRelayService services.CallRelayService,
) {
	// ─── Presence Callback'leri ───

	hub.OnUserFirstConnect(func(userID string) {
		if err := userRepo.UpdateStatus(context.Background(), userID, models.UserStatusOnline); err != nil {
			log.Printf("[presence] failed to set online for user %s: %v", userID, err)
			return
		}

		hub.BroadcastToAll(ws.Event{
			Op: ws.OpPresence,
			Data: ws.PresenceData{
				UserID: userID,
				Status: string(models.UserStatusOnline),
			},
		})
		log.Printf("[presence] user %s is now online", userID)
	})

	hub.OnUserFullyDisconnected(func(userID string) {
		if err := userRepo.UpdateStatus(context.Background(), userID, models.UserStatusOffline); err != nil {
			log.Printf("[presence] failed to set offline for user %s: %v", userID, err)
		}

		hub.BroadcastToAll(ws.Event{
			Op: ws.OpPresence,
			Data: ws.PresenceData{
				UserID: userID,
				Status: string(models.UserStatusOffline),
			},
		})
		log.Printf("[presence] user %s disconnected (DB set to offline)", userID)

		// Aktif araması varsa karşı tarafa "disconnect" sebebiyle bildirilir.
		callRelayService.HandleDisconnect(userID)
	})

	// ─── Typing Callback'i ───

	hub.OnTyping(func(userID, username, channelID string) {
		chatService.NotifyTyping(userID, username, channelID)
	})

	// ─── Arama Callback'leri ───
	//
	// Client WS event gönderir → Client.handleEvent → bu callback'ler →
	// callRelayService. Relay service karşı tarafa hub üzerinden event gönderir.

	hub.OnStartCall(callRelayService.StartCall)
	hub.OnSendOffer(callRelayService.RelayOffer)
	hub.OnSendAnswer(callRelayService.RelayAnswer)
	hub.OnSendIce(callRelayService.RelayIce)
	hub.OnRejectCall(callRelayService.Reject)

	hub.OnHangUp(func(userID string) {
		if err := callRelayService.HangUp(userID); err != nil {
			log.Printf("[call] hang_up failed for user %s: %v", userID, err)
		}
	})
}
