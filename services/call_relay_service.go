// Package services — CallRelayService: 1:1 arama sinyalleşmesinin server yarısı.
//
// Arama sistemi:
// - İki kullanıcı arası sesli/görüntülü arama
// - Sunucu sadece signaling relay görevi görür — medya direkt peer-to-peer akar
// - Tüm state ephemeral (in-memory) — DB kaydı yok
//
// In-memory state:
// - activeCalls: callID → *Call
// - userCalls:   userID → callID (her kullanıcı max 1 arama — sistem geneli invariant)
// - sync.RWMutex ile concurrent erişim koruması
//
// Signaling akışı:
// 1. Caller → StartCall → validate + call ID üret → caller'a ack (nonce ile)
// 2. Caller → RelayOffer → receiver'a receive_offer (zil burada çalar)
// 3. Receiver → RelayAnswer → caller'a receive_answer (status → active)
// 4. İki yön → RelayIce → karşı tarafa receive_ice (içeriğe bakılmaz, opak relay)
// 5. Either → Reject/HangUp/disconnect → karşı tarafa bildirim + cleanup
//
// Cleanup tek kapıdan: map girdilerini yalnızca removeCall siler.
// Böylece yarım silinmiş state (callID var ama userCalls yok) oluşamaz.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/ws"
)

// UserInfoGetter, kullanıcı bilgisi almak için minimal interface.
// repository.UserRepository bu interface'i duck typing ile otomatik karşılar.
//
// Interface Segregation: CallRelayService sadece ihtiyacı olan metoda bağımlıdır,
// tam UserRepository'ye değil.
type UserInfoGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// CallRelayService, arama sinyalleşmesi relay operasyonları için interface.
type CallRelayService interface {
	// StartCall, yeni bir arama başlatır ve server tarafından üretilen
	// call ID'yi döner. Self-call, offline receiver ve meşgul taraf reddedilir.
	StartCall(callerID, receiverID string, video bool) (int64, error)

	// RelayOffer, caller'ın SDP offer'ını receiver'a iletir.
	// Receiver için "gelen arama" bildirimi budur — caller bilgisiyle zenginleştirilir.
	RelayOffer(senderID string, callID int64, offer json.RawMessage) error

	// RelayAnswer, receiver'ın SDP answer'ını caller'a iletir.
	// Answer relay edildiğinde arama "active" statüsüne geçer.
	RelayAnswer(senderID string, callID int64, answer json.RawMessage) error

	// RelayIce, ICE candidate'ı karşı tarafa iletir. İçerik opak — server bakmaz.
	RelayIce(senderID string, callID int64, candidate json.RawMessage) error

	// Reject, aramayı reddeder (receiver) veya iptal eder (caller).
	Reject(userID string, callID int64) error

	// HangUp, kullanıcının aktif aramasını sonlandırır.
	HangUp(userID string) error

	// HandleDisconnect, kullanıcının WS bağlantısı koptuğunda çağrılır.
	// Aktif araması varsa sonlandırır ve karşı tarafa "disconnect" sebebiyle bildirir.
	HandleDisconnect(userID string)

	// GetUserCall, kullanıcının aktif aramasını döner (nil = aramada değil).
	GetUserCall(userID string) *models.Call
}

// callRelayService, CallRelayService'in private implementasyonu.
type callRelayService struct {
	userGetter UserInfoGetter
	hub        ws.EventPublisher

	// ringTimeout: offer relay edildikten sonra cevapsız kalan aramanın
	// server tarafında ne kadar yaşayacağı. Client tarafının da kendi
	// timer'ı vardır; buradaki, kaybolan client'lara karşı güvence.
	ringTimeout time.Duration

	// nextID: süreç-lokal monoton artan call ID üreteci.
	// Sunucu restart'ında sıfırlanır — aktif aramalar da zaten kaybolur,
	// bu yüzden ID çakışması olamaz.
	nextID atomic.Int64

	activeCalls map[int64]*models.Call
	userCalls   map[string]int64
	ringTimers  map[int64]*time.Timer

	// mu: activeCalls, userCalls ve ringTimers'ı koruyan read-write mutex.
	mu sync.RWMutex
}

// NewCallRelayService, constructor. Tüm dependency'ler injection ile alınır.
func NewCallRelayService(
	userGetter UserInfoGetter,
	hub ws.EventPublisher,
	ringTimeoutSeconds int,
) CallRelayService {
	return &callRelayService{
		userGetter:  userGetter,
		hub:         hub,
		ringTimeout: time.Duration(ringTimeoutSeconds) * time.Second,
		activeCalls: make(map[int64]*models.Call),
		userCalls:   make(map[string]int64),
		ringTimers:  make(map[int64]*time.Timer),
	}
}

// offerRelayPayload, receive_offer event'inin data'sı.
// CallNotification (caller kimliği) + opak SDP offer.
type offerRelayPayload struct {
	models.CallNotification
	Offer json.RawMessage `json:"offer"`
}

// signalRelayPayload, receive_answer / receive_ice event'lerinin data'sı.
type signalRelayPayload struct {
	CallID     int64           `json:"call_id"`
	FromUserID string          `json:"from_user_id"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// callEndPayload, call_rejected / call_hung_up event'lerinin data'sı.
type callEndPayload struct {
	CallID int64  `json:"call_id"`
	Reason string `json:"reason,omitempty"`
}

// StartCall, yeni bir arama başlatır.
func (s *callRelayService) StartCall(callerID, receiverID string, video bool) (int64, error) {
	// 1. Kendini arayamaz
	if callerID == receiverID {
		return 0, fmt.Errorf("%w: cannot call yourself", pkg.ErrBadRequest)
	}

	// 2. Receiver gerçek bir kullanıcı mı?
	if _, err := s.userGetter.GetByID(context.Background(), receiverID); err != nil {
		return 0, fmt.Errorf("%w: unknown user", pkg.ErrBadRequest)
	}

	// 3. Receiver online mı?
	receiverOnline := false
	for _, id := range s.hub.GetOnlineUserIDs() {
		if id == receiverID {
			receiverOnline = true
			break
		}
	}
	if !receiverOnline {
		return 0, fmt.Errorf("%w: user is offline", pkg.ErrBadRequest)
	}

	// 4. Meşguliyet kontrolü + kayıt — tek lock bloğunda (check-then-act yarışını önler)
	s.mu.Lock()
	if _, busy := s.userCalls[callerID]; busy {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: already in a call", pkg.ErrBadRequest)
	}
	if _, busy := s.userCalls[receiverID]; busy {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: user is busy", pkg.ErrBadRequest)
	}

	call := &models.Call{
		ID:         s.nextID.Add(1),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Video:      video,
		Status:     models.CallStatusRinging,
		CreatedAt:  time.Now().UTC(),
	}

	s.activeCalls[call.ID] = call
	// Her iki taraf da hemen meşgul sayılır — zil çalarken üçüncü bir
	// arama ne caller'a ne receiver'a bağlanabilir.
	s.userCalls[callerID] = call.ID
	s.userCalls[receiverID] = call.ID

	// Ring timeout: cevapsız arama server tarafında da ölmeli.
	callID := call.ID
	s.ringTimers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.expireRinging(callID)
	})
	s.mu.Unlock()

	log.Printf("[call] started: %s → %s (video=%t, id=%d)", callerID, receiverID, video, call.ID)
	return call.ID, nil
}

// RelayOffer, caller'ın SDP offer'ını receiver'a iletir.
func (s *callRelayService) RelayOffer(senderID string, callID int64, offer json.RawMessage) error {
	call, otherID, err := s.lookupParticipant(senderID, callID)
	if err != nil {
		return err
	}

	// Offer sadece caller'dan gelebilir
	if call.CallerID != senderID {
		return fmt.Errorf("%w: only the caller can send an offer", pkg.ErrForbidden)
	}

	// Caller bilgisi — receiver'ın "X arıyor" ekranı için
	caller, err := s.userGetter.GetByID(context.Background(), senderID)
	if err != nil {
		return err
	}

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op: ws.OpReceiveOffer,
		Data: offerRelayPayload{
			CallNotification: models.CallNotification{
				CallID:          call.ID,
				FromUserID:      caller.ID,
				FromUsername:    caller.Username,
				FromDisplayName: caller.DisplayName,
				FromAvatarURL:   caller.AvatarURL,
				Video:           call.Video,
			},
			Offer: offer,
		},
	})

	return nil
}

// RelayAnswer, receiver'ın SDP answer'ını caller'a iletir.
func (s *callRelayService) RelayAnswer(senderID string, callID int64, answer json.RawMessage) error {
	call, otherID, err := s.lookupParticipant(senderID, callID)
	if err != nil {
		return err
	}

	if call.ReceiverID != senderID {
		return fmt.Errorf("%w: only the receiver can send an answer", pkg.ErrForbidden)
	}

	// Answer geldi → arama aktif, ring timer'a gerek kalmadı
	s.mu.Lock()
	call.Status = models.CallStatusActive
	s.stopRingTimerLocked(callID)
	s.mu.Unlock()

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op: ws.OpReceiveAnswer,
		Data: signalRelayPayload{
			CallID:     call.ID,
			FromUserID: senderID,
			Answer:     answer,
		},
	})

	log.Printf("[call] answered: %s answered call %d", senderID, callID)
	return nil
}

// RelayIce, ICE candidate'ı karşı tarafa iletir.
// Bilinmeyen callID → stale sinyal, sessizce düşürülür (hata değil):
// arama yeni bitmişken yolda olan candidate'lar normaldir.
func (s *callRelayService) RelayIce(senderID string, callID int64, candidate json.RawMessage) error {
	call, otherID, err := s.lookupParticipant(senderID, callID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			log.Printf("[call] dropping stale ice candidate for call %d from %s", callID, senderID)
			return nil
		}
		return err
	}

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op: ws.OpReceiveIce,
		Data: signalRelayPayload{
			CallID:     call.ID,
			FromUserID: senderID,
			Candidate:  candidate,
		},
	})

	return nil
}

// Reject, aramayı reddeder (receiver tarafı) veya iptal eder (caller tarafı).
func (s *callRelayService) Reject(userID string, callID int64) error {
	_, otherID, err := s.lookupParticipant(userID, callID)
	if err != nil {
		return err
	}

	s.removeCall(callID)
	log.Printf("[call] rejected: %s rejected call %d", userID, callID)

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op:   ws.OpCallRejected,
		Data: callEndPayload{CallID: callID},
	})

	return nil
}

// HangUp, kullanıcının aktif aramasını sonlandırır.
func (s *callRelayService) HangUp(userID string) error {
	s.mu.RLock()
	callID, exists := s.userCalls[userID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: not in a call", pkg.ErrBadRequest)
	}

	_, otherID, err := s.lookupParticipant(userID, callID)
	if err != nil {
		return err
	}

	s.removeCall(callID)
	log.Printf("[call] ended: %s hung up call %d", userID, callID)

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op:   ws.OpCallHungUp,
		Data: callEndPayload{CallID: callID, Reason: "hangup"},
	})

	return nil
}

// HandleDisconnect, kullanıcının WS bağlantısı koptuğunda çağrılır.
func (s *callRelayService) HandleDisconnect(userID string) {
	s.mu.RLock()
	callID, exists := s.userCalls[userID]
	s.mu.RUnlock()

	if !exists {
		return // Aramada değildi, bir şey yapmaya gerek yok
	}

	_, otherID, err := s.lookupParticipant(userID, callID)
	if err != nil {
		return
	}

	s.removeCall(callID)
	log.Printf("[call] ended due to disconnect: user=%s, call=%d", userID, callID)

	s.hub.BroadcastToUser(otherID, ws.Event{
		Op:   ws.OpCallHungUp,
		Data: callEndPayload{CallID: callID, Reason: "disconnect"},
	})
}

// GetUserCall, kullanıcının aktif aramasını döner (nil = aramada değil).
func (s *callRelayService) GetUserCall(userID string) *models.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	callID, exists := s.userCalls[userID]
	if !exists {
		return nil
	}
	return s.activeCalls[callID]
}

// ─── Private Helpers ───

// lookupParticipant, callID'yi çözer ve sender'ın katılımcı olduğunu doğrular.
// Karşı tarafın user ID'sini döner.
func (s *callRelayService) lookupParticipant(senderID string, callID int64) (*models.Call, string, error) {
	s.mu.RLock()
	call, exists := s.activeCalls[callID]
	s.mu.RUnlock()

	if !exists {
		return nil, "", fmt.Errorf("%w: call not found", pkg.ErrNotFound)
	}

	if call.CallerID != senderID && call.ReceiverID != senderID {
		return nil, "", fmt.Errorf("%w: not part of this call", pkg.ErrForbidden)
	}

	otherID := call.CallerID
	if call.CallerID == senderID {
		otherID = call.ReceiverID
	}
	return call, otherID, nil
}

// removeCall, aramayı tüm map'lerden siler ve ring timer'ı durdurur.
// State silmenin TEK yolu budur — kısmi silme olamaz.
func (s *callRelayService) removeCall(callID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, exists := s.activeCalls[callID]
	if !exists {
		return
	}

	delete(s.activeCalls, callID)
	delete(s.userCalls, call.CallerID)
	delete(s.userCalls, call.ReceiverID)
	s.stopRingTimerLocked(callID)
}

// stopRingTimerLocked, ring timer'ı durdurur. mu kilitliyken çağrılmalı.
func (s *callRelayService) stopRingTimerLocked(callID int64) {
	if timer, ok := s.ringTimers[callID]; ok {
		timer.Stop()
		delete(s.ringTimers, callID)
	}
}

// expireRinging, ring timeout dolduğunda çağrılır.
// Arama hâlâ ringing ise iki tarafa da timeout bildirilir ve state silinir.
func (s *callRelayService) expireRinging(callID int64) {
	s.mu.RLock()
	call, exists := s.activeCalls[callID]
	stillRinging := exists && call.Status == models.CallStatusRinging
	s.mu.RUnlock()

	if !stillRinging {
		return
	}

	s.removeCall(callID)
	log.Printf("[call] ring timeout: call %d expired unanswered", callID)

	payload := callEndPayload{CallID: callID, Reason: "timeout"}
	s.hub.BroadcastToUser(call.CallerID, ws.Event{Op: ws.OpCallHungUp, Data: payload})
	s.hub.BroadcastToUser(call.ReceiverID, ws.Event{Op: ws.OpCallHungUp, Data: payload})
}
