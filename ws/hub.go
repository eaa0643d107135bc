package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// EventPublisher, service katmanının WebSocket event'leri broadcast etmek için
// kullandığı interface.
//
// Dependency Inversion: Service'ler Hub'ın concrete struct'ına değil,
// bu interface'e bağımlıdır. Böylece:
// 1. Service test edilirken mock EventPublisher kullanılabilir
// 2. Hub implementasyonu değişse bile service kodu etkilenmez
type EventPublisher interface {
	BroadcastToAll(event Event)
	BroadcastToAllExcept(excludeUserID string, event Event)
	BroadcastToUser(userID string, event Event)
	GetOnlineUserIDs() []string
}

// Hub, tüm WebSocket bağlantılarını yöneten merkezi yapıdır (Observer pattern).
//
// Observer pattern nedir?
// Bir "subject" (Hub) birden fazla "observer"ı (Client) takip eder.
// Bir event olduğunda Hub, ilgili observer'lara bildirim gönderir.
// Mesaj gönderildiğinde kanalın her iki kullanıcısına iletilmesi bu pattern'dir.
//
// Go channel nedir? (register, unregister)
// Goroutine'ler arası güvenli iletişim sağlayan yapılar.
// Hub.Run() goroutine'i bu channel'lardan `select` ile okur:
// - register channel'dan yeni client gelirse → clients map'e ekle
// - unregister channel'dan client gelirse → map'ten çıkar
type Hub struct {
	// clients: userID → Client set (bir kullanıcının birden fazla tab'ı olabilir).
	// map[string]map[*Client]bool — Go'da set yoktur, map[*Client]bool kullanılır.
	// bool değeri her zaman true'dur — sadece varlık kontrolü için kullanılır.
	clients map[string]map[*Client]bool

	// mu: clients map'ini koruyan read-write mutex.
	//
	// sync.RWMutex nedir?
	// Mutex'in gelişmiş hali — birden fazla okuyucu aynı anda erişebilir (RLock),
	// ama yazma işlemi sırasında tüm erişim bloklanır (Lock).
	// Online kullanıcı listesi gibi okuma ağırlıklı işlemlerde performans sağlar.
	mu sync.RWMutex

	// register/unregister: Client giriş/çıkış sinyalleri.
	register   chan *Client
	unregister chan *Client

	// seq: Her outbound event'e verilen artan sayaç.
	// atomic.Int64: Birden fazla goroutine'in güvenle okuyup yazabildiği sayı.
	// Normal int64 kullanılsaydı race condition oluşurdu.
	seq atomic.Int64

	// usernames: userID → username cache (typing broadcast için).
	usernames map[string]string
	userMu    sync.RWMutex

	// ─── Callback'ler ───
	//
	// Callback pattern: ws paketi services'a import edemez (circular dependency).
	// Bunun yerine main.go wire-up sırasında bu fonksiyonları set eder.
	// Client'dan event geldiğinde ilgili callback tetiklenir → service katmanına ulaşır.
	//
	// Tüm callback'ler `go` ile çağrılır — Hub mutex'i ile deadlock önlenir
	// (callback içinde BroadcastToUser çağrılabilir).

	// onUserFirstConnect: Kullanıcının İLK bağlantısı kurulduğunda
	// (ikinci tab açmak tetiklemez). Presence "online" broadcast'i burada yapılır.
	onUserFirstConnect func(userID string)

	// onUserFullyDisconnected: Kullanıcının SON bağlantısı koptuğunda
	// (bir tab kapanıp diğeri açıksa tetiklenmez). Presence "offline" broadcast'i
	// ve aktif aramanın "disconnect" sebebiyle sonlandırılması burada yapılır.
	onUserFullyDisconnected func(userID string)

	// onTyping: Kullanıcı bir kanalda yazıyor.
	onTyping func(userID, username, channelID string)

	// onStartCall: Arama başlatma isteği. Diğer callback'lerden farklı olarak
	// SENKRON dönüş değeri taşır — client, nonce eşleşmeli ack/err yanıtını
	// bu dönüşten üretir.
	onStartCall func(callerID, receiverID string, video bool) (int64, error)

	// onSendOffer/onSendAnswer/onSendIce: WebRTC signaling relay istekleri.
	// payload opak'tır — server içeriğine bakmaz, karşı tarafa iletir.
	onSendOffer  func(userID string, callID int64, payload json.RawMessage) error
	onSendAnswer func(userID string, callID int64, payload json.RawMessage) error
	onSendIce    func(userID string, callID int64, payload json.RawMessage) error

	// onRejectCall: Gelen aramanın reddedilmesi.
	onRejectCall func(userID string, callID int64) error

	// onHangUp: Aktif aramanın sonlandırılması.
	onHangUp func(userID string)
}

// NewHub, yeni bir Hub oluşturur.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		usernames:  make(map[string]string),
	}
}

// ─── Callback Setter'ları ───
// main.go wire-up sırasında çağrılır. Hub çalışmaya başlamadan ÖNCE set edilmeli.

// OnUserFirstConnect, kullanıcının ilk bağlantı callback'ini set eder.
func (h *Hub) OnUserFirstConnect(fn func(userID string)) { h.onUserFirstConnect = fn }

// OnUserFullyDisconnected, kullanıcının son bağlantı kopma callback'ini set eder.
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) { h.onUserFullyDisconnected = fn }

// OnTyping, typing callback'ini set eder.
func (h *Hub) OnTyping(fn func(userID, username, channelID string)) { h.onTyping = fn }

// OnStartCall, arama başlatma callback'ini set eder.
func (h *Hub) OnStartCall(fn func(callerID, receiverID string, video bool) (int64, error)) {
	h.onStartCall = fn
}

// OnSendOffer, SDP offer relay callback'ini set eder.
func (h *Hub) OnSendOffer(fn func(userID string, callID int64, payload json.RawMessage) error) {
	h.onSendOffer = fn
}

// OnSendAnswer, SDP answer relay callback'ini set eder.
func (h *Hub) OnSendAnswer(fn func(userID string, callID int64, payload json.RawMessage) error) {
	h.onSendAnswer = fn
}

// OnSendIce, ICE candidate relay callback'ini set eder.
func (h *Hub) OnSendIce(fn func(userID string, callID int64, payload json.RawMessage) error) {
	h.onSendIce = fn
}

// OnRejectCall, arama reddetme callback'ini set eder.
func (h *Hub) OnRejectCall(fn func(userID string, callID int64) error) { h.onRejectCall = fn }

// OnHangUp, arama sonlandırma callback'ini set eder.
func (h *Hub) OnHangUp(fn func(userID string)) { h.onHangUp = fn }

// Run, Hub'ın ana event loop'udur. main.go'da `go hub.Run()` ile başlatılır.
//
// goroutine olarak çalışır:
// `go hub.Run()` → yeni bir hafif "thread" (goroutine) başlatır.
// Go'da goroutine'ler OS thread'lerinden farklıdır — çok daha hafiftir (2KB stack).
// Yüz binlerce goroutine rahatça çalışabilir.
//
// select nedir?
// Birden fazla channel'ı aynı anda dinler.
// Hangi channel'dan veri gelirse o case çalışır.
// Hiçbirinden gelmezse bekler (blocking).
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// addClient, yeni bir client'ı Hub'a ekler.
// Kullanıcının İLK bağlantısıysa onUserFirstConnect callback'i tetiklenir.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()

	first := false
	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
		first = true
	}
	h.clients[client.userID][client] = true

	log.Printf("[ws] client connected: user=%s (total connections for user: %d)",
		client.userID, len(h.clients[client.userID]))

	h.mu.Unlock()

	if first && h.onUserFirstConnect != nil {
		go h.onUserFirstConnect(client.userID)
	}
}

// removeClient, bir client'ı Hub'dan çıkarır ve send channel'ını kapatır.
// Kullanıcının SON bağlantısı koptuysa onUserFullyDisconnected tetiklenir.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()

	last := false
	if clients, ok := h.clients[client.userID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)

			// Kullanıcının başka bağlantısı kalmadıysa map'ten sil
			if len(clients) == 0 {
				delete(h.clients, client.userID)
				last = true
				log.Printf("[ws] user fully disconnected: %s", client.userID)
			} else {
				log.Printf("[ws] client disconnected: user=%s (remaining: %d)",
					client.userID, len(clients))
			}
		}
	}

	h.mu.Unlock()

	if last && h.onUserFullyDisconnected != nil {
		go h.onUserFullyDisconnected(client.userID)
	}
}

// BroadcastToAll, tüm bağlı client'lara event gönderir.
func (h *Hub) BroadcastToAll(event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal broadcast event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.clients {
		for client := range clients {
			select {
			case client.send <- data:
			default:
				// Buffer dolu — bu client yavaş, kapat
				go func(c *Client) { h.unregister <- c }(client)
			}
		}
	}
}

// BroadcastToAllExcept, belirli bir kullanıcı hariç tüm client'lara event gönderir.
func (h *Hub) BroadcastToAllExcept(excludeUserID string, event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal broadcast event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, clients := range h.clients {
		if userID == excludeUserID {
			continue
		}
		for client := range clients {
			select {
			case client.send <- data:
			default:
				go func(c *Client) { h.unregister <- c }(client)
			}
		}
	}
}

// BroadcastToUser, belirli bir kullanıcının tüm bağlantılarına event gönderir.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal user event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[userID]; ok {
		for client := range clients {
			select {
			case client.send <- data:
			default:
				go func(c *Client) { h.unregister <- c }(client)
			}
		}
	}
}

// GetOnlineUserIDs, bağlı olan tüm kullanıcı ID'lerini döner.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

// SetUserUsername, kullanıcı bağlandığında username cache'ini günceller.
func (h *Hub) SetUserUsername(userID, username string) {
	h.userMu.Lock()
	defer h.userMu.Unlock()
	h.usernames[userID] = username
}

// getUserUsername, userID'den username döner (typing broadcast için).
func (h *Hub) getUserUsername(userID string) string {
	h.userMu.RLock()
	defer h.userMu.RUnlock()
	return h.usernames[userID]
}

// Shutdown, tüm client bağlantılarını kapatır (graceful shutdown).
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	log.Println("[ws] hub shut down, all connections closed")
}
