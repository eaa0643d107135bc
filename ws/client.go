package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	// Bu süre aşılırsa bağlantı kapatılır (ağ sorunu olabilir).
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	// Bu sürede heartbeat gelmezse client bağlantısı kopmuş sayılır.
	pongWait = 90 * time.Second

	// maxMessageSize: Client'ın gönderebileceği maksimum mesaj boyutu (byte).
	// SDP offer/answer'lar birkaç KB olabilir — 32KB güvenli bir üst sınır.
	maxMessageSize = 32768

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer doluysa (client yavaş) mesajlar kaybolur — bu durumda client disconnect edilir.
	sendBufferSize = 256
)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Go'da WebSocket bağlantı yönetimi pattern'i:
// Her bağlantı için iki goroutine oluşturulur:
// - ReadPump: Client'dan gelen mesajları okur → Hub'a iletir
// - WritePump: Hub'dan gelen mesajları client'a yazar
//
// Neden iki goroutine?
// gorilla/websocket aynı anda sadece bir okuma ve bir yazma işlemi destekler.
// İki ayrı goroutine kullanarak okuma ve yazma birbirini bloklamaz.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	// send, client'a gönderilecek mesajların buffer'landığı Go channel'ı.
	//
	// Go channel nedir?
	// Goroutine'ler arası veri iletimi için kullanılan tipli boru (pipe).
	// `make(chan []byte, 256)` → 256 elemanlık buffer'lı bir byte dizisi kanalı.
	// Hub mesaj göndermek istediğinde `client.send <- data` yapar,
	// WritePump `data := <-client.send` ile okur.
	send chan []byte
	mu   sync.Mutex // conn.WriteMessage çağrılarını korur
}

// ReadPump, WebSocket bağlantısından gelen mesajları okur ve işler.
//
// Bu fonksiyon bir goroutine olarak çalışır — bağlantı kapanana kadar döngüde kalır.
// Bağlantı kapandığında Hub'dan çıkış yapar ve kaynakları temizler.
func (c *Client) ReadPump() {
	// defer: Fonksiyon bittiğinde (return veya panic) çalışır.
	// Bağlantı kapandığında client'ı Hub'dan çıkar ve WS bağlantısını kapat.
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// SetReadDeadline: Bu süre içinde mesaj gelmezse Read hata verir.
	// Her heartbeat geldiğinde deadline yenilenir.
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			// Bağlantı kapandı veya hata oluştu — ReadPump sonlanır.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		// Gelen mesajı parse et
		var event Event
		if err := json.Unmarshal(rawMessage, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}

		c.handleEvent(event)
	}
}

// handleEvent, client'dan gelen event'leri türüne göre işler.
func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		// Heartbeat geldi — deadline'ı yenile ve ack gönder.
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpTyping:
		// Typing event'ini parse et ve callback'e ilet.
		c.handleTyping(event)

	// ─── Arama Event'leri ───
	case OpStartCall:
		c.handleStartCall(event)
	case OpSendOffer:
		c.handleSignalRelay(event, c.hub.onSendOffer)
	case OpSendAnswer:
		c.handleSignalRelay(event, c.hub.onSendAnswer)
	case OpSendIce:
		c.handleSignalRelay(event, c.hub.onSendIce)
	case OpRejectCall:
		c.handleRejectCall(event)
	case OpHangUp:
		c.handleHangUp()

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// handleTyping, typing event'ini işler ve callback'e iletir.
// Kanal üyelik kontrolü ve karşı tarafa broadcast, service katmanında yapılır.
func (c *Client) handleTyping(event Event) {
	// Event data'sını JSON'dan TypingData'ya parse et.
	//
	// json.Marshal + json.Unmarshal neden?
	// event.Data tipi `any` (interface{}), doğrudan cast edemeyiz.
	// JSON'a çevirip tekrar parse etmek en güvenli yöntem.
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return
	}

	var typing TypingData
	if err := json.Unmarshal(dataBytes, &typing); err != nil {
		return
	}

	if typing.ChannelID == "" {
		return
	}

	if c.hub.onTyping != nil {
		go c.hub.onTyping(c.userID, c.hub.getUserUsername(c.userID), typing.ChannelID)
	}
}

// ─── Arama Event Handler'ları ───

// handleStartCall, start_call event'ini işler.
//
// Invoke-style event: client nonce gönderir, yanıt aynı nonce ile döner.
// Diğer event'lerden farklı olarak callback SENKRON çağrılır (dönüş değeri var) —
// bu yüzden ayrı goroutine'de çalıştırılır ki ReadPump bloklanmasın.
func (c *Client) handleStartCall(event Event) {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return
	}

	var data StartCallData
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		return
	}

	if data.ReceiverID == "" {
		log.Printf("[ws] start_call missing receiver_id from user %s", c.userID)
		c.sendEvent(Event{
			Op:    OpStartCallErr,
			Nonce: event.Nonce,
			Data:  StartCallErrData{Message: "receiver_id is required"},
		})
		return
	}

	if c.hub.onStartCall == nil {
		return
	}

	nonce := event.Nonce
	go func() {
		callID, err := c.hub.onStartCall(c.userID, data.ReceiverID, data.Video)
		if err != nil {
			c.sendEvent(Event{
				Op:    OpStartCallErr,
				Nonce: nonce,
				Data:  StartCallErrData{Message: err.Error()},
			})
			return
		}

		c.sendEvent(Event{
			Op:    OpStartCallAck,
			Nonce: nonce,
			Data:  StartCallAckData{CallID: callID},
		})
	}()
}

// signalEnvelope, send_offer/send_answer/send_ice event'lerinin ortak yapısı.
// CallID relay hedefini bulmak için parse edilir; offer/answer/candidate opak'tır —
// server SDP/ICE içeriğine bakmaz, olduğu gibi karşı tarafa iletir.
// json.RawMessage: parse edilmemiş ham JSON — içerik byte'ları aynen korunur.
type signalEnvelope struct {
	CallID    int64           `json:"call_id"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// handleSignalRelay, üç signaling relay event'inin ortak handler'ı.
// CallID'yi parse eder, op'a karşılık gelen opak payload'ı callback'e iletir.
//
// Relay SENKRON çağrılır: ReadPump bağlantı başına mesajları zaten sırayla
// işler; relay goroutine'e atılsaydı art arda gönderilen iki ICE candidate
// karşı tarafa ters sırada ulaşabilirdi. Relay'in kendisi bloklamaz —
// map işlemi + channel push (yalnızca offer relay'i DB'ye dokunur).
func (c *Client) handleSignalRelay(event Event, relay func(userID string, callID int64, payload json.RawMessage) error) {
	if relay == nil {
		return
	}

	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return
	}

	var env signalEnvelope
	if err := json.Unmarshal(dataBytes, &env); err != nil {
		return
	}

	if env.CallID == 0 {
		log.Printf("[ws] %s missing call_id from user %s", event.Op, c.userID)
		return
	}

	var payload json.RawMessage
	switch event.Op {
	case OpSendOffer:
		payload = env.Offer
	case OpSendAnswer:
		payload = env.Answer
	case OpSendIce:
		payload = env.Candidate
	}
	if len(payload) == 0 {
		log.Printf("[ws] %s missing payload from user %s", event.Op, c.userID)
		return
	}

	if err := relay(c.userID, env.CallID, payload); err != nil {
		log.Printf("[ws] %s relay failed for user %s: %v", event.Op, c.userID, err)
	}
}

// handleRejectCall, reject_call event'ini işler.
func (c *Client) handleRejectCall(event Event) {
	if c.hub.onRejectCall == nil {
		return
	}

	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return
	}

	var env signalEnvelope
	if err := json.Unmarshal(dataBytes, &env); err != nil {
		return
	}

	if env.CallID == 0 {
		log.Printf("[ws] reject_call missing call_id from user %s", c.userID)
		return
	}

	go func() {
		if err := c.hub.onRejectCall(c.userID, env.CallID); err != nil {
			log.Printf("[ws] reject_call failed for user %s: %v", c.userID, err)
		}
	}()
}

// handleHangUp, hang_up event'ini işler.
// Payload gerekmez — userID yeterli (kullanıcının aktif araması sonlandırılır).
func (c *Client) handleHangUp() {
	if c.hub.onHangUp != nil {
		go c.hub.onHangUp(c.userID)
	}
}

// sendEvent, client'a tek bir event gönderir.
func (c *Client) sendEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}

	select {
	case c.send <- data:
		// Başarıyla buffer'a eklendi
	default:
		// Buffer dolu — client muhtemelen donmuş, bağlantıyı kapat
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		c.hub.unregister <- c
	}
}

// WritePump, Hub'dan gelen mesajları WebSocket bağlantısına yazar.
//
// Bu fonksiyon bir goroutine olarak çalışır.
// send channel'dan mesaj bekler ve WS'e yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			// Channel kapatıldı — Hub client'ı çıkardı
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
//
// sync.Mutex nedir?
// Aynı anda sadece bir goroutine'in kritik bölgeye girmesini sağlar.
// c.mu.Lock() → bölgeye gir, c.mu.Unlock() → bölgeden çık.
// gorilla/websocket conn'a aynı anda birden fazla yazma YASAK —
// bu yüzden mutex ile koruyoruz.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
