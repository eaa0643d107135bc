// Package ws, WebSocket bağlantı yönetimi ve gerçek zamanlı event dağıtımını sağlar.
//
// Mimari:
// - Hub: Tüm bağlantıları yöneten merkezi yapı (Observer pattern)
// - Client: Her WebSocket bağlantısını temsil eder
// - Event: Client-server arası iletilen mesaj formatı
//
// Event akışı:
// 1. Kullanıcı mesaj gönderir → HTTP POST → Service → DB kayıt
// 2. Service, Hub'ın BroadcastToUser metodunu çağırır
// 3. Hub, event'i ilgili client'lara iletir
// 4. Her client'ın WritePump'ı event'i WebSocket'e yazar
// 5. Frontend event'i alır ve store'u günceller
//
// Arama (call) event'leri farklı bir yol izler: client WS üzerinden gönderir,
// Client.handleEvent bunları Hub callback'lerine yönlendirir, callback'ler de
// main.go'da call relay service'e bağlanır. Böylece ws paketi services'a
// bağımlı olmaz (circular dependency önlenir).
package ws

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Op (operation): Event türü — "chat_message_create", "heartbeat" vb.
// Data: Event'e özgü payload — mesaj objesi, arama bilgisi vb.
// Seq (sequence number): Her outbound event'e verilen artan sayı.
// Frontend eksik event tespit etmek için seq'i takip eder.
// Nonce: Invoke-style istekler için client'ın ürettiği eşleştirme anahtarı.
// start_call gönderen client, yanıtı (start_call_ack / start_call_err)
// aynı nonce ile alır — hangi isteğe ait olduğunu böyle bilir.
type Event struct {
	Op    string `json:"op"`
	Data  any    `json:"d,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// ────────────────────────────────────────────
// Operation sabitleri
// ────────────────────────────────────────────

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat" // Client her 30sn'de gönderir — "hâlâ bağlıyım" sinyali
	OpTyping    = "typing"    // Kullanıcı bir kanalda yazıyor

	// Arama operasyonları.
	// start_call invoke-style'dır: client nonce gönderir, server aynı nonce ile
	// start_call_ack (call_id içerir) veya start_call_err döner.
	OpStartCall  = "start_call"  // Arama başlat (nonce'lu invoke)
	OpSendOffer  = "send_offer"  // WebRTC SDP offer'ı karşı tarafa relay et
	OpSendAnswer = "send_answer" // WebRTC SDP answer'ı karşı tarafa relay et
	OpSendIce    = "send_ice"    // ICE candidate'ı karşı tarafa relay et
	OpRejectCall = "reject_call" // Gelen aramayı reddet
	OpHangUp     = "hang_up"     // Aktif aramayı sonlandır
)

// Server → Client operasyonları
const (
	OpReady        = "ready"           // Bağlantı kurulduğunda ilk gönderilen — online kullanıcı listesi
	OpHeartbeatAck = "heartbeat_ack"   // Heartbeat'e yanıt — "seni duydum"
	OpPresence     = "presence_update" // Bir kullanıcının online/offline durumu değişti
	OpTypingStart  = "typing_start"    // Bir kullanıcı yazıyor
	OpUserUpdate   = "user_update"     // Kullanıcı profili güncellendi (display name vb.)

	// Chat operasyonları
	OpChatChannelCreate = "chat_channel_create" // Yeni sohbet kanalı oluşturuldu
	OpChatMessageCreate = "chat_message_create" // Yeni mesaj gönderildi
	OpChatMessageUpdate = "chat_message_update" // Mesaj düzenlendi
	OpChatMessageDelete = "chat_message_delete" // Mesaj silindi

	OpChatReactionUpdate = "chat_reaction_update" // Bir mesajın reaction listesi değişti

	// Arama operasyonları.
	// receive_offer aynı zamanda "gelen arama" bildirimidir — payload'ında
	// arayan kullanıcı bilgisi (CallNotification) + opak SDP offer taşır.
	OpReceiveOffer  = "receive_offer"  // Karşı taraftan SDP offer geldi (çalma başlar)
	OpReceiveAnswer = "receive_answer" // Karşı taraftan SDP answer geldi
	OpReceiveIce    = "receive_ice"    // Karşı taraftan ICE candidate geldi
	OpCallRejected  = "call_rejected"  // Arama reddedildi
	OpCallHungUp    = "call_hung_up"   // Arama sonlandırıldı (hangup/disconnect/timeout)
	OpStartCallAck  = "start_call_ack" // start_call başarılı — call_id döner (nonce eşleşir)
	OpStartCallErr  = "start_call_err" // start_call başarısız — hata mesajı döner (nonce eşleşir)
)

// ReadyData, bağlantı kurulduğunda client'a gönderilen ilk event'in payload'ı.
// Frontend online kullanıcıları Set'e atar (presence indicator için).
type ReadyData struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

// PresenceData, bir kullanıcının online durumu değiştiğinde broadcast edilen payload.
type PresenceData struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// TypingData, typing event'inin payload'ı (Client → Server).
type TypingData struct {
	ChannelID string `json:"channel_id"`
}

// TypingStartData, typing_start event'inin payload'ı (Server → Client).
// Sadece kanalın karşı tarafına gönderilir.
type TypingStartData struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	ChannelID string `json:"channel_id"`
}

// ─── Arama Event Data Struct'ları ───

// StartCallData, start_call event'inin Client → Server payload'ı.
type StartCallData struct {
	ReceiverID string `json:"receiver_id"`
	Video      bool   `json:"video"`
}

// StartCallAckData, start_call_ack event'inin Server → Client payload'ı.
// CallID, bundan sonraki tüm signaling event'lerinde taşınır.
type StartCallAckData struct {
	CallID int64 `json:"call_id"`
}

// StartCallErrData, start_call_err event'inin Server → Client payload'ı.
type StartCallErrData struct {
	Message string `json:"message"`
}
