// Package call — temel tipler ve dış dünya boundary'leri.
//
// Bu dosya, call core'un iki dış bağımlılığının interface'lerini tanımlar:
//   - Transport: asenkron signaling kanalı (WebSocket client adapter'ı implement eder)
//   - MediaEngine: medya yakalama/encode/transport kara kutusu (pion adapter'ı implement eder)
//
// Core bu iki interface dışında hiçbir şeye bağımlı değildir — testlerde
// ikisi de fake ile değiştirilir.
package call

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// ─── SDP Tipleri ───

// SDPType, bir session description'ın türü. Küçük bir enum: offer | answer.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Description, SDP offer veya answer'ı temsil eden kanonik internal tip.
// Transport'tan gelen heterojen casing'ler (Type/type, Sdp/sdp) normalize
// edildikten sonra her zaman bu tip kullanılır.
type Description struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// HasVideo, description'ın bir video medya bölümü içerip içermediğini söyler.
// Offer payload'ı video flag'i taşımadığında arama türü buradan çıkarılır.
func (d Description) HasVideo() bool {
	return strings.Contains(d.SDP, "m=video")
}

// Candidate, bir ICE candidate'ın kanonik internal temsili.
// Sahiplik bilgisi taşımaz — opak transport verisidir.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ─── Session Enum'ları ───

// State, bir arama session'ının yaşam döngüsündeki konumu.
//
// Geçiş grafiği:
//
//	Idle → Dialing  → Negotiating → Active → Ended   (caller)
//	Idle → Ringing  → Negotiating → Active → Ended   (callee)
//
// Her state'ten Ended'e geçilebilir (hangup/reject/hata). Ended terminaldir.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateRinging
	StateNegotiating
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRinging:
		return "ringing"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Role, session'ın hangi taraf olduğunu belirtir. Oluşturulduğunda sabitlenir;
// offer'ı hangi tarafın başlatacağını belirler.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

// ─── Transport Boundary ───

// Signaling event isimleri — transport'tan gelen Envelope.Op değerleri.
// Wire protokolüyle birebir aynı string'ler kullanılır ki adapter
// çeviri yapmak zorunda kalmasın.
const (
	EvReceiveOffer  = "receive_offer"
	EvReceiveAnswer = "receive_answer"
	EvReceiveIce    = "receive_ice"
	EvCallRejected  = "call_rejected"
	EvCallHungUp    = "call_hung_up"

	// EvChatMessage, sohbet mesajı event'idir. Core mesajı depolamaz —
	// opak payload olarak UI'a geçirilir (bkz. Manager.OnChatMessage).
	EvChatMessage = "chat_message_create"
)

// Outbound signaling operasyonları — Transport.Send'e verilen op değerleri.
const (
	OpSendOffer  = "send_offer"
	OpSendAnswer = "send_answer"
	OpSendIce    = "send_ice"
	OpRejectCall = "reject_call"
	OpHangUp     = "hang_up"
)

// Envelope, transport'tan gelen tek bir inbound signaling mesajı.
// Payload opak tutulur — parse etme ve normalize etme router'ın işidir,
// heterojen payload router'ın ötesine geçmez.
type Envelope struct {
	Op      string
	Payload json.RawMessage
}

// Transport, çift yönlü, at-least-once, bağlantı-içi-sıralı signaling kanalı.
//
// Garanti: Events() kanalından gelen mesajlar, bağlantı üzerindeki varış
// sırasını korur. Yeniden bağlanma adapter'ın işidir; core sadece
// OnDisconnect sinyalini görür ve canlı session'ları söker.
type Transport interface {
	// StartCall, server'dan yeni bir arama oluşturmasını ister (invoke-style).
	// Başarıda server'ın ürettiği call ID döner. ctx iptali/timeout'u
	// beklemeyi sonlandırır.
	StartCall(ctx context.Context, partnerID string, video bool) (int64, error)

	// Send, bir signaling event'ini fire-and-forget gönderir.
	// Hata best-effort'tur — geç kalan bir ICE candidate'ın gönderilememesi
	// aktif aramayı düşürmez (log'lanır, ölümcül değildir).
	Send(op string, payload any) error

	// Events, inbound signaling mesajlarının kanalını döner.
	// Transport kapanınca kanal kapanır.
	Events() <-chan Envelope

	// OnDisconnect, signaling bağlantısı koptuğunda çağrılacak callback'i
	// register eder. Core bunu canlı session'ları "disconnected" sebebiyle
	// sökmek için kullanır.
	OnDisconnect(fn func())
}

// ─── MediaEngine Boundary ───

// MediaEngine, medya yakalama/encode/decode/ICE transport kara kutusu.
//
// Her session kendi engine instance'ının tek sahibidir — EngineFactory ile
// üretilir, teardown'da Close edilir, asla paylaşılmaz.
//
// Suspension point'ler: AcquireLocal, CreateOffer, CreateAnswer ve
// Set*Description bloklayabilir; hepsi ctx alır ki hangup sırasında
// asılı kalan çağrılar iptal edilebilsin.
type MediaEngine interface {
	// AcquireLocal, lokal mikrofon (ve video=true ise kamera) track'lerini
	// alır ve bağlantıya ekler. İzin reddi burada hata olarak döner.
	AcquireLocal(ctx context.Context, video bool) error

	CreateOffer(ctx context.Context) (Description, error)
	CreateAnswer(ctx context.Context) (Description, error)
	SetLocalDescription(desc Description) error
	SetRemoteDescription(desc Description) error
	AddICECandidate(c Candidate) error

	// OnICECandidate, lokal olarak üretilen her ICE candidate için çağrılacak
	// callback'i register eder. Engine kapatıldıktan sonra çağrılmaz.
	OnICECandidate(fn func(Candidate))

	// OnRemoteTrack, karşı taraftan bir medya track'i geldiğinde çağrılır.
	// kind "audio" veya "video"dur.
	OnRemoteTrack(fn func(kind, id string))

	// StopLocal lokal track'leri, StopRemote remote track'leri durdurur.
	// Teardown sırasında Close'dan önce çağrılırlar; idempotent olmalıdırlar.
	StopLocal()
	StopRemote()

	// Close, peer bağlantısını kapatır ve tüm kaynakları serbest bırakır.
	Close() error
}

// EngineFactory, her yeni session için taze bir MediaEngine üretir.
// video parametresi engine'in hangi transceivers'ları hazırlayacağını belirler.
type EngineFactory func(video bool) (MediaEngine, error)

// ─── Config ───

// Config, call core'un zamanlama parametreleri.
//
// Gözlemlenen davranışta ring/dial timeout'u yoktu — cevapsız arama sonsuza
// kadar çalardı. Burada yapılandırılabilir parametre olarak ekleniyor;
// sıfır değer verilirse varsayılanlar kullanılır.
type Config struct {
	// RingTimeout, gelen bir aramanın cevapsız kalabileceği süre.
	// Dolunca session timeout sebebiyle sonlanır. Varsayılan: 45s.
	RingTimeout time.Duration

	// DialTimeout, start_call invoke'unun server yanıtı için bekleme süresi.
	// Varsayılan: 30s.
	DialTimeout time.Duration
}

func (c Config) ringTimeout() time.Duration {
	if c.RingTimeout <= 0 {
		return 45 * time.Second
	}
	return c.RingTimeout
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return 30 * time.Second
	}
	return c.DialTimeout
}
