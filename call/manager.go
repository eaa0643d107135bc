// Package call — Manager: signaling router + public API.
package call

import (
	"encoding/json"
	"fmt"
	"log"
)

// IncomingCall, gelen arama bildiriminin UI'a taşınan özeti.
type IncomingCall struct {
	CallID          int64
	FromUserID      string
	FromUsername    string
	FromDisplayName *string
	Video           bool
}

// Manager, call core'un giriş kapısıdır: transport'tan gelen signaling
// event'lerini ilgili session'a yönlendirir (Signaling Router) ve
// kullanıcı aksiyonlarını (arama başlat) kabul eder.
//
// Routing kuralları:
//   - receive_offer, session OLUŞTURABİLEN tek event'tir. Kullanıcı
//     meşgulse otomatik reddedilir (gelen arama mevcut aramayı ASLA
//     değiştirmez).
//   - answer/ICE, call ID ile mevcut session'a eşleşir. Eşleşme yoksa
//     event stale'dir — arama straggler varmadan bitmiş olabilir;
//     sessizce düşürülür, hata değildir.
//   - Aynı session'ın event'leri varış sırasıyla, teker teker işlenir
//     (session'ın FIFO kanalı); farklı session'lar serbestçe interleave
//     edebilir.
//
// Callback'ler (OnIncomingCall, OnStateChange, OnRemoteTrack) Run'dan
// ÖNCE ayarlanmalıdır ve bloklamamalıdır.
type Manager struct {
	transport Transport
	newEngine EngineFactory
	cfg       Config
	registry  *Registry

	localUserID string

	onIncoming    func(*Session, IncomingCall)
	onState       func(*Session, State, EndReason)
	onRemoteTrack func(*Session, string, string)
	onChat        func(ChatMessage)
}

// ChatMessage, transport'tan geçen opak bir sohbet mesajıdır. Core mesajı
// parse edip depolamaz; AuthorID yalnızca kendi mesajımızın "gelen mesaj"
// olarak tekrar gösterilmemesi için çıkarılır.
type ChatMessage struct {
	AuthorID string
	Raw      json.RawMessage
}

// NewManager, verilen transport ve engine factory ile bir Manager oluşturur.
// Event işleme Run() çağrılana kadar başlamaz.
func NewManager(transport Transport, factory EngineFactory, cfg Config) *Manager {
	m := &Manager{
		transport: transport,
		newEngine: factory,
		cfg:       cfg,
		registry:  NewRegistry(),
	}

	// Signaling bağlantısı koparsa canlı session kurtarılamaz —
	// karşı tarafa artık ulaşamayız.
	transport.OnDisconnect(func() {
		if s := m.registry.Active(); s != nil {
			log.Printf("[call] signaling connection lost, ending session with %s", s.partnerID)
			s.teardown(ReasonDisconnected)
		}
	})

	return m
}

// ─── Callback Setter'ları ───

// OnIncomingCall, Ringing state'ine giren yeni bir gelen arama için
// çağrılacak callback'i ayarlar. UI "X arıyor" ekranını bununla açar.
func (m *Manager) OnIncomingCall(fn func(*Session, IncomingCall)) { m.onIncoming = fn }

// OnStateChange, herhangi bir session'ın state geçişinde çağrılacak
// callback'i ayarlar. Ended geçişinde reason dolu gelir.
func (m *Manager) OnStateChange(fn func(*Session, State, EndReason)) { m.onState = fn }

// OnRemoteTrack, karşı taraftan medya track'i geldiğinde çağrılacak
// callback'i ayarlar (kind "audio" | "video").
func (m *Manager) OnRemoteTrack(fn func(s *Session, kind, id string)) { m.onRemoteTrack = fn }

// OnChatMessage, karşı taraftan sohbet mesajı geldiğinde çağrılacak
// callback'i ayarlar. Server mesajı her iki tarafa da broadcast ettiği
// için kendi gönderdiğimiz mesajlar burada GÖRÜNMEZ (author filtresi).
func (m *Manager) OnChatMessage(fn func(ChatMessage)) { m.onChat = fn }

// SetLocalUser, oturum açmış kullanıcının ID'sini ayarlar. Run'dan önce
// çağrılmalıdır — sohbet echo filtresi bu ID'ye bakar.
func (m *Manager) SetLocalUser(id string) { m.localUserID = id }

func (m *Manager) notifyState(s *Session, state State, reason EndReason) {
	if m.onState != nil {
		m.onState(s, state, reason)
	}
}

func (m *Manager) notifyRemoteTrack(s *Session, kind, id string) {
	if m.onRemoteTrack != nil {
		m.onRemoteTrack(s, kind, id)
	}
}

// ─── Public API ───

// StartCall, verilen partner'a yeni bir arama başlatır.
//
// Anında dönen hatalar: ErrInvalidPartner (boş hedef, transport'a hiç
// gidilmez), ErrAlreadyInCall (tek-arama invariant'ı). Server'ın ret
// cevabı ve negotiation sonucu asenkrondur — OnStateChange'den izlenir.
func (m *Manager) StartCall(partnerID string, video bool) (*Session, error) {
	if partnerID == "" {
		return nil, fmt.Errorf("%w: empty partner id", ErrInvalidPartner)
	}

	s := newSession(m, RoleCaller, partnerID, video)
	s.state = StateDialing

	if err := m.registry.Register(s); err != nil {
		return nil, err
	}

	go s.run()
	return s, nil
}

// ActiveSession, canlı (sonlanmamış) session'ı döner; yoksa nil.
func (m *Manager) ActiveSession() *Session {
	return m.registry.Active()
}

// Run, transport'un inbound event kanalını tüketir. Kanal kapanana
// (transport kapanana) kadar bloklar — `go mgr.Run()` ile başlatılır.
func (m *Manager) Run() {
	for env := range m.transport.Events() {
		m.dispatch(env)
	}
}

// ─── Signaling Router ───

func (m *Manager) dispatch(env Envelope) {
	switch env.Op {
	case EvReceiveOffer:
		m.handleOffer(env)
	case EvReceiveAnswer:
		m.handleAnswer(env)
	case EvReceiveIce:
		m.handleIce(env)
	case EvCallRejected:
		m.handleEnd(env, ReasonRejected)
	case EvCallHungUp:
		m.handleEnd(env, ReasonRemoteHangUp)
	case EvChatMessage:
		m.handleChat(env)
	default:
		// Diğer event'ler (presence, typing) bu core'u ilgilendirmez.
	}
}

// handleChat, sohbet mesajını opak payload olarak UI'a geçirir.
// Tek kural: kendi gönderdiğimiz mesaj "gelen mesaj" olarak gösterilmez.
func (m *Manager) handleChat(env Envelope) {
	if m.onChat == nil {
		return
	}

	var meta struct {
		AuthorID string `json:"author_id"`
	}
	if err := unmarshalPayload(env.Payload, &meta); err != nil {
		log.Printf("[call] malformed chat payload: %v", err)
		return
	}

	if meta.AuthorID != "" && meta.AuthorID == m.localUserID {
		return // server echo'su — kendi mesajımız
	}

	m.onChat(ChatMessage{AuthorID: meta.AuthorID, Raw: env.Payload})
}

// handleOffer, gelen arama bildirimi. Session oluşturabilen tek event.
func (m *Manager) handleOffer(env Envelope) {
	var payload inboundOffer
	if err := unmarshalPayload(env.Payload, &payload); err != nil {
		log.Printf("[call] malformed offer payload: %v", err)
		return
	}

	offer, err := NormalizeDescription(payload.Offer)
	if err != nil {
		log.Printf("[call] dropping offer with bad sdp from %s: %v", payload.FromUserID, err)
		return
	}

	// Video flag'i taşınmadıysa SDP'deki m=video bölümünden çıkarılır.
	video := payload.Video || offer.HasVideo()

	s := newSession(m, RoleCallee, payload.FromUserID, video)
	s.state = StateRinging
	s.callID = payload.CallID
	s.incomingOffer = offer
	s.pendingOffer = &offer
	s.partnerName = displayName(payload)

	if err := m.registry.Register(s); err != nil {
		// Kullanıcı meşgul → gelen arama mevcut aramayı değiştirmez,
		// otomatik reddedilir.
		log.Printf("[call] busy, auto-rejecting call %d from %s", payload.CallID, payload.FromUserID)
		if sendErr := m.transport.Send(OpRejectCall, outboundSignal{CallID: payload.CallID}); sendErr != nil {
			log.Printf("[call] failed to send auto-reject: %v", sendErr)
		}
		return
	}

	s.startRingTimer(m.cfg.ringTimeout())
	go s.run()

	log.Printf("[call] incoming call %d from %s (video=%v)", payload.CallID, payload.FromUserID, video)
	m.notifyState(s, StateRinging, "")
	if m.onIncoming != nil {
		m.onIncoming(s, IncomingCall{
			CallID:          payload.CallID,
			FromUserID:      payload.FromUserID,
			FromUsername:    payload.FromUsername,
			FromDisplayName: payload.FromDisplayName,
			Video:           video,
		})
	}
}

func (m *Manager) handleAnswer(env Envelope) {
	var payload inboundSignal
	if err := unmarshalPayload(env.Payload, &payload); err != nil {
		log.Printf("[call] malformed answer payload: %v", err)
		return
	}

	s := m.registry.ByCall(payload.CallID)
	if s == nil {
		log.Printf("[call] dropping stale answer for call %d", payload.CallID)
		return
	}

	desc, err := NormalizeDescription(payload.Answer)
	if err != nil {
		s.logError("normalize answer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}

	s.deliver(sessionEvent{kind: evRemoteAnswer, desc: desc})
}

func (m *Manager) handleIce(env Envelope) {
	var payload inboundSignal
	if err := unmarshalPayload(env.Payload, &payload); err != nil {
		log.Printf("[call] malformed ice payload: %v", err)
		return
	}

	s := m.registry.ByCall(payload.CallID)
	if s == nil {
		// Arama bitmiş olabilir — straggler candidate hata değildir.
		log.Printf("[call] dropping stale candidate for call %d", payload.CallID)
		return
	}

	cand, err := NormalizeCandidate(payload.Candidate)
	if err != nil {
		s.logError("normalize candidate", err)
		return
	}

	s.deliver(sessionEvent{kind: evRemoteIce, cand: cand})
}

// handleEnd, karşı tarafın terminal event'leri (rejected / hung_up).
// Teardown doğrudan çağrılır — askıdaki negotiation adımı ctx iptaliyle çözülür.
func (m *Manager) handleEnd(env Envelope, fallback EndReason) {
	var payload inboundEnd
	if err := unmarshalPayload(env.Payload, &payload); err != nil {
		log.Printf("[call] malformed end payload: %v", err)
		return
	}

	s := m.registry.ByCall(payload.CallID)
	if s == nil {
		log.Printf("[call] dropping stale end event for call %d", payload.CallID)
		return
	}

	reason := fallback
	switch payload.Reason {
	case "timeout":
		reason = ReasonTimeout
	case "disconnect":
		reason = ReasonDisconnected
	}

	s.teardown(reason)
}

// ─── Yardımcılar ───

func displayName(p inboundOffer) string {
	if p.FromDisplayName != nil && *p.FromDisplayName != "" {
		return *p.FromDisplayName
	}
	return p.FromUsername
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}
