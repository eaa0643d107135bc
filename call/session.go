// Package call — arama session state machine'i.
package call

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// sessionEventKind, session event loop'una verilen iş türü.
type sessionEventKind int

const (
	evAccept sessionEventKind = iota
	evRemoteAnswer
	evRemoteIce
	evLocalIce
)

// sessionEvent, session'ın FIFO event kanalındaki tek bir iş birimi.
type sessionEvent struct {
	kind sessionEventKind
	desc Description // evRemoteAnswer
	cand Candidate   // evRemoteIce / evLocalIce
}

// Session, tek bir aramanın yaşam döngüsünü yöneten state machine.
// "Bir arama sürüyor mu?" sorusunun tek doğruluk kaynağıdır.
//
// Eşzamanlılık modeli:
//   - Sıralamaya duyarlı event'ler (accept, answer, ICE) events kanalından
//     geçer ve run() goroutine'i tarafından TEK TEK, varış sırasıyla işlenir.
//     Bir event'in suspension zinciri (medya alma, description uygulama)
//     bitmeden sonraki event başlamaz — answer/ICE'ın offer'ı sollaması
//     böyle engellenir.
//   - Terminal yollar (hangup, reject, karşı tarafın sonlandırması, bağlantı
//     kopması) kanala girmez: teardown'ı DOĞRUDAN çağırırlar. Teardown
//     thread-safe ve idempotent'tir; ctx iptali askıdaki medya çağrılarını
//     çözer. Askıdan dönen her adım devam etmeden önce session'ın hâlâ
//     canlı olduğunu yeniden kontrol eder.
type Session struct {
	mgr         *Manager
	partnerID   string
	partnerName string // callee tarafında arayanın görünen adı (UI için)
	role        Role
	video       bool

	ctx    context.Context
	cancel context.CancelFunc
	events chan sessionEvent

	mu            sync.Mutex
	state         State
	callID        int64
	engine        MediaEngine
	remoteDescSet bool
	pendingOffer  *Description // son gönderilen (caller) / alınan (callee) offer
	pendingAnswer *Description // son alınan (caller) / gönderilen (callee) answer
	inbound       *CandidateBuffer
	outbound      *CandidateBuffer
	incomingOffer Description // callee: Accept'i bekleyen normalize edilmiş offer
	ringTimer     *time.Timer
	startedAt     time.Time
	duration      time.Duration
	endReason     EndReason
	errLog        []string
}

// newSession, verilen rol ve partner için taze bir session oluşturur.
// State'i çağıran ayarlar (caller → Dialing, callee → Ringing).
func newSession(mgr *Manager, role Role, partnerID string, video bool) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		mgr:       mgr,
		partnerID: partnerID,
		role:      role,
		video:     video,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan sessionEvent, 32),
		inbound:   NewCandidateBuffer(),
		outbound:  NewCandidateBuffer(),
	}
}

// ─── Public Accessor'lar ───

// State, session'ın anlık state'ini döner.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CallID, server'ın verdiği arama ID'sini döner. Dialing sırasında (henüz
// ack gelmeden) ve teardown sonrasında 0'dır.
func (s *Session) CallID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// PartnerID, aramanın karşı tarafının kullanıcı ID'sini döner.
func (s *Session) PartnerID() string { return s.partnerID }

// PartnerName, callee tarafında arayanın görünen adını döner (caller
// tarafında boştur — UI partner bilgisini zaten biliyordur).
func (s *Session) PartnerName() string { return s.partnerName }

// Role, session'ın caller mı callee mi olduğunu döner.
func (s *Session) Role() Role { return s.role }

// Video, aramanın görüntülü olup olmadığını döner.
func (s *Session) Video() bool { return s.video }

// Duration, aramanın süresini döner. Negotiation başladığı anda saymaya
// başlar; session sonlandıktan sonra sabitlenmiş toplam süreyi döner.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded || s.startedAt.IsZero() {
		return s.duration
	}
	return time.Since(s.startedAt)
}

// Reason, session Ended ise sonlanma sebebini döner; değilse boş string.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// Errors, session'ın yaşamı boyunca biriken hata log'unun kopyasını döner.
// Teardown alt adım hataları dahil — tanılama için tutulur, asla yeniden
// fırlatılmaz.
func (s *Session) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errLog))
	copy(out, s.errLog)
	return out
}

// ─── Kullanıcı Aksiyonları ───

// Accept, gelen (Ringing) aramayı kabul eder. Negotiation'ı başlatması
// asenkrondur — sonuç OnStateChange callback'inden izlenir.
func (s *Session) Accept() error {
	s.mu.Lock()
	if s.state != StateRinging {
		state := s.state
		s.mu.Unlock()
		if state == StateEnded {
			return ErrSessionEnded
		}
		return fmt.Errorf("cannot accept in state %s", state)
	}
	s.mu.Unlock()

	if !s.deliver(sessionEvent{kind: evAccept}) {
		return ErrSessionEnded
	}
	return nil
}

// Reject, gelen (Ringing) aramayı reddeder. Karşı tarafa reject bildirimi
// gönderilir ve session sökülür.
func (s *Session) Reject() error {
	s.mu.Lock()
	if s.state != StateRinging {
		state := s.state
		s.mu.Unlock()
		if state == StateEnded {
			return ErrSessionEnded
		}
		return fmt.Errorf("cannot reject in state %s", state)
	}
	callID := s.callID
	s.mu.Unlock()

	if err := s.mgr.transport.Send(OpRejectCall, outboundSignal{CallID: callID}); err != nil {
		s.logError("send reject", err)
	}
	s.teardown(ReasonRejected)
	return nil
}

// HangUp, aramayı hangi state'te olursa olsun sonlandırır. Askıda bir
// negotiation adımı varsa ctx iptaliyle çözülür ve devam etmez.
// Sonlanmış session'da no-op'tur.
func (s *Session) HangUp() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.mgr.transport.Send(OpHangUp, struct{}{}); err != nil {
		s.logError("send hang_up", err)
	}
	s.teardown(ReasonHangUp)
}

// ─── Event Loop ───

// deliver, bir event'i session'ın FIFO kanalına bırakır.
// Session sonlanmışsa (ctx iptal) false döner — event stale'dir, düşürülür.
func (s *Session) deliver(ev sessionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// run, session'ın event loop'u. Caller tarafında önce dial akışı koşar;
// iki tarafta da loop, teardown ctx'i iptal edene kadar event işler.
func (s *Session) run() {
	if s.role == RoleCaller {
		s.dial()
	}

	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handle(ev sessionEvent) {
	switch ev.kind {
	case evAccept:
		s.accept()
	case evRemoteAnswer:
		s.applyRemoteAnswer(ev.desc)
	case evRemoteIce:
		s.handleRemoteCandidate(ev.cand)
	case evLocalIce:
		s.handleLocalCandidate(ev.cand)
	}
}

// ─── Timer'lar ───

// startRingTimer, gelen aramanın cevapsız kalabileceği süreyi başlatır.
// Süre dolduğunda session hâlâ Ringing ise lokal olarak sökülür — server'ın
// kendi ring timer'ı caller'a timeout bildirimini zaten yapar.
func (s *Session) startRingTimer(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ringTimer = time.AfterFunc(d, func() {
		s.mu.Lock()
		stillRinging := s.state == StateRinging
		s.mu.Unlock()
		if !stillRinging {
			return
		}
		log.Printf("[call] incoming call from %s expired unanswered", s.partnerID)
		s.teardown(ReasonTimeout)
	})
}

func (s *Session) stopRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// ─── Internal Yardımcılar ───

// logError, hatayı session'ın tanılama log'una ekler ve process log'una yazar.
func (s *Session) logError(step string, err error) {
	s.mu.Lock()
	s.errLog = append(s.errLog, fmt.Sprintf("%s: %v", step, err))
	s.mu.Unlock()
	log.Printf("[call] session with %s: %s: %v", s.partnerID, step, err)
}

// stillNegotiating, askıdan dönen bir negotiation adımının devam edip
// edemeyeceğini söyler. Kullanıcı medya alınırken kapatmış olabilir —
// her suspension resume noktasında state yeniden kontrol edilir.
func (s *Session) stillNegotiating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateNegotiating
}

// setState, state'i değiştirir ve observer'a bildirir.
// Ended'a geçiş buradan YAPILMAZ — o yalnızca teardown'un işidir.
func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.mgr.notifyState(s, next, "")
}

// attachEngine, taze engine'i session'a bağlar ve callback'lerini kurar.
// Session bu arada sonlanmışsa engine hemen kapatılır ve false döner —
// kapanmış bir peer bağlantısına track eklenmez.
func (s *Session) attachEngine(engine MediaEngine) bool {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		_ = engine.Close()
		return false
	}
	s.engine = engine
	s.mu.Unlock()

	engine.OnICECandidate(func(c Candidate) {
		s.deliver(sessionEvent{kind: evLocalIce, cand: c})
	})
	engine.OnRemoteTrack(func(kind, id string) {
		s.mgr.notifyRemoteTrack(s, kind, id)
	})
	return true
}
