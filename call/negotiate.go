// Package call — negotiation engine: offer/answer akışı ve candidate exchange.
//
// Caller yolu:  start_call invoke → medya al → offer üret → local desc →
//
//	send_offer → (answer bekle) → remote desc → inbound drain →
//	outbound flush → Active
//
// Callee yolu:  Accept → medya al → remote offer uygula → inbound drain →
//
//	answer üret → local desc → send_answer → outbound flush → Active
//
// Her suspension resume noktasında session'ın hâlâ Negotiating olduğu
// yeniden kontrol edilir — kullanıcı medya alınırken kapatmış olabilir.
package call

import (
	"context"
	"errors"
	"log"
	"time"
)

// ─── Caller Yolu ───

// dial, caller akışının ilk yarısı: server'dan call ID ister.
// Run loop başlamadan önce koşar; ack gelene kadar session Dialing'dedir.
func (s *Session) dial() {
	log.Printf("[call] dialing %s (video=%v)", s.partnerID, s.video)

	ctx, cancel := context.WithTimeout(s.ctx, s.mgr.cfg.dialTimeout())
	defer cancel()

	callID, err := s.mgr.transport.StartCall(ctx, s.partnerID, s.video)
	if err != nil {
		s.logError("start_call", err)
		if errors.Is(err, context.DeadlineExceeded) {
			s.teardown(ReasonTimeout)
		} else {
			s.teardown(ReasonServerRejected)
		}
		return
	}

	// Liveness: server ack'i beklenirken kullanıcı kapatmış olabilir.
	s.mu.Lock()
	if s.state != StateDialing {
		s.mu.Unlock()
		return
	}
	s.state = StateNegotiating
	s.callID = callID
	s.startedAt = time.Now()
	// Bind, s.mu altında yapılır: eşzamanlı bir teardown'ın Remove'u
	// bind'dan önce koşarsa registry'de sahipsiz bir kayıt kalırdı.
	s.mgr.registry.BindCall(s, callID)
	s.mu.Unlock()

	s.mgr.notifyState(s, StateNegotiating, "")
	log.Printf("[call] call %d created, negotiating with %s", callID, s.partnerID)

	s.sendOffer()
}

// sendOffer, caller'ın medya + offer üretim zinciri.
func (s *Session) sendOffer() {
	engine, err := s.mgr.newEngine(s.video)
	if err != nil {
		s.logError("create media engine", err)
		s.teardown(ReasonMediaUnavailable)
		return
	}
	if !s.attachEngine(engine) {
		return
	}

	// Mikrofon/kamera izni. Reddedilirse transport'a call-id taşıyan başka
	// hiçbir mesaj gönderilmeden arama iptal edilir — lokal medyasız offer olmaz.
	if err := engine.AcquireLocal(s.ctx, s.video); err != nil {
		s.logError("acquire local media", err)
		s.teardown(ReasonMediaUnavailable)
		return
	}
	if !s.stillNegotiating() {
		return
	}

	offer, err := engine.CreateOffer(s.ctx)
	if err != nil {
		s.logError("create offer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}
	if err := engine.SetLocalDescription(offer); err != nil {
		s.logError("set local description", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}
	if !s.stillNegotiating() {
		return
	}

	s.mu.Lock()
	s.pendingOffer = &offer
	callID := s.callID
	s.mu.Unlock()

	if err := s.mgr.transport.Send(OpSendOffer, outboundSignal{CallID: callID, Offer: &offer}); err != nil {
		s.logError("send offer", err)
		s.teardown(ReasonNegotiationFailed)
	}
}

// applyRemoteAnswer, karşı taraftan gelen answer'ı uygular ve session'ı
// Active'e taşır. Negotiating dışındaki state'lerde gelen answer stale
// kabul edilir ve yok sayılır; aynı answer'ın retransmit'i de öyle.
func (s *Session) applyRemoteAnswer(desc Description) {
	s.mu.Lock()
	if s.state != StateNegotiating {
		state := s.state
		s.mu.Unlock()
		log.Printf("[call] ignoring answer in state %s", state)
		return
	}
	if s.pendingAnswer != nil && *s.pendingAnswer == desc {
		s.mu.Unlock()
		log.Printf("[call] duplicate answer for call %d ignored", s.callID)
		return
	}
	s.pendingAnswer = &desc
	engine := s.engine
	callID := s.callID
	s.mu.Unlock()

	if engine == nil {
		return
	}

	if err := engine.SetRemoteDescription(desc); err != nil {
		s.logError("set remote answer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}
	if !s.stillNegotiating() {
		return
	}

	s.drainInbound(engine)
	s.flushOutbound()
	s.setState(StateActive)
	log.Printf("[call] call %d active with %s", callID, s.partnerID)
}

// ─── Callee Yolu ───

// accept, Ringing'deki aramanın kabul akışı. Medya izni reddedilirse
// karşı tarafa answer ASLA gönderilmez — session MediaUnavailable ile biter.
func (s *Session) accept() {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return
	}
	s.stopRingTimerLocked()
	s.state = StateNegotiating
	s.startedAt = time.Now()
	offer := s.incomingOffer
	callID := s.callID
	s.mu.Unlock()

	s.mgr.notifyState(s, StateNegotiating, "")
	log.Printf("[call] accepting call %d from %s", callID, s.partnerID)

	engine, err := s.mgr.newEngine(s.video)
	if err != nil {
		s.logError("create media engine", err)
		s.teardown(ReasonMediaUnavailable)
		return
	}
	if !s.attachEngine(engine) {
		return
	}

	if err := engine.AcquireLocal(s.ctx, s.video); err != nil {
		s.logError("acquire local media", err)
		s.teardown(ReasonMediaUnavailable)
		return
	}
	if !s.stillNegotiating() {
		return
	}

	if err := engine.SetRemoteDescription(offer); err != nil {
		s.logError("set remote offer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}

	// Remote description hazır — answer'dan önce gelen candidate'lar
	// şimdi sırasıyla uygulanır.
	s.drainInbound(engine)

	answer, err := engine.CreateAnswer(s.ctx)
	if err != nil {
		s.logError("create answer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}
	if err := engine.SetLocalDescription(answer); err != nil {
		s.logError("set local description", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}
	if !s.stillNegotiating() {
		return
	}

	s.mu.Lock()
	s.pendingAnswer = &answer
	s.mu.Unlock()

	if err := s.mgr.transport.Send(OpSendAnswer, outboundSignal{CallID: callID, Answer: &answer}); err != nil {
		s.logError("send answer", err)
		s.teardown(ReasonNegotiationFailed)
		return
	}

	s.flushOutbound()
	s.setState(StateActive)
	log.Printf("[call] call %d active with %s", callID, s.partnerID)
}

// ─── Candidate Exchange ───

// handleRemoteCandidate, karşı taraftan gelen ICE candidate'ı işler.
// Remote description henüz yoksa buffer'a alınır — asla atılmaz, asla
// sıra dışı uygulanmaz.
func (s *Session) handleRemoteCandidate(c Candidate) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	if !s.remoteDescSet || s.engine == nil {
		s.inbound.Enqueue(c)
		n := s.inbound.Len()
		s.mu.Unlock()
		log.Printf("[call] buffering early remote candidate (%d pending)", n)
		return
	}
	engine := s.engine
	s.mu.Unlock()

	if err := engine.AddICECandidate(c); err != nil {
		// Tek bir candidate hatası aramayı düşürmez.
		s.logError("add remote candidate", err)
	}
}

// handleLocalCandidate, engine'in ürettiği lokal candidate'ı karşı tarafa
// gönderir. Remote description henüz uygulanmadıysa ayna buffer'a alınır
// ve flushOutbound ile gönderilir.
func (s *Session) handleLocalCandidate(c Candidate) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	if !s.remoteDescSet {
		s.outbound.Enqueue(c)
		s.mu.Unlock()
		return
	}
	callID := s.callID
	s.mu.Unlock()

	if err := s.mgr.transport.Send(OpSendIce, outboundSignal{CallID: callID, Candidate: &c}); err != nil {
		// Best-effort — geç bir candidate'ın kaybı aktif aramayı bozmaz.
		s.logError("send candidate", err)
	}
}

// drainInbound, remote description uygulandıktan hemen sonra çağrılır:
// buffer'daki tüm remote candidate'ları FIFO sırasıyla engine'e uygular.
func (s *Session) drainInbound(engine MediaEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteDescSet = true
	if n := s.inbound.Len(); n > 0 {
		log.Printf("[call] draining %d buffered remote candidates for call %d", n, s.callID)
	}
	s.inbound.Drain(engine.AddICECandidate)
}

// flushOutbound, ayna buffer'daki lokal candidate'ları karşı tarafa gönderir.
func (s *Session) flushOutbound() {
	s.mu.Lock()
	var toSend []Candidate
	s.outbound.Drain(func(c Candidate) error {
		toSend = append(toSend, c)
		return nil
	})
	callID := s.callID
	s.mu.Unlock()

	for i := range toSend {
		if err := s.mgr.transport.Send(OpSendIce, outboundSignal{CallID: callID, Candidate: &toSend[i]}); err != nil {
			s.logError("send buffered candidate", err)
		}
	}
}
