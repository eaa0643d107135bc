// Package call — cleanup coordinator.
package call

import (
	"log"
	"time"
)

// teardown, session'ı terminal Ended state'ine taşıyan TEK yoldur.
//
// Idempotent'tir: sonlanmış bir session'da no-op. Hangi goroutine'den
// çağrıldığı önemsizdir — kullanıcı aksiyonu, router'daki terminal event,
// timer veya bağlantı kopması hepsi buraya gelir.
//
// Adımlar sırayla ve birbirinden BAĞIMSIZ koşar — bir alt adımın hatası
// sonrakileri engellemez, yalnızca session'ın hata log'una kaydedilir:
//  1. Lokal medya track'lerini durdur
//  2. Remote medya track'lerini durdur
//  3. Media engine bağlantısını kapat
//  4. Candidate buffer'larını temizle
//  5. Registry kaydını sil
//  6. Geçici arama alanlarını sıfırla (start time, call id, pending desc'ler)
//  7. Event loop'u sonlandır (ctx iptal) ve observer'a bildir
func (s *Session) teardown(reason EndReason) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateEnded
	s.endReason = reason
	if !s.startedAt.IsZero() {
		s.duration = time.Since(s.startedAt)
	}
	engine := s.engine
	s.stopRingTimerLocked()
	s.mu.Unlock()

	log.Printf("[call] session with %s ending (was=%s reason=%s)", s.partnerID, prev, reason)

	if engine != nil {
		engine.StopLocal()
		engine.StopRemote()
		if err := engine.Close(); err != nil {
			s.logError("close media engine", err)
		}
	}

	s.mu.Lock()
	s.inbound.Clear()
	s.outbound.Clear()
	s.mu.Unlock()

	// Registry kaydı silinmeden callID sıfırlanmaz — Remove, byCall
	// anahtarını session'ın callID'sinden okur.
	s.mgr.registry.Remove(s)

	s.mu.Lock()
	s.callID = 0
	s.startedAt = time.Time{}
	s.pendingOffer = nil
	s.pendingAnswer = nil
	s.remoteDescSet = false
	s.engine = nil
	s.mu.Unlock()

	s.cancel()
	s.mgr.notifyState(s, StateEnded, reason)
}
