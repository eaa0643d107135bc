// Package call — session registry.
package call

import (
	"fmt"
	"sync"
)

// Registry, canlı (sonlanmamış) arama session'larının tek kayıt noktasıdır.
//
// İki invariant'ı zorlar:
//  1. Bir {lokal kullanıcı, partner} çifti için aynı anda en fazla bir
//     sonlanmamış session olabilir.
//  2. Lokal kullanıcı sistem genelinde aynı anda en fazla BİR aramada
//     olabilir — farklı bir partner'la bile ("Already in a call" guard'ı).
//
// Bir peer process'i tek bir kullanıcıyı temsil ettiğinden ikinci kural,
// pratikte "registry'de en fazla bir canlı session olur" demektir; yine de
// iki map tutulur çünkü lookup iki ayrı anahtarla gelir: inbound offer
// partner ID'siyle, answer/ICE ise server'ın verdiği call ID'siyle eşleşir.
//
// Registry, session'lar arası paylaşılan TEK mutable state'tir; mutasyon
// yalnızca buradaki metodlarla yapılır ve mutex ile atomiktir.
// Silme yalnızca teardown üzerinden gerçekleşir — hiçbir bileşen bir
// session'ı registry'den sessizce düşüremez.
type Registry struct {
	mu        sync.RWMutex
	byPartner map[string]*Session
	byCall    map[int64]*Session
}

// NewRegistry, boş bir registry döner.
func NewRegistry() *Registry {
	return &Registry{
		byPartner: make(map[string]*Session),
		byCall:    make(map[int64]*Session),
	}
}

// Register, yeni bir session'ı kaydeder.
//
// Lokal kullanıcının başka herhangi bir canlı session'ı varsa
// ErrAlreadyInCall döner — kontrol ve ekleme tek kilit altında yapılır ki
// eşzamanlı iki kayıt denemesi (inbound offer + lokal start) yarışamasın.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byPartner) > 0 {
		return fmt.Errorf("%w: another call is in progress", ErrAlreadyInCall)
	}

	r.byPartner[s.partnerID] = s
	if s.callID != 0 {
		r.byCall[s.callID] = s
	}
	return nil
}

// BindCall, server call ID'si sonradan atanan session'ı (caller tarafı,
// start_call ack'inden sonra) ID anahtarıyla da kaydeder.
//
// Session bu arada registry'den silinmişse (teardown bind'dan önce koştu)
// bind yok sayılır — sarkan bir call-ID kaydı stale event'leri ölü
// session'a yönlendirirdi ve hiçbir zaman silinmezdi.
func (r *Registry) BindCall(s *Session, callID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byPartner[s.partnerID] != s {
		return
	}
	r.byCall[callID] = s
}

// ByPartner, verilen partner'la canlı session'ı döner (yoksa nil).
func (r *Registry) ByPartner(partnerID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPartner[partnerID]
}

// ByCall, verilen server call ID'sine sahip canlı session'ı döner (yoksa nil).
func (r *Registry) ByCall(callID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byCall[callID]
}

// Active, canlı session'ı döner (yoksa nil). Tek-arama invariant'ı sayesinde
// en fazla bir tane olabilir.
func (r *Registry) Active() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byPartner {
		return s
	}
	return nil
}

// Remove, session'ın tüm kayıtlarını siler. Yalnızca teardown çağırır.
// Olmayan bir session için no-op'tur (idempotent teardown bunu gerektirir).
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byPartner[s.partnerID] == s {
		delete(r.byPartner, s.partnerID)
	}
	if s.callID != 0 && r.byCall[s.callID] == s {
		delete(r.byCall, s.callID)
	}
}
