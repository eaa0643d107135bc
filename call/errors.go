// Package call — hata taksonomisi ve arama sonlanma sebepleri.
//
// Tüm hatalar arama kapsamlıdır (call-scoped) — hiçbiri process'i öldürmez.
// Sentinel error'lar errors.Is ile kontrol edilir:
//
//	if errors.Is(err, call.ErrAlreadyInCall) { ... }
//
// İki ayrı kavram var, karıştırılmamalı:
//   - error: bir operasyonun ANINDA başarısız olması (StartCall → ErrAlreadyInCall)
//   - EndReason: bir session'ın NEDEN sonlandığı (teardown'a verilen sebep)
package call

import "errors"

// Sentinel error'lar — kullanıcıya gösterilebilir mesajlarla sarılır.
var (
	// ErrAlreadyInCall, kullanıcının hâlihazırda sonlanmamış bir araması
	// varken ikinci bir arama başlatma/kabul etme denemesinde döner.
	// Policy rejection'dır — sistem genelinde tek-arama invariant'ı.
	ErrAlreadyInCall = errors.New("already in a call")

	// ErrInvalidPartner, geçersiz hedefle (boş ID, kendini arama) arama
	// başlatma denemesinde döner. Transport'a hiç gidilmeden reddedilir.
	ErrInvalidPartner = errors.New("invalid call partner")

	// ErrServerRejected, server'ın start_call invoke'unu reddetmesidir.
	// Server'ın döndürdüğü mesaj wrap edilir (örn. "receiver is offline").
	ErrServerRejected = errors.New("server rejected the call")

	// ErrMediaUnavailable, mikrofon/kamera erişiminin reddedilmesi veya
	// cihaz hatasıdır. Arama, sinyal gönderilmeden iptal edilir.
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrNegotiationFailed, SDP description uygulama/üretme hatasıdır.
	ErrNegotiationFailed = errors.New("negotiation failed")

	// ErrSessionEnded, sonlanmış bir session üzerinde işlem denemesidir
	// (Accept/Reject çağrısı Ended state'e denk geldi).
	ErrSessionEnded = errors.New("call session has ended")
)

// EndReason, bir session'ın hangi sebeple Ended state'ine geçtiğini belirtir.
// Teardown'a tek parametre olarak verilir ve session üzerinde saklanır —
// UI "arama reddedildi" / "bağlantı koptu" ayrımını bununla yapar.
type EndReason string

const (
	ReasonHangUp            EndReason = "hangup"             // Lokal kullanıcı kapattı
	ReasonRemoteHangUp      EndReason = "remote_hangup"      // Karşı taraf kapattı
	ReasonRejected          EndReason = "rejected"           // Arama reddedildi (lokal veya karşı taraf)
	ReasonServerRejected    EndReason = "server_rejected"    // Server start_call'u reddetti
	ReasonMediaUnavailable  EndReason = "media_unavailable"  // Mikrofon/kamera alınamadı
	ReasonNegotiationFailed EndReason = "negotiation_failed" // SDP exchange hatası
	ReasonTimeout           EndReason = "timeout"            // Ring/dial süresi doldu
	ReasonDisconnected      EndReason = "disconnected"       // Signaling bağlantısı koptu
)
