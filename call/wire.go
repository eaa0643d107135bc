// Package call — signaling wire payload'ları.
//
// Server relay'i signaling mesajlarını şu şekillerde taşır:
//   - receive_offer: arayan bilgisi (caller notification) + opak offer
//   - receive_answer / receive_ice: call_id + opak answer/candidate
//   - call_rejected / call_hung_up: call_id + opsiyonel sebep
//
// Opak kısımlar (offer/answer/candidate) normalize.go'dan geçmeden
// kullanılmaz — karşı peer'ın casing'ine güvenilmez.
package call

import "encoding/json"

// inboundOffer, receive_offer event'inin payload'ı. Aynı zamanda "gelen
// arama" bildirimidir; arayan kullanıcı bilgisini taşır.
type inboundOffer struct {
	CallID          int64           `json:"call_id"`
	FromUserID      string          `json:"from_user_id"`
	FromUsername    string          `json:"from_username"`
	FromDisplayName *string         `json:"from_display_name"`
	Video           bool            `json:"video"`
	Offer           json.RawMessage `json:"offer"`
}

// inboundSignal, receive_answer ve receive_ice event'lerinin payload'ı.
type inboundSignal struct {
	CallID     int64           `json:"call_id"`
	FromUserID string          `json:"from_user_id"`
	Answer     json.RawMessage `json:"answer"`
	Candidate  json.RawMessage `json:"candidate"`
}

// inboundEnd, call_rejected ve call_hung_up event'lerinin payload'ı.
// Reason server'ın verdiği sebep string'idir: "hangup" | "disconnect" | "timeout".
type inboundEnd struct {
	CallID int64  `json:"call_id"`
	Reason string `json:"reason"`
}

// outboundSignal, send_offer / send_answer / send_ice / reject_call
// event'lerinin payload'ı. Doldurulmayan alanlar wire'a yazılmaz.
type outboundSignal struct {
	CallID    int64        `json:"call_id"`
	Offer     *Description `json:"offer,omitempty"`
	Answer    *Description `json:"answer,omitempty"`
	Candidate *Candidate   `json:"candidate,omitempty"`
}
