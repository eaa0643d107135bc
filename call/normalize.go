// Package call — transport boundary normalizasyonu.
//
// Farklı peer implementasyonları SDP/ICE payload'larını iki ayrı casing
// convention'ı ile gönderebiliyor: PascalCase ({Type, Sdp, Candidate,
// SdpMid, SdpMLineIndex}) ve camelCase ({type, sdp, candidate, sdpMid,
// sdpMLineIndex}). Bu dosya, her iki şekli de tek kanonik internal tipe
// (Description / Candidate) çevirir. Normalizasyon Signaling Router'da,
// payload session'a ulaşmadan ÖNCE yapılır — router'ın ötesine heterojen
// veri geçmez.
package call

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireDescription, her iki casing'i de kabul eden gevşek DTO.
// Aynı alanın iki yazımı da map edilir; normalize aşamasında dolu olan seçilir.
type wireDescription struct {
	Type       string `json:"type"`
	TypePascal string `json:"Type"`
	SDP        string `json:"sdp"`
	SDPPascal  string `json:"Sdp"`
}

// wireCandidate, ICE candidate'ın iki casing'li gevşek DTO'su.
type wireCandidate struct {
	Candidate           string  `json:"candidate"`
	CandidatePascal     string  `json:"Candidate"`
	SDPMid              *string `json:"sdpMid"`
	SDPMidPascal        *string `json:"SdpMid"`
	SDPMLineIndex       *uint16 `json:"sdpMLineIndex"`
	SDPMLineIndexPascal *uint16 `json:"SdpMLineIndex"`
}

// firstNonEmpty, camelCase alanı doluysa onu, değilse PascalCase'i döner.
func firstNonEmpty(camel, pascal string) string {
	if camel != "" {
		return camel
	}
	return pascal
}

// NormalizeDescription, opak bir SDP payload'ını kanonik Description'a çevirir.
//
// SDP type karşılaştırması case-insensitive'dir — peer'lar "Offer"/"offer"
// gönderebilir, ikisi de aynı internal state'i üretir.
func NormalizeDescription(raw json.RawMessage) (Description, error) {
	var wire wireDescription
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Description{}, fmt.Errorf("%w: malformed description payload: %v", ErrNegotiationFailed, err)
	}

	typ := strings.ToLower(firstNonEmpty(wire.Type, wire.TypePascal))
	sdp := firstNonEmpty(wire.SDP, wire.SDPPascal)

	switch SDPType(typ) {
	case SDPTypeOffer, SDPTypeAnswer:
		// geçerli
	default:
		return Description{}, fmt.Errorf("%w: unknown sdp type %q", ErrNegotiationFailed, typ)
	}

	if sdp == "" {
		return Description{}, fmt.Errorf("%w: empty sdp", ErrNegotiationFailed)
	}

	return Description{Type: SDPType(typ), SDP: sdp}, nil
}

// NormalizeCandidate, opak bir ICE candidate payload'ını kanonik Candidate'a çevirir.
func NormalizeCandidate(raw json.RawMessage) (Candidate, error) {
	var wire wireCandidate
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Candidate{}, fmt.Errorf("malformed candidate payload: %w", err)
	}

	c := Candidate{
		Candidate:     firstNonEmpty(wire.Candidate, wire.CandidatePascal),
		SDPMid:        wire.SDPMid,
		SDPMLineIndex: wire.SDPMLineIndex,
	}
	if c.SDPMid == nil {
		c.SDPMid = wire.SDPMidPascal
	}
	if c.SDPMLineIndex == nil {
		c.SDPMLineIndex = wire.SDPMLineIndexPascal
	}

	if c.Candidate == "" {
		return Candidate{}, fmt.Errorf("empty candidate string")
	}

	return c, nil
}
