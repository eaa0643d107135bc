// Package call — ICE candidate buffer'ı.
package call

import "log"

// CandidateBuffer, remote description henüz uygulanmamışken gelen (veya
// üretilen) ICE candidate'ları FIFO sırasıyla tutar.
//
// WebRTC kuralı: AddICECandidate, SetRemoteDescription'dan ÖNCE çağrılamaz.
// Ama network bu sırayı garanti etmez — candidate'lar answer'dan önce
// varabilir. Buffer bu boşluğu kapatır: erken gelenler sıraya alınır,
// remote description uygulanır uygulanmaz aynı sırayla drain edilir.
//
// Sahiplik: Her buffer tek bir Session'a aittir; erişim session'ın kendi
// mutex'i altında yapılır, buffer'ın ayrıca kilidi yoktur.
type CandidateBuffer struct {
	pending []Candidate
}

// NewCandidateBuffer, boş bir buffer döner.
func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

// Enqueue, candidate'ı sıranın sonuna ekler.
func (b *CandidateBuffer) Enqueue(c Candidate) {
	b.pending = append(b.pending, c)
}

// Len, bekleyen candidate sayısını döner.
func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}

// Drain, bekleyen tüm candidate'ları FIFO sırasıyla apply fonksiyonuna verir
// ve buffer'ı KOŞULSUZ temizler — tek tek apply hataları drain'i durdurmaz
// (kalan candidate'lar yine de denenir), sadece log'lanır. Böylece buffer
// hata durumunda bile sınırsız büyümez.
//
// Başarısız apply sayısını döner.
func (b *CandidateBuffer) Drain(apply func(Candidate) error) int {
	failed := 0
	for i, c := range b.pending {
		if err := apply(c); err != nil {
			failed++
			log.Printf("[call] buffered candidate %d/%d failed to apply: %v", i+1, len(b.pending), err)
		}
	}
	b.pending = nil
	return failed
}

// Clear, bekleyen tüm candidate'ları uygulamadan atar. Teardown'da çağrılır.
func (b *CandidateBuffer) Clear() {
	b.pending = nil
}
