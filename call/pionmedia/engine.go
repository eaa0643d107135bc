// Package pionmedia, call core'un MediaEngine interface'ini pion/webrtc
// üzerinde implement eder.
//
// Core, medya katmanını kara kutu olarak görür: SDP üretimi/uygulaması,
// ICE transport'u ve track yönetimi burada yaşar. Gerçek yakalama
// pipeline'ı (mikrofon/kamera okuma) bu paketin kendi iç meselesidir —
// track'ler statik sample track olarak açılır, frame beslemesi onlara
// yazan tarafın sorumluluğudur.
package pionmedia

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/selimgur/vole/call"
)

// NewFactory, verilen STUN server listesiyle bir EngineFactory döner.
// Her çağrı taze bir PeerConnection üretir — session'lar engine paylaşmaz.
func NewFactory(stunURLs []string) call.EngineFactory {
	return func(video bool) (call.MediaEngine, error) {
		cfg := webrtc.Configuration{}
		if len(stunURLs) > 0 {
			cfg.ICEServers = []webrtc.ICEServer{{URLs: stunURLs}}
		}

		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("peer connection create failed: %w", err)
		}

		return &Engine{pc: pc}, nil
	}
}

// Engine, tek bir arama session'ına ait PeerConnection sarmalayıcısı.
type Engine struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders []*webrtc.RTPSender
	closed  bool
}

// AcquireLocal, lokal audio (ve video=true ise video) track'lerini açar
// ve bağlantıya ekler. Track açma hatası medya erişim hatası sayılır.
func (e *Engine) AcquireLocal(ctx context.Context, video bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "vole-audio",
	)
	if err != nil {
		return fmt.Errorf("audio track create failed: %w", err)
	}
	if err := e.addTrack(audio); err != nil {
		return err
	}

	if video {
		videoTrack, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "vole-video",
		)
		if err != nil {
			return fmt.Errorf("video track create failed: %w", err)
		}
		if err := e.addTrack(videoTrack); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) addTrack(track webrtc.TrackLocal) error {
	sender, err := e.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track failed: %w", err)
	}

	e.mu.Lock()
	e.senders = append(e.senders, sender)
	e.mu.Unlock()
	return nil
}

func (e *Engine) CreateOffer(ctx context.Context) (call.Description, error) {
	if err := ctx.Err(); err != nil {
		return call.Description{}, err
	}

	sd, err := e.pc.CreateOffer(nil)
	if err != nil {
		return call.Description{}, fmt.Errorf("create offer failed: %w", err)
	}
	return fromPion(sd), nil
}

func (e *Engine) CreateAnswer(ctx context.Context) (call.Description, error) {
	if err := ctx.Err(); err != nil {
		return call.Description{}, err
	}

	sd, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return call.Description{}, fmt.Errorf("create answer failed: %w", err)
	}
	return fromPion(sd), nil
}

func (e *Engine) SetLocalDescription(desc call.Description) error {
	return e.pc.SetLocalDescription(toPion(desc))
}

func (e *Engine) SetRemoteDescription(desc call.Description) error {
	return e.pc.SetRemoteDescription(toPion(desc))
}

func (e *Engine) AddICECandidate(c call.Candidate) error {
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

// OnICECandidate, lokal candidate üretimini core'un callback'ine bağlar.
// pion, gathering bitişini nil candidate ile işaretler — core'a geçirilmez.
func (e *Engine) OnICECandidate(fn func(call.Candidate)) {
	e.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		fn(call.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (e *Engine) OnRemoteTrack(fn func(kind, id string)) {
	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[pionmedia] remote %s track received (id=%s)", track.Kind(), track.ID())
		fn(track.Kind().String(), track.ID())
	})
}

// StopLocal, lokal track sender'larını durdurur. Idempotent.
func (e *Engine) StopLocal() {
	e.mu.Lock()
	senders := e.senders
	e.senders = nil
	e.mu.Unlock()

	for _, s := range senders {
		if err := s.Stop(); err != nil {
			log.Printf("[pionmedia] sender stop failed: %v", err)
		}
	}
}

// StopRemote, remote track receiver'larını durdurur. Idempotent.
func (e *Engine) StopRemote() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	for _, r := range e.pc.GetReceivers() {
		if err := r.Stop(); err != nil {
			log.Printf("[pionmedia] receiver stop failed: %v", err)
		}
	}
}

// Close, PeerConnection'ı kapatır ve tüm ICE/DTLS kaynaklarını bırakır.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.pc.Close()
}

// ─── Dönüşümler ───

func toPion(d call.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(d.Type)),
		SDP:  d.SDP,
	}
}

func fromPion(sd webrtc.SessionDescription) call.Description {
	return call.Description{
		Type: call.SDPType(strings.ToLower(sd.Type.String())),
		SDP:  sd.SDP,
	}
}
