package call

import (
	"context"
	"encoding/json"
	"sync"
)

// ─── Fake Transport ───

// sentMsg, fake transport'un kaydettiği tek bir outbound mesaj.
type sentMsg struct {
	op      string
	payload any
}

// fakeTransport, Transport interface'inin in-memory test implementasyonu.
// Gönderilen mesajları kaydeder; inbound event'ler push ile beslenir.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMsg
	events   chan Envelope
	callID   int64
	startErr error
	sendErr  error
	onDisc   func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan Envelope, 32),
		callID: 7,
	}
}

func (t *fakeTransport) StartCall(ctx context.Context, partnerID string, video bool) (int64, error) {
	if t.startErr != nil {
		return 0, t.startErr
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	return t.callID, nil
}

func (t *fakeTransport) Send(op string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, sentMsg{op: op, payload: payload})
	return nil
}

func (t *fakeTransport) Events() <-chan Envelope { return t.events }

func (t *fakeTransport) OnDisconnect(fn func()) { t.onDisc = fn }

// push, bir inbound event'i JSON'a çevirip event kanalına bırakır.
func (t *fakeTransport) push(op string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	t.events <- Envelope{Op: op, Payload: raw}
}

// sentOps, şimdiye kadar gönderilen op isimlerini sırayla döner.
func (t *fakeTransport) sentOps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]string, len(t.sent))
	for i, m := range t.sent {
		ops[i] = m.op
	}
	return ops
}

// hasSent, verilen op'un en az bir kez gönderilip gönderilmediğini söyler.
func (t *fakeTransport) hasSent(op string) bool {
	for _, o := range t.sentOps() {
		if o == op {
			return true
		}
	}
	return false
}

// ─── Fake Media Engine ───

// fakeEngine, MediaEngine interface'inin in-memory test implementasyonu.
// Uygulanan candidate'ları sırayla kaydeder, teardown çağrı sayılarını sayar.
type fakeEngine struct {
	mu         sync.Mutex
	acquireErr error
	remoteErr  error

	remoteDesc *Description
	localDesc  *Description
	applied    []Candidate

	iceCb   func(Candidate)
	trackCb func(kind, id string)

	stopLocalCalls  int
	stopRemoteCalls int
	closeCalls      int
}

func (e *fakeEngine) AcquireLocal(ctx context.Context, video bool) error {
	if e.acquireErr != nil {
		return e.acquireErr
	}
	return ctx.Err()
}

func (e *fakeEngine) CreateOffer(ctx context.Context) (Description, error) {
	return Description{Type: SDPTypeOffer, SDP: "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"}, ctx.Err()
}

func (e *fakeEngine) CreateAnswer(ctx context.Context) (Description, error) {
	return Description{Type: SDPTypeAnswer, SDP: "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"}, ctx.Err()
}

func (e *fakeEngine) SetLocalDescription(desc Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localDesc = &desc
	return nil
}

func (e *fakeEngine) SetRemoteDescription(desc Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remoteErr != nil {
		return e.remoteErr
	}
	e.remoteDesc = &desc
	return nil
}

func (e *fakeEngine) AddICECandidate(c Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, c)
	return nil
}

func (e *fakeEngine) OnICECandidate(fn func(Candidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.iceCb = fn
}

func (e *fakeEngine) OnRemoteTrack(fn func(kind, id string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trackCb = fn
}

// fireLocalCandidate, engine'in lokal bir candidate üretmesini simüle eder.
// Callback henüz register edilmemişse false döner.
func (e *fakeEngine) fireLocalCandidate(c Candidate) bool {
	e.mu.Lock()
	cb := e.iceCb
	e.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(c)
	return true
}

// remoteDescription, uygulanan remote description'ı döner (yoksa nil).
func (e *fakeEngine) remoteDescription() *Description {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteDesc
}

func (e *fakeEngine) StopLocal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocalCalls++
}

func (e *fakeEngine) StopRemote() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopRemoteCalls++
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	return nil
}

// counts, (stopLocal, stopRemote, close) çağrı sayılarını döner.
func (e *fakeEngine) counts() (int, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocalCalls, e.stopRemoteCalls, e.closeCalls
}

func (e *fakeEngine) appliedCandidates() []Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Candidate, len(e.applied))
	copy(out, e.applied)
	return out
}

// incomingCapture, OnIncomingCall callback'inin sonucunu thread-safe toplar —
// callback manager'ın dispatch goroutine'inden, assert'ler test goroutine'inden koşar.
type incomingCapture struct {
	mu   sync.Mutex
	s    *Session
	info IncomingCall
}

func (c *incomingCapture) bind(mgr *Manager) {
	mgr.OnIncomingCall(func(s *Session, inc IncomingCall) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.s = s
		c.info = inc
	})
}

func (c *incomingCapture) session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

func (c *incomingCapture) call() IncomingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// ─── Test Harness ───

// testRig, tek bir peer'ın core'unu fake'lerle ayağa kaldırır.
type testRig struct {
	mgr       *Manager
	transport *fakeTransport
	engine    *fakeEngine
}

func newTestRig() *testRig {
	transport := newFakeTransport()
	engine := &fakeEngine{}

	factory := func(video bool) (MediaEngine, error) {
		return engine, nil
	}

	mgr := NewManager(transport, factory, Config{})
	go mgr.Run()

	return &testRig{mgr: mgr, transport: transport, engine: engine}
}

// offerPayload, server'ın receive_offer event'inin test kopyası.
func offerPayload(callID int64, from string, video bool) map[string]any {
	return map[string]any{
		"call_id":       callID,
		"from_user_id":  from,
		"from_username": from,
		"video":         video,
		"offer":         map[string]any{"type": "offer", "sdp": "v=0\r\nm=audio 9 UDP/TLS/RTP/SAVPF 111\r\n"},
	}
}
