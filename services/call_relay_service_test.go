package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimgur/vole/models"
	"github.com/selimgur/vole/pkg"
	"github.com/selimgur/vole/ws"
)

// ─── Fake'ler ───

// fakeHub, ws.EventPublisher'ın in-memory test implementasyonu.
// Kullanıcı başına gönderilen event'leri sırayla kaydeder.
type fakeHub struct {
	mu     sync.Mutex
	online []string
	sent   map[string][]ws.Event
}

func newFakeHub(online ...string) *fakeHub {
	return &fakeHub{online: online, sent: make(map[string][]ws.Event)}
}

func (h *fakeHub) BroadcastToAll(event ws.Event) {}

func (h *fakeHub) BroadcastToAllExcept(excludeUserID string, event ws.Event) {}

func (h *fakeHub) BroadcastToUser(userID string, event ws.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[userID] = append(h.sent[userID], event)
}

func (h *fakeHub) GetOnlineUserIDs() []string { return h.online }

// eventsFor, kullanıcıya gönderilen event'lerin kopyasını döner.
func (h *fakeHub) eventsFor(userID string) []ws.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ws.Event, len(h.sent[userID]))
	copy(out, h.sent[userID])
	return out
}

// lastOpFor, kullanıcıya gönderilen son event'in op'unu döner.
func (h *fakeHub) lastOpFor(userID string) string {
	events := h.eventsFor(userID)
	if len(events) == 0 {
		return ""
	}
	return events[len(events)-1].Op
}

// fakeUserGetter, UserInfoGetter'ın in-memory implementasyonu.
type fakeUserGetter struct {
	users map[string]*models.User
}

func newFakeUserGetter(ids ...string) *fakeUserGetter {
	g := &fakeUserGetter{users: make(map[string]*models.User)}
	for _, id := range ids {
		g.users[id] = &models.User{ID: id, Username: "user-" + id}
	}
	return g
}

func (g *fakeUserGetter) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := g.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
	}
	return u, nil
}

func newRelayFixture(online ...string) (CallRelayService, *fakeHub) {
	hub := newFakeHub(online...)
	svc := NewCallRelayService(newFakeUserGetter(online...), hub, 45)
	return svc, hub
}

var sdpPayload = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

// ─── Testler ───

// TestStartCallValidation — self-call, bilinmeyen kullanıcı ve offline
// receiver reddedilir.
func TestStartCallValidation(t *testing.T) {
	svc, _ := newRelayFixture("alice", "bob")

	_, err := svc.StartCall("alice", "alice", false)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "self-call must be rejected")

	_, err = svc.StartCall("alice", "ghost", false)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "unknown receiver must be rejected")

	hub := newFakeHub("alice") // bob kayıtlı ama offline
	offline := NewCallRelayService(newFakeUserGetter("alice", "bob"), hub, 45)
	_, err = offline.StartCall("alice", "bob", false)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "offline receiver must be rejected")
}

// TestStartCallMarksBothBusy — zil çalarken iki taraf da meşguldür;
// üçüncü bir arama hiçbirine bağlanamaz.
func TestStartCallMarksBothBusy(t *testing.T) {
	svc, _ := newRelayFixture("alice", "bob", "carol")

	callID, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)
	assert.Positive(t, callID)

	_, err = svc.StartCall("alice", "carol", false)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "caller is busy")

	_, err = svc.StartCall("carol", "bob", false)
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "receiver is busy")

	require.NotNil(t, svc.GetUserCall("alice"))
	require.NotNil(t, svc.GetUserCall("bob"))
}

// TestOfferRelayCarriesCallerInfo — offer yalnızca caller'dan kabul edilir
// ve receiver'a caller kimliğiyle zenginleştirilmiş receive_offer gider.
func TestOfferRelayCarriesCallerInfo(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	callID, err := svc.StartCall("alice", "bob", true)
	require.NoError(t, err)

	// Receiver offer gönderemez
	err = svc.RelayOffer("bob", callID, sdpPayload)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.NoError(t, svc.RelayOffer("alice", callID, sdpPayload))

	events := hub.eventsFor("bob")
	require.Len(t, events, 1)
	assert.Equal(t, ws.OpReceiveOffer, events[0].Op)

	payload, ok := events[0].Data.(offerRelayPayload)
	require.True(t, ok)
	assert.Equal(t, callID, payload.CallID)
	assert.Equal(t, "alice", payload.FromUserID)
	assert.True(t, payload.Video)
	assert.JSONEq(t, string(sdpPayload), string(payload.Offer))
}

// TestAnswerActivatesCall — answer relay'i aramayı active yapar ve
// caller'a receive_answer iletir.
func TestAnswerActivatesCall(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	callID, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)
	require.NoError(t, svc.RelayOffer("alice", callID, sdpPayload))

	// Caller answer gönderemez
	err = svc.RelayAnswer("alice", callID, sdpPayload)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	require.NoError(t, svc.RelayAnswer("bob", callID, sdpPayload))
	assert.Equal(t, ws.OpReceiveAnswer, hub.lastOpFor("alice"))

	call := svc.GetUserCall("alice")
	require.NotNil(t, call)
	assert.Equal(t, models.CallStatusActive, call.Status)
}

// TestStaleIceDroppedSilently — bitmiş aramaya ait ICE candidate hata
// üretmeden yutulur; canlı aramada karşı tarafa relay edilir.
func TestStaleIceDroppedSilently(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	callID, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)

	require.NoError(t, svc.RelayIce("alice", callID, sdpPayload))
	assert.Equal(t, ws.OpReceiveIce, hub.lastOpFor("bob"))

	require.NoError(t, svc.HangUp("alice"))

	// Arama bitti — geç kalan candidate sessizce düşer.
	assert.NoError(t, svc.RelayIce("alice", callID, sdpPayload))
}

// TestRejectNotifiesCallerAndFreesBoth — reject karşı tarafa call_rejected
// iletir ve iki kullanıcı da hemen yeni arama yapabilir.
func TestRejectNotifiesCallerAndFreesBoth(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	callID, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)

	require.NoError(t, svc.Reject("bob", callID))
	assert.Equal(t, ws.OpCallRejected, hub.lastOpFor("alice"))

	assert.Nil(t, svc.GetUserCall("alice"))
	assert.Nil(t, svc.GetUserCall("bob"))

	_, err = svc.StartCall("alice", "bob", false)
	assert.NoError(t, err, "pair must be free for a new call immediately")
}

// TestHangUpNotifiesOtherSide — hangup karşı tarafa "hangup" sebepli
// call_hung_up iletir; aramada olmayan kullanıcı için hata döner.
func TestHangUpNotifiesOtherSide(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	_, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)

	require.NoError(t, svc.HangUp("bob"))

	events := hub.eventsFor("alice")
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, ws.OpCallHungUp, last.Op)
	payload, ok := last.Data.(callEndPayload)
	require.True(t, ok)
	assert.Equal(t, "hangup", payload.Reason)

	err = svc.HangUp("alice")
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "no active call left")
}

// TestDisconnectEndsCall — WS bağlantısı kopan kullanıcının araması
// "disconnect" sebebiyle sonlanır.
func TestDisconnectEndsCall(t *testing.T) {
	svc, hub := newRelayFixture("alice", "bob")

	_, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)

	svc.HandleDisconnect("alice")

	events := hub.eventsFor("bob")
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, ws.OpCallHungUp, last.Op)
	payload, ok := last.Data.(callEndPayload)
	require.True(t, ok)
	assert.Equal(t, "disconnect", payload.Reason)

	assert.Nil(t, svc.GetUserCall("alice"))
	assert.Nil(t, svc.GetUserCall("bob"))
}

// TestRingTimeoutNotifiesBothSides — cevapsız arama ring timeout'ta iki
// tarafa da "timeout" sebebiyle bildirilir.
func TestRingTimeoutNotifiesBothSides(t *testing.T) {
	hub := newFakeHub("alice", "bob")
	svc := NewCallRelayService(newFakeUserGetter("alice", "bob"), hub, 0)

	_, err := svc.StartCall("alice", "bob", false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.lastOpFor("alice") == ws.OpCallHungUp && hub.lastOpFor("bob") == ws.OpCallHungUp
	}, 2*time.Second, 5*time.Millisecond, "both sides must learn about the timeout")

	assert.Nil(t, svc.GetUserCall("alice"))
	assert.Nil(t, svc.GetUserCall("bob"))
}
