// Package wsclient, call core'un Transport interface'ini server'ın
// WebSocket protokolü üzerinde implement eder.
//
// Protokol: her mesaj {"op", "d", "seq", "nonce"} şeklinde bir JSON zarfıdır.
//   - Arama event'leri (receive_offer, receive_answer, receive_ice,
//     call_rejected, call_hung_up) Events() kanalına Envelope olarak akar —
//     bağlantı üzerindeki varış sırası korunur (tek read pump, tek kanal).
//   - start_call invoke-style'dır: nonce üretilir, server aynı nonce ile
//     start_call_ack (call_id) veya start_call_err döner.
//   - heartbeat her 30 saniyede gönderilir; cevapsız kalan bağlantıyı
//     server 90 saniyede düşürür.
//
// Bağlantı koptuğunda Events() kanalı kapanır ve OnDisconnect callback'i
// bir kez çağrılır — core, canlı session'ları "disconnected" sebebiyle söker.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/selimgur/vole/call"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	eventBufferSize   = 64
)

// serverEvent, wire'daki JSON zarfı. Data opak tutulur — parse etmek
// call core'un (router + normalize) işidir.
type serverEvent struct {
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"d,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
}

// clientEvent, client'tan server'a giden zarf.
type clientEvent struct {
	Op    string `json:"op"`
	Data  any    `json:"d,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// startCallRequest / startCallAck / startCallErr — start_call invoke payload'ları.
type startCallRequest struct {
	ReceiverID string `json:"receiver_id"`
	Video      bool   `json:"video"`
}

type startCallAck struct {
	CallID int64 `json:"call_id"`
}

type startCallErr struct {
	Message string `json:"message"`
}

// startCallResult, bekleyen bir invoke'un sonucu.
type startCallResult struct {
	callID int64
	err    error
}

// Client, server'a bağlı tek bir WebSocket signaling bağlantısı.
// call.Transport interface'ini implement eder.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla: aynı anda tek writer

	events chan call.Envelope

	pendingMu sync.Mutex
	pending   map[string]chan startCallResult // nonce → bekleyen invoke

	onDisconnect   func()
	disconnectOnce sync.Once

	closeOnce sync.Once
}

// Dial, serverURL'deki /ws endpoint'ine verilen access token ile bağlanır
// ve read pump ile heartbeat loop'unu başlatır.
//
// serverURL "http://localhost:8080" veya "ws://localhost:8080" olabilir —
// şema ws/wss'e çevrilir.
func Dial(ctx context.Context, serverURL, accessToken string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(accessToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &Client{
		conn:    conn,
		events:  make(chan call.Envelope, eventBufferSize),
		pending: make(map[string]chan startCallResult),
	}

	go c.readPump()
	go c.heartbeatLoop()

	log.Printf("[wsclient] connected to %s", u.Host)
	return c, nil
}

// ─── call.Transport Implementasyonu ───

// StartCall, server'dan yeni bir arama oluşturmasını ister ve verilen
// call ID'yi döner. ctx süresi dolarsa veya bağlantı koparsa hata döner.
func (c *Client) StartCall(ctx context.Context, partnerID string, video bool) (int64, error) {
	nonce := uuid.NewString()
	result := make(chan startCallResult, 1)

	c.pendingMu.Lock()
	c.pending[nonce] = result
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, nonce)
		c.pendingMu.Unlock()
	}()

	req := clientEvent{
		Op:    "start_call",
		Data:  startCallRequest{ReceiverID: partnerID, Video: video},
		Nonce: nonce,
	}
	if err := c.writeJSON(req); err != nil {
		return 0, fmt.Errorf("start_call send failed: %w", err)
	}

	select {
	case res := <-result:
		return res.callID, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Send, bir signaling event'ini gönderir.
func (c *Client) Send(op string, payload any) error {
	return c.writeJSON(clientEvent{Op: op, Data: payload})
}

// Events, inbound arama event'lerinin kanalını döner.
// Bağlantı kapandığında kanal kapanır.
func (c *Client) Events() <-chan call.Envelope {
	return c.events
}

// OnDisconnect, bağlantı koptuğunda bir kez çağrılacak callback'i ayarlar.
// Dial'dan hemen sonra, event akışı başlamadan ayarlanmalıdır.
func (c *Client) OnDisconnect(fn func()) {
	c.onDisconnect = fn
}

// Close, bağlantıyı kapatır. Read pump'ın sonlanması Events kanalını kapatır.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// ─── Pump'lar ───

// readPump, server'dan gelen tüm mesajları okur ve türüne göre dağıtır.
// Bağlantı üzerindeki sıra korunur — tek goroutine, tek kanal.
func (c *Client) readPump() {
	defer func() {
		close(c.events)
		c.failPending(fmt.Errorf("connection closed"))
		c.disconnectOnce.Do(func() {
			if c.onDisconnect != nil {
				c.onDisconnect()
			}
		})
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[wsclient] read error: %v", err)
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Printf("[wsclient] malformed server event: %v", err)
			continue
		}

		switch evt.Op {
		case "start_call_ack":
			var ack startCallAck
			if err := json.Unmarshal(evt.Data, &ack); err != nil {
				c.resolvePending(evt.Nonce, startCallResult{err: fmt.Errorf("malformed ack: %w", err)})
				continue
			}
			c.resolvePending(evt.Nonce, startCallResult{callID: ack.CallID})

		case "start_call_err":
			var serr startCallErr
			if err := json.Unmarshal(evt.Data, &serr); err != nil {
				c.resolvePending(evt.Nonce, startCallResult{err: fmt.Errorf("malformed error reply: %w", err)})
				continue
			}
			c.resolvePending(evt.Nonce, startCallResult{
				err: fmt.Errorf("%w: %s", call.ErrServerRejected, serr.Message),
			})

		case call.EvReceiveOffer, call.EvReceiveAnswer, call.EvReceiveIce,
			call.EvCallRejected, call.EvCallHungUp, call.EvChatMessage:
			c.events <- call.Envelope{Op: evt.Op, Payload: evt.Data}

		case "heartbeat_ack":
			// Sessizce tüketilir.

		default:
			// Presence/typing event'leri — bu transport'un işi değil.
		}
	}
}

// heartbeatLoop, bağlantıyı canlı tutar. Write hatası read pump'ın da
// düşmesine yol açar; loop o noktada sonlanır.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := c.writeJSON(clientEvent{Op: "heartbeat"}); err != nil {
			return
		}
	}
}

// ─── Internal ───

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// resolvePending, nonce'a karşılık bekleyen invoke'u sonuçlandırır.
// Eşleşme yoksa (timeout sonrası geç cevap) sessizce düşürülür.
func (c *Client) resolvePending(nonce string, res startCallResult) {
	c.pendingMu.Lock()
	ch, ok := c.pending[nonce]
	c.pendingMu.Unlock()

	if ok {
		ch <- res
	}
}

// failPending, bağlantı kapandığında bekleyen tüm invoke'ları hata ile çözer.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for nonce, ch := range c.pending {
		select {
		case ch <- startCallResult{err: err}:
		default:
		}
		delete(c.pending, nonce)
	}
}
