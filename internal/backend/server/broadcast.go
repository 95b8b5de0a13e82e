package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
)

const writeWait = 10 * time.Second

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	close(c.send)
}

// Broadcaster fans roster changes out to every WebSocket client. Updates are
// coalesced for one throttle period; a full snapshot goes out periodically
// so clients recover from anything they missed.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*wsClient]bool
	store          *session.Store
	log            logging.Logger
	throttle       time.Duration
	seq            atomic.Uint64
	pendingUpdates map[string]*session.State
	pendingRemoved []string
	flushTimer     *time.Timer
	flushMu        sync.Mutex
}

func NewBroadcaster(store *session.Store, throttle time.Duration, log logging.Logger) *Broadcaster {
	if log == nil {
		log = logging.Discard()
	}
	return &Broadcaster{
		clients:        make(map[*wsClient]bool),
		store:          store,
		log:            log,
		throttle:       throttle,
		pendingUpdates: make(map[string]*session.State),
	}
}

// Run sends periodic snapshots until ctx is cancelled, then disconnects
// every client.
func (b *Broadcaster) Run(ctx context.Context, snapshotInterval time.Duration) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			b.broadcast(client.MsgSnapshot, b.snapshot())
		}
	}
}

func (b *Broadcaster) addClient(conn *websocket.Conn) *wsClient {
	c := newWSClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	b.sendTo(c, client.MsgSnapshot, b.snapshot())
	return c
}

func (b *Broadcaster) removeClient(c *wsClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}

// QueueUpdate schedules a delta for the given sessions. A later update for
// the same session replaces an earlier one still pending.
func (b *Broadcaster) QueueUpdate(states []*session.State) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, st := range states {
		b.pendingUpdates[st.ID] = st
	}
	b.armFlush()
}

func (b *Broadcaster) QueueRemoval(ids []string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, id := range ids {
		delete(b.pendingUpdates, id)
	}
	b.pendingRemoved = append(b.pendingRemoved, ids...)
	b.armFlush()
}

// armFlush must be called with flushMu held.
func (b *Broadcaster) armFlush() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	pending := b.pendingUpdates
	removed := b.pendingRemoved
	b.pendingUpdates = make(map[string]*session.State)
	b.pendingRemoved = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(pending) == 0 && len(removed) == 0 {
		return
	}

	updates := make([]client.RosterEntry, 0, len(pending))
	for _, st := range pending {
		updates = append(updates, st.Roster())
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	b.broadcast(client.MsgDelta, client.DeltaPayload{
		Updates: updates,
		Removed: removed,
	})
}

func (b *Broadcaster) snapshot() client.SnapshotPayload {
	return client.SnapshotPayload{Sessions: roster(b.store.GetAll())}
}

func (b *Broadcaster) encode(typ client.MessageType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(client.WSMessage{
		Type:    typ,
		Seq:     b.seq.Add(1),
		Payload: raw,
	})
}

// sendTo queues a message for one client, typically a snapshot answering
// its connect or resync.
func (b *Broadcaster) sendTo(c *wsClient, typ client.MessageType, payload interface{}) {
	data, err := b.encode(typ, payload)
	if err != nil {
		b.log.WithError(err).Error("encode ws message")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		b.log.Warn("ws client too slow, dropping message")
	}
}

func (b *Broadcaster) broadcast(typ client.MessageType, payload interface{}) {
	data, err := b.encode(typ, payload)
	if err != nil {
		b.log.WithError(err).Error("encode ws message")
		return
	}

	// Sends happen under the read lock so no channel is closed mid-send.
	var slow []*wsClient
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("ws client too slow, disconnecting")
		b.removeClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func roster(states []*session.State) []client.RosterEntry {
	out := make([]client.RosterEntry, 0, len(states))
	for _, st := range states {
		out = append(out, st.Roster())
	}
	return out
}
