package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/strym-io/strym/pkg/models"
)

// CloseStatusAuthFailure is the application close code sent when the
// WebSocket upgrade carries a missing or invalid API key.
const CloseStatusAuthFailure = websocket.StatusCode(4001)

// Subscription is a filter plus delivery intent held within a session.
type Subscription struct {
	ID      string
	Filters Filters
	Paused  bool
}

// Session is one live WebSocket connection and its subscription table.
//
// The subscriptions map is guarded by the owning Registry's mutex: it is
// mutated from the session's read loop and read by Fanout, which runs on
// the bus listener goroutine.
type Session struct {
	ID            string
	conn          *websocket.Conn
	subscriptions map[string]*Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	// lastPong is unix-nano of the most recent pong (or connect).
	lastPong atomic.Int64
}

// Registry is the in-process table of live sessions. Each instance has
// exactly one. All mutations and the snapshot phase of Fanout are
// serialized under a single guard; the per-session sends happen outside it
// so a stuck transport cannot block registration or other fanouts.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	writeTimeout time.Duration

	// pingInterval is how often the server pings each session. A session
	// that doesn't pong within 2× the interval is terminated. Zero
	// disables pinging.
	pingInterval time.Duration
}

// NewRegistry creates an empty Registry.
func NewRegistry(writeTimeout, pingInterval time.Duration) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the HTTP handler after upgrade and authentication. Blocks until
// the connection closes.
func (r *Registry) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	sessionID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	s := &Session{
		ID:            sessionID,
		conn:          conn,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.lastPong.Store(time.Now().UnixNano())

	r.register(s)
	defer r.Deregister(sessionID)

	r.sendJSON(s, map[string]string{
		"type":        MsgConnected,
		"session_id":  sessionID,
		"server_time": time.Now().UTC().Format(time.RFC3339Nano),
	})

	if r.pingInterval > 0 {
		go r.pingLoop(s)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or errored — exit read loop.
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.sendError(s, ErrCodeInvalidMessage, "message is not valid JSON")
			continue
		}

		r.handleClientMessage(s, &msg)
	}
}

// Fanout delivers one event to every non-paused subscription whose filters
// match, across all sessions. The matching snapshot is taken under the
// guard; sends happen outside it. A send failure deregisters that session
// and aborts its remaining deliveries; other sessions are unaffected.
func (r *Registry) Fanout(entry models.LogEntry) {
	type delivery struct {
		session *Session
		subIDs  []string
	}

	r.mu.RLock()
	deliveries := make([]delivery, 0, len(r.sessions))
	for _, s := range r.sessions {
		var subIDs []string
		for _, sub := range s.subscriptions {
			if sub.Paused {
				continue
			}
			if sub.Filters.Matches(entry) {
				subIDs = append(subIDs, sub.ID)
			}
		}
		if len(subIDs) > 0 {
			deliveries = append(deliveries, delivery{session: s, subIDs: subIDs})
		}
	}
	r.mu.RUnlock()

	for _, d := range deliveries {
		for _, subID := range d.subIDs {
			payload, err := json.Marshal(map[string]any{
				"type":            MsgLog,
				"subscription_id": subID,
				"data":            entry,
			})
			if err != nil {
				slog.Warn("Failed to marshal log delivery", "error", err)
				continue
			}
			if err := r.sendRaw(d.session, payload); err != nil {
				slog.Warn("Dropping slow or dead subscriber",
					"session_id", d.session.ID, "error", err)
				r.Deregister(d.session.ID)
				break
			}
		}
	}
}

// Subscribe inserts or replaces a subscription on a session. No-op if the
// session is gone.
func (r *Registry) Subscribe(sessionID, subscriptionID string, filters Filters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.subscriptions[subscriptionID] = &Subscription{
		ID:      subscriptionID,
		Filters: filters,
	}
}

// Unsubscribe removes a subscription. Idempotent.
func (r *Registry) Unsubscribe(sessionID, subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		delete(s.subscriptions, subscriptionID)
	}
}

// SetPaused flips the paused flag on a subscription. Events arriving while
// paused are dropped, not buffered.
func (r *Registry) SetPaused(sessionID, subscriptionID string, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		if sub, ok := s.subscriptions[subscriptionID]; ok {
			sub.Paused = paused
		}
	}
}

// Deregister removes a session and all its subscriptions, cancels its
// context, and closes its transport. Idempotent.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	s.cancel()
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
}

// ActiveSessions returns the count of live sessions.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// subscriptionCount returns the number of subscriptions on a session.
// Unexported — used by tests to poll instead of sleeping.
func (r *Registry) subscriptionCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sessionID]; ok {
		return len(s.subscriptions)
	}
	return 0
}

func (r *Registry) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// handleClientMessage dispatches one client message. Unknown types elicit
// an error message but never terminate the connection.
func (r *Registry) handleClientMessage(s *Session, msg *ClientMessage) {
	switch msg.Type {
	case MsgSubscribe:
		subID := msg.SubscriptionID
		if subID == "" {
			subID = uuid.New().String()
		}
		filters, err := ParseFilters(msg.Filters)
		if err != nil {
			r.sendError(s, ErrCodeInvalidFilters, err.Error())
			return
		}
		r.Subscribe(s.ID, subID, filters)
		r.sendJSON(s, map[string]any{
			"type":            MsgSubscribed,
			"subscription_id": subID,
			"filters":         filters,
		})

	case MsgUnsubscribe:
		if msg.SubscriptionID == "" {
			r.sendError(s, ErrCodeInvalidMessage, "subscription_id is required for unsubscribe")
			return
		}
		r.Unsubscribe(s.ID, msg.SubscriptionID)
		r.sendJSON(s, map[string]string{
			"type":            MsgUnsubscribed,
			"subscription_id": msg.SubscriptionID,
		})

	case MsgPause, MsgResume:
		if msg.SubscriptionID == "" {
			r.sendError(s, ErrCodeInvalidMessage, "subscription_id is required for "+msg.Type)
			return
		}
		paused := msg.Type == MsgPause
		r.SetPaused(s.ID, msg.SubscriptionID, paused)
		reply := MsgResumed
		if paused {
			reply = MsgPaused
		}
		r.sendJSON(s, map[string]string{
			"type":            reply,
			"subscription_id": msg.SubscriptionID,
		})

	case MsgPong:
		s.lastPong.Store(time.Now().UnixNano())

	default:
		r.sendError(s, ErrCodeUnknownMessageType, "unknown message type: "+msg.Type)
	}
}

// pingLoop pings the session periodically and terminates it when no pong
// arrives within twice the ping interval.
func (r *Registry) pingLoop(s *Session) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	deadline := 2 * r.pingInterval
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Since(time.Unix(0, s.lastPong.Load())) > deadline {
			slog.Info("Terminating unresponsive session", "session_id", s.ID)
			r.Deregister(s.ID)
			return
		}

		r.sendJSON(s, map[string]string{
			"type":      MsgPing,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (r *Registry) sendError(s *Session, code, message string) {
	r.sendJSON(s, map[string]string{
		"type":    MsgError,
		"code":    code,
		"message": message,
	})
}

// sendJSON marshals and sends a JSON message to a single session.
func (r *Registry) sendJSON(s *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"session_id", s.ID, "error", err)
		return
	}
	if err := r.sendRaw(s, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"session_id", s.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single session with a write timeout.
func (r *Registry) sendRaw(s *Session, data []byte) error {
	writeCtx, cancel := context.WithTimeout(s.ctx, r.writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}
