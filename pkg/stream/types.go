// Package stream provides real-time log delivery via WebSocket and Redis
// pub/sub for cross-instance distribution.
//
// Every instance runs one Registry (the table of live WebSocket sessions
// and their subscriptions) and one Listener (subscribed to the shared Redis
// channel). Ingestion publishes each accepted event to the channel; every
// instance's Listener — the publisher's own included — receives it and fans
// it out to matching local subscribers. Delivery is best-effort: nothing is
// persisted for replay, and a subscriber that cannot keep up is dropped.
package stream

import "encoding/json"

// LogsChannel is the Redis pub/sub channel carrying canonicalized log
// events between instances.
const LogsChannel = "strym:logs"

// Client → server message types.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPause       = "pause"
	MsgResume      = "resume"
	MsgPong        = "pong"
)

// Server → client message types.
const (
	MsgConnected    = "connected"
	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgPaused       = "paused"
	MsgResumed      = "resumed"
	MsgLog          = "log"
	MsgError        = "error"
	MsgPing         = "ping"
)

// Error codes carried in MsgError messages.
const (
	ErrCodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeInvalidMessage     = "INVALID_MESSAGE"
	ErrCodeInvalidFilters     = "INVALID_FILTERS"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Type           string          `json:"type"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Filters        json.RawMessage `json:"filters,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"` // pong echo
}
