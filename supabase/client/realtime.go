package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventHandler handles realtime events delivered on a subscribed topic.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is one message from the realtime socket.
type RealtimeEvent struct {
	Event   string          `json:"event"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// RealtimeClient maintains a websocket subscription to Supabase Realtime.
// The session service uses it to observe auth/profile row changes so
// resolution re-runs without polling.
type RealtimeClient struct {
	mu       sync.Mutex
	url      string
	conn     *websocket.Conn
	handlers map[string][]EventHandler
	done     chan struct{}
	ref      int
}

// NewRealtimeClient creates a realtime client for the project URL.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := supabaseURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &RealtimeClient{
		url:      wsURL,
		handlers: make(map[string][]EventHandler),
		done:     make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and
// heartbeat loops.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	r.conn = conn

	go r.readLoop()
	go r.heartbeatLoop()
	return nil
}

// Subscribe joins a topic and registers a handler for its events. Topics
// follow the realtime convention, e.g. "realtime:public:profiles".
func (r *RealtimeClient) Subscribe(topic string, handler EventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return fmt.Errorf("realtime not connected")
	}
	r.handlers[topic] = append(r.handlers[topic], handler)

	r.ref++
	join := map[string]any{
		"topic":   topic,
		"event":   "phx_join",
		"payload": map[string]any{},
		"ref":     strconv.Itoa(r.ref),
	}
	return r.conn.WriteJSON(join)
}

// Close tears down the connection.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
	default:
		close(r.done)
	}
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *RealtimeClient) readLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}

		var event RealtimeEvent
		if err := conn.ReadJSON(&event); err != nil {
			return
		}

		r.mu.Lock()
		handlers := append([]EventHandler(nil), r.handlers[event.Topic]...)
		r.mu.Unlock()
		for _, h := range handlers {
			h(&event)
		}
	}
}

func (r *RealtimeClient) heartbeatLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			conn := r.conn
			if conn != nil {
				r.ref++
				_ = conn.WriteJSON(map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     strconv.Itoa(r.ref),
				})
			}
			r.mu.Unlock()
		}
	}
}
