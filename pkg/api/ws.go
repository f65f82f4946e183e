package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WSMessage is the envelope pushed to status subscribers.
type WSMessage struct {
	Type    string      `json:"type"`              // status
	Payload interface{} `json:"payload,omitempty"` // model.State for status
}

type wsSub struct {
	mu sync.Mutex // one writer per connection
	c  *websocket.Conn
}

func (s *wsSub) send(msg WSMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.c.SetWriteDeadline(time.Now().Add(writeWait))
	return s.c.WriteJSON(msg)
}

// WSHub fans status changes out to connected UI clients.
type WSHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*wsSub]struct{}
}

func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*wsSub]struct{}{},
	}
}

// HandleStatusWS upgrades the request, sends the current state and keeps the
// connection subscribed until the client goes away.
func (h *WSHub) HandleStatusWS(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade failed remote=%s err=%v", r.RemoteAddr, err)
			return
		}
		sub := &wsSub{c: c}
		h.mu.Lock()
		h.subs[sub] = struct{}{}
		h.mu.Unlock()
		log.Printf("status subscriber connected remote=%s", r.RemoteAddr)

		if err := sub.send(WSMessage{Type: "status", Payload: src.State()}); err != nil {
			h.drop(sub)
			return
		}
		go h.readLoop(sub)
	}
}

// Broadcast sends msg to every subscriber, dropping the ones that fail.
func (h *WSHub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	subs := make([]*wsSub, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		if err := s.send(msg); err != nil {
			log.Printf("ws send failed type=%s: %v", msg.Type, err)
			h.drop(s)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *WSHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *WSHub) readLoop(s *wsSub) {
	defer h.drop(s)
	for {
		if _, _, err := s.c.NextReader(); err != nil {
			return
		}
	}
}

func (h *WSHub) drop(s *wsSub) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	h.mu.Unlock()
	if ok {
		_ = s.c.Close()
		log.Printf("status subscriber disconnected")
	}
}

// Close disconnects every subscriber.
func (h *WSHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[*wsSub]struct{}{}
	h.mu.Unlock()
	for s := range subs {
		_ = s.c.Close()
	}
}
