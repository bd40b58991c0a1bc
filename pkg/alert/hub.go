/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package alert

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans alerts out to websocket subscribers of each cluster.
type Hub struct {
	log         zerolog.Logger
	sessions    session.Store
	upgrader    websocket.Upgrader
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
}

func NewHub(log zerolog.Logger, sessions session.Store) *Hub {
	return &Hub{
		log:      log,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboard is served from another port of the same host
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: map[string]map[*subscriber]struct{}{},
	}
}

// ServeHTTP upgrades /ws?cluster_id=<uuid> requests of logged in users.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clusterID := r.URL.Query().Get("cluster_id")
	if clusterID == "" {
		http.Error(w, "cluster_id is required", http.StatusBadRequest)
		return
	}
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	data, err := h.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read session")
		http.Error(w, "session store is unavailable", http.StatusServiceUnavailable)
		return
	}
	if data == nil {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(clusterID, sub)
	go h.writeLoop(sub)
	h.readLoop(sub)
	h.remove(clusterID, sub)
}

func (h *Hub) add(clusterID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[clusterID]; !ok {
		h.subscribers[clusterID] = map[*subscriber]struct{}{}
	}
	h.subscribers[clusterID][sub] = struct{}{}
	h.log.Debug().Msgf("websocket subscriber added for cluster '%s'", clusterID)
}

// remove closes send channel, writer exits and closes connection.
func (h *Hub) remove(clusterID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[clusterID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, clusterID)
	}
	close(sub.send)
}

func (h *Hub) Subscribers(clusterID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[clusterID])
}

// Broadcast never blocks, message is dropped for subscriber with full
// send buffer.
func (h *Hub) Broadcast(clusterID string, message Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode websocket message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers[clusterID] {
		select {
		case sub.send <- payload:
		default:
			h.log.Warn().Msgf("websocket subscriber of cluster '%s' is slow, message dropped", clusterID)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.subscribers {
		for sub := range subs {
			sub.conn.Close()
		}
	}
}

func (h *Hub) readLoop(sub *subscriber) {
	sub.conn.SetReadLimit(maxMessageSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("websocket subscriber disconnected")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
