// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"sync"
	"time"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/commitment"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	clientQueue = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventClient is a single websocket subscriber.
type eventClient struct {
	conn *websocket.Conn
	send chan v1.Event
	addr string
}

// eventHub fans price and reveal events out to all connected websocket
// clients.  Clients that do not keep up are disconnected.
type eventHub struct {
	sync.Mutex

	clients map[*eventClient]struct{}
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{
		clients: make(map[*eventClient]struct{}),
	}
}

// Len returns the number of connected clients.
func (h *eventHub) Len() int {
	h.Lock()
	defer h.Unlock()
	return len(h.clients)
}

// register adds c and queues initial as its first event.  Queueing happens
// under the hub lock so that close and broadcast cannot close c.send first.
// It returns false once the hub is closed.
func (h *eventHub) register(c *eventClient, initial v1.Event) bool {
	h.Lock()
	defer h.Unlock()
	if h.closed {
		return false
	}
	c.send <- initial
	h.clients[c] = struct{}{}
	return true
}

func (h *eventHub) unregister(c *eventClient) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast queues e on every client.  Must not block on slow clients.
func (h *eventHub) broadcast(e v1.Event) {
	h.Lock()
	defer h.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			log.Debugf("events: dropping slow client %v", c.addr)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// publishPrices is subscribed to the price feed.
func (h *eventHub) publishPrices(snapshot commitment.Snapshot) {
	h.broadcast(v1.Event{
		Type:   v1.EventPrices,
		Prices: convertPricesToV1(snapshot.Samples()),
	})
}

// publishReveal is handed to the sweeper.
func (h *eventHub) publishReveal(c commitment.Commitment) {
	vc := convertCommitmentToV1(c)
	h.broadcast(v1.Event{
		Type:       v1.EventReveal,
		Commitment: &vc,
	})
}

// close disconnects all clients and refuses new ones.
func (h *eventHub) close() {
	h.Lock()
	defer h.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// writer pumps queued events to the connection and keeps it alive with pings.
func (c *eventClient) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(e); err != nil {
				log.Debugf("events: write %v: %v", c.addr, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}

// reader discards client messages until the connection goes away.
func (c *eventClient) reader(h *eventHub) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
