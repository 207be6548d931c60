// Package websocket delivers live subscriptions to connected clients.
// A client opens one socket and asks for the streams it wants (thread
// list, a thread's messages, a thread's call session); the hub owns the
// underlying subscriptions and cancels them when the client asks or the
// socket closes. An uncancelled stream would keep a redis listener
// alive forever, so teardown runs unconditionally on disconnect.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/middleware"
	"github.com/HuynhDucPhu2502/Flickr/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS layer
	},
}

type Hub struct {
	chat       *services.ChatService
	calls      *services.CallService
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	log        *logrus.Entry
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	uid  string

	cancelCtx context.CancelFunc
	ctx       context.Context
	streams   map[string]canceller
	control   chan controlMsg
}

type canceller interface{ Cancel() }

type controlMsg struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type event struct {
	Type     string      `json:"type"`
	ThreadID string      `json:"thread_id,omitempty"`
	Data     interface{} `json:"data"`
}

func NewHub(chat *services.ChatService, calls *services.CallService) *Hub {
	return &Hub{
		chat:       chat,
		calls:      calls,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        logger.Component("ws"),
	}
}

// Run owns the client set. All map mutations happen here.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("uid", client.uid).Debug("client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				// send stays open: forward goroutines may still be
				// draining; they stop via the client context instead.
				delete(h.clients, client)
				h.log.WithField("uid", client.uid).Debug("client disconnected")
			}
		}
	}
}

func HandleWebSocket(hub *Hub, c *gin.Context) {
	uid := middleware.UID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		uid:       uid,
		ctx:       ctx,
		cancelCtx: cancel,
		streams:   make(map[string]canceller),
		control:   make(chan controlMsg, 16),
	}

	hub.register <- client

	go client.writePump()
	go client.streamPump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		close(c.control)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("websocket read error")
			}
			return
		}

		var msg controlMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.WithError(err).Debug("bad control message")
			continue
		}
		c.control <- msg
	}
}

// streamPump owns the client's live subscriptions: it creates them on
// control messages and cancels every one of them (plus the context) on
// exit.
func (c *Client) streamPump() {
	defer func() {
		c.cancelCtx()
		for _, s := range c.streams {
			s.Cancel()
		}
	}()

	for msg := range c.control {
		switch msg.Type {
		case "subscribe_threads":
			c.startStream("threads", func() canceller {
				sub := c.hub.chat.SubscribeThreads(c.ctx, c.uid)
				go forward(c, "threads", "", sub.C())
				return sub
			})
		case "subscribe_messages":
			if msg.ThreadID == "" {
				continue
			}
			if !c.participant(msg.ThreadID) {
				c.deliver(event{Type: "error", ThreadID: msg.ThreadID, Data: "not a participant"})
				continue
			}
			c.startStream("messages:"+msg.ThreadID, func() canceller {
				sub := c.hub.chat.SubscribeMessages(c.ctx, msg.ThreadID, msg.Limit)
				go forward(c, "messages", msg.ThreadID, sub.C())
				return sub
			})
		case "subscribe_call":
			if msg.ThreadID == "" {
				continue
			}
			if !c.participant(msg.ThreadID) {
				c.deliver(event{Type: "error", ThreadID: msg.ThreadID, Data: "not a participant"})
				continue
			}
			c.startStream("call:"+msg.ThreadID, func() canceller {
				sub := c.hub.calls.SubscribeSession(c.ctx, msg.ThreadID)
				go forward(c, "call", msg.ThreadID, sub.C())
				return sub
			})
		case "unsubscribe_threads":
			c.stopStream("threads")
		case "unsubscribe_messages":
			c.stopStream("messages:" + msg.ThreadID)
		case "unsubscribe_call":
			c.stopStream("call:" + msg.ThreadID)
		}
	}
}

func (c *Client) startStream(key string, start func() canceller) {
	if _, exists := c.streams[key]; exists {
		return
	}
	c.streams[key] = start()
}

func (c *Client) stopStream(key string) {
	if s, ok := c.streams[key]; ok {
		s.Cancel()
		delete(c.streams, key)
	}
}

// participant reports whether this client may stream the given thread.
// Same membership rule the REST handlers enforce.
func (c *Client) participant(threadID string) bool {
	thread, err := c.hub.chat.Thread(c.ctx, threadID)
	if err != nil {
		return false
	}
	return thread.Peer(c.uid) != ""
}

// deliver marshals one event onto the socket, dropping it if the
// client is gone.
func (c *Client) deliver(ev event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.hub.log.WithError(err).Warn("marshal event failed")
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

// forward copies one subscription onto the socket until the stream is
// cancelled or the client goes away.
func forward[T any](c *Client, typ, threadID string, ch <-chan T) {
	for v := range ch {
		c.deliver(event{Type: typ, ThreadID: threadID, Data: v})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
