package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"gamesync/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
	requestTimeout = 10 * time.Second
)

// Hub tracks WebSocket clients. Lobby clients follow the session directory;
// session clients follow one session, its chat, its game state and its
// cursors for as long as they play in it.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan sessionMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	games     *GameService
	directory *SessionDirectory
	chat      *ChatChannel
	presence  *PresenceService
	words     *WordGameService
}

type Client struct {
	hub       *Hub
	id        string
	socket    *websocket.Conn
	send      chan []byte
	sessionID string
	identity  models.Identity

	mu       sync.Mutex
	closed   bool
	draining bool
	unsubs   []func()
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

func NewHub(games *GameService, directory *SessionDirectory, chat *ChatChannel, presence *PresenceService, words *WordGameService) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan sessionMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		games:      games,
		directory:  directory,
		chat:       chat,
		presence:   presence,
		words:      words,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client registered: %s (%s) in %s - Total clients: %d", client.id, client.identity.UID, client.scope(), total)

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			total := len(h.clients)
			h.mutex.Unlock()
			client.close()
			if ok {
				log.Printf("Client unregistered: %s (%s) in %s - Total clients: %d", client.id, client.identity.UID, client.scope(), total)
			}

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				if client.sessionID == message.sessionID {
					client.enqueue(message.data)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// BroadcastToSession sends a message to every client following sessionID.
func (h *Hub) BroadcastToSession(sessionID, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	h.broadcast <- sessionMessage{sessionID: sessionID, data: data}
}

// GetConnectedPlayers returns the ids of players with an open connection to sessionID.
func (h *Hub) GetConnectedPlayers(sessionID string) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	seen := map[string]bool{}
	playerIDs := []string{}
	for client := range h.clients {
		if client.sessionID == sessionID && !seen[client.identity.UID] {
			seen[client.identity.UID] = true
			playerIDs = append(playerIDs, client.identity.UID)
		}
	}
	return playerIDs
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RegisterClient starts serving conn. An empty sessionID makes a lobby client.
func (h *Hub) RegisterClient(conn *websocket.Conn, identity models.Identity, sessionID string) (*Client, error) {
	client := &Client{
		hub:       h,
		id:        uuid.NewString(),
		socket:    conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
		identity:  identity,
	}

	if err := client.subscribe(); err != nil {
		client.close()
		return nil, err
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client, nil
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) scope() string {
	if c.sessionID == "" {
		return "lobby"
	}
	return "game " + c.sessionID
}

// subscribe opens one store subscription per followed path.
func (c *Client) subscribe() error {
	ctx := context.Background()
	if c.sessionID == "" {
		unsub, err := c.hub.directory.Watch(ctx, func(sessions []models.GameSession) {
			c.push("sessions", sessions)
		})
		if err != nil {
			return err
		}
		c.addUnsub(unsub)
		return nil
	}

	unsub, err := c.hub.games.WatchSession(ctx, c.sessionID, func(session *models.GameSession) {
		if session == nil {
			c.pushLast("session_deleted", map[string]string{"id": c.sessionID})
			return
		}
		if p, _ := session.Player(c.identity.UID); p == nil {
			c.pushLast("left", map[string]string{"id": c.sessionID})
			return
		}
		c.push("session", session)
	})
	if err != nil {
		return err
	}
	c.addUnsub(unsub)

	unsub, err = c.hub.chat.Watch(ctx, c.sessionID, func(msgs []models.ChatMessage) {
		c.push("chat", msgs)
	})
	if err != nil {
		return err
	}
	c.addUnsub(unsub)

	unsub, err = c.hub.games.WatchGameState(ctx, c.sessionID, func(state models.GameState) {
		c.push("game_state", state)
	})
	if err != nil {
		return err
	}
	c.addUnsub(unsub)

	unsub, err = c.hub.presence.WatchCursors(ctx, c.identity, c.sessionID, func(cursors []models.Cursor) {
		c.push("cursors", cursors)
	})
	if err != nil {
		return err
	}
	c.addUnsub(unsub)
	return nil
}

// disconnect unregisters the client once its queued messages are flushed.
// It runs on a subscription goroutine, which close waits for, so the
// unregister is handed off.
func (c *Client) disconnect() {
	go c.hub.UnregisterClient(c)
}

// pushLast queues a final message and disconnects. Nothing queued after it
// reaches the socket.
func (c *Client) pushLast(messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}
	c.mu.Lock()
	if c.closed || c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	select {
	case c.send <- data:
	default:
	}
	c.mu.Unlock()
	c.disconnect()
}

func (c *Client) addUnsub(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubs = append(c.unsubs, fn)
}

func (c *Client) push(messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}
	c.enqueue(data)
}

// enqueue hands data to the write pump. A client whose buffer is full is
// disconnected.
func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	if c.closed || c.draining {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		log.Printf("Client %s send buffer full, closing connection", c.id)
		c.disconnect()
	}
}

// close stops every subscription and the write pump. Safe to call twice.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			c.push("error", errorPayload("", "malformed message"))
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg inboundMessage) {
	if msg.Type == "ping" {
		c.push("pong", "pong")
		return
	}
	if c.sessionID == "" {
		c.push("error", errorPayload(msg.Type, "lobby connections only accept ping"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case "chat":
		var req ChatRequest
		if err = decodePayload(msg.Payload, &req); err == nil {
			_, err = c.hub.games.AddChatMessage(ctx, c.identity, c.sessionID, req.Message, false)
		}

	case "cursor":
		var req CursorRequest
		if err = decodePayload(msg.Payload, &req); err == nil {
			_, err = c.hub.presence.UpdateCursor(ctx, c.identity, c.sessionID, req.X, req.Y)
		}

	case "ready":
		_, err = c.hub.games.TogglePlayerReady(ctx, c.identity, c.sessionID)

	case "drop":
		var req DropRequest
		if err = decodePayload(msg.Payload, &req); err == nil {
			var result *DropResult
			if result, err = c.hub.words.Drop(ctx, c.identity, c.sessionID, req.WordID, req.SlotID); err == nil {
				c.push("drop_result", result)
				if result.Completed {
					c.hub.BroadcastToSession(c.sessionID, "round_complete", map[string]interface{}{
						"round":       result.Board.Round,
						"completedBy": c.identity.UID,
					})
				}
			}
		}

	case "request_state":
		err = c.sendState(ctx)

	default:
		log.Printf("Unknown message type: %s from %s in game %s", msg.Type, c.identity.UID, c.sessionID)
		err = ErrInvalidRequest
	}

	if err != nil {
		c.push("error", errorPayload(msg.Type, err.Error()))
	}
}

func (c *Client) sendState(ctx context.Context) error {
	session, err := c.hub.games.GetSession(ctx, c.sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		c.push("session_deleted", map[string]string{"id": c.sessionID})
		return nil
	}
	if err != nil {
		return err
	}
	state, err := c.hub.games.GetGameState(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.push("session", session)
	c.push("game_state", state)
	return nil
}

func errorPayload(messageType, text string) map[string]string {
	return map[string]string{"type": messageType, "message": text}
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return ErrInvalidRequest
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}
