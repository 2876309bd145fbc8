// Package server coordinates client registration, event routing, and
// connection cleanup for the chat relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// inboundEvent pairs a decoded envelope with the connection it arrived on.
type inboundEvent struct {
	client   *Client
	envelope Envelope
}

// Hub is the event router. It owns the connection registry and the message
// store, and is the single writer for both: every inbound event is fully
// handled (state mutation plus outbound fan-out) on the Run goroutine before
// the next one is dequeued.
type Hub struct {
	registry *ConnectionRegistry
	store    *MessageStore

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub routing events against the given registry and store.
// Both are injected so the router can be exercised in isolation; the hub
// never reaches for ambient state beyond the process configuration.
func NewHub(registry *ConnectionRegistry, store *MessageStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		store:      store,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the connection registry the hub routes against.
func (h *Hub) Registry() *ConnectionRegistry {
	return h.registry
}

// Store returns the message store the hub routes against.
func (h *Hub) Store() *MessageStore {
	return h.store
}

// GetRegisterChan returns the channel used for handing new connections to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for removing connections from the hub.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's main event loop, handling connection lifecycle and
// inbound chat events. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.inbound:
			h.dispatch(event.client, event.envelope)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	connectionsTotal.Inc()
	activeConnections.Inc()
	log.Printf("Connection %s accepted from %s. Total connections: %d", client.id, client.addr, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient drops the connection from the hub and the registry. When the
// connection was registered, everyone remaining in its room gets a fresh
// user list. Safe to call twice for the same connection.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	_, known := h.clients[client.id]
	if known {
		delete(h.clients, client.id)
		client.closed = true
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !known {
		return
	}
	// Close the channel after releasing the lock.
	close(client.send)
	activeConnections.Dec()
	log.Printf("Connection %s from %s removed. Total connections: %d", client.id, client.addr, clientCount)

	if session, ok := h.registry.Lookup(client.id); ok {
		h.registry.Unregister(client.id)
		h.broadcastUserList(session.Room)
	}
}

// dispatch routes one inbound event. Authentication is the only event an
// unauthenticated connection may send; everything else is rejected with a
// soft error and otherwise ignored.
func (h *Hub) dispatch(client *Client, env Envelope) {
	if env.Event == EventAuthenticate {
		h.handleAuthenticate(client, env)
		return
	}

	if !client.authenticated {
		log.Printf("Connection %s sent %s before authenticating; rejecting", client.id, env.Event)
		h.sendError(client, "authenticate first")
		return
	}

	session, ok := h.registry.Lookup(client.id)
	if !ok {
		h.sendError(client, "connection is not registered")
		return
	}

	switch env.Event {
	case EventSendMessage:
		h.handleSendMessage(client, session, env)
	case EventEditMessage:
		h.handleEditMessage(client, env)
	case EventDeleteMessage:
		h.handleDeleteMessage(client, env)
	case EventSendReaction:
		h.handleSendReaction(client, session, env)
	case EventPinMessage:
		h.handlePinMessage(client, session, env)
	case EventTyping:
		h.handleTyping(client, session, env)
	case EventJoinRoom:
		h.handleJoinRoom(client, env)
	default:
		log.Printf("Connection %s sent unknown event %q", client.id, env.Event)
		h.sendError(client, "unknown event: "+env.Event)
	}
}

// handleAuthenticate runs the Unauthenticated -> Authenticated transition.
// A wrong passkey or a disallowed identity is terminal for the connection:
// the client is notified and forcibly disconnected.
func (h *Hub) handleAuthenticate(client *Client, env Envelope) {
	var payload AuthenticatePayload
	if err := env.DecodePayload(&payload); err != nil {
		log.Printf("Connection %s sent malformed authenticate: %v", client.id, err)
		h.rejectAuthentication(client, "malformed authenticate payload")
		return
	}

	cfg := currentConfig()
	if payload.Passkey != cfg.Passkey {
		log.Printf("Connection %s from %s presented an invalid passkey", client.id, client.addr)
		h.rejectAuthentication(client, "invalid passkey")
		return
	}

	if payload.Username == "" {
		h.rejectAuthentication(client, "username is required")
		return
	}

	if !isUserAllowed(payload.Username) {
		log.Printf("Connection %s authenticated as disallowed user %q", client.id, payload.Username)
		h.rejectAuthentication(client, "user is not allowed")
		return
	}

	room := payload.Room
	if room == "" {
		room = DefaultRoom
	}
	identity := Identity{Username: payload.Username, Avatar: payload.Avatar}

	h.registry.Register(client.id, identity, room)
	client.authenticated = true
	log.Printf("Connection %s registered as %q in room %q", client.id, payload.Username, room)

	h.send(client, EventChatHistory, HistoryPayload{
		Room:     room,
		Messages: h.visibleHistory(room, identity.Username),
	})
	h.broadcastUserList(room)
}

func (h *Hub) rejectAuthentication(client *Client, reason string) {
	authFailuresTotal.Inc()
	h.send(client, EventAuthError, ErrorPayload{Message: reason})
	h.removeClient(client)
}

func (h *Hub) handleSendMessage(client *Client, session Session, env Envelope) {
	var payload SendMessagePayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed send_message payload")
		return
	}
	if payload.Text == "" && payload.Attachment == nil {
		h.sendError(client, "message needs text or an attachment")
		return
	}

	recipient := payload.Recipient
	if recipient == "" {
		recipient = RecipientAll
	}

	stored := h.store.Append(Message{
		Author:     session.Identity,
		Text:       payload.Text,
		Attachment: payload.Attachment,
		Room:       session.Room,
		Recipient:  recipient,
	})
	messagesTotal.Inc()

	if recipient == RecipientAll {
		h.broadcastRoom(session.Room, EventReceiveMessage, stored, nil)
		return
	}
	h.deliverPrivate(client, session.Room, recipient, stored)
}

// deliverPrivate fans a private message out to every connection registered
// under the recipient identity in the room, plus the sender's own connection
// so the sender sees the message echoed back. Nobody else receives it.
func (h *Hub) deliverPrivate(sender *Client, room, recipient string, msg Message) {
	for _, connID := range h.registry.ConnectionsInRoom(room) {
		if connID == sender.id {
			continue
		}
		session, ok := h.registry.Lookup(connID)
		if !ok || session.Identity.Username != recipient {
			continue
		}
		if target := h.clientByID(connID); target != nil {
			h.send(target, EventReceiveMessage, msg)
		}
	}
	h.send(sender, EventReceiveMessage, msg)
}

func (h *Hub) handleEditMessage(client *Client, env Envelope) {
	var payload EditMessagePayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed edit_message payload")
		return
	}
	if payload.MessageID == "" || payload.NewText == "" {
		h.sendError(client, "edit_message needs messageId and newText")
		return
	}

	// Unknown message ids are silently absorbed: no mutation, no fan-out.
	updated, ok := h.store.Edit(payload.MessageID, payload.NewText)
	if !ok {
		return
	}
	h.broadcastMessageAudience(updated, EventEditMessage, EditBroadcastPayload{
		MessageID: updated.ID,
		NewText:   updated.Text,
	})
}

func (h *Hub) handleDeleteMessage(client *Client, env Envelope) {
	var payload DeleteMessagePayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed delete_message payload")
		return
	}

	removed, ok := h.store.Delete(payload.MessageID)
	if !ok {
		return
	}
	h.broadcastMessageAudience(removed, EventDeleteMessage, DeleteBroadcastPayload{
		MessageID: removed.ID,
	})
}

func (h *Hub) handleSendReaction(client *Client, session Session, env Envelope) {
	var payload SendReactionPayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed send_reaction payload")
		return
	}
	if payload.MessageID == "" || payload.Emoji == "" {
		h.sendError(client, "send_reaction needs messageId and emoji")
		return
	}

	updated, ok := h.store.AddReaction(payload.MessageID, Reaction{
		Emoji: payload.Emoji,
		User:  session.Identity,
	})
	if !ok {
		return
	}
	h.broadcastMessageAudience(updated, EventReactionUpdate, ReactionUpdatePayload{
		MessageID: updated.ID,
		Reactions: updated.Reactions,
	})
}

func (h *Hub) handlePinMessage(client *Client, session Session, env Envelope) {
	var payload PinMessagePayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed pin_message payload")
		return
	}

	// Presentation-only: the relay keeps no pinned set.
	h.broadcastRoom(session.Room, EventPinMessage, PinBroadcastPayload{
		MessageID: payload.MessageID,
		PinnedBy:  session.Identity,
	}, nil)
}

func (h *Hub) handleTyping(client *Client, session Session, env Envelope) {
	var payload TypingPayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(client, "malformed typing payload")
		return
	}

	h.broadcastRoom(session.Room, EventUserTyping, UserTypingPayload{
		User:     session.Identity,
		IsTyping: payload.IsTyping,
	}, client)
}

func (h *Hub) handleJoinRoom(client *Client, env Envelope) {
	var payload JoinRoomPayload
	if err := env.DecodePayload(&payload); err != nil || payload.Room == "" {
		h.sendError(client, "join_room needs a room")
		return
	}

	oldRoom, ok := h.registry.SetRoom(client.id, payload.Room)
	if !ok {
		h.sendError(client, "connection is not registered")
		return
	}

	session, _ := h.registry.Lookup(client.id)
	log.Printf("Connection %s moved from room %q to %q", client.id, oldRoom, session.Room)

	h.send(client, EventRoomHistory, HistoryPayload{
		Room:     session.Room,
		Messages: h.visibleHistory(session.Room, session.Identity.Username),
	})
	if oldRoom != session.Room {
		h.broadcastUserList(oldRoom)
	}
	h.broadcastUserList(session.Room)
}

// visibleHistory is the room history with other identities' private messages
// filtered out. Recipient filtering happens here, not in clients.
func (h *Hub) visibleHistory(room, username string) []Message {
	history := h.store.History(room)
	visible := make([]Message, 0, len(history))
	for _, msg := range history {
		if msg.Recipient == RecipientAll || msg.Recipient == username || msg.Author.Username == username {
			visible = append(visible, msg)
		}
	}
	return visible
}

// broadcastMessageAudience fans a message-scoped event out to everyone
// allowed to see the message: the whole room for broadcast messages, only
// the author's and recipient's connections for private ones. Edits and
// reactions to a private message must never reach third parties.
func (h *Hub) broadcastMessageAudience(msg Message, event string, payload any) {
	if msg.Recipient == RecipientAll {
		h.broadcastRoom(msg.Room, event, payload, nil)
		return
	}

	data, err := EncodeEvent(event, payload)
	if err != nil {
		log.Printf("Error encoding %s broadcast: %v", event, err)
		return
	}

	var failed []*Client
	for _, connID := range h.registry.ConnectionsInRoom(msg.Room) {
		session, ok := h.registry.Lookup(connID)
		if !ok {
			continue
		}
		name := session.Identity.Username
		if name != msg.Recipient && name != msg.Author.Username {
			continue
		}
		client := h.clientByID(connID)
		if client == nil {
			continue
		}
		if !h.safeSend(client, data) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) broadcastUserList(room string) {
	h.broadcastRoom(room, EventUserList, UserListPayload{
		Room:  room,
		Users: h.registry.OnlineUsers(room),
	}, nil)
}

// broadcastRoom fans an event out to every registered connection in the
// room, except the optional excluded one. Connections whose send buffer is
// full are dropped, matching the no-backpressure model.
func (h *Hub) broadcastRoom(room, event string, payload any, except *Client) {
	data, err := EncodeEvent(event, payload)
	if err != nil {
		log.Printf("Error encoding %s broadcast: %v", event, err)
		return
	}

	var failed []*Client
	for _, connID := range h.registry.ConnectionsInRoom(room) {
		client := h.clientByID(connID)
		if client == nil || (except != nil && client == except) {
			continue
		}
		if !h.safeSend(client, data) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// send delivers one event to a single connection.
func (h *Hub) send(client *Client, event string, payload any) {
	data, err := EncodeEvent(event, payload)
	if err != nil {
		log.Printf("Error encoding %s event for %s: %v", event, client.id, err)
		return
	}
	if !h.safeSend(client, data) {
		h.removeFailedClients([]*Client{client})
	}
}

func (h *Hub) sendError(client *Client, message string) {
	eventsDiscardedTotal.Inc()
	h.send(client, EventError, ErrorPayload{Message: message})
}

func (h *Hub) clientByID(connID string) *Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[connID]
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent racing the
	// unregister path closing the channel.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

func (h *Hub) removeFailedClients(failed []*Client) {
	for _, client := range failed {
		log.Printf("Connection %s from %s dropped due to full send buffer", client.id, client.addr)
		h.removeClient(client)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing connection %s from %s: %v", client.id, client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
