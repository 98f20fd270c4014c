package ws

import (
	"encoding/json"

	"github.com/enessayaci/heybe/internal/domain"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Event is a push message delivered to page contexts. identityUpdated events
// carry the new {token, user} pair; subscribers apply it without replying.
type Event struct {
	Type string               `json:"type"`
	Data domain.StorageRecord `json:"data"`
}

// EventIdentityUpdated announces that the shared session identity changed.
const EventIdentityUpdated = "identityUpdated"

// Hub fans push events out to page contexts, grouped by identity ID.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with the identity it concerns.
type message struct {
	identityID string
	payload    []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	identityID string
	client     Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.identityID]; !ok {
				h.clients[sub.identityID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.identityID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.identityID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.identityID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.identityID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.identityID)
				}
			}
		}
	}
}

// Register adds a page context to an identity's push stream.
func (h *Hub) Register(identityID string, client Subscriber) {
	h.register <- subscription{identityID: identityID, client: client}
}

// Unregister removes a page context.
func (h *Hub) Unregister(identityID string, client Subscriber) {
	h.unreg <- subscription{identityID: identityID, client: client}
}

// Broadcast sends payload to every page context watching identityID.
func (h *Hub) Broadcast(identityID string, payload []byte) {
	h.broadcast <- message{identityID: identityID, payload: payload}
}

// PublishIdentityUpdated broadcasts an identityUpdated event. Fire-and-forget:
// marshal failures are silently dropped, there is nothing a caller could do.
func (h *Hub) PublishIdentityUpdated(identityID string, record domain.StorageRecord) {
	payload, err := json.Marshal(Event{Type: EventIdentityUpdated, Data: record})
	if err != nil {
		return
	}
	h.Broadcast(identityID, payload)
}
