package chat

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Hub is the single goroutine that owns every local connection and the room
// groups they are subscribed to. Everything else talks to it over channels.
type Hub struct {
	clients map[*Client]string             // client -> room, "" when not in a room
	rooms   map[string]map[*Client]struct{} // room -> subscribed clients

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan *Client
	direct      chan directMessage
	inbound     chan inboundFrame

	fanout Fanout
	done   chan struct{}
}

type subscription struct {
	client *Client
	roomID string
}

type directMessage struct {
	client  *Client
	payload []byte
}

// wireFrame is what travels over the fanout. Evict closes every subscriber
// after delivering the payload.
type wireFrame struct {
	Evict   bool            `json:"evict,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type inboundFrame struct {
	roomID string
	frame  wireFrame
}

func NewHub(fanout Fanout) *Hub {
	return &Hub{
		clients:     make(map[*Client]string),
		rooms:       make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan *Client),
		direct:      make(chan directMessage),
		inbound:     make(chan inboundFrame, 256),
		fanout:      fanout,
		done:        make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			close(c.send)
		}
		h.clients = map[*Client]string{}
		h.rooms = map[string]map[*Client]struct{}{}
		close(h.done)
	}()

	go h.fanout.Listen(ctx, func(roomID string, payload []byte) {
		var fr wireFrame
		if err := json.Unmarshal(payload, &fr); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Dropping malformed fanout frame")
			return
		}
		select {
		case h.inbound <- inboundFrame{roomID: roomID, frame: fr}:
		case <-ctx.Done():
		}
	})

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = ""

		case c := <-h.unregister:
			// Evicted and slow clients are already gone.
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}

		case s := <-h.subscribe:
			if _, ok := h.clients[s.client]; !ok {
				continue
			}
			h.leaveRoom(s.client)
			if h.rooms[s.roomID] == nil {
				h.rooms[s.roomID] = make(map[*Client]struct{})
			}
			h.rooms[s.roomID][s.client] = struct{}{}
			h.clients[s.client] = s.roomID

		case c := <-h.unsubscribe:
			if _, ok := h.clients[c]; ok {
				h.leaveRoom(c)
				h.clients[c] = ""
			}

		case m := <-h.direct:
			if _, ok := h.clients[m.client]; ok {
				h.deliver(m.client, m.payload)
			}

		case in := <-h.inbound:
			for c := range h.rooms[in.roomID] {
				h.deliver(c, in.frame.Payload)
			}
			if in.frame.Evict {
				for c := range h.rooms[in.roomID] {
					h.remove(c)
				}
			}
		}
	}
}

// deliver never blocks the hub: a client whose buffer is full is dropped.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		logrus.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).Warn("Send buffer full, dropping connection")
		h.remove(c)
	}
}

func (h *Hub) leaveRoom(c *Client) {
	roomID := h.clients[c]
	if roomID == "" {
		return
	}
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leaveRoom(c)
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe moves c into roomID's group, leaving any previous group.
func (h *Hub) Subscribe(c *Client, roomID string) {
	select {
	case h.subscribe <- subscription{client: c, roomID: roomID}:
	case <-h.done:
	}
}

func (h *Hub) Unsubscribe(c *Client) {
	select {
	case h.unsubscribe <- c:
	case <-h.done:
	}
}

// Send queues payload for a single local connection.
func (h *Hub) Send(c *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: c, payload: payload}:
	case <-h.done:
	}
}

// Broadcast publishes payload to every subscriber of roomID on every instance.
func (h *Hub) Broadcast(ctx context.Context, roomID string, payload []byte) error {
	return h.publish(ctx, roomID, wireFrame{Payload: payload})
}

// Evict publishes payload to roomID's subscribers and then disconnects them.
func (h *Hub) Evict(ctx context.Context, roomID string, payload []byte) error {
	return h.publish(ctx, roomID, wireFrame{Evict: true, Payload: payload})
}

func (h *Hub) publish(ctx context.Context, roomID string, fr wireFrame) error {
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	return h.fanout.Publish(ctx, roomID, b)
}
