package transport

import (
	"context"
	"encoding/json"
	"log"

	"github.com/area/diffsync/internal/adapter"
	"github.com/area/diffsync/internal/commands"
	"github.com/area/diffsync/internal/editprocessor"
	"github.com/area/diffsync/internal/sessionrouter"
)

// joinPayload is the wire body of a "join" envelope.
type joinPayload struct {
	Room string `json:"room"`
}

// Bind wires a Hub's connection/message events to a SessionRouter,
// translating the {event, payload} envelope protocol into Join/
// SyncWithServer calls, the way NewRoomController wires
// Hub.OnMessage/OnTick in controllers/room.go. Every syncWithServer
// dispatch carries the connection's bearer token on its context via
// adapter.WithBearerToken, so adapter.CheckDiffs implementations that
// require one (e.g. Postgres) can authorize the edit.
func Bind(h *Hub, router *sessionrouter.Router) {
	h.OnMessage = func(c *Client, event string, payload json.RawMessage) {
		ctx := context.Background()

		switch event {
		case commands.Join:
			var body joinPayload
			if err := json.Unmarshal(payload, &body); err != nil {
				log.Printf("transport: invalid join payload from %s: %v", c.id, err)
				return
			}
			doc, err := router.Join(ctx, c, body.Room)
			if err != nil {
				log.Printf("transport: join failed for room %s: %v", body.Room, err)
				return
			}
			c.Emit(commands.Join, doc)

		case commands.SyncWithServer:
			var msg editprocessor.EditMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Printf("transport: invalid syncWithServer payload from %s: %v", c.id, err)
				return
			}
			ctx := adapter.WithBearerToken(ctx, c.Token())
			if err := router.SyncWithServer(ctx, c, msg); err != nil {
				log.Printf("transport: syncWithServer failed for room %s: %v", msg.Room, err)
			}

		default:
			log.Printf("transport: unknown event %q from %s", event, c.id)
		}
	}

	h.OnDisconnect = func(c *Client) {
		c.roomsMu.Lock()
		rooms := make([]string, 0, len(c.rooms))
		for room := range c.rooms {
			rooms = append(rooms, room)
		}
		c.roomsMu.Unlock()
		for _, room := range rooms {
			router.Leave(room, c.id)
		}
	}
}
