package service

import (
	"log"

	"github.com/HillviewCap/ferrocodex-sub002/events"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ProgressService struct {
	hub *events.Hub
}

func NewProgressService(hub *events.Hub) *ProgressService {
	return &ProgressService{hub: hub}
}

// HandleUpgrade rejects plain HTTP requests on the websocket route.
func (ps *ProgressService) HandleUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleProgressSocket streams analysis progress events to the connected
// client as JSON frames until the client disconnects or the hub closes.
func (ps *ProgressService) HandleProgressSocket(conn *websocket.Conn) {
	defer conn.Close()

	eventCh, cancel := ps.hub.Subscribe()
	defer cancel()

	// Reader goroutine exists only to notice the client going away;
	// inbound frames are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("progress stream write failed: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
