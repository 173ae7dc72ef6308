package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:channel", websocket.New(func(c *websocket.Conn) {
		channel := c.Params("channel")
		client := hub.Register(channel)
		defer hub.Unregister(client)

		// The read loop only detects disconnects; it signals the writer so
		// a dead peer is cleaned up without waiting for the next broadcast.
		readClosed := make(chan struct{})
		go func() {
			defer close(readClosed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-readClosed:
				return
			}
		}
	}))
}
