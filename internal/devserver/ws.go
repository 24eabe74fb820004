package devserver

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedSocket upgrades the connection and attaches it to the change feed hub.
// The auth middleware has already placed the user id in locals.
func (s *Server) FeedSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("userID").(string)
		client := newFeedClient(s.hub, conn, uid)
		s.hub.register(client)
		s.logger.Info("feed client connected", slog.String("user_id", uid))

		go client.writePump()
		client.readPump()

		s.logger.Info("feed client disconnected", slog.String("user_id", uid))
	})
}
