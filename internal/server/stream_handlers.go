package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/relay"
)

// sseSink writes relay events to one subscriber connection in
// Server-Sent Events framing. Writes are fire-and-forget: there is no
// back-pressure handling beyond the write error that ends the
// subscription.
type sseSink struct {
	res *echo.Response
}

// Send writes one "data: <json>" event and flushes it immediately so
// intermediaries cannot buffer the stream.
func (s *sseSink) Send(ev relay.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("server: marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(s.res, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}

// KeepAlive writes an SSE comment line to defeat idle-connection
// timeouts on intermediary infrastructure.
func (s *sseSink) KeepAlive() error {
	if _, err := fmt.Fprint(s.res, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}

// handleStream opens a live event stream over the four entity streams.
// The relay loop ends when the client disconnects or the subscription's
// lifetime deadline passes; the stream then closes cleanly.
// GET /stream
func (s *Server) handleStream(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	if err := s.streams.Run(c.Request().Context(), &sseSink{res: res}); err != nil {
		// The subscriber is gone; nothing useful can be sent back.
		log.Printf("Stream ended with write error: %v", err)
	}
	return nil
}
