package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates request IDs across hops.
	RequestIDHeader = "X-Request-ID"
	requestIDLocal  = "request_id"
)

// RequestID ensures every request carries an ID: reused from the incoming
// header when present, generated otherwise, and echoed on the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocal, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		log.Info("http.request",
			"request_id", c.Locals(requestIDLocal),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}
