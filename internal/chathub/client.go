package chathub

import (
	"anonchat/backend/internal/models"
	"context"
)

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to route
// engine notices to different client types uniformly.
type Client interface {
	// GetUserID returns the unique identifier for the user associated with the client.
	GetUserID() string
	// Deliver renders and sends a notice to the user. It must not block on a
	// slow peer for long.
	Deliver(ctx context.Context, notice models.Notice) error
	// DisplayName returns the name revealed to the partner.
	DisplayName(ctx context.Context) (string, error)
	// Close gracefully shuts down the client's connection.
	Close()
}
