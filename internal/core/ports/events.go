package ports

import "github.com/lorrc/accounts/internal/core/domain"

// EventBroadcaster pushes account events to connected clients.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}
