package supervisor

import (
	"context"
	"time"
)

//go:generate mockgen -source=interface.go -destination=mocks/mock_interfaces.go -package=mocks

// StatusWriter persists bot status transitions. Implemented by the registry.
type StatusWriter interface {
	SetBotStatus(ctx context.Context, id, status string, at time.Time) error
}

// EntryResolver picks the file a bot process starts from. Implemented by the
// sandbox store.
type EntryResolver interface {
	ResolveEntry(root, language string) (string, error)
}
