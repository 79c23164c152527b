package registry

import "time"

// Bot statuses. A bot is either running under the supervisor or stopped;
// there is no intermediate persisted state.
const (
	StatusStopped = "stopped"
	StatusRunning = "running"
)

// Bot is the durable record of a hosted workload. The supervisor mutates
// status and the start/stop timestamps; file flows mutate content under Dir
// without touching the record.
type Bot struct {
	ID            string
	TenantID      int64
	Name          string
	Language      string
	Dir           string
	Status        string
	ArchiveDigest *string
	CreatedAt     time.Time
	LastStartedAt *time.Time
	LastStoppedAt *time.Time
}

// Tenant is the owning account for a set of bots. Created lazily on first
// successful auth-code redemption.
type Tenant struct {
	ID          int64
	ChatID      string
	DisplayName string
	AvatarRef   string
	Tier        string
	CreatedAt   time.Time
}

// NewBot carries the caller-supplied fields for bot creation. The sandbox
// root becomes DataDir/<generated id>.
type NewBot struct {
	TenantID int64
	Name     string
	Language string
	DataDir  string
}
