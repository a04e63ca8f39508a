package store

import "context"

// Store defines the persistence collaborator contract: definitions,
// instance state snapshots, the append-only invocation log, and the
// notification outbox. All implementations must be safe for concurrent
// use.
type Store interface {
	// Apps
	SaveApp(ctx context.Context, app *App) error
	GetApp(ctx context.Context, appID string) (*App, error)
	ListApps(ctx context.Context) ([]*App, error)

	// Instances
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, appID string) ([]*Instance, error)

	// Invocations. CommitInvocation atomically appends the log entry,
	// replaces the instance state when newState is non-nil (success), and
	// queues the notifications. This is the commit-or-discard boundary.
	CommitInvocation(ctx context.Context, inv *Invocation, newState []byte, notifications []*Notification) error
	ListInvocations(ctx context.Context, instanceID string, limit int) ([]*Invocation, error)

	// Notification outbox
	PendingNotifications(ctx context.Context, target string, limit int) ([]*Notification, error)
	MarkNotificationsDelivered(ctx context.Context, ids []int64) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
