package ports

import "context"

// CleanupKind names a compensating action left over from a failed workflow.
type CleanupKind string

const (
	CleanupDeleteAccount CleanupKind = "delete_account"
	CleanupDeleteProfile CleanupKind = "delete_profile"
)

// CleanupTask is a compensating delete that failed inline and is retried in
// the background.
type CleanupTask struct {
	Kind      CleanupKind
	AccountID string
}

// CleanupQueue accepts tasks without blocking; false means the task was dropped.
type CleanupQueue interface {
	Enqueue(task CleanupTask) bool
}

// CleanupRunner performs a single attempt of a task.
type CleanupRunner interface {
	RunCleanup(ctx context.Context, task CleanupTask) error
}
