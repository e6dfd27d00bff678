package models

import "time"

// ActivityKind is the closed set of activity log entries.
type ActivityKind string

const (
	ActivityCreated   ActivityKind = "created"
	ActivityModified  ActivityKind = "modified"
	ActivityDeleted   ActivityKind = "deleted"
	ActivityCommitted ActivityKind = "committed"
	ActivityPushed    ActivityKind = "pushed"
	ActivityMerged    ActivityKind = "merged"
	ActivitySynced    ActivityKind = "synced"
	ActivityOther     ActivityKind = "other"
)

// Activity is an append-only audit row tied to a worktree.
type Activity struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	WorktreeID  string         `json:"worktree_id"`
	Kind        ActivityKind   `json:"kind"`
	FilePath    string         `json:"file_path,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RegistryStats summarizes the registry, either globally or scoped to one
// project, for the stats() operation.
type RegistryStats struct {
	ProjectCount        int `json:"project_count"`
	ActiveWorktreeCount int `json:"active_worktree_count"`
	MergedWorktreeCount int `json:"merged_worktree_count"`
	DirtyWorktreeCount  int `json:"dirty_worktree_count"`
	ActivityCount       int `json:"activity_count"`
}
