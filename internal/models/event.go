package models

import "time"

// EventKind is the closed set of mutation events the Event Emitter produces.
type EventKind string

const (
	EventProjectRegistered  EventKind = "project.registered"
	EventProjectUpdated     EventKind = "project.updated"
	EventProjectDeactivated EventKind = "project.deactivated"
	EventProjectRepaired    EventKind = "project.repaired"
	EventProjectPruned      EventKind = "project.pruned"
	EventWorktreeCreated    EventKind = "worktree.created"
	EventWorktreeClosed     EventKind = "worktree.closed"
	EventWorktreeRemoved    EventKind = "worktree.removed"
	EventWorktreeMerged     EventKind = "worktree.merged"
	EventWorktreeSynced     EventKind = "worktree.synced"
	EventActivityLogged     EventKind = "activity.logged"
)

// Event is the stable envelope emitted for every successful mutation and
// handed to a pluggable Sink. Payload schemas are additive-only across
// versions.
type Event struct {
	ID            string         `json:"id"`
	Kind          EventKind      `json:"kind"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload"`
}
