package models

import "time"

// Project is a registered repository fleet: one trunk worktree plus any
// number of typed sibling worktrees sharing a cluster hub.
type Project struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	RemoteOrigin  string         `json:"remote_origin"`
	DefaultBranch string         `json:"default_branch"`
	TrunkPath     string         `json:"trunk_path"`
	Description   string         `json:"description,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Active        bool           `json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ProjectSpec is the input to register_project; ID/timestamps are assigned
// by the store.
type ProjectSpec struct {
	Name          string
	RemoteOrigin  string
	DefaultBranch string
	TrunkPath     string
	Description   string
	Metadata      map[string]any
}
