package models

import "time"

// CompletionType classifies how a merged/terminal worktree ended.
type CompletionType string

const (
	CompletionMerged     CompletionType = "merged"
	CompletionAbandoned  CompletionType = "abandoned"
	CompletionSuperseded CompletionType = "superseded"
)

// Status is the computed projection described by the derived-status table;
// it is never stored, only returned from Worktree.Status().
type Status string

const (
	StatusUncommitted Status = "uncommitted"
	StatusDiverged    Status = "diverged"
	StatusAhead       Status = "ahead"
	StatusBehind      Status = "behind"
	StatusClean       Status = "clean"
)

// Worktree is one checked-out branch belonging to a Project.
type Worktree struct {
	ID                     string         `json:"id"`
	ProjectID              string         `json:"project_id"`
	TypeID                 int            `json:"type_id"`
	Name                   string         `json:"name"`
	BranchName             string         `json:"branch_name"`
	Path                   string         `json:"path"`
	OwnerID                string         `json:"owner_id,omitempty"`
	HasUncommittedChanges  bool           `json:"has_uncommitted_changes"`
	UncommittedFilesCount  int            `json:"uncommitted_files_count"`
	AheadOfTrunk           int            `json:"ahead_of_trunk"`
	BehindTrunk            int            `json:"behind_trunk"`
	LastCommitHash         string         `json:"last_commit_hash,omitempty"`
	LastCommitMessage      string         `json:"last_commit_message,omitempty"`
	LastSyncAt             *time.Time     `json:"last_sync_at,omitempty"`
	MergedAt               *time.Time     `json:"merged_at,omitempty"`
	MergedBy               string         `json:"merged_by,omitempty"`
	MergeCommitHash        string         `json:"merge_commit_hash,omitempty"`
	CompletionType         CompletionType `json:"completion_type,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	Active                 bool           `json:"active"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// Status implements the derived-status piecewise function: merged state
// takes precedence, then uncommitted changes, then ahead/behind combinations.
func (w Worktree) Status() Status {
	if w.MergedAt != nil {
		switch w.CompletionType {
		case CompletionAbandoned:
			return Status(CompletionAbandoned)
		case CompletionSuperseded:
			return Status(CompletionSuperseded)
		default:
			return Status(CompletionMerged)
		}
	}
	if w.UncommittedFilesCount > 0 {
		return StatusUncommitted
	}
	switch {
	case w.AheadOfTrunk > 0 && w.BehindTrunk > 0:
		return StatusDiverged
	case w.AheadOfTrunk > 0:
		return StatusAhead
	case w.BehindTrunk > 0:
		return StatusBehind
	default:
		return StatusClean
	}
}

// WorktreeSpec is the input to register_worktree.
type WorktreeSpec struct {
	ProjectID  string
	TypeID     int
	Name       string
	BranchName string
	Path       string
	OwnerID    string
	Metadata   map[string]any
}

// GitStateUpdate is the input to update_worktree_git_state, applied by sync.
type GitStateUpdate struct {
	HeadSHA               string
	LastCommitMessage     string
	AheadOfTrunk          int
	BehindTrunk           int
	UncommittedFilesCount int
}
