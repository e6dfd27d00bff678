package models

// WorktreeType is a table-driven enumeration, not subtype polymorphism:
// per-type behavior is parameterized entirely by these fields.
type WorktreeType struct {
	ID            int            `json:"id"`
	Name          string         `json:"name"`
	BranchPrefix  string         `json:"branch_prefix"`
	WorktreePrefix string        `json:"worktree_prefix"`
	Description   string         `json:"description,omitempty"`
	IsBuiltin     bool           `json:"is_builtin"`
	Color         string         `json:"color,omitempty"`
	Icon          string         `json:"icon,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// BuiltinWorktreeTypes are seeded by the first registry migration. Only
// Trunk carries an empty branch prefix.
var BuiltinWorktreeTypes = []WorktreeType{
	{Name: "feat", BranchPrefix: "feat/", WorktreePrefix: "feat-", IsBuiltin: true},
	{Name: "fix", BranchPrefix: "fix/", WorktreePrefix: "fix-", IsBuiltin: true},
	{Name: "aiops", BranchPrefix: "aiops/", WorktreePrefix: "aiops-", IsBuiltin: true},
	{Name: "devops", BranchPrefix: "devops/", WorktreePrefix: "devops-", IsBuiltin: true},
	{Name: "review", BranchPrefix: "pr-review/", WorktreePrefix: "pr-", IsBuiltin: true},
	{Name: "trunk", BranchPrefix: "", WorktreePrefix: "trunk-", IsBuiltin: true},
}

const TrunkTypeName = "trunk"

// IsTrunk reports whether this type is the mandatory trunk type.
func (t WorktreeType) IsTrunk() bool {
	return t.Name == TrunkTypeName
}
