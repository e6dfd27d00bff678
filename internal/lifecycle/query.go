package lifecycle

import (
	"github.com/go-imi/imi/internal/ctxdetect"
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/models"
	"github.com/go-imi/imi/internal/registry"
)

// ProjectSummary is one row of the "outside any repo" list(--projects) view.
type ProjectSummary struct {
	Project       models.Project
	WorktreeCount int
}

// ListResult is the union type returned by List: at most one of Projects or
// Worktrees is populated, matching which branch of the context-aware
// read the Context Detector resolved to. An InsideUnregistered result
// carries only Hint.
type ListResult struct {
	Mode      ctxdetect.Classification
	Projects  []ProjectSummary
	Worktrees []models.Worktree
	Hint      string
}

// List implements list(context): route on the detected context the same
// way status() does, but return the full collection rather than one row.
func (m *Manager) List(cwd string, projectsOnly bool) (ListResult, error) {
	ctx, err := ctxdetect.Detect(cwd, m.git, m.store)
	if err != nil {
		return ListResult{}, err
	}

	if ctx.Classification == ctxdetect.InsideRegistered && !projectsOnly {
		worktrees, err := m.store.ListWorktrees(registry.ListFilters{ProjectID: ctx.Project.ID, ActiveOnly: true})
		if err != nil {
			return ListResult{}, err
		}
		return ListResult{Mode: ctxdetect.InsideRegistered, Worktrees: worktrees}, nil
	}

	if ctx.Classification == ctxdetect.InsideUnregistered && !projectsOnly {
		return ListResult{
			Mode: ctxdetect.InsideUnregistered,
			Hint: "this directory is inside a git repository that iMi does not manage yet; run `imi init` to register it",
		}, nil
	}

	projects, err := m.store.ListActiveProjects()
	if err != nil {
		return ListResult{}, err
	}
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		worktrees, err := m.store.ListWorktrees(registry.ListFilters{ProjectID: p.ID, ActiveOnly: true})
		if err != nil {
			return ListResult{}, err
		}
		summaries = append(summaries, ProjectSummary{Project: p, WorktreeCount: len(worktrees)})
	}
	return ListResult{Mode: ctxdetect.OutsideAnyRepo, Projects: summaries}, nil
}

// StatusResult is the single-worktree-or-project view returned by Status.
type StatusResult struct {
	Mode     ctxdetect.Classification
	Project  *models.Project
	Worktree *models.Worktree
	Status   models.Status
	Hint     string
}

// Status implements status(context): resolve exactly the worktree or
// project the cwd identifies and report its derived status.
func (m *Manager) Status(cwd string) (StatusResult, error) {
	ctx, err := ctxdetect.Detect(cwd, m.git, m.store)
	if err != nil {
		return StatusResult{}, err
	}

	switch ctx.Classification {
	case ctxdetect.OutsideAnyRepo:
		return StatusResult{Mode: ctxdetect.OutsideAnyRepo, Hint: "not inside any git repository"}, nil
	case ctxdetect.InsideUnregistered:
		return StatusResult{
			Mode: ctxdetect.InsideUnregistered,
			Hint: "this repository is not registered with iMi; run `imi init` here",
		}, nil
	}

	project := ctx.Project
	result := StatusResult{Mode: ctxdetect.InsideRegistered, Project: &project}
	if ctx.Worktree == nil {
		return result, errs.New(errs.NotFound, errs.PlaneRegistry, "current worktree is not registered for project "+project.Name)
	}
	result.Worktree = ctx.Worktree
	result.Status = ctx.Worktree.Status()
	return result, nil
}
