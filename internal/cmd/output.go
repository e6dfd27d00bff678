package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-imi/imi/internal/ctxdetect"
	"github.com/go-imi/imi/internal/errs"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// renderJSON writes payload as an indented JSON envelope, the format every
// command uses under --json.
func renderJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// resolveProjectRef resolves --repo if given, otherwise falls back to the
// Context Detector's reading of cwd, implementing the "context" input column
// from §6's CLI surface table.
func resolveProjectRef(e *env) (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}
	ctx, err := ctxdetect.Detect(cwd(), e.git, e.store)
	if err != nil {
		return "", err
	}
	if ctx.Classification != ctxdetect.InsideRegistered {
		return "", errs.New(errs.InvalidInput, errs.PlaneInput, "not inside a registered project; pass --repo or run from a registered worktree")
	}
	return ctx.Project.ID, nil
}

func printTableRow(cols ...string) {
	var b []byte
	for i, c := range cols {
		if i > 0 {
			b = append(b, '\t')
		}
		b = append(b, []byte(c)...)
	}
	fmt.Println(string(b))
}
