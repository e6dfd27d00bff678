// Package cmd implements the thin CLI layer: it marshals flags into typed
// lifecycle requests and renders typed responses. It contains no lifecycle
// logic of its own.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/go-imi/imi/internal/config"
	"github.com/go-imi/imi/internal/errs"
	"github.com/go-imi/imi/internal/events"
	"github.com/go-imi/imi/internal/git"
	"github.com/go-imi/imi/internal/lifecycle"
	"github.com/go-imi/imi/internal/logger"
	"github.com/go-imi/imi/internal/registry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

// SetVersionInfo sets the version information from the main package.
func SetVersionInfo(v, c, d, b string) {
	version = v
	commit = c
	date = d
	builtBy = b
}

var (
	jsonOutput bool
	repoFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "imi",
	Short: "Git worktree fleet manager",
	Long: `# imi

**A git-worktree fleet manager: one tracked cluster hub per project, one
directory per active worktree.**

## Commands

- **init** registers the current project or refreshes global config
- **create** adds a type-prefixed worktree branched from trunk
- **review** checks out a pull request's ref into its own worktree
- **close / remove / merge** retire a worktree
- **repair** fixes recorded paths after the cluster hub moves
- **prune** reconciles the registry, git, and filesystem
- **sync** refreshes recorded git state for every worktree
- **list / status / stats** report context-aware views of the fleet
- **deactivate** unregisters a project and its worktree rows`,
	Version: version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of a table")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "project reference (id or name); defaults to the context-detected project")

	rootCmd.AddCommand(versionCmd, initCmd, createCmd, reviewCmd, closeCmd, removeCmd, mergeCmd, repairCmd, pruneCmd, syncCmd, listCmd, statusCmd, goToCmd, statsCmd, deactivateCmd)

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderMarkdownHelp(cmd)
	})
}

// Execute runs the command tree, translating a returned *errs.Error into
// the CLI exit-code contract from §7.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}

// env bundles the collaborators every mutating/read command needs, built
// once per invocation from global config and a freshly opened store.
type env struct {
	cfg     *config.Config
	store   *registry.Store
	git     git.Operations
	manager *lifecycle.Manager
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dbPath, err := config.DBPath()
	if err != nil {
		return nil, err
	}
	store, err := registry.Open(dbPath)
	if err != nil {
		return nil, err
	}
	gitOps := git.NewOperations()
	emitter := events.NewEmitter(events.LogSink{}, "cli")
	manager := lifecycle.NewManager(store, gitOps, cfg, emitter)
	return &env{cfg: cfg, store: store, git: gitOps, manager: manager}, nil
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("could not determine current working directory")
	}
	return dir
}

// projectRef resolves --repo, falling back to empty (context-detected by
// the caller) when unset.
func projectRef() string {
	return repoFlag
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("imi version %s\n", version)
		if commit != "none" && commit != "" {
			fmt.Printf("Git commit: %s\n", commit)
		}
		if date != "unknown" && date != "" {
			fmt.Printf("Built: %s\n", date)
		}
		if builtBy != "unknown" && builtBy != "" {
			fmt.Printf("Built by: %s\n", builtBy)
		}
	},
}

func renderMarkdownHelp(cmd *cobra.Command) {
	var b strings.Builder
	if cmd.Long != "" {
		b.WriteString(cmd.Long)
		b.WriteString("\n\n")
	} else if cmd.Short != "" {
		b.WriteString("# " + cmd.Short + "\n\n")
	}

	b.WriteString("## Usage\n\n```\n" + cmd.UseLine() + "\n```\n\n")

	if cmd.HasAvailableSubCommands() {
		b.WriteString("## Available Commands\n\n")
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				b.WriteString(fmt.Sprintf("- **%s** - %s\n", sub.Name(), sub.Short))
			}
		}
		b.WriteString("\n")
	}

	if cmd.HasAvailableFlags() {
		if usages := cmd.Flags().FlagUsages(); usages != "" {
			b.WriteString("## Flags\n\n```\n" + usages + "```\n\n")
		}
	}
	if cmd.HasParent() && cmd.InheritedFlags().HasFlags() {
		if usages := cmd.InheritedFlags().FlagUsages(); usages != "" {
			b.WriteString("## Global Flags\n\n```\n" + usages + "```\n\n")
		}
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		_ = cmd.Help()
		return
	}
	rendered, err := renderer.Render(b.String())
	if err != nil {
		_ = cmd.Help()
		return
	}
	fmt.Print(rendered)
}
