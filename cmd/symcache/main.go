package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/symcache"
	"github.com/jward/symcache/internal/store"
)

var (
	flagRoot     string
	flagFormat   string
	flagInclude  string
	flagExclude  string
	flagDebounce time.Duration
	flagWorkers  int
	flagJournal  string
	flagCompiler string
	flagKeep     int
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "symcache",
	Short:         "Incremental symbol-to-artifact cache for C# workspaces",
	Long:          "Symcache indexes the public declarations of a C# workspace by documentation id, extracts their source fragments, and runs compiled methods to capture their output.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		if flagInclude != "" && flagExclude != "" {
			return fmt.Errorf("--include and --exclude are mutually exclusive")
		}
		return nil
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "workspace directory to scan for *.csproj units")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagInclude, "include", "", "comma-separated units to index (names or ids)")
	rootCmd.PersistentFlags().StringVar(&flagExclude, "exclude", "", "comma-separated units to skip (names or ids)")
	rootCmd.PersistentFlags().DurationVar(&flagDebounce, "debounce", 500*time.Millisecond, "quiet window after the last change before rebuilding")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default: number of CPUs)")
	rootCmd.PersistentFlags().StringVar(&flagJournal, "journal", "", "journal database path (default: .symcache/journal.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagCompiler, "compiler", "", "compiler command, e.g. 'csfront --project {path}'")
	rootCmd.PersistentFlags().IntVar(&flagKeep, "keep", 100, "generations to keep in the journal (0 keeps all)")

	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(fragmentCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// openCoordinator builds a Coordinator over the --root workspace with the
// journal and compiler selected by flags. Caller must close it.
func openCoordinator() (*symcache.Coordinator, error) {
	root, err := resolveTargetDir(flagRoot)
	if err != nil {
		return nil, err
	}
	ws, err := symcache.OpenDir(root)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}

	var comp symcache.Compiler
	if flagCompiler != "" {
		comp, err = symcache.ParseCompilerCommand(flagCompiler)
		if err != nil {
			return nil, fmt.Errorf("parsing --compiler: %w", err)
		}
	}

	journal, err := openJournal(findRepoRoot(root), true)
	if err != nil {
		return nil, err
	}

	opts := []symcache.Option{
		symcache.WithDebounce(flagDebounce),
		symcache.WithJournal(journal),
		symcache.WithJournalKeep(flagKeep),
		symcache.WithLogger(log.New(os.Stderr, "symcache: ", 0)),
	}
	if names := splitList(flagInclude); len(names) > 0 {
		opts = append(opts, symcache.WithIncludeUnits(names...))
	}
	if names := splitList(flagExclude); len(names) > 0 {
		opts = append(opts, symcache.WithExcludeUnits(names...))
	}
	if flagWorkers > 0 {
		opts = append(opts, symcache.WithWorkers(flagWorkers))
	}

	c, err := symcache.New(ws, comp, opts...)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("creating coordinator: %w", err)
	}
	return c, nil
}

// openJournal opens the journal at the resolved path. With create unset a
// missing journal is an error rather than an empty database.
func openJournal(repoRoot string, create bool) (*store.Store, error) {
	path := resolveJournalPath(repoRoot)
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("journal not found: %s (run 'symcache symbols' first)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return s, nil
}

// resolveTargetDir returns the absolute path of the workspace directory.
func resolveTargetDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveJournalPath returns the journal path from the --journal flag or
// the default.
func resolveJournalPath(repoRoot string) string {
	if flagJournal != "" {
		if filepath.IsAbs(flagJournal) {
			return flagJournal
		}
		return filepath.Join(repoRoot, flagJournal)
	}
	return filepath.Join(repoRoot, ".symcache", "journal.db")
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
