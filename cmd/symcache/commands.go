package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/symcache"
	"github.com/jward/symcache/internal/store"
)

var (
	flagCompiled   bool
	flagBody       bool
	flagAttachment string
	flagLimit      int
	flagDocID      string
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List indexed symbols",
	Long:  "Lists every public declaration by documentation id. With --compiled, compiles every unit and lists only symbols whose unit compiled.",
	Args:  cobra.NoArgs,
	RunE:  runSymbols,
}

var fragmentCmd = &cobra.Command{
	Use:   "fragment <doc-id>",
	Short: "Print the source fragment of a declaration",
	Args:  cobra.ExactArgs(1),
	RunE:  runFragment,
}

var execCmd = &cobra.Command{
	Use:   "exec <doc-id>",
	Short: "Run a method and print one of its attachments",
	Long:  "Compiles the unit declaring the method if needed, runs it, and prints the selected attachment. The default attachment is the console output; 'return' selects the return value.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled rebuilds, newest first",
	Long:  "Shows journaled rebuilds with their changed paths, symbol changes, and compilations. With --doc-id, shows every recorded change of one symbol instead.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	symbolsCmd.Flags().BoolVar(&flagCompiled, "compiled", false, "compile units and list only symbols with a loaded artifact")
	fragmentCmd.Flags().BoolVar(&flagBody, "body", false, "print only the statements inside the body")
	execCmd.Flags().StringVar(&flagAttachment, "attachment", "", "attachment name (default: console output)")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "number of generations to show (0 for all)")
	historyCmd.Flags().StringVar(&flagDocID, "doc-id", "", "show the change history of one symbol")
}

func runSymbols(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return outputError("symbols", err)
	}
	defer c.Close()
	ctx := context.Background()

	var syms []symcache.Symbol
	if flagCompiled {
		all, err := c.AllSymbols(ctx)
		if err != nil {
			return outputError("symbols", err)
		}
		for _, s := range all {
			syms = append(syms, s)
		}
		sort.Slice(syms, func(i, j int) bool { return syms[i].DocID < syms[j].DocID })
	} else {
		syms, err = c.Symbols(ctx)
		if err != nil {
			return outputError("symbols", err)
		}
	}

	results := make([]CLISymbol, len(syms))
	for i, s := range syms {
		results[i] = symbolToCLI(s)
	}
	total := len(results)
	return outputResult(CLIResult{Command: "symbols", Results: results, TotalCount: &total})
}

func runFragment(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return outputError("fragment", err)
	}
	defer c.Close()

	text, err := c.Fragment(context.Background(), args[0], flagBody)
	if err != nil {
		return outputError("fragment", err)
	}
	return outputResult(CLIResult{
		Command: "fragment",
		Results: CLIFragment{DocID: args[0], BodyOnly: flagBody, Text: text},
	})
}

func runExec(cmd *cobra.Command, args []string) error {
	c, err := openCoordinator()
	if err != nil {
		return outputError("exec", err)
	}
	defer c.Close()

	out, err := c.ExecutionResult(context.Background(), args[0], flagAttachment)
	var cerr *symcache.CompilationError
	if errors.As(err, &cerr) {
		return outputFailure("exec", compileFailureToCLI(args[0], cerr), err)
	}
	if err != nil {
		return outputError("exec", err)
	}
	return outputResult(CLIResult{
		Command: "exec",
		Results: CLIExecution{DocID: args[0], Attachment: flagAttachment, Output: out},
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, err := resolveTargetDir(flagRoot)
	if err != nil {
		return outputError("history", err)
	}
	s, err := openJournal(findRepoRoot(root), false)
	if err != nil {
		return outputError("history", err)
	}
	defer s.Close()

	if flagDocID != "" {
		changes, err := loadSymbolHistory(s, flagDocID)
		if err != nil {
			return outputError("history", err)
		}
		total := len(changes)
		return outputResult(CLIResult{Command: "history", Results: changes, TotalCount: &total})
	}

	gens, err := loadHistory(s, flagLimit)
	if err != nil {
		return outputError("history", err)
	}
	total := len(gens)
	return outputResult(CLIResult{Command: "history", Results: gens, TotalCount: &total})
}

// loadHistory reads the newest limit generations with their drained paths,
// symbol changes, and compilations.
func loadHistory(s *store.Store, limit int) ([]CLIGeneration, error) {
	gens, err := s.Generations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	out := make([]CLIGeneration, 0, len(gens))
	for _, g := range gens {
		cg := generationToCLI(g)
		if cg.Paths, err = s.PathsForGeneration(g.ID); err != nil {
			return nil, fmt.Errorf("listing paths of %s: %w", g.ID, err)
		}
		changes, err := s.SymbolChangesForGeneration(g.ID)
		if err != nil {
			return nil, fmt.Errorf("listing changes of %s: %w", g.ID, err)
		}
		for _, ch := range changes {
			cg.Changes = append(cg.Changes, CLIChange{DocID: ch.DocID, Change: ch.Change, Patch: ch.Patch})
		}
		comps, err := s.CompilationsForGeneration(g.ID)
		if err != nil {
			return nil, fmt.Errorf("listing compilations of %s: %w", g.ID, err)
		}
		for _, cmp := range comps {
			cg.Compilations = append(cg.Compilations, CLICompilation{
				Unit:        cmp.Unit,
				OK:          cmp.OK,
				DurationMS:  cmp.Duration.Milliseconds(),
				Diagnostics: cmp.Diagnostics,
			})
		}
		out = append(out, cg)
	}
	return out, nil
}

// loadSymbolHistory reads every journaled change of docID, newest first,
// with the generation that recorded it.
func loadSymbolHistory(s *store.Store, docID string) ([]CLISymbolChange, error) {
	changes, err := s.SymbolHistory(docID)
	if err != nil {
		return nil, fmt.Errorf("listing history of %s: %w", docID, err)
	}
	gens := make(map[string]*store.Generation)
	out := make([]CLISymbolChange, 0, len(changes))
	for _, ch := range changes {
		g, ok := gens[ch.GenerationID]
		if !ok {
			if g, err = s.GenerationByID(ch.GenerationID); err != nil {
				return nil, fmt.Errorf("loading generation %s: %w", ch.GenerationID, err)
			}
			gens[ch.GenerationID] = g
		}
		sc := CLISymbolChange{GenerationID: ch.GenerationID, DocID: ch.DocID, Change: ch.Change, Patch: ch.Patch}
		if g != nil {
			sc.Seq = g.Seq
			sc.StartedAt = g.StartedAt.Format(time.RFC3339)
		}
		out = append(out, sc)
	}
	return out, nil
}

// --- Output ---

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	return outputFailure(command, nil, err)
}

// outputFailure is outputError with structured results attached, such as
// the diagnostics of a failed compile.
func outputFailure(command string, results any, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		if results != nil {
			_ = outputResultText(CLIResult{Command: command, Results: results})
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Results: results,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// --- Conversions ---

func symbolToCLI(s symcache.Symbol) CLISymbol {
	return CLISymbol{
		DocID: s.DocID,
		Kind:  string(s.Kind),
		Name:  s.Name,
		Unit:  s.Unit,
		File:  s.File,
	}
}

func compileFailureToCLI(docID string, cerr *symcache.CompilationError) CLICompileFailure {
	diags := make([]string, len(cerr.Diagnostics))
	for i, d := range cerr.Diagnostics {
		diags[i] = d.String()
	}
	return CLICompileFailure{DocID: docID, Unit: cerr.Unit, Diagnostics: diags}
}

func generationToCLI(g *store.Generation) CLIGeneration {
	var dur int64
	if !g.FinishedAt.IsZero() {
		dur = g.FinishedAt.Sub(g.StartedAt).Milliseconds()
	}
	return CLIGeneration{
		ID:           g.ID,
		Seq:          g.Seq,
		Reason:       g.Reason,
		StartedAt:    g.StartedAt.Format(time.RFC3339),
		DurationMS:   dur,
		Units:        g.Units,
		Entries:      g.Entries,
		Duplicates:   g.Duplicates,
		SyncFailures: g.SyncFailures,
		Error:        g.Error,
	}
}
