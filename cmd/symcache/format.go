package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOC ID\tKIND\tUNIT\tFILE")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.DocID, s.Kind, s.Unit, s.File)
	}
	tw.Flush()
}

// formatTextBlock writes text followed by a newline unless it already ends
// with one.
func formatTextBlock(w io.Writer, text string) {
	fmt.Fprint(w, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(w)
	}
}

// formatCompileFailureText lists the error diagnostics of a failed unit.
func formatCompileFailureText(w io.Writer, f CLICompileFailure) {
	fmt.Fprintf(w, "Compilation of %s failed:\n", f.Unit)
	for _, d := range f.Diagnostics {
		fmt.Fprintf(w, "  %s\n", d)
	}
}

// formatHistoryText formats journaled generations as readable text.
func formatHistoryText(w io.Writer, gens []CLIGeneration) {
	for i, g := range gens {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Generation %d (%s) %s\n", g.Seq, g.Reason, g.ID)
		fmt.Fprintf(w, "Started: %s (%dms)\n", g.StartedAt, g.DurationMS)
		if g.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", g.Error)
			continue
		}
		fmt.Fprintf(w, "Units: %d  Symbols: %d  Duplicates: %d  Sync failures: %d\n",
			g.Units, g.Entries, g.Duplicates, g.SyncFailures)

		if len(g.Paths) > 0 {
			fmt.Fprintln(w, "Changed paths:")
			for _, p := range g.Paths {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
		if len(g.Changes) > 0 {
			fmt.Fprintln(w, "Symbol changes:")
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			for _, ch := range g.Changes {
				fmt.Fprintf(tw, "  %s\t%s\n", ch.Change, ch.DocID)
			}
			tw.Flush()
		}
		if len(g.Compilations) > 0 {
			fmt.Fprintln(w, "Compilations:")
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			for _, c := range g.Compilations {
				status := "ok"
				if !c.OK {
					status = "failed"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%dms\n", c.Unit, status, c.DurationMS)
			}
			tw.Flush()
		}
	}
}

// formatSymbolHistoryText lists the changes of one symbol, each followed by
// its patch.
func formatSymbolHistoryText(w io.Writer, changes []CLISymbolChange) {
	for i, ch := range changes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Generation %d %s: %s %s\n", ch.Seq, ch.StartedAt, ch.Change, ch.DocID)
		if ch.Patch != "" {
			formatTextBlock(w, ch.Patch)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	return writeResultText(os.Stdout, result)
}

func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLIFragment:
		formatTextBlock(w, v.Text)
	case CLIExecution:
		formatTextBlock(w, v.Output)
	case CLICompileFailure:
		formatCompileFailureText(w, v)
	case []CLIGeneration:
		formatHistoryText(w, v)
	case []CLISymbolChange:
		formatSymbolHistoryText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	if result.TotalCount != nil {
		if _, ok := result.Results.([]CLISymbol); ok {
			fmt.Fprintf(w, "\n%d symbols\n", *result.TotalCount)
		}
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
