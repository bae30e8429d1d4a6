package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jward/symcache/internal/workspace"
)

// Command runs an external front end once per unit. The process receives
// the unit through the {unit}, {name}, and {path} placeholders in Args and
// must print a JSON-encoded Output on stdout. A non-zero exit without valid
// JSON is reported as an error diagnostic, not as a Go error.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// ParseCommand splits a command line on whitespace into a Command.
func ParseCommand(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("compiler: empty command")
	}
	return &Command{Name: fields[0], Args: fields[1:], Timeout: 2 * time.Minute}, nil
}

// Compile runs the command for unit.
func (c *Command) Compile(ctx context.Context, unit *workspace.Unit) (*Output, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	r := strings.NewReplacer("{unit}", unit.ID, "{name}", unit.Name, "{path}", unit.Path)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("compiler: %s: %w", c.Name, ctx.Err())
	}

	var out Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		if runErr == nil {
			return nil, fmt.Errorf("compiler: %s: decode output: %w", c.Name, err)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("compiler: %s: %w", c.Name, runErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return &Output{Diagnostics: []Diagnostic{{
			Severity: SeverityError,
			Message:  msg,
			Path:     unit.Path,
		}}}, nil
	}
	return &out, nil
}
