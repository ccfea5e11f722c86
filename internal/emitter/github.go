package emitter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yairfalse/lambdaterm/types"
)

// GitHubOutput appends outputs to the file named by GITHUB_OUTPUT
type GitHubOutput struct {
	path      string
	mu        sync.Mutex
	delimiter func() string
}

// NewGitHubOutput fails with a ConfigError when path is empty
func NewGitHubOutput(path string) (*GitHubOutput, error) {
	if path == "" {
		return nil, &types.ConfigError{Field: "GITHUB_OUTPUT", Reason: "output file path is not set"}
	}
	return &GitHubOutput{
		path:      path,
		delimiter: func() string { return "ghadelimiter_" + uuid.NewString() },
	}, nil
}

// Path returns the output file path
func (g *GitHubOutput) Path() string {
	return g.path
}

// Emit appends one line per output. Multi-line values use the heredoc form.
func (g *GitHubOutput) Emit(_ context.Context, outputs ...Output) error {
	if len(outputs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, o := range outputs {
		if err := g.format(&buf, o); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := os.OpenFile(g.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302 G304 -- runner-owned file
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

func (g *GitHubOutput) format(buf *bytes.Buffer, o Output) error {
	if o.Key == "" || strings.ContainsAny(o.Key, "=\n") {
		return fmt.Errorf("invalid output key %q", o.Key)
	}

	if !strings.Contains(o.Value, "\n") {
		fmt.Fprintf(buf, "%s=%s\n", o.Key, o.Value)
		return nil
	}

	delim := g.delimiter()
	if strings.Contains(o.Value, delim) {
		return fmt.Errorf("output %q value contains delimiter", o.Key)
	}
	fmt.Fprintf(buf, "%s<<%s\n%s\n%s\n", o.Key, delim, o.Value, delim)
	return nil
}

// Close is a no-op; the file is reopened on every Emit
func (g *GitHubOutput) Close() error {
	return nil
}
