package diagram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrCLINotFound = errors.New("mermaid CLI (mmdc) not found")

// CLI compiles diagrams with a local mermaid-cli binary.
type CLI struct {
	path string
}

func NewCLI(path string) *CLI {
	if path == "" {
		path = "mmdc"
	}
	return &CLI{path: path}
}

func (c *CLI) Compile(ctx context.Context, source string) ([]byte, error) {
	bin, err := exec.LookPath(c.path)
	if err != nil {
		return nil, ErrCLINotFound
	}

	dir, err := os.MkdirTemp("", "tutorbook-mmdc-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	in := filepath.Join(dir, "diagram.mmd")
	out := filepath.Join(dir, "diagram.svg")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin,
		"--quiet",
		"--input", in,
		"--output", out,
		"--backgroundColor", "transparent",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// Keep stderr small; mmdc can dump whole stack traces.
	var stderrBuf strings.Builder
	s := bufio.NewScanner(stderr)
	for s.Scan() {
		if stderrBuf.Len() < 4096 {
			stderrBuf.WriteString(s.Text())
			stderrBuf.WriteByte('\n')
		}
	}

	if err := cmd.Wait(); err != nil {
		if sErr := strings.TrimSpace(stderrBuf.String()); sErr != "" {
			return nil, fmt.Errorf("mmdc failed: %s", sErr)
		}
		return nil, err
	}
	return os.ReadFile(out)
}
