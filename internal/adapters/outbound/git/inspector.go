package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

const defaultTimeout = 10 * time.Second

type inspector struct {
	logger  *slog.Logger
	dir     string
	binary  string
	timeout time.Duration
}

// New creates a repository inspector that shells out to the git binary.
func New(logger *slog.Logger, dir string, timeout time.Duration) supervisor.RepoInspector {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &inspector{
		logger:  logger.With("component", "git", "dir", dir),
		dir:     dir,
		binary:  "git",
		timeout: timeout,
	}
}

var _ supervisor.RepoInspector = (*inspector)(nil)

// Inspect returns the branch, short commit and working tree state.
// On failure the returned state carries whatever was read before the error.
func (i *inspector) Inspect(ctx context.Context) (supervisor.RepoState, error) {
	var state supervisor.RepoState

	branch, err := i.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return state, fmt.Errorf("read branch: %w", err)
	}

	state.Branch = branch

	commit, err := i.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return state, fmt.Errorf("read commit: %w", err)
	}

	state.CommitShort = commit

	status, err := i.run(ctx, "status", "--porcelain=v1")
	if err != nil {
		return state, fmt.Errorf("read status: %w", err)
	}

	state.WorkingTree, state.ConflictFiles = parsePorcelain(status)

	i.logger.DebugContext(ctx, "repository inspected",
		"branch", state.Branch,
		"commit", state.CommitShort,
		"tree", state.WorkingTree,
	)

	return state, nil
}

func (i *inspector) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	//nolint:gosec // fixed binary, arguments built here
	// --no-optional-locks keeps status from refreshing .git/index, which would wake the HEAD watcher.
	cmd := exec.CommandContext(ctx, i.binary, append([]string{"--no-optional-locks", "-C", i.dir}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}

		return "", fmt.Errorf("git %s: %w", args[0], err)
	}

	return strings.TrimRight(stdout.String(), "\n"), nil
}
