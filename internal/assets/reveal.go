package assets

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
)

// Revealer shows an existing file to the user, e.g. in the system file manager.
type Revealer interface {
	Reveal(ctx context.Context, path string) error
}

// RevealerFunc adapts a function to Revealer.
type RevealerFunc func(ctx context.Context, path string) error

// Reveal calls f.
func (f RevealerFunc) Reveal(ctx context.Context, path string) error { return f(ctx, path) }

// LogRevealer only logs the path. Used for headless runs.
type LogRevealer struct {
	Logger *zap.Logger
}

// Reveal logs path at info level.
func (r LogRevealer) Reveal(_ context.Context, path string) error {
	if r.Logger != nil {
		r.Logger.Info("Asset already present", zap.String("path", path))
	}
	return nil
}

// ShellRevealer opens the containing folder with the platform file manager.
type ShellRevealer struct{}

// Reveal starts the file manager and does not wait for it. The process outlives ctx.
func (ShellRevealer) Reveal(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,"+path)
	default:
		cmd = exec.Command("xdg-open", filepath.Dir(path))
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
