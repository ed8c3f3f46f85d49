// Package shortcut registers launcher entries for an installed channel: a freedesktop
// .desktop file on Linux, an ~/Applications symlink on macOS and a desktop .lnk on Windows.
package shortcut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/types"
)

// Shortcut describes the entry to register
type Shortcut struct {
	Channel    types.Channel
	Name       string
	Executable string
	WorkingDir string
	Icon       string
}

// NewShortcut fills in the display name and working directory for a channel's executable
func NewShortcut(ch types.Channel, productName, executable string) Shortcut {
	name := productName
	if ch == types.ChannelNightly {
		name += " Nightly"
	}
	return Shortcut{
		Channel:    ch,
		Name:       name,
		Executable: executable,
		WorkingDir: filepath.Dir(executable),
	}
}

// Registrar creates and removes launcher entries
type Registrar interface {
	// Create registers the shortcut and returns the path of the created entry
	Create(ctx context.Context, s Shortcut) (string, error)
	Remove(ctx context.Context, s Shortcut) error
}

type options struct {
	home   string
	runner shell.Runner
}

type Option func(*options)

// WithHomeDir roots every registrar under dir instead of the user's home
func WithHomeDir(dir string) Option {
	return func(o *options) { o.home = dir }
}

func WithRunner(r shell.Runner) Option {
	return func(o *options) { o.runner = r }
}

// ForProfile returns the registrar of a host. Package-based hosts have none.
func ForProfile(profile platform.Profile, opts ...Option) (Registrar, bool) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.home == "" {
		o.home, _ = os.UserHomeDir()
	}
	if o.runner == nil {
		o.runner = shell.NewExecRunner(0)
	}

	switch {
	case profile.PackageBased:
		return nil, false
	case profile.Platform.IsWindows():
		return &WindowsLink{Home: o.home}, true
	case profile.Platform.IsDarwin():
		return &AppLink{Dir: filepath.Join(o.home, "Applications")}, true
	default:
		return &DesktopEntry{Dir: filepath.Join(o.home, ".local", "share", "applications"), runner: o.runner}, true
	}
}

func fileName(s Shortcut) string {
	return "eden-" + strings.ToLower(string(s.Channel))
}

func validate(s Shortcut) error {
	if s.Executable == "" {
		return fmt.Errorf("shortcut %q has no executable", s.Name)
	}
	if _, err := os.Stat(s.Executable); err != nil {
		return fmt.Errorf("shortcut target: %w", err)
	}
	return nil
}
