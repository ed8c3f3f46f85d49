package shortcut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/shell"
	log "github.com/sirupsen/logrus"
)

// DesktopEntry writes freedesktop.org .desktop files
type DesktopEntry struct {
	Dir    string
	runner shell.Runner
}

func (d *DesktopEntry) Path(s Shortcut) string {
	return filepath.Join(d.Dir, fileName(s)+".desktop")
}

func (d *DesktopEntry) Create(ctx context.Context, s Shortcut) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", err
	}
	path := d.Path(s)
	if err := os.WriteFile(path, []byte(renderDesktopEntry(s)), 0755); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	d.refresh(ctx)
	return path, nil
}

func (d *DesktopEntry) Remove(ctx context.Context, s Shortcut) error {
	if err := os.Remove(d.Path(s)); err != nil && !os.IsNotExist(err) {
		return err
	}
	d.refresh(ctx)
	return nil
}

// refresh updates the desktop database when the tool is available
func (d *DesktopEntry) refresh(ctx context.Context) {
	if d.runner == nil {
		return
	}
	if _, err := d.runner.Run(ctx, "update-desktop-database", d.Dir); err != nil {
		log.Debugf("update-desktop-database: %v", err)
	}
}

func renderDesktopEntry(s Shortcut) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", s.Name)
	b.WriteString("Comment=Nintendo Switch emulator\n")
	fmt.Fprintf(&b, "Exec=%s %%f\n", quoteExec(s.Executable))
	if s.WorkingDir != "" {
		fmt.Fprintf(&b, "Path=%s\n", s.WorkingDir)
	}
	if s.Icon != "" {
		fmt.Fprintf(&b, "Icon=%s\n", s.Icon)
	}
	b.WriteString("Terminal=false\n")
	b.WriteString("Categories=Game;Emulator;\n")
	return b.String()
}

// quoteExec quotes an Exec argument containing characters reserved by the freedesktop Exec key
func quoteExec(path string) string {
	if !strings.ContainsAny(path, " \t\"'\\`$") {
		return path
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(path) + `"`
}
