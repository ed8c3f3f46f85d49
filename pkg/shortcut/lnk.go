package shortcut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WindowsLink creates a .lnk on the user's desktop
type WindowsLink struct {
	Home string
}

// DesktopDir returns the desktop folder, preferring a OneDrive redirected one when the local one is missing
func (w *WindowsLink) DesktopDir() (string, error) {
	for _, dir := range []string{
		filepath.Join(w.Home, "Desktop"),
		filepath.Join(w.Home, "OneDrive", "Desktop"),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("desktop directory not found under %s", w.Home)
}

func (w *WindowsLink) Path(s Shortcut) (string, error) {
	desktop, err := w.DesktopDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(desktop, s.Name+".lnk"), nil
}

func (w *WindowsLink) Create(_ context.Context, s Shortcut) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	path, err := w.Path(s)
	if err != nil {
		return "", err
	}
	if err := createLink(path, s); err != nil {
		return "", err
	}
	return path, nil
}

func (w *WindowsLink) Remove(_ context.Context, s Shortcut) error {
	path, err := w.Path(s)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
