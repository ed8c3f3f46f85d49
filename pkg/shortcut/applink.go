package shortcut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppLink symlinks an installed .app bundle into a user Applications folder
type AppLink struct {
	Dir string
}

func (a *AppLink) Path(s Shortcut) string {
	return filepath.Join(a.Dir, s.Name+".app")
}

func (a *AppLink) Create(_ context.Context, s Shortcut) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	bundle := BundleOf(s.Executable)
	if bundle == "" {
		return "", fmt.Errorf("%s is not inside an application bundle", s.Executable)
	}
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return "", err
	}

	link := a.Path(s)
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return "", fmt.Errorf("%s already exists and is not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return "", err
		}
	}
	if err := os.Symlink(bundle, link); err != nil {
		return "", fmt.Errorf("failed to link %s: %w", link, err)
	}
	return link, nil
}

func (a *AppLink) Remove(_ context.Context, s Shortcut) error {
	link := a.Path(s)
	info, err := os.Lstat(link)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("refusing to remove %s: not a symlink", link)
	}
	return os.Remove(link)
}

// BundleOf returns the enclosing X.app directory of a path, or "" if there is none
func BundleOf(path string) string {
	for dir := path; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if strings.HasSuffix(strings.ToLower(dir), ".app") {
			return dir
		}
	}
	return ""
}
