package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// PreservedDir holds user data and survives every clean, merge and organize operation
const PreservedDir = "user"

// ErrNoExecutable is returned by LocateExecutable when nothing matches
var ErrNoExecutable = errors.New("no executable found")

// IsPreserved reports whether a directory entry name is the preserved user data folder
func IsPreserved(name string) bool {
	return strings.EqualFold(name, PreservedDir)
}

// BulkResult is the outcome of a best-effort operation over many entries.
// Per-entry failures are collected instead of aborting the operation.
type BulkResult struct {
	Processed int
	Failed    int
	Errors    *multierror.Error
}

func (r *BulkResult) ok() {
	r.Processed++
}

func (r *BulkResult) fail(op, path string, err error) {
	r.Failed++
	r.Errors = multierror.Append(r.Errors, fmt.Errorf("%s %s: %w", op, utils.LogPath(path), err))
	log.Warnf("%s %s failed: %v", op, utils.LogPath(path), err)
}

func (r *BulkResult) merge(other BulkResult) {
	r.Processed += other.Processed
	r.Failed += other.Failed
	if other.Errors != nil {
		r.Errors = multierror.Append(r.Errors, other.Errors.Errors...)
	}
}

// ErrorOrNil returns the collected per-entry errors, or nil when every entry succeeded
func (r BulkResult) ErrorOrNil() error {
	return r.Errors.ErrorOrNil()
}

// Gateway performs every destructive or merging filesystem operation an installer needs
// under a single preserved-folder policy
type Gateway struct {
	profile platform.Profile
}

func New(profile platform.Profile) *Gateway {
	return &Gateway{profile: profile}
}

func (g *Gateway) Profile() platform.Profile {
	return g.profile
}

// CleanInstallDirectory deletes every entry directly under path except the preserved folder.
// A missing directory is already clean.
func (g *Gateway) CleanInstallDirectory(path string) (BulkResult, error) {
	var result BulkResult
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", utils.LogPath(path), err)
	}

	for _, entry := range entries {
		if IsPreserved(entry.Name()) {
			log.Debugf("Keeping %s", utils.LogPath(filepath.Join(path, entry.Name())))
			continue
		}
		target := filepath.Join(path, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			result.fail("delete", target, err)
			continue
		}
		result.ok()
	}
	return result, nil
}

// MergeDirectory copies every entry of source into target, creating target when absent.
// A preserved folder already present in target is never written to.
func (g *Gateway) MergeDirectory(source, target string) (BulkResult, error) {
	return g.copyTree(source, target, true)
}

// CopyDirectoryRecursive deep-copies source into target with the same per-entry
// fault tolerance as MergeDirectory, but without the preserved-folder policy.
func (g *Gateway) CopyDirectoryRecursive(source, target string) (BulkResult, error) {
	return g.copyTree(source, target, false)
}

func (g *Gateway) copyTree(source, target string, preserve bool) (BulkResult, error) {
	var result BulkResult
	info, err := os.Stat(source)
	if err != nil {
		return result, fmt.Errorf("source %s: %w", utils.LogPath(source), err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("source %s is not a directory", utils.LogPath(source))
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return result, fmt.Errorf("failed to create %s: %w", utils.LogPath(target), err)
	}

	skipPreserved := preserve && hasPreserved(target)

	walkErr := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.fail("read", path, err)
			if d != nil && d.IsDir() && path != source {
				return filepath.SkipDir
			}
			return nil
		}
		if path == source {
			return nil
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			result.fail("copy", path, err)
			return nil
		}
		if skipPreserved && isTopLevelPreserved(rel) {
			log.Debugf("Not overwriting %s in %s", rel, utils.LogPath(target))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dest := filepath.Join(target, rel)
		if err := copyEntry(path, dest, d); err != nil {
			result.fail("copy", path, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		result.ok()
		return nil
	})
	if walkErr != nil {
		return result, walkErr
	}
	return result, nil
}

func isTopLevelPreserved(rel string) bool {
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return IsPreserved(first)
}

func hasPreserved(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return lo.ContainsBy(entries, func(e fs.DirEntry) bool { return IsPreserved(e.Name()) })
}

func copyEntry(src, dest string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dest)
		return os.Symlink(link, dest)
	case info.IsDir():
		if existing, err := os.Lstat(dest); err == nil && !existing.IsDir() {
			if err := os.Remove(dest); err != nil {
				return err
			}
		}
		return os.MkdirAll(dest, info.Mode().Perm()|0700)
	default:
		return CopyFile(src, dest, info.Mode().Perm())
	}
}

// CopyFile copies a single regular file, replacing dest
func CopyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if existing, err := os.Lstat(dest); err == nil && existing.IsDir() {
		return fmt.Errorf("%s is a directory", utils.LogPath(dest))
	}
	_ = os.Remove(dest)

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, mode)
}

// Move renames src to dest, falling back to copy and delete across filesystems
func (g *Gateway) Move(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		result, err := g.CopyDirectoryRecursive(src, dest)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("failed to move %s: %w", utils.LogPath(src), result.ErrorOrNil())
		}
	} else if err := CopyFile(src, dest, info.Mode().Perm()); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// MoveContents moves every entry of src into dest, replacing entries of the same name.
// The preserved folder in dest is never replaced.
func (g *Gateway) MoveContents(src, dest string) (BulkResult, error) {
	var result BulkResult
	entries, err := os.ReadDir(src)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", utils.LogPath(src), err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return result, fmt.Errorf("failed to create %s: %w", utils.LogPath(dest), err)
	}
	skipPreserved := hasPreserved(dest)

	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		if skipPreserved && IsPreserved(entry.Name()) {
			log.Warnf("Skipping %s: %s already exists in %s", utils.LogPath(from), PreservedDir, utils.LogPath(dest))
			continue
		}
		to := filepath.Join(dest, entry.Name())
		if _, err := os.Lstat(to); err == nil {
			if err := os.RemoveAll(to); err != nil {
				result.fail("replace", to, err)
				continue
			}
		}
		if err := g.Move(from, to); err != nil {
			result.fail("move", from, err)
			continue
		}
		result.ok()
	}
	return result, nil
}

// EnsurePreserved creates the preserved folder under dir unless one (of any case) exists
func (g *Gateway) EnsurePreserved(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if existing, ok := lo.Find(entries, func(e fs.DirEntry) bool { return IsPreserved(e.Name()) }); ok {
		return filepath.Join(dir, existing.Name()), nil
	}
	path := filepath.Join(dir, PreservedDir)
	return path, os.MkdirAll(path, 0755)
}

// Candidates returns every file under root accepted by predicate, sorted by path.
// The preserved folder is never searched.
func (g *Gateway) Candidates(root string, predicate func(rel string, info fs.FileInfo) bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warnf("Skipping unreadable %s: %v", utils.LogPath(path), err)
			return nil
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if IsPreserved(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if predicate(rel, info) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// LocateExecutable walks root and selects one executable: an exact match on the first
// preferred name wins, then any preferred name, then the first candidate whose name does
// not contain "cmd" or "cli", then the first candidate.
func (g *Gateway) LocateExecutable(root string, predicate func(rel string, info fs.FileInfo) bool, preferred ...string) (string, error) {
	candidates, err := g.Candidates(root, predicate)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoExecutable, utils.LogPath(root))
	}
	return SelectExecutable(candidates, preferred...), nil
}

// FindInstalledExecutable locates the Eden executable of an install directory using the
// host profile's patterns and conventional names
func (g *Gateway) FindInstalledExecutable(dir, channelBinary string) (string, error) {
	return g.LocateExecutable(dir, func(rel string, info fs.FileInfo) bool {
		return g.profile.IsExecutable(rel) && g.IsExecutable(filepath.Join(dir, rel))
	}, g.profile.ExecutableNames(channelBinary)...)
}

// SelectExecutable applies the executable selection policy to sorted candidates
func SelectExecutable(candidates []string, preferred ...string) string {
	for _, name := range preferred {
		if match, ok := lo.Find(candidates, func(c string) bool { return filepath.Base(c) == name }); ok {
			return match
		}
	}
	if match, ok := lo.Find(candidates, func(c string) bool {
		base := strings.ToLower(filepath.Base(c))
		return !strings.Contains(base, "cmd") && !strings.Contains(base, "cli")
	}); ok {
		return match
	}
	return candidates[0]
}

// SetExecutable sets the executable bit. Hosts without a permission bit succeed without change.
func (g *Gateway) SetExecutable(path string) error {
	if !g.profile.ExecBit {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0755)
}

// SetExecutableRecursive marks every file accepted by match as executable and
// normalizes directories to 755
func (g *Gateway) SetExecutableRecursive(root string, match func(rel string) bool) (BulkResult, error) {
	var result BulkResult
	if !g.profile.ExecBit {
		return result, nil
	}
	if _, err := os.Stat(root); err != nil {
		return result, err
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.fail("chmod", path, err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if path != root && IsPreserved(rel) {
				return filepath.SkipDir
			}
			if err := os.Chmod(path, 0755); err != nil {
				result.fail("chmod", path, err)
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 || !match(rel) {
			return nil
		}
		if err := g.SetExecutable(path); err != nil {
			result.fail("chmod", path, err)
			return nil
		}
		result.ok()
		return nil
	})
	return result, err
}

// IsExecutable reports whether path is a regular file the host can execute
func (g *Gateway) IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	if !g.profile.ExecBit {
		return true
	}
	return info.Mode()&0111 != 0
}
