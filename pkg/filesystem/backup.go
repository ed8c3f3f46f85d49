package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/eden-updater/pkg/utils"
	log "github.com/sirupsen/logrus"
)

// Backup is a live install directory moved aside while a new install populates it
type Backup struct {
	// Live is the install directory being replaced
	Live string
	// Path is where the previous contents were moved, empty when Live did not exist
	Path string
	// preserved is the name of the user folder carried over, if any
	preserved string
}

// Existed reports whether there was a previous install to restore
func (b *Backup) Existed() bool {
	return b.Path != ""
}

// BackupDirectory moves dir aside to "<dir>.backup-<id>" and recreates it empty except for
// the preserved folder, which is moved back in place untouched.
func (g *Gateway) BackupDirectory(dir, id string) (*Backup, error) {
	b := &Backup{Live: dir}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return b, os.MkdirAll(dir, 0755)
	} else if err != nil {
		return nil, err
	}

	b.Path = fmt.Sprintf("%s.backup-%s", dir, id)
	if err := os.Rename(dir, b.Path); err != nil {
		return nil, fmt.Errorf("failed to back up %s: %w", utils.LogPath(dir), err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		_ = os.Rename(b.Path, dir)
		return nil, fmt.Errorf("failed to recreate %s: %w", utils.LogPath(dir), err)
	}

	entries, err := os.ReadDir(b.Path)
	if err != nil {
		if rbErr := b.rollbackRename(); rbErr != nil {
			log.Warnf("Failed to undo backup of %s: %v", utils.LogPath(dir), rbErr)
		}
		return nil, fmt.Errorf("failed to read backup %s: %w", utils.LogPath(b.Path), err)
	}
	for _, entry := range entries {
		if !IsPreserved(entry.Name()) {
			continue
		}
		if err := os.Rename(filepath.Join(b.Path, entry.Name()), filepath.Join(dir, entry.Name())); err != nil {
			if rbErr := b.rollbackRename(); rbErr != nil {
				log.Warnf("Failed to undo backup of %s: %v", utils.LogPath(dir), rbErr)
			}
			return nil, fmt.Errorf("failed to carry %s over: %w", entry.Name(), err)
		}
		b.preserved = entry.Name()
	}
	log.Debugf("Backed up %s to %s", utils.LogPath(dir), utils.LogPath(b.Path))
	return b, nil
}

func (b *Backup) rollbackRename() error {
	if err := os.Remove(b.Live); err != nil {
		return err
	}
	return os.Rename(b.Path, b.Live)
}

// Restore puts the backed up contents back, leaving a carried over preserved folder exactly as it is.
// A preserved folder that only appeared during the failed run is removed along with everything else,
// and when there was no previous install the directory is removed again.
func (g *Gateway) Restore(b *Backup) error {
	if _, err := g.CleanInstallDirectory(b.Live); err != nil {
		return err
	}

	if !b.Existed() {
		removeCreatedPreserved(b.Live, b.preserved)
		if err := os.Remove(b.Live); err != nil && !os.IsNotExist(err) {
			log.Debugf("Leaving %s in place: %v", utils.LogPath(b.Live), err)
		}
		return nil
	}

	removeCreatedPreserved(b.Live, b.preserved)
	result, err := g.MoveContents(b.Path, b.Live)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("failed to restore %s: %w", utils.LogPath(b.Live), result.ErrorOrNil())
	}
	if err := os.Remove(b.Path); err != nil {
		log.Warnf("Failed to remove backup %s: %v", utils.LogPath(b.Path), err)
	}
	log.Debugf("Restored %s from %s", utils.LogPath(b.Live), utils.LogPath(b.Path))
	return nil
}

// removeCreatedPreserved drops a user folder that did not exist before the failed run,
// whether it came from the new payload or from portable setup
func removeCreatedPreserved(dir, existing string) {
	if existing != "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !IsPreserved(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warnf("Failed to remove %s left by the failed install: %v", utils.LogPath(path), err)
		}
	}
}

// Discard deletes the backed up contents after a successful install
func (g *Gateway) Discard(b *Backup) {
	if !b.Existed() {
		return
	}
	result, err := g.CleanInstallDirectory(b.Path)
	if err != nil {
		log.Warnf("Failed to discard backup %s: %v", utils.LogPath(b.Path), err)
		return
	}
	if result.Failed > 0 {
		return
	}
	if err := os.Remove(b.Path); err != nil {
		log.Warnf("Failed to remove backup %s: %v", utils.LogPath(b.Path), err)
	}
}
