package installer

import (
	"context"
	"os"

	"github.com/flanksource/eden-updater/pkg/diskimage"
	"github.com/flanksource/eden-updater/pkg/utils"
	log "github.com/sirupsen/logrus"
)

type mount struct {
	mounter diskimage.Mounter
	root    string
}

// CleanupManager handles temporary file cleanup and mounted images with debug logic
type CleanupManager struct {
	debug       bool
	files       []string
	directories []string
	mounts      []mount
	logger      *log.Entry
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(debug bool, logger *log.Entry) *CleanupManager {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &CleanupManager{
		debug:       debug,
		logger:      logger,
		files:       make([]string, 0),
		directories: make([]string, 0),
	}
}

// AddFile adds a file to be cleaned up
func (cm *CleanupManager) AddFile(filepath string) {
	if filepath != "" {
		cm.files = append(cm.files, filepath)
	}
}

// AddDirectory adds a directory to be cleaned up
func (cm *CleanupManager) AddDirectory(dirpath string) {
	if dirpath != "" {
		cm.directories = append(cm.directories, dirpath)
	}
}

// AddMount registers a mounted image to be detached
func (cm *CleanupManager) AddMount(m diskimage.Mounter, root string) {
	if root != "" {
		cm.mounts = append(cm.mounts, mount{mounter: m, root: root})
	}
}

// Pending reports whether anything is left to clean up
func (cm *CleanupManager) Pending() bool {
	return len(cm.files)+len(cm.directories)+len(cm.mounts) > 0
}

// Cleanup detaches every mount, then removes temporary paths unless debugging.
// Each registration is processed once; later calls only see new registrations.
func (cm *CleanupManager) Cleanup(ctx context.Context) {
	// mounts are released even in debug mode, a held image blocks the next install
	for _, m := range cm.mounts {
		if err := m.mounter.Unmount(ctx, m.root); err != nil {
			cm.logger.Warnf("Failed to unmount %s: %v", utils.LogPath(m.root), err)
		}
	}
	cm.mounts = nil

	if cm.debug {
		for _, path := range append(cm.files, cm.directories...) {
			cm.logger.Debugf("Install: keeping temporary files for debugging: %s", path)
		}
		cm.files, cm.directories = nil, nil
		return
	}

	// Clean up directories first (they may contain files)
	for _, dir := range cm.directories {
		if err := os.RemoveAll(dir); err != nil {
			cm.logger.Warnf("Failed to clean up directory %s: %v", utils.LogPath(dir), err)
		}
	}

	for _, file := range cm.files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			cm.logger.Warnf("Failed to clean up file %s: %v", utils.LogPath(file), err)
		}
	}
	cm.files, cm.directories = nil, nil
}
