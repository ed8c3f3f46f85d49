package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// RelativePath converts an absolute path to a relative path from the current working directory
func RelativePath(absPath string) string {
	if absPath == "" {
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Base(absPath)
	}

	relPath, err := filepath.Rel(cwd, absPath)
	if err != nil {
		return filepath.Base(absPath)
	}

	// If relative path is longer than original, keep the absolute one
	if len(relPath) > len(absPath) {
		return absPath
	}

	return relPath
}

// LogPath returns a clean path for logging (relative if shorter, absolute otherwise)
func LogPath(path string) string {
	if path == "" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.Base(path)
	}

	return RelativePath(absPath)
}

// FormatFileInfo returns a formatted string with file size and permissions
func FormatFileInfo(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return filepath.Base(path)
	}

	if info.IsDir() {
		return fmt.Sprintf("%s (dir)", filepath.Base(path))
	}

	return fmt.Sprintf("%s (%s, %o)", filepath.Base(path), FormatBytes(info.Size()), info.Mode()&0777)
}

// FormatBytes formats bytes into human-readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// LogOperation executes a function and logs start/completion in a unified way
func LogOperation(operation, target string, fn func() error) error {
	log.Debugf("%s %s...", operation, LogPath(target))

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		log.Debugf("%s %s failed: %v", operation, LogPath(target), err)
		return err
	}

	if duration > 500*time.Millisecond {
		log.Debugf("%s %s completed (%v)", operation, LogPath(target), duration.Round(10*time.Millisecond))
	} else {
		log.Debugf("%s %s completed", operation, LogPath(target))
	}
	return nil
}
