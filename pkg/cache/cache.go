package cache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/filesystem"
)

// GetCachePath generates a cache path for a download URL and filename
// Format: {cacheDir}/{url-hash}/{filename}
func GetCachePath(cacheDir, url, filename string) string {
	if cacheDir == "" {
		return ""
	}

	// Hash the URL to avoid path length issues
	return filepath.Join(cacheDir, hashURL(url), filename)
}

// IsCached returns the cache path and true if the artifact downloaded from url is kept
func IsCached(cacheDir, url, filename string) (string, bool) {
	if cacheDir == "" {
		return "", false
	}

	cachePath := GetCachePath(cacheDir, url, filename)
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, true
	}
	return "", false
}

// SaveToCache keeps a copy of a downloaded artifact, keyed by the URL it came from.
// Artifacts without a URL are keyed by their own path.
func SaveToCache(cacheDir, url, sourcePath string) (string, error) {
	if cacheDir == "" {
		return "", nil // Caching disabled
	}
	if url == "" {
		url = sourcePath
	}

	cachePath := GetCachePath(cacheDir, url, filepath.Base(sourcePath))
	if cachePath == sourcePath {
		return cachePath, nil
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", err
	}
	if err := filesystem.CopyFile(sourcePath, cachePath, info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to copy to cache: %w", err)
	}
	return cachePath, nil
}

// hashURL creates a short hash of a URL for directory naming
func hashURL(url string) string {
	// Normalize URL by removing protocol and trailing slashes
	normalized := strings.TrimPrefix(url, "https://")
	normalized = strings.TrimPrefix(normalized, "http://")
	normalized = strings.TrimSuffix(normalized, "/")

	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash[:8])
}
