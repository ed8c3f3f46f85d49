package installer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/utils"
	log "github.com/sirupsen/logrus"
)

// maxBundleDistance is how far a bundle name may be from the product name and still match
const maxBundleDistance = 2

type bundleCandidate struct {
	path     string
	name     string
	depth    int
	exact    bool
	distance int
}

// FindBundle searches root, at most maxDepth directories deep, for the .app bundle that best
// matches productName. An exact name beats a closer one, then a shorter name, then a shallower path.
func FindBundle(root, productName string, maxDepth int) (string, error) {
	product := strings.ToLower(productName)
	var candidates []bundleCandidate

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable volume metadata such as .Trashes
			if path != root {
				log.Debugf("Skipping %s: %v", utils.LogPath(path), err)
				return nil
			}
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(filepath.ToSlash(rel), "/") + 1
		if !strings.EqualFold(filepath.Ext(d.Name()), ".app") {
			if depth >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		name := strings.ToLower(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
		c := bundleCandidate{
			path:     path,
			name:     name,
			depth:    depth,
			exact:    name == product,
			distance: levenshtein.ComputeDistance(name, product),
		}
		if c.exact || strings.Contains(name, product) || c.distance <= maxBundleDistance {
			candidates = append(candidates, c)
		} else {
			log.Debugf("Ignoring bundle %s", d.Name())
		}
		// bundles are never searched for nested bundles
		return filepath.SkipDir
	})
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no %s application bundle found in %s", productName, utils.LogPath(root))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if len(a.name) != len(b.name) {
			return len(a.name) < len(b.name)
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.path < b.path
	})
	return candidates[0].path, nil
}

// ValidateBundle checks the minimal structure of a macOS application bundle
func ValidateBundle(gw *filesystem.Gateway, bundle string) error {
	macos := filepath.Join(bundle, "Contents", "MacOS")
	if info, err := os.Stat(filepath.Join(bundle, "Contents")); err != nil || !info.IsDir() {
		return fmt.Errorf("%s has no Contents directory", filepath.Base(bundle))
	}
	entries, err := os.ReadDir(macos)
	if err != nil {
		return fmt.Errorf("%s has no Contents/MacOS directory", filepath.Base(bundle))
	}
	for _, e := range entries {
		if e.Type().IsRegular() && gw.IsExecutable(filepath.Join(macos, e.Name())) {
			return nil
		}
	}
	return fmt.Errorf("%s contains no executable in Contents/MacOS", filepath.Base(bundle))
}
