package installer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/utils"
	log "github.com/sirupsen/logrus"
)

// payloadRoot finds the directory inside an extracted archive that holds the emulator.
// Wrapper folders are descended; when several sub-folders compete, the one with the most
// recognizable runtime files wins and the rest are discarded.
func payloadRoot(gw *filesystem.Gateway, profile platform.Profile, staging string) string {
	dir := staging
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return dir
		}
		if holdsPayload(profile, entries) {
			return dir
		}

		var subdirs []string
		for _, e := range entries {
			if e.IsDir() && !filesystem.IsPreserved(e.Name()) {
				subdirs = append(subdirs, e.Name())
			}
		}
		if len(subdirs) == 0 {
			return dir
		}
		sort.Strings(subdirs)

		best, bestCount := "", 0
		for _, name := range subdirs {
			files, err := gw.Candidates(filepath.Join(dir, name), func(rel string, info fs.FileInfo) bool {
				return profile.IsRuntimeFile(rel)
			})
			if err != nil {
				log.Debugf("Failed to scan %s: %v", name, err)
				continue
			}
			if len(files) > bestCount {
				best, bestCount = name, len(files)
			}
		}
		if best == "" {
			// nothing recognizable below, a lone wrapper folder is still unwrapped
			if len(subdirs) == 1 && len(entries) == 1 {
				dir = filepath.Join(dir, subdirs[0])
				continue
			}
			return dir
		}
		for _, name := range subdirs {
			if name != best {
				log.Debugf("Discarding %s from %s", name, utils.LogPath(dir))
			}
		}
		dir = filepath.Join(dir, best)
	}
}

// holdsPayload reports whether the entries are the emulator itself rather than a wrapper
func holdsPayload(profile platform.Profile, entries []os.DirEntry) bool {
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() {
			if strings.HasSuffix(name, ".app") {
				return true
			}
			continue
		}
		if profile.IsRuntimeFile(name) {
			return true
		}
	}
	return false
}
