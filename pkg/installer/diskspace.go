package installer

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flanksource/eden-updater/pkg/extract"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/shirou/gopsutil/v3/disk"
	log "github.com/sirupsen/logrus"
)

// Multipliers applied to the artifact size when the unpacked size cannot be read up front
const (
	tarExpansion       = 3
	diskImageExpansion = 2
)

// FreeSpace returns the bytes available to unprivileged users on the volume holding path.
// Missing trailing components are skipped so a not yet created install root can be checked.
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(nearestExisting(path))
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

func nearestExisting(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// estimateRequired returns the bytes an install of the artifact is expected to write
func estimateRequired(path string, variant types.Variant) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return dirSize(path)
	}
	size := info.Size()

	switch {
	case variant.IsArchive():
		format := extract.DetectFormat(path)
		if format.IsTar() {
			return size * tarExpansion, nil
		}
		unpacked, err := extract.UncompressedSize(path)
		if err != nil {
			log.Debugf("Falling back to %dx the archive size: %v", tarExpansion, err)
			return size * tarExpansion, nil
		}
		return unpacked, nil
	case variant == types.VariantMacDiskImage:
		return size * diskImageExpansion, nil
	default:
		return size, nil
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
