package classify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/types"
	log "github.com/sirupsen/logrus"
)

// Magic is the leading-bytes signature of a file
type Magic string

const (
	MagicUnknown Magic = "unknown"
	MagicZip     Magic = "zip"
	MagicELF     Magic = "elf"
	MagicGzip    Magic = "gzip"
	MagicBzip2   Magic = "bzip2"
	MagicXZ      Magic = "xz"
	MagicPE      Magic = "pe"
	MagicMachO   Magic = "macho"
)

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{'B', 'Z', 'h'}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// ReadMagic reads up to the first 6 bytes of a file
func ReadMagic(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 6)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// DetectMagic classifies a byte signature
func DetectMagic(magic []byte) Magic {
	switch {
	case isZip(magic):
		return MagicZip
	case bytes.HasPrefix(magic, elfMagic):
		return MagicELF
	case bytes.HasPrefix(magic, xzMagic):
		return MagicXZ
	case bytes.HasPrefix(magic, gzipMagic):
		return MagicGzip
	case bytes.HasPrefix(magic, bzip2Magic):
		return MagicBzip2
	case len(magic) >= 2 && magic[0] == 'M' && magic[1] == 'Z':
		return MagicPE
	case isMachO(magic):
		return MagicMachO
	}
	return MagicUnknown
}

// isZip matches the 50 4B 03 04 / 05 06 / 07 08 local, empty and spanned headers
func isZip(magic []byte) bool {
	if len(magic) < 4 || magic[0] != 'P' || magic[1] != 'K' {
		return false
	}
	return (magic[2] == 3 && magic[3] == 4) ||
		(magic[2] == 5 && magic[3] == 6) ||
		(magic[2] == 7 && magic[3] == 8)
}

func isMachO(m []byte) bool {
	if len(m) < 4 {
		return false
	}
	return (m[0] == 0xfe && m[1] == 0xed && m[2] == 0xfa && (m[3] == 0xce || m[3] == 0xcf)) ||
		((m[0] == 0xce || m[0] == 0xcf) && m[1] == 0xfa && m[2] == 0xed && m[3] == 0xfe) ||
		(m[0] == 0xca && m[1] == 0xfe && m[2] == 0xba && m[3] == 0xbe)
}

// Archive suffixes recognised on the lowercase base name, compound ones first
var archiveSuffixes = []string{
	".tar.gz", ".tgz",
	".tar.bz2", ".tbz2", ".tbz",
	".tar.xz", ".txz",
	".tar",
	".zip",
}

// ArchiveSuffix returns the archive suffix of a path, or "" if it is not an archive name
func ArchiveSuffix(path string) string {
	lower := strings.ToLower(filepath.Base(path))
	for _, ext := range archiveSuffixes {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

// Classifier maps a downloaded file to a Variant the host platform can install
type Classifier struct {
	platform platform.Platform
}

func New(p platform.Platform) *Classifier {
	return &Classifier{platform: p}
}

// Classify never fails: anything that cannot be installed on the host is Unsupported
func (c *Classifier) Classify(path string) types.Variant {
	v := c.classify(path)
	log.WithFields(log.Fields{"artifact": filepath.Base(path), "platform": c.platform.OS}).Debugf("classified as %s", v)
	return v
}

func (c *Classifier) classify(path string) types.Variant {
	info, err := os.Stat(path)
	if err != nil {
		return types.VariantUnsupported
	}
	lower := strings.ToLower(filepath.Base(path))
	p := c.platform

	if info.IsDir() {
		if strings.HasSuffix(lower, ".app") && p.IsDarwin() {
			return types.VariantMacAppBundle
		}
		return types.VariantUnsupported
	}

	magic, err := ReadMagic(path)
	if err != nil {
		return types.VariantUnsupported
	}
	kind := DetectMagic(magic)

	switch ext := filepath.Ext(lower); {
	case ext == ".apk":
		if p.IsAndroid() && kind == MagicZip {
			return types.VariantAndroidPackage
		}
		return types.VariantUnsupported
	case ext == ".appimage":
		if p.IsLinux() {
			return types.VariantLinuxAppImage
		}
		return types.VariantUnsupported
	case ext == ".dmg":
		if p.IsDarwin() {
			return types.VariantMacDiskImage
		}
		return types.VariantUnsupported
	case ext == ".exe" || ext == ".msi":
		if p.IsWindows() {
			return types.VariantWindowsInstaller
		}
		return types.VariantUnsupported
	}

	if ArchiveSuffix(lower) != "" {
		return c.archiveVariant()
	}

	// No decisive extension: fall back to the content signature
	switch kind {
	case MagicZip, MagicGzip, MagicBzip2, MagicXZ:
		return c.archiveVariant()
	case MagicELF:
		if p.IsLinux() {
			return types.VariantLinuxAppImage
		}
	}
	return types.VariantUnsupported
}

func (c *Classifier) archiveVariant() types.Variant {
	switch {
	case c.platform.IsLinux():
		return types.VariantLinuxArchive
	case c.platform.IsDarwin():
		return types.VariantMacArchive
	case c.platform.IsWindows():
		return types.VariantWindowsArchive
	}
	return types.VariantUnsupported
}
