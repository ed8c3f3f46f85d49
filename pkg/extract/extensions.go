package extract

import (
	"strings"

	"github.com/flanksource/eden-updater/pkg/classify"
)

// Format is an archive container/compression combination
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarBz2  Format = "tar.bz2"
	FormatTarXz   Format = "tar.xz"
	FormatUnknown Format = ""
)

// IsTar returns true for the tar family
func (f Format) IsTar() bool {
	return strings.HasPrefix(string(f), "tar")
}

var suffixFormats = map[string]Format{
	".zip":     FormatZip,
	".tar":     FormatTar,
	".tar.gz":  FormatTarGz,
	".tgz":     FormatTarGz,
	".tar.bz2": FormatTarBz2,
	".tbz2":    FormatTarBz2,
	".tbz":     FormatTarBz2,
	".tar.xz":  FormatTarXz,
	".txz":     FormatTarXz,
}

// DetectFormat detects the format from the file name, falling back to the content signature
func DetectFormat(path string) Format {
	if f, ok := suffixFormats[classify.ArchiveSuffix(path)]; ok {
		return f
	}

	magic, err := classify.ReadMagic(path)
	if err != nil {
		return FormatUnknown
	}
	switch classify.DetectMagic(magic) {
	case classify.MagicZip:
		return FormatZip
	case classify.MagicGzip:
		return FormatTarGz
	case classify.MagicBzip2:
		return FormatTarBz2
	case classify.MagicXZ:
		return FormatTarXz
	}
	return FormatUnknown
}

// IsArchive returns true if the file name or content is a supported archive
func IsArchive(path string) bool {
	return DetectFormat(path) != FormatUnknown
}
