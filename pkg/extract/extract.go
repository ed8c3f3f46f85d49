package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/utils"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// ExtractionError is returned when an archive is unreadable, corrupt or of an unknown format
type ExtractionError struct {
	Archive string
	Op      string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, filepath.Base(e.Archive), e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Result lists what an extraction wrote
type Result struct {
	Format Format
	Files  []string
	Bytes  int64
}

// Extract recreates destDir and unpacks the archive into it, reporting progress in [0,1]
func Extract(archivePath, destDir string, onProgress types.ProgressFunc) (*Result, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, &ExtractionError{Archive: archivePath, Op: "open", Err: err}
	}

	// Remove extraction directory if it exists to avoid leftovers from previous failed runs
	if _, err := os.Stat(destDir); err == nil {
		if err := os.RemoveAll(destDir); err != nil {
			return nil, fmt.Errorf("failed to clean up existing extract directory: %w", err)
		}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extract directory: %w", err)
	}

	result, err := Unarchive(archivePath, destDir, onProgress)
	if err != nil {
		return nil, err
	}
	log.Debugf("Extracted %d files (%s) from %s", len(result.Files), utils.FormatBytes(result.Bytes), filepath.Base(archivePath))

	if len(result.Files) == 0 {
		return nil, &ExtractionError{Archive: archivePath, Op: "extract", Err: fmt.Errorf("archive is empty")}
	}
	return result, nil
}

// Unarchive unpacks an archive into an existing directory
func Unarchive(archivePath, destDir string, onProgress types.ProgressFunc) (*Result, error) {
	progress := newReporter(onProgress)
	format := DetectFormat(archivePath)
	var (
		result *Result
		err    error
	)
	switch {
	case format == FormatZip:
		result, err = extractZip(archivePath, destDir, progress)
	case format.IsTar():
		result, err = extractTar(archivePath, format, destDir, progress)
	default:
		return nil, &ExtractionError{Archive: archivePath, Op: "detect format of", Err: fmt.Errorf("unrecognized archive format")}
	}
	if err != nil {
		return nil, &ExtractionError{Archive: archivePath, Op: "extract", Err: err}
	}
	result.Format = format
	progress.report(1)
	return result, nil
}

// Validate reads the whole archive without writing anything
func Validate(archivePath string) error {
	format := DetectFormat(archivePath)
	switch {
	case format == FormatZip:
		r, err := zip.OpenReader(archivePath)
		if err != nil {
			return &ExtractionError{Archive: archivePath, Op: "open", Err: err}
		}
		defer func() { _ = r.Close() }()
		if len(r.File) == 0 {
			return &ExtractionError{Archive: archivePath, Op: "validate", Err: fmt.Errorf("archive is empty")}
		}
		for _, f := range r.File {
			if err := drain(f); err != nil {
				return &ExtractionError{Archive: archivePath, Op: "validate", Err: fmt.Errorf("%s: %w", f.Name, err)}
			}
		}
		return nil
	case format.IsTar():
		file, err := os.Open(archivePath)
		if err != nil {
			return &ExtractionError{Archive: archivePath, Op: "open", Err: err}
		}
		defer func() { _ = file.Close() }()
		stream, err := decompress(file, format)
		if err != nil {
			return &ExtractionError{Archive: archivePath, Op: "open", Err: err}
		}
		tr := tar.NewReader(stream)
		entries := 0
		for {
			_, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return &ExtractionError{Archive: archivePath, Op: "validate", Err: err}
			}
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return &ExtractionError{Archive: archivePath, Op: "validate", Err: err}
			}
			entries++
		}
		if entries == 0 {
			return &ExtractionError{Archive: archivePath, Op: "validate", Err: fmt.Errorf("archive is empty")}
		}
		return nil
	}
	return &ExtractionError{Archive: archivePath, Op: "detect format of", Err: fmt.Errorf("unrecognized archive format")}
}

func drain(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// UncompressedSize returns the sum of the uncompressed entry sizes of a zip archive
func UncompressedSize(archivePath string) (int64, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()
	var total int64
	for _, f := range r.File {
		total += int64(f.UncompressedSize64)
	}
	return total, nil
}

func decompress(r io.Reader, format Format) (io.Reader, error) {
	switch format {
	case FormatTarGz:
		return gzip.NewReader(r)
	case FormatTarBz2:
		return bzip2.NewReader(r), nil
	case FormatTarXz:
		return xz.NewReader(r)
	case FormatTar:
		return r, nil
	}
	return nil, fmt.Errorf("unsupported compression %q", format)
}

func extractZip(archivePath, destDir string, progress *reporter) (*Result, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var total int64
	for _, f := range r.File {
		total += int64(f.UncompressedSize64)
	}

	result := &Result{}
	var done int64
	for i, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return nil, err
		}

		mode := f.Mode()
		switch {
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, mode.Perm()|0700); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		case mode&os.ModeSymlink != 0:
			if err := writeZipSymlink(f, destDir, target); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, target)
		default:
			n, err := writeZipFile(f, target)
			if err != nil {
				return nil, err
			}
			done += n
			result.Bytes += n
			result.Files = append(result.Files, target)
		}

		if total > 0 {
			progress.report(float64(done) / float64(total))
		} else {
			progress.report(float64(i+1) / float64(len(r.File)))
		}
	}
	return result, nil
}

func writeZipFile(f *zip.File, target string) (int64, error) {
	if err := prepareTarget(target); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	return writeFile(target, rc, perm)
}

func writeZipSymlink(f *zip.File, destDir, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	link, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	return symlink(destDir, string(link), target)
}

func extractTar(archivePath string, format Format, destDir string, progress *reporter) (*Result, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	counter := &countingReader{r: file}
	stream, err := decompress(counter, format)
	if err != nil {
		return nil, err
	}
	if closer, ok := stream.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	result := &Result{}
	tr := tar.NewReader(stream)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return nil, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode).Perm()|0700); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := prepareTarget(target); err != nil {
				return nil, err
			}
			n, err := writeFile(target, tr, os.FileMode(header.Mode).Perm())
			if err != nil {
				return nil, err
			}
			result.Bytes += n
			result.Files = append(result.Files, target)
		case tar.TypeSymlink:
			if err := symlink(destDir, header.Linkname, target); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, target)
		case tar.TypeLink:
			if err := hardlink(destDir, header.Linkname, target); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, target)
		default:
			log.Warnf("Skipping %s in %s: unsupported entry type %c", header.Name, filepath.Base(archivePath), header.Typeflag)
		}

		if info.Size() > 0 {
			progress.report(float64(counter.n) / float64(info.Size()))
		}
	}
	return result, nil
}

func prepareTarget(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if _, err := os.Lstat(target); err == nil {
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) (int64, error) {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("failed to extract %s: %w", filepath.Base(target), err)
	}
	return n, out.Close()
}

func symlink(destDir, link, target string) error {
	resolved := link
	if !filepath.IsAbs(link) {
		resolved = filepath.Join(filepath.Dir(target), link)
	}
	if _, err := safeJoin(destDir, mustRel(destDir, resolved)); err != nil {
		return fmt.Errorf("symlink %s escapes destination: %s", filepath.Base(target), link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(link, target)
}

// hardlink links target to an entry already extracted; tar link names are relative to the archive root
func hardlink(destDir, linkname, target string) error {
	src, err := safeJoin(destDir, linkname)
	if err != nil {
		return fmt.Errorf("hard link %s escapes destination: %w", filepath.Base(target), err)
	}
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("hard link %s points to missing entry %s", filepath.Base(target), linkname)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("hard link %s points to %s, which is not a regular file", filepath.Base(target), linkname)
	}
	if err := prepareTarget(target); err != nil {
		return err
	}
	return os.Link(src, target)
}

func mustRel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return rel
}

// safeJoin joins an archive entry name onto destDir, rejecting entries that escape it
func safeJoin(destDir, name string) (string, error) {
	clean := filepath.Clean(destDir)
	target := filepath.Join(clean, filepath.FromSlash(name))
	if target != clean && !strings.HasPrefix(target, clean+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// reporter forwards only increasing values, clamped to [0,1]
type reporter struct {
	fn   types.ProgressFunc
	last float64
}

func newReporter(fn types.ProgressFunc) *reporter {
	return &reporter{fn: fn, last: -1}
}

func (r *reporter) report(v float64) {
	if r.fn == nil {
		return
	}
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	if v <= r.last {
		return
	}
	r.last = v
	r.fn(v)
}
