package installer_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	. "github.com/onsi/gomega"

	"github.com/flanksource/eden-updater/pkg/shortcut"
)

type entry struct {
	body string
	mode os.FileMode
}

func writeZip(path string, files map[string]entry) {
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	w := zip.NewWriter(f)
	for _, name := range names {
		e := files[name]
		h := &zip.FileHeader{Name: name, Method: zip.Deflate}
		mode := e.mode
		if mode == 0 {
			mode = 0644
		}
		h.SetMode(mode)
		fw, err := w.CreateHeader(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = fw.Write([]byte(e.body))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(w.Close()).To(Succeed())
}

func writeFile(path, body string, mode os.FileMode) {
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(body), mode)).To(Succeed())
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

// writeDiskImage writes a file carrying the UDIF trailer signature
func writeDiskImage(path string) {
	data := make([]byte, 4096)
	copy(data[len(data)-512:], "koly")
	writeFile(path, string(data), 0644)
}

// writeBundle creates a minimal application bundle
func writeBundle(dir, name string) string {
	bundle := filepath.Join(dir, name+".app")
	writeFile(filepath.Join(bundle, "Contents", "Info.plist"), "<plist></plist>", 0644)
	writeFile(filepath.Join(bundle, "Contents", "MacOS", name), "#!/bin/sh\n", 0755)
	return bundle
}

func plenty(string) (uint64, error) {
	return 1 << 40, nil
}

// recorder collects progress and status callbacks
type recorder struct {
	mu       sync.Mutex
	progress []float64
	statuses []string
}

func (r *recorder) onProgress(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, v)
}

func (r *recorder) onStatus(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) expectMonotonic() {
	r.mu.Lock()
	defer r.mu.Unlock()
	Expect(r.progress).NotTo(BeEmpty())
	for i, v := range r.progress {
		Expect(v).To(BeNumerically(">=", 0))
		Expect(v).To(BeNumerically("<=", 1))
		if i > 0 {
			Expect(v).To(BeNumerically(">=", r.progress[i-1]), "progress went backwards at %d: %v", i, r.progress)
		}
	}
}

func (r *recorder) last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.progress) == 0 {
		return -1
	}
	return r.progress[len(r.progress)-1]
}

type fakeRegistrar struct {
	err     error
	created []shortcut.Shortcut
}

func (f *fakeRegistrar) Create(_ context.Context, s shortcut.Shortcut) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, s)
	return filepath.Join("shortcuts", s.Name), nil
}

func (f *fakeRegistrar) Remove(context.Context, shortcut.Shortcut) error {
	return f.err
}
