package mock

import (
	"context"
	"fmt"
	"sync"
)

// Mounter is a diskimage.Mounter that exposes a prepared directory as the mounted volume
type Mounter struct {
	mu sync.Mutex
	// Root is returned by every successful Mount
	Root       string
	MountErr   error
	UnmountErr error

	Mounts   int
	Unmounts int
	mounted  map[string]bool
}

func NewMounter(root string) *Mounter {
	return &Mounter{Root: root, mounted: map[string]bool{}}
}

func (m *Mounter) Mount(_ context.Context, imagePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mounts++
	if m.MountErr != nil {
		return "", m.MountErr
	}
	m.mounted[m.Root] = true
	return m.Root, nil
}

func (m *Mounter) Unmount(_ context.Context, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unmounts++
	if !m.mounted[root] {
		return fmt.Errorf("%s is not mounted", root)
	}
	if m.UnmountErr != nil {
		return m.UnmountErr
	}
	delete(m.mounted, root)
	return nil
}

// Mounted reports whether any volume is still attached
func (m *Mounter) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mounted) > 0
}
