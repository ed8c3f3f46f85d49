package mock

import (
	"context"
	"sync"
)

// PackageInstaller records hand-offs instead of opening a system installer
type PackageInstaller struct {
	mu          sync.Mutex
	ValidateErr error
	HandOffErr  error
	HandedOff   []string
}

func NewPackageInstaller() *PackageInstaller {
	return &PackageInstaller{}
}

func (p *PackageInstaller) Validate(string) error {
	return p.ValidateErr
}

func (p *PackageInstaller) HandOff(_ context.Context, artifactPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HandOffErr != nil {
		return p.HandOffErr
	}
	p.HandedOff = append(p.HandedOff, artifactPath)
	return nil
}

// Calls returns a copy of the artifacts handed off so far
func (p *PackageInstaller) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.HandedOff...)
}
