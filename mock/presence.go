package mock

import (
	"context"
	"sync"
)

// PresenceChecker answers package presence queries from a fixed set
type PresenceChecker struct {
	mu        sync.Mutex
	installed map[string]bool
	Err       error
	Queries   int
}

func NewPresenceChecker(installed ...string) *PresenceChecker {
	p := &PresenceChecker{installed: map[string]bool{}}
	for _, id := range installed {
		p.installed[id] = true
	}
	return p
}

func (p *PresenceChecker) Set(packageID string, installed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.installed[packageID] = installed
}

func (p *PresenceChecker) IsPackageInstalled(_ context.Context, packageID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Queries++
	if p.Err != nil {
		return false, p.Err
	}
	return p.installed[packageID], nil
}
