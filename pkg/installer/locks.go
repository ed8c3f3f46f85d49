package installer

import (
	"context"
	"sync"

	"github.com/flanksource/eden-updater/pkg/types"
	"golang.org/x/sync/semaphore"
)

// channelLocks serializes installs per channel; different channels proceed in parallel
type channelLocks struct {
	mu   sync.Mutex
	sems map[types.Channel]*semaphore.Weighted
}

func (l *channelLocks) sem(ch types.Channel) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sems == nil {
		l.sems = make(map[types.Channel]*semaphore.Weighted)
	}
	s, ok := l.sems[ch]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[ch] = s
	}
	return s
}

// acquire blocks until the channel is free or ctx is done
func (l *channelLocks) acquire(ctx context.Context, ch types.Channel) (func(), error) {
	s := l.sem(ch)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}
