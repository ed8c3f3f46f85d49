package installer

import (
	"sync"

	"github.com/flanksource/eden-updater/pkg/types"
)

// span is the [from, to] share of the overall bar a state reports into
type span struct {
	from, to float64
}

// ranges allocates the progress bar between states; states without an entry report nothing
type ranges map[State]span

var (
	defaultRanges = ranges{
		StateValidating:    {0, 0.10},
		StateUnpacking:     {0.10, 0.50},
		StatePlacing:       {0.50, 0.85},
		StatePermissioning: {0.85, 0.92},
		StatePortableSetup: {0.92, 0.935},
		StateShortcutSetup: {0.935, 0.95},
		StateVerifying:     {0.95, 1},
	}

	// mount 10-25, locate 25-40, copy 40-85, permission 85-95, verify 95-100
	bundleRanges = ranges{
		StateValidating:    {0, 0.10},
		StateUnpacking:     {0.10, 0.40},
		StatePlacing:       {0.40, 0.85},
		StatePermissioning: {0.85, 0.93},
		StatePortableSetup: {0.93, 0.94},
		StateShortcutSetup: {0.94, 0.95},
		StateVerifying:     {0.95, 1},
	}

	handOffRanges = ranges{
		StateValidating: {0, 0.30},
		StateHandingOff: {0.30, 1},
	}
)

// tracker forwards progress to the caller, clamped to [0,1] and never decreasing
type tracker struct {
	mu       sync.Mutex
	last     float64
	onChange types.ProgressFunc
	onStatus types.StatusFunc
}

func newTracker(onProgress types.ProgressFunc, onStatus types.StatusFunc) *tracker {
	return &tracker{onChange: onProgress, onStatus: onStatus}
}

func (t *tracker) report(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v > 1 {
		v = 1
	}
	if v <= t.last && t.last > 0 {
		return
	}
	if v < 0 {
		v = 0
	}
	t.last = v
	if t.onChange != nil {
		t.onChange(v)
	}
}

// within maps a sub-step's own [0,1] progress into a slice of the bar
func (t *tracker) within(s span) types.ProgressFunc {
	return func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		} else if fraction > 1 {
			fraction = 1
		}
		t.report(s.from + (s.to-s.from)*fraction)
	}
}

func (t *tracker) status(msg string) {
	if t.onStatus != nil {
		t.onStatus(msg)
	}
}

func (t *tracker) value() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
