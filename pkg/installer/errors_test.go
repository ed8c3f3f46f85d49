package installer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstallErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("install: %w", newError(KindPlacementFailed, errors.New("disk full"), "Failed to install files"))

	assert.True(t, errors.Is(err, ErrPlacementFailed))
	assert.False(t, errors.Is(err, ErrPermissionFailed))
	assert.Equal(t, KindPlacementFailed, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "install: Failed to install files: disk full", err.Error())
}

func TestAsInstallErrorUsesState(t *testing.T) {
	ie := asInstallError(errors.New("chmod denied"), StatePermissioning)
	assert.Equal(t, KindPermissionFailed, ie.Kind)
	assert.Equal(t, StatePermissioning, ie.State)
	assert.Equal(t, "Failed to set permissions", userMessage(ie))

	typed := newError(KindExtractionFailed, nil, "bad archive")
	assert.Same(t, typed, asInstallError(typed, StateUnpacking))
	assert.Equal(t, StateUnpacking, typed.State)
}

func TestTrackerIsMonotonic(t *testing.T) {
	var seen []float64
	tr := newTracker(func(v float64) { seen = append(seen, v) }, nil)

	tr.report(0)
	tr.within(span{0.1, 0.5})(0.5)
	tr.report(0.2)
	tr.within(span{0.5, 0.85})(2)
	tr.report(1.5)

	expected := []float64{0, 0.3, 0.85, 1}
	if assert.Len(t, seen, len(expected)) {
		for i := range expected {
			assert.InDelta(t, expected[i], seen[i], 1e-9)
		}
	}
	assert.Equal(t, 1.0, tr.value())
}
