package installer

import (
	"errors"

	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/types"
	log "github.com/sirupsen/logrus"
)

// run is the mutable state of a single install call
type run struct {
	id       string
	channel  types.Channel
	artifact types.UpdateArtifact
	opts     types.InstallOptions
	variant  types.Variant
	strategy strategy
	size     int64

	// dir is the channel install directory
	dir string
	// source is the staged payload: an extraction dir or an app bundle
	source     string
	executable string
	backup     *filesystem.Backup

	state    State
	states   []State
	progress *tracker
	cleanup  *CleanupManager
	log      *log.Entry
}

// failure kinds for errors a state returns without classifying them
var stateKinds = map[State]Kind{
	StateValidating:    KindValidationFailed,
	StateUnpacking:     KindExtractionFailed,
	StatePlacing:       KindPlacementFailed,
	StatePermissioning: KindPermissionFailed,
	StatePortableSetup: KindPlacementFailed,
	StateShortcutSetup: KindPlatformOperationFailed,
	StateVerifying:     KindVerificationFailed,
	StateHandingOff:    KindPlatformOperationFailed,
}

var stateFailures = map[State]string{
	StateValidating:    "The update could not be validated",
	StateUnpacking:     "Failed to unpack the update",
	StatePlacing:       "Failed to install files",
	StatePermissioning: "Failed to set permissions",
	StatePortableSetup: "Failed to set up portable mode",
	StateShortcutSetup: "Failed to create shortcuts",
	StateVerifying:     "The installation could not be verified",
	StateHandingOff:    "Failed to open the system installer",
}

func (r *run) ranges() ranges {
	if r.strategy.ranges != nil {
		return r.strategy.ranges
	}
	return defaultRanges
}

func (r *run) enter(s State) {
	r.state = s
	r.states = append(r.states, s)
	r.log.WithField("state", s).Debugf("Entering %s", s)
	if sp, ok := r.ranges()[s]; ok {
		r.progress.report(sp.from)
	}
	if msg, ok := statusMessages[s]; ok {
		r.progress.status(msg)
	}
}

func (r *run) within(s State) types.ProgressFunc {
	sp, ok := r.ranges()[s]
	if !ok {
		return func(float64) {}
	}
	return r.progress.within(sp)
}

// step runs fn as state s, classifying any error by the state it failed in
func (r *run) step(s State, fn func() error) error {
	r.enter(s)
	if err := fn(); err != nil {
		return asInstallError(err, s)
	}
	if sp, ok := r.ranges()[s]; ok {
		r.progress.report(sp.to)
	}
	return nil
}

func asInstallError(err error, s State) *InstallError {
	var ie *InstallError
	if errors.As(err, &ie) {
		if ie.State == "" {
			ie.State = s
		}
		return ie
	}
	kind, ok := stateKinds[s]
	if !ok {
		kind = KindPlatformOperationFailed
	}
	return &InstallError{Kind: kind, State: s, Message: stateFailures[s], Err: err}
}
