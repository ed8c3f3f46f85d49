package installer

// State is a step of the install state machine
type State string

const (
	StateValidating    State = "Validating"
	StateUnpacking     State = "Unpacking"
	StatePlacing       State = "Placing"
	StatePermissioning State = "Permissioning"
	StatePortableSetup State = "PortableSetup"
	StateShortcutSetup State = "ShortcutSetup"
	StateVerifying     State = "Verifying"
	// StateHandingOff replaces the filesystem states for OS package installers
	StateHandingOff State = "HandingOff"
	StateCleaningUp State = "CleaningUp"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

var statusMessages = map[State]string{
	StateValidating:    "Validating update",
	StateUnpacking:     "Unpacking update",
	StatePlacing:       "Installing files",
	StatePermissioning: "Setting permissions",
	StatePortableSetup: "Setting up portable mode",
	StateShortcutSetup: "Creating shortcuts",
	StateVerifying:     "Verifying installation",
	StateHandingOff:    "Opening system installer",
	StateCleaningUp:    "Cleaning up",
	StateDone:          "Installation complete",
}

// IsTerminal reports whether no further transitions follow
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}
