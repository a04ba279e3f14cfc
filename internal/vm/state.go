package vm

// State is a stage of the build pipeline. Stages are reached strictly in
// order; Create stops at the first failing stage.
type State int

const (
	StateInit State = iota
	StateDirectoriesCreated
	StatePartitioned
	StateMounted
	StateInstalled
	StateUnmounted
	StateConverted
	StateOwnershipFixed
	StateDone
)

var stateNames = [...]string{
	StateInit:               "Init",
	StateDirectoriesCreated: "DirectoriesCreated",
	StatePartitioned:        "Partitioned",
	StateMounted:            "Mounted",
	StateInstalled:          "Installed",
	StateUnmounted:          "Unmounted",
	StateConverted:          "Converted",
	StateOwnershipFixed:     "OwnershipFixed",
	StateDone:               "Done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
