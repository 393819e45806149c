package gameserver

import "encoding/json"

// State is the lifecycle state of the managed game server process.
type State int

const (
	NotInstalled State = iota
	Installing
	Installed
	Starting
	Running
	Stopping
	Errored
)

var stateNames = map[State]string{
	NotInstalled: "not_installed",
	Installing:   "installing",
	Installed:    "installed",
	Starting:     "starting",
	Running:      "running",
	Stopping:     "stopping",
	Errored:      "error",
}

var stateFromName = map[string]State{
	"not_installed": NotInstalled,
	"installing":    Installing,
	"installed":     Installed,
	"starting":      Starting,
	"running":       Running,
	"stopping":      Stopping,
	"error":         Errored,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := stateFromName[name]; ok {
		*s = v
	}
	return nil
}
