package client

// Severity classifies a status for presentation without prescribing visuals.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityNeutral Severity = "neutral"
)

// Status is a presentation-agnostic descriptor of the console's health.
type Status struct {
	Label    string
	Severity Severity
	Animated bool
}

// Project composes a connection state with the (possibly unknown) game
// server state. Pure: no I/O, no session access. A connected console to a
// non-running server is reported distinctly, without touching the
// connection's own state value.
func Project(conn ConnectionState, server ServerState) Status {
	switch conn {
	case StateConnecting:
		return Status{Label: "Connecting...", Severity: SeverityWarning, Animated: true}
	case StateConnected:
		if server == ServerRunning || server == "" {
			return Status{Label: "Connected", Severity: SeveritySuccess}
		}
		return Status{Label: "Server not running", Severity: SeverityWarning}
	case StateForbidden:
		return Status{Label: "Access Denied", Severity: SeverityError}
	default:
		return Status{Label: "Disconnected", Severity: SeverityNeutral}
	}
}
