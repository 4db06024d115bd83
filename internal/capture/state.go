package capture

// State is the orchestrator's lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateFinalizing State = "finalizing"
)

// Snapshot is a point-in-time copy of a sweep's progress.
type Snapshot struct {
	State     State    `json:"state"`
	SweepID   string   `json:"sweep_id,omitempty"`
	Study     string   `json:"study,omitempty"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Progress  float64  `json:"progress"`
	Warnings  []string `json:"warnings,omitempty"`
}
