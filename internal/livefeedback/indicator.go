package livefeedback

// Phase is the loop's externally visible state. Transitions are total
// functions of the latest check result.
type Phase int

const (
	// PhaseIdle means no text-bearing element is focused.
	PhaseIdle Phase = iota

	// PhaseChecking means a check is running against the latest snapshot.
	PhaseChecking

	// PhaseClean means the last check found no issues.
	PhaseClean

	// PhaseIssues means the last check found at least one issue.
	PhaseIssues
)

// String returns a short name for p.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseClean:
		return "clean"
	case PhaseIssues:
		return "issues"
	}
	return "unknown"
}

// Status is the loop's current phase plus the live issue count.
type Status struct {
	Phase      Phase
	IssueCount int
}

// Indicator receives status updates for display. Implementations must be
// cheap; they are called from the poll goroutine.
type Indicator interface {
	// Show presents the current status and issue list.
	Show(status Status, issues []TrackedIssue)

	// Dismiss hides the indicator.
	Dismiss()
}

// NoopIndicator is an [Indicator] that does nothing, for headless runs.
type NoopIndicator struct{}

var _ Indicator = NoopIndicator{}

func (NoopIndicator) Show(Status, []TrackedIssue) {}
func (NoopIndicator) Dismiss()                    {}
