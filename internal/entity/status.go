package entity

// Status is the lifecycle state of a download item.
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusPaused    Status = "Paused"
	StatusCancelled Status = "Cancelled"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether the item will not be picked up again without an explicit resume.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsResumable reports whether a single-item resume re-queues an item in this state.
func (s Status) IsResumable() bool {
	return s == StatusPaused || s == StatusCancelled || s == StatusFailed
}
