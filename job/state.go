package job

// transitions is the legal state machine. failed → pending exists only for
// the explicit restart path and the startup recovery sweep; it is never
// taken automatically. pending → failed covers jobs whose strategy cannot
// be resolved at start.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled, StatusPending},
	StatusFailed:  {StatusPending, StatusRunning},
}

// ValidTransition reports whether moving from one status to another is legal.
// A same-status update (progress reporting on a running job) is always legal.
// running → pending is reserved for the recovery sweep; failed → running
// covers the restart path where the supervisor starts a failed job directly.
// Store implementations enforce this in UpdateStatus.
func ValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status permits no further mutation.
// Failed jobs are not terminal: they may be restarted explicitly.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Startable reports whether a job in this status may be handed to the
// supervisor: only pending jobs (normal drain) and failed jobs (explicit
// restart) qualify.
func (s Status) Startable() bool {
	return s == StatusPending || s == StatusFailed
}
