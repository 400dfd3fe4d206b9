package domain

import "time"

// ApplicationStatus is the worker application lifecycle state.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusAccepted  ApplicationStatus = "accepted"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn ApplicationStatus = "withdrawn"
)

// JobApplication is a worker's bid for a job. The (job, worker) pair is
// unique for all time: re-application after withdrawal is blocked by the
// uniqueness constraint, not by state re-entry.
type JobApplication struct {
	ID          string            `db:"id"`
	JobID       string            `db:"job_id"`
	WorkerID    string            `db:"worker_id"`
	Status      ApplicationStatus `db:"status"`
	Message     string            `db:"message"`
	AppliedAt   time.Time         `db:"applied_at"`
	RespondedAt *time.Time        `db:"responded_at"`
}

// Actor carries the externally supplied identity facts about a caller. The
// core does not authenticate; it consumes these as given.
type Actor struct {
	ID       string
	Type     string // "business" or "worker"
	Verified bool
}

// IsBusiness reports whether the actor is a business account.
func (a Actor) IsBusiness() bool {
	return a.Type == "business"
}

// IsWorker reports whether the actor is a worker account.
func (a Actor) IsWorker() bool {
	return a.Type == "worker"
}
