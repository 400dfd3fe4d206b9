package domain

import (
	"fmt"
	"math"
	"time"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusPublished  JobStatus = "published"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job types supported by the platform.
const (
	JobTypeWaiter    = "waiter"
	JobTypeCourier   = "courier"
	JobTypeLoader    = "loader"
	JobTypeCleaner   = "cleaner"
	JobTypeCashier   = "cashier"
	JobTypeBartender = "bartender"
	JobTypeCook      = "cook"
	JobTypeSecurity  = "security"
	JobTypePromoter  = "promoter"
	JobTypeOther     = "other"
)

// jobTransitions is the job state machine:
// draft → published|cancelled, published → in_progress|cancelled,
// in_progress → completed|cancelled; completed and cancelled are terminal.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusDraft:      {JobStatusPublished, JobStatusCancelled},
	JobStatusPublished:  {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
	JobStatusCompleted:  {},
	JobStatusCancelled:  {},
}

// timeOfDayLayout is the wire format for start_time/end_time.
const timeOfDayLayout = "15:04"

// Job is a posted shift. Created in draft by a business, published for
// workers to apply to, and driven through its state machine by the job
// lifecycle manager.
type Job struct {
	ID              string     `db:"id"`
	BusinessID      string     `db:"business_id"`
	JobType         string     `db:"job_type"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Date            time.Time  `db:"date"`
	StartTime       string     `db:"start_time"`
	EndTime         string     `db:"end_time"`
	HourlyRate      int64      `db:"hourly_rate"`
	WorkersNeeded   int        `db:"workers_needed"`
	WorkersAccepted int        `db:"workers_accepted"`
	LocationName    string     `db:"location_name"`
	LocationAddress string     `db:"location_address"`
	LocationLat     float64    `db:"location_lat"`
	LocationLng     float64    `db:"location_lng"`
	Status          JobStatus  `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	PublishedAt     *time.Time `db:"published_at"`
}

// CanTransitionTo reports whether moving to the target status is legal.
func (j *Job) CanTransitionTo(target JobStatus) bool {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsFull reports whether every worker slot is filled.
func (j *Job) IsFull() bool {
	return j.WorkersAccepted >= j.WorkersNeeded
}

// AvailableSlots returns the number of unfilled worker slots.
func (j *Job) AvailableSlots() int {
	if j.WorkersNeeded <= j.WorkersAccepted {
		return 0
	}
	return j.WorkersNeeded - j.WorkersAccepted
}

// StartDateTime combines the job's date and start time in the date's
// location.
func (j *Job) StartDateTime() (time.Time, error) {
	start, err := time.Parse(timeOfDayLayout, j.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_time %q: %w", j.StartTime, err)
	}
	return time.Date(
		j.Date.Year(), j.Date.Month(), j.Date.Day(),
		start.Hour(), start.Minute(), 0, 0, j.Date.Location(),
	), nil
}

// DurationHours returns the shift length in fractional hours. An end time
// numerically before the start time means the shift wraps past midnight and
// gets a +24h correction.
func (j *Job) DurationHours() (float64, error) {
	start, err := time.Parse(timeOfDayLayout, j.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start_time %q: %w", j.StartTime, err)
	}
	end, err := time.Parse(timeOfDayLayout, j.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end_time %q: %w", j.EndTime, err)
	}

	duration := end.Sub(start)
	if duration < 0 {
		duration += 24 * time.Hour
	}
	return duration.Hours(), nil
}

// EstimatedAmount is the pre-checkout escrow amount in minor currency
// units: hourly rate times scheduled duration, rounded to the nearest unit.
func (j *Job) EstimatedAmount() (int64, error) {
	hours, err := j.DurationHours()
	if err != nil {
		return 0, err
	}
	return int64(math.Round(float64(j.HourlyRate) * hours)), nil
}

// TotalCost is the estimated cost across all requested workers.
func (j *Job) TotalCost() (int64, error) {
	amount, err := j.EstimatedAmount()
	if err != nil {
		return 0, err
	}
	return amount * int64(j.WorkersNeeded), nil
}
