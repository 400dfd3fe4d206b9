package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is an opaque key-value bag persisted as JSONB.
type Metadata map[string]any

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}

	return json.Unmarshal(data, m)
}

// Merge copies entries from other into m, overwriting existing keys. The
// merge is additive: keys absent from other survive.
func (m Metadata) Merge(other Metadata) {
	for k, v := range other {
		m[k] = v
	}
}

// CheckIn is one worker's presence record for one accepted application.
// At most one exists per application; the checkout fields are all-or-nothing
// and set at most once.
type CheckIn struct {
	ID            string     `db:"id"`
	ApplicationID string     `db:"application_id"`
	CheckedInAt   time.Time  `db:"checked_in_at"`
	CheckInLat    float64    `db:"check_in_lat"`
	CheckInLng    float64    `db:"check_in_lng"`
	CheckedOutAt  *time.Time `db:"checked_out_at"`
	CheckOutLat   *float64   `db:"check_out_lat"`
	CheckOutLng   *float64   `db:"check_out_lng"`
	DeviceInfo    Metadata   `db:"device_info"`
	CreatedAt     time.Time  `db:"created_at"`
}

// IsCheckedOut reports whether the worker has checked out.
func (c *CheckIn) IsCheckedOut() bool {
	return c.CheckedOutAt != nil
}

// WorkedHours returns the fractional hours between check-in and check-out.
// The second return value is false before checkout.
func (c *CheckIn) WorkedHours() (float64, bool) {
	if c.CheckedOutAt == nil {
		return 0, false
	}
	return c.CheckedOutAt.Sub(c.CheckedInAt).Hours(), true
}
