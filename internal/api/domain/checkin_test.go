package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckIn_WorkedHours(t *testing.T) {
	checkedIn := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)

	checkin := &CheckIn{CheckedInAt: checkedIn}
	_, ok := checkin.WorkedHours()
	assert.False(t, ok, "worked hours undefined before checkout")
	assert.False(t, checkin.IsCheckedOut())

	checkedOut := checkedIn.Add(2*time.Hour + 30*time.Minute)
	checkin.CheckedOutAt = &checkedOut

	hours, ok := checkin.WorkedHours()
	require.True(t, ok)
	assert.InDelta(t, 2.5, hours, 1e-9)
	assert.True(t, checkin.IsCheckedOut())
}

func TestMetadata_Merge(t *testing.T) {
	existing := Metadata{"os": "android", "app_version": "1.2.0"}
	existing.Merge(Metadata{"app_version": "1.3.0", "battery": 80})

	assert.Equal(t, "android", existing["os"], "untouched keys survive the merge")
	assert.Equal(t, "1.3.0", existing["app_version"])
	assert.Equal(t, 80, existing["battery"])
}

func TestMetadata_ScanValue(t *testing.T) {
	m := Metadata{"device": "pixel-9"}

	raw, err := m.Value()
	require.NoError(t, err)

	var decoded Metadata
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, "pixel-9", decoded["device"])

	var empty Metadata
	require.NoError(t, empty.Scan(nil))
	assert.NotNil(t, empty)

	assert.Error(t, empty.Scan(42))
}
