package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWorkingDay(t *testing.T) {
	p := testPractitioner() // Monday through Friday

	monday, err := IsWorkingDay(p, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, monday)

	saturday, err := IsWorkingDay(p, "2025-03-15")
	require.NoError(t, err)
	assert.False(t, saturday)

	sunday, err := IsWorkingDay(p, "2025-03-16")
	require.NoError(t, err)
	assert.False(t, sunday)

	_, err = IsWorkingDay(p, "not-a-date")
	assert.Error(t, err)
}

func TestWithinWorkingHours(t *testing.T) {
	p := testPractitioner() // 10:00-18:00, 30 minute consults

	tests := []struct {
		timeOfDay string
		want      bool
	}{
		{"10:00", true},
		{"09:59", false},
		{"17:30", true},
		// Consult would run past closing.
		{"17:31", false},
		{"18:00", false},
	}
	for _, tc := range tests {
		got, err := WithinWorkingHours(p, tc.timeOfDay)
		require.NoError(t, err, "time %s", tc.timeOfDay)
		assert.Equal(t, tc.want, got, "time %s", tc.timeOfDay)
	}
}

func TestCheckOrdersPolicies(t *testing.T) {
	p := testPractitioner()
	repo := freeSlotRepo()
	avail := NewAvailability(repo, nil)
	ctx := context.Background()

	// Closed day wins even when the time is also bad.
	assert.ErrorIs(t, avail.Check(ctx, p, "2025-03-15", "22:00", nil), ErrNotWorkingDay)
	assert.ErrorIs(t, avail.Check(ctx, p, "2025-03-12", "22:00", nil), ErrOutsideHours)
	assert.NoError(t, avail.Check(ctx, p, "2025-03-12", "15:00", nil))

	repo.bookedForSlot = func(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error) {
		return &Appointment{ID: uuid.New(), Status: StatusBooked}, nil
	}
	assert.ErrorIs(t, avail.Check(ctx, p, "2025-03-12", "15:00", nil), ErrSlotTaken)
}

func TestIsAvailableFailsClosed(t *testing.T) {
	repo := freeSlotRepo()
	repo.bookedForSlot = func(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error) {
		return nil, context.DeadlineExceeded
	}
	avail := NewAvailability(repo, nil)

	assert.False(t, avail.IsAvailable(context.Background(), uuid.New(), "2025-03-12", "15:00", nil))
}

func TestWithinCutoff(t *testing.T) {
	p := testPractitioner()
	now := time.Date(2025, time.March, 11, 9, 30, 0, 0, time.UTC)

	within, err := WithinCutoff(p, &Appointment{Date: "2025-03-11", Time: "11:30"}, now, "UTC")
	require.NoError(t, err)
	assert.True(t, within)

	within, err = WithinCutoff(p, &Appointment{Date: "2025-03-12", Time: "15:00"}, now, "UTC")
	require.NoError(t, err)
	assert.False(t, within)

	// Exactly on the boundary is still modifiable.
	within, err = WithinCutoff(p, &Appointment{Date: "2025-03-12", Time: "09:30"}, now, "UTC")
	require.NoError(t, err)
	assert.False(t, within)
}

func TestPractitionerLocationFallback(t *testing.T) {
	p := testPractitioner()
	p.Timezone = "Not/AZone"
	loc := p.Location("Asia/Kolkata")
	assert.Equal(t, "Asia/Kolkata", loc.String())

	p.Timezone = ""
	assert.Equal(t, time.UTC, p.Location(""))
}

func TestWorksOnMondayOrdinal(t *testing.T) {
	p := testPractitioner()
	assert.True(t, p.WorksOn(time.Monday))
	assert.True(t, p.WorksOn(time.Friday))
	assert.False(t, p.WorksOn(time.Saturday))
	assert.False(t, p.WorksOn(time.Sunday))
}
