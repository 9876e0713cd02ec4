package linestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCounterSequence(t *testing.T) {
	state := New("CL01")
	var deltas []int64
	for _, raw := range []int64{100, 140, 40, 90} {
		deltas = append(deltas, state.Apply(raw))
	}
	require.Equal(t, []int64{100, 40, 40, 50}, deltas)
	require.Equal(t, int64(230), state.DailyAccumulated)
	require.Equal(t, int64(90), state.LastRawCounter)
}

func TestApplyRollbackNeverDecreases(t *testing.T) {
	state := New("CL01")
	previous := int64(0)
	for _, raw := range []int64{500, 20, 0, 10, 3, 700, 1} {
		state.Apply(raw)
		require.GreaterOrEqual(t, state.DailyAccumulated, previous)
		previous = state.DailyAccumulated
	}
}

func TestApplyZeroKeepsBaseline(t *testing.T) {
	state := New("CL01")
	state.Apply(120)
	require.Equal(t, int64(0), state.Apply(0))
	require.Equal(t, int64(120), state.LastRawCounter)
	require.Equal(t, int64(5), state.Apply(125))
}

func TestResetDayOncePerBoundary(t *testing.T) {
	loc := time.UTC
	dayStart := time.Date(2026, 10, 15, 8, 0, 0, 0, loc)
	state := State{
		LineID:           "CL01",
		LastRawCounter:   900,
		DailyAccumulated: 4000,
		LastReset:        dayStart.AddDate(0, 0, -1),
	}

	first := dayStart.Add(3 * time.Second)
	require.True(t, state.ResetDay(dayStart, first))
	state.Apply(15)
	require.Equal(t, int64(15), state.DailyAccumulated)
	require.Equal(t, first, state.LastReset)

	require.False(t, state.ResetDay(dayStart, first.Add(time.Minute)))
	state.Apply(25)
	require.Equal(t, int64(25), state.DailyAccumulated)
}

func TestUpdateBaseline(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	state := New("CL01")

	require.True(t, state.UpdateBaseline(true, "BLUE", 100, now))
	assert.Equal(t, "BLUE", state.Model)
	assert.Equal(t, int64(100), state.BaselineCounter)

	require.False(t, state.UpdateBaseline(true, "BLUE", 150, now.Add(time.Minute)))
	require.False(t, state.UpdateBaseline(false, "RED", 160, now.Add(2*time.Minute)))
	assert.Equal(t, "BLUE", state.Model)
	assert.Equal(t, int64(100), state.BaselineCounter)

	later := now.Add(3 * time.Minute)
	require.True(t, state.UpdateBaseline(true, "RED", 170, later))
	assert.Equal(t, "RED", state.Model)
	assert.Equal(t, int64(170), state.BaselineCounter)
	assert.Equal(t, later, state.BaselineInstant)
}

func TestModelRunCountAndThroughput(t *testing.T) {
	state := State{BaselineCounter: 100}
	assert.Equal(t, int64(50), state.ModelRunCount(150))
	assert.Equal(t, int64(30), state.ModelRunCount(30))

	assert.Equal(t, int64(50), HourlyThroughput(50, 45))
	assert.Equal(t, int64(50), HourlyThroughput(50, 60))
	assert.Equal(t, int64(100), HourlyThroughput(150, 90))
	assert.Equal(t, int64(33), HourlyThroughput(100, 180))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "coatline:line:CL01:pcs_day", Key("CL01", FieldDailyAccumulated))
	assert.Equal(t, "plant2:CL01:LastModel", KeyWithPrefix("plant2:", "CL01", FieldModel))
	assert.Equal(t, "coatline:line:CL01:StartActual", KeyWithPrefix("", "CL01", FieldBaselineCounter))
	assert.Len(t, Fields, 6)
}
