package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shift "coatline/internal/shift/domain"
)

const sampleYAML = `
database:
  url: postgres://coat:coat@db:5432/coatline
redis:
  addr: redis:6379
mqtt:
  broker: tcp://broker:1883
  qos: 0
engine:
  lock_timeout: 2s
plant:
  timezone: UTC
  day_boundary: "07:30"
lines:
  - code: CL01
    name: Coating Line 1
    targets:
      - {hour: 8, qty: 100}
      - {hour: 9, qty: 120}
  - code: CL02
    telemetry: plant/cl2/data
shifts:
  - {schedule: NORMAL, code: S1, start: "07:30", end: "15:30"}
  - {schedule: NORMAL, code: S2, start: "15:30", end: "23:30"}
breaks:
  - {schedule: NORMAL, start: "12:00", end: "12:30"}
ramadan:
  from: "2026-02-18"
  to: "2026-03-19"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coatline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load([]string{"--config", writeConfig(t, sampleYAML)})
	require.NoError(t, err)

	assert.Equal(t, "postgres://coat:coat@db:5432/coatline", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, time.Second, cfg.PublishInterval)
	assert.Equal(t, shift.MustClockTime("07:30"), cfg.DayBoundary)
	assert.Equal(t, time.UTC, cfg.Location)

	require.Len(t, cfg.Seed.Lines, 2)
	assert.Equal(t, "plant/cl2/data", cfg.Seed.Lines[1].Telemetry)
	assert.Equal(t, "Coating Line 1", cfg.Seed.Lines[0].Name)
	assert.Equal(t, int64(120), cfg.Seed.Lines[0].TargetMap()[9])
	require.Len(t, cfg.Seed.Shifts, 2)
	assert.Equal(t, shift.MustClockTime("15:30"), cfg.Seed.Shifts[0].End)
	require.Len(t, cfg.Seed.Breaks, 1)
	assert.True(t, cfg.Ramadan.Contains(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("COATLINE_REDIS_ADDR", "cache:6380")
	t.Setenv("COATLINE_ENGINE_PUBLISH_INTERVAL", "500ms")
	cfg, err := Load([]string{"--config", writeConfig(t, sampleYAML), "--http-addr", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.PublishInterval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	t.Setenv("COATLINE_DATABASE_URL", "")
	t.Setenv("PG_DSN", "postgres://localhost/coatline")
	t.Setenv("COATLINE_PLANT_LINES", "CL01, CL02,,CL03")
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/coatline", cfg.DatabaseURL)
	require.Len(t, cfg.Seed.Lines, 3)
	assert.Equal(t, "CL03", cfg.Seed.Lines[2].Code)
	assert.Equal(t, DefaultShifts(), cfg.Seed.Shifts)
	assert.Equal(t, shift.DefaultDayBoundary, cfg.DayBoundary)
	assert.Equal(t, "Asia/Jakarta", cfg.Location.String())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"no lines":        "database: {url: postgres://x}\n",
		"duplicate lines": "database: {url: postgres://x}\nlines: [{code: A}, {code: A}]\n",
		"bad boundary":    "database: {url: postgres://x}\nlines: [{code: A}]\nplant: {day_boundary: '25:00'}\n",
		"bad schedule":    "database: {url: postgres://x}\nlines: [{code: A}]\nshifts: [{schedule: WEEKEND, code: S1, start: '08:00', end: '16:00'}]\n",
		"bad ramadan":     "database: {url: postgres://x}\nlines: [{code: A}]\nramadan: {from: '2026-03-19', to: '2026-02-18'}\n",
		"bad qos":         "database: {url: postgres://x}\nlines: [{code: A}]\nmqtt: {qos: 3}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PG_DSN", "")
			t.Setenv("COATLINE_PLANT_LINES", "")
			_, err := Load([]string{"--config", writeConfig(t, body)})
			assert.Error(t, err)
		})
	}
}

func TestScheduleUsesStoredWindows(t *testing.T) {
	cfg := Config{Seed: Seed{Shifts: DefaultShifts()}, DayBoundary: shift.DefaultDayBoundary, Location: time.UTC}
	stored := []shift.Window{{Schedule: shift.ScheduleNormal, Code: "D1", Start: shift.MustClockTime("06:00"), End: shift.MustClockTime("18:00")}}

	assert.Len(t, cfg.Schedule(nil).Windows, 4)
	assert.Equal(t, "D1", cfg.Schedule(stored).Windows[0].Code)
}
