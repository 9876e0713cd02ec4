package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "coatline/internal/telemetry/domain"
)

const validTelemetry = `{
  "identity": {"line": "CL01", "product": "BLUE-200", "machine": "CM-01"},
  "machine": {"status": 1, "counter": 1234},
  "cycle": {"actual": 12.4, "standard": 12.0, "runtime_seconds": 3600},
  "ts": {"gateway": "2026-10-15T08:00:01+07:00", "system": 1760490001000}
}`

func TestDecodeTelemetry(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	sample, err := decoder.DecodeTelemetry([]byte(validTelemetry))
	require.NoError(t, err)
	assert.Equal(t, "CL01", sample.Line)
	assert.Equal(t, "BLUE-200", sample.Product)
	assert.Equal(t, "CM-01", sample.Machine)
	assert.Equal(t, 1, sample.StatusCode)
	assert.Equal(t, int64(1234), sample.Counter)
	assert.InDelta(t, 12.4, sample.CycleActual, 1e-9)
	assert.Equal(t, int64(3600), sample.RuntimeSeconds)
	assert.True(t, sample.GatewayTime.Equal(time.Date(2026, 10, 15, 1, 0, 1, 0, time.UTC)))
	assert.Equal(t, time.UnixMilli(1760490001000).UTC(), sample.SystemTime)
}

func TestDecodeTelemetryRejectsInvalidPayloads(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	cases := map[string]string{
		"not json":         `{"identity":`,
		"missing machine":  `{"identity": {"product": "A"}}`,
		"negative counter": `{"identity": {"product": "A"}, "machine": {"status": 1, "counter": -5}}`,
		"fractional code":  `{"identity": {"product": "A"}, "machine": {"status": 1.5, "counter": 5}}`,
		"bad gateway ts":   `{"identity": {"product": "A"}, "machine": {"status": 1, "counter": 5}, "ts": {"gateway": "yesterday"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decoder.DecodeTelemetry([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, telemetry.ErrMalformedPayload))
		})
	}
}

func TestDecodeAlarm(t *testing.T) {
	decoder, err := NewDecoder()
	require.NoError(t, err)

	signal, err := decoder.DecodeAlarm([]byte(`{"status":"triggered","message":"Oven temperature high","machine":"CM-01","ts":"2026-10-15T09:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "triggered", signal.Status)
	assert.Equal(t, "CM-01", signal.Machine)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), signal.Timestamp)

	signal, err = decoder.DecodeAlarm([]byte(`{"status":"recovered","message":"jam","ts":1760490001}`))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1760490001, 0).UTC(), signal.Timestamp)

	_, err = decoder.DecodeAlarm([]byte(`{"status":"triggered"}`))
	assert.True(t, errors.Is(err, telemetry.ErrMalformedPayload))
}
