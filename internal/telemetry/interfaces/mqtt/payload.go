package mqtt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	telemetry "coatline/internal/telemetry/domain"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	telemetrySchemaName = "schema/telemetry.json"
	alarmSchemaName     = "schema/alarm.json"
)

// Decoder validates and decodes line payloads.
type Decoder struct {
	telemetrySchema *jsonschema.Schema
	alarmSchema     *jsonschema.Schema
}

// NewDecoder compiles the embedded payload schemas.
func NewDecoder() (*Decoder, error) {
	telemetrySchema, err := compileSchema(telemetrySchemaName)
	if err != nil {
		return nil, err
	}
	alarmSchema, err := compileSchema(alarmSchemaName)
	if err != nil {
		return nil, err
	}
	return &Decoder{telemetrySchema: telemetrySchema, alarmSchema: alarmSchema}, nil
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

type telemetryPayload struct {
	Identity struct {
		Line    string `json:"line"`
		Product string `json:"product"`
		Machine string `json:"machine"`
	} `json:"identity"`
	Machine struct {
		Status  int   `json:"status"`
		Counter int64 `json:"counter"`
	} `json:"machine"`
	Cycle struct {
		Actual         float64 `json:"actual"`
		Standard       float64 `json:"standard"`
		RuntimeSeconds int64   `json:"runtime_seconds"`
	} `json:"cycle"`
	TS struct {
		Gateway string `json:"gateway"`
		System  int64  `json:"system"`
	} `json:"ts"`
}

type alarmPayload struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Machine string          `json:"machine"`
	TS      json.RawMessage `json:"ts"`
}

// DecodeTelemetry validates a telemetry message and converts it to a sample.
func (d *Decoder) DecodeTelemetry(payload []byte) (telemetry.Sample, error) {
	if err := validate(d.telemetrySchema, payload); err != nil {
		return telemetry.Sample{}, err
	}
	var msg telemetryPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return telemetry.Sample{}, fmt.Errorf("%w: %v", telemetry.ErrMalformedPayload, err)
	}

	sample := telemetry.Sample{
		Line:           strings.TrimSpace(msg.Identity.Line),
		Product:        strings.TrimSpace(msg.Identity.Product),
		Machine:        strings.TrimSpace(msg.Identity.Machine),
		StatusCode:     msg.Machine.Status,
		Counter:        msg.Machine.Counter,
		CycleActual:    msg.Cycle.Actual,
		CycleStandard:  msg.Cycle.Standard,
		RuntimeSeconds: msg.Cycle.RuntimeSeconds,
	}
	if msg.TS.Gateway != "" {
		gateway, err := time.Parse(time.RFC3339Nano, msg.TS.Gateway)
		if err != nil {
			return telemetry.Sample{}, fmt.Errorf("%w: ts.gateway must be RFC3339", telemetry.ErrMalformedPayload)
		}
		sample.GatewayTime = gateway
	}
	if msg.TS.System != 0 {
		system, err := parseTimestamp(msg.TS.System)
		if err != nil {
			return telemetry.Sample{}, fmt.Errorf("%w: ts.system: %v", telemetry.ErrMalformedPayload, err)
		}
		sample.SystemTime = system
	}
	return sample, nil
}

// DecodeAlarm validates an alarm message and converts it to a signal.
func (d *Decoder) DecodeAlarm(payload []byte) (telemetry.AlarmSignal, error) {
	if err := validate(d.alarmSchema, payload); err != nil {
		return telemetry.AlarmSignal{}, err
	}
	var msg alarmPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return telemetry.AlarmSignal{}, fmt.Errorf("%w: %v", telemetry.ErrMalformedPayload, err)
	}
	signal := telemetry.AlarmSignal{
		Machine: strings.TrimSpace(msg.Machine),
		Status:  msg.Status,
		Message: msg.Message,
	}
	ts, err := parseAlarmTimestamp(msg.TS)
	if err != nil {
		return telemetry.AlarmSignal{}, fmt.Errorf("%w: ts: %v", telemetry.ErrMalformedPayload, err)
	}
	signal.Timestamp = ts
	return signal, nil
}

func validate(schema *jsonschema.Schema, payload []byte) error {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: %v", telemetry.ErrMalformedPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", telemetry.ErrMalformedPayload, err)
	}
	return nil
}

func parseAlarmTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return time.Parse(time.RFC3339Nano, text)
	}
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(value)
}

func parseTimestamp(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid ts")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}
