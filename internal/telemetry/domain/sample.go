package telemetry

import "time"

// Sample is one decoded machine telemetry message of a line.
type Sample struct {
	Line           string
	Product        string
	Machine        string
	StatusCode     int
	Counter        int64
	CycleActual    float64
	CycleStandard  float64
	RuntimeSeconds int64
	GatewayTime    time.Time
	SystemTime     time.Time
}

// ObservedAt returns the gateway timestamp, falling back to the system timestamp.
func (s Sample) ObservedAt() time.Time {
	if !s.GatewayTime.IsZero() {
		return s.GatewayTime
	}
	return s.SystemTime
}

// AlarmSignal is one decoded alarm message of a line.
type AlarmSignal struct {
	Line      string
	Machine   string
	Status    string
	Message   string
	Timestamp time.Time
}

// Aggregate is the normalized per-line snapshot republished on the ack topic.
type Aggregate struct {
	ID                string    `json:"id"`
	Line              string    `json:"line"`
	Machine           string    `json:"machine"`
	Model             string    `json:"model"`
	Status            string    `json:"status"`
	StatusCode        int       `json:"status_code"`
	CycleActual       float64   `json:"cycle_actual"`
	CycleStandard     float64   `json:"cycle_standard"`
	RuntimeSeconds    int64     `json:"runtime_seconds"`
	RawCounter        int64     `json:"raw_counter"`
	DailyActual       int64     `json:"daily_actual"`
	PlanID            int64     `json:"plan_id"`
	PlanQty           int64     `json:"plan_qty"`
	Progress          float64   `json:"progress"`
	Target            float64   `json:"target"`
	OA                float64   `json:"oa"`
	HourlyThroughput  int64     `json:"hourly_throughput"`
	ShiftMode         string    `json:"shift_mode"`
	ShiftCode         string    `json:"shift_code"`
	SecondsToShiftEnd int64     `json:"seconds_to_shift_end"`
	GapSeconds        int64     `json:"gap_seconds"`
	GatewayTime       time.Time `json:"gateway_time"`
	SystemTime        time.Time `json:"system_time"`
	ProcessedAt       time.Time `json:"processed_at"`
}
