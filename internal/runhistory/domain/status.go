package runhistory

import "fmt"

// Status is a machine run-state label.
type Status string

const (
	StatusOff               Status = "OFF"
	StatusRunning           Status = "RUNNING"
	StatusMalfunction       Status = "MALFUNCTION"
	StatusScheduledDowntime Status = "SCHEDULED_DOWNTIME"
	StatusChangeover        Status = "CHANGEOVER"
)

// statusCodes maps machine-reported numeric codes to labels.
var statusCodes = map[int]Status{
	0: StatusOff,
	1: StatusRunning,
	2: StatusMalfunction,
	3: StatusScheduledDowntime,
	4: StatusChangeover,
}

// StatusFromCode converts a machine status code.
func StatusFromCode(code int) (Status, error) {
	status, ok := statusCodes[code]
	if !ok {
		return "", fmt.Errorf("%w: code %d", ErrUnknownStatus, code)
	}
	return status, nil
}

// ParseStatus validates a stored status label.
func ParseStatus(value string) (Status, error) {
	status := Status(value)
	for _, known := range statusCodes {
		if known == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

// Code returns the numeric code of the status, or -1 when unknown.
func (s Status) Code() int {
	for code, status := range statusCodes {
		if status == s {
			return code
		}
	}
	return -1
}
