package models

import "time"

// Health status values.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// Health is the body of the health and readiness endpoints.
type Health struct {
	Status  string                 `json:"status"`
	Time    time.Time              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DispatchStats is the body of the ops dispatch-statistics endpoint. The
// counters cover notify-external deliveries handled by this process since it
// started.
type DispatchStats struct {
	Delivered int64     `json:"delivered"`
	Failed    int64     `json:"failed"`
	Rejected  int64     `json:"rejected"`
	Since     time.Time `json:"since"`
}

// NotifyResult is the success body of the notify-external endpoint.
type NotifyResult struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
}
