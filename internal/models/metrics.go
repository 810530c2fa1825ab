package models

import "time"

// SystemMetrics is the aggregated snapshot served to admin dashboards.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LeavesSubmitted          uint64    `json:"leaves_submitted"`
	RemindersSent            uint64    `json:"reminders_sent"`
	CoversAssigned           uint64    `json:"covers_assigned"`
	WebhooksReceived         uint64    `json:"webhooks_received"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
