package notify

import (
	"context"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/alerts"
)

// Status is the delivery outcome recorded in notification history.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Record is one entry in notification history. Conditions carries the
// resolved metric values that gated the send, for audit.
type Record struct {
	ID         string
	Timestamp  time.Time
	Channel    ChannelType
	Target     string
	Template   string
	Severity   alerts.Level
	Status     Status
	Error      string
	Conditions []alerts.ConditionResult
	BatchSize  int
}

// HistoryStore persists notification delivery records.
type HistoryStore interface {
	SaveNotification(ctx context.Context, rec *Record) error
}
