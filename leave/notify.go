package leave

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// NOTIFIER - Outbound notification collaborator (delivery is external)
// =============================================================================

type EventType string

const (
	EventRequestSubmitted EventType = "request_submitted"
	EventRequestApproved  EventType = "request_approved"
	EventRequestRejected  EventType = "request_rejected"
	EventPreResetNotice   EventType = "pre_reset_notice"
)

// Notification is the dispatch payload. Delivery (email, in-app) happens
// outside this engine.
type Notification struct {
	Event         EventType
	EmployeeIDs   []string
	PolicyID      string
	EffectiveDate engine.Date
	RequestID     string // set for request lifecycle events
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier records dispatches without delivering anything. Used in
// tests and as the default when no delivery backend is wired.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info("notification dispatched",
		zap.String("event", string(note.Event)),
		zap.Int("recipients", len(note.EmployeeIDs)),
		zap.String("policy", note.PolicyID),
		zap.String("effective", note.EffectiveDate.String()),
	)
	return nil
}
