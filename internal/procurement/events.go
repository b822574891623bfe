package procurement

import (
	"context"
	"time"
)

// TransitionEvent captures details of a completed status transition for
// downstream consumers (notifications, tracking sync).
type TransitionEvent struct {
	OrderID        int64
	VendorID       int64
	Title          string
	From           Status
	To             Status
	Approver       string
	At             time.Time
	TrackingNumber string
}

// Notifier receives workflow events after they are committed. Failures
// must not affect the workflow outcome.
type Notifier interface {
	NotifyTransition(ctx context.Context, evt TransitionEvent) error
}
