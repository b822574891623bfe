package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPONotify announces a purchase-order status transition.
	TaskPONotify = "po:notify"
)

// NotifyTransitionPayload describes a completed status transition.
type NotifyTransitionPayload struct {
	OrderID        int64     `json:"orderId"`
	VendorID       int64     `json:"vendorId"`
	Title          string    `json:"title"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Approver       string    `json:"approver"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	At             time.Time `json:"at"`
}

// NewNotifyTransitionTask constructs an Asynq task.
func NewNotifyTransitionTask(payload NotifyTransitionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPONotify, data, asynq.Queue(QueueDefault)), nil
}

// NewNotifyHandler processes TaskPONotify tasks. Delivery is a log line
// until the mail channel lands; the payload shape is final.
func NewNotifyHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyTransitionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("purchase order transition",
			slog.Int64("order_id", payload.OrderID),
			slog.Int64("vendor_id", payload.VendorID),
			slog.String("from", payload.From),
			slog.String("to", payload.To),
			slog.String("approver", payload.Approver),
		)
		return nil
	}
}
