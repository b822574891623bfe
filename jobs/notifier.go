package jobs

import (
	"context"

	"github.com/atelier-studio/atelier-crm/internal/procurement"
)

// QueueNotifier forwards purchase-order transitions onto the job queue.
// It satisfies the procurement service's notifier port.
type QueueNotifier struct {
	client *Client
}

// NewQueueNotifier constructs the adapter.
func NewQueueNotifier(client *Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// NotifyTransition enqueues a TaskPONotify task for the event.
func (n *QueueNotifier) NotifyTransition(ctx context.Context, evt procurement.TransitionEvent) error {
	if n == nil || n.client == nil {
		return nil
	}
	_, err := n.client.EnqueueNotifyTransition(ctx, NotifyTransitionPayload{
		OrderID:        evt.OrderID,
		VendorID:       evt.VendorID,
		Title:          evt.Title,
		From:           string(evt.From),
		To:             string(evt.To),
		Approver:       evt.Approver,
		TrackingNumber: evt.TrackingNumber,
		At:             evt.At,
	})
	return err
}
