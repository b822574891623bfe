package procurement

import (
	"errors"
	"math"
	"time"
)

// Purchase order lifecycle statuses.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusOrdered   Status = "ordered"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Order priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Tracking statuses reported on dispatched orders.
const (
	TrackingShipped   = "shipped"
	TrackingDelivered = "delivered"
)

// DefaultCarrier is used when tracking info is synthesised on dispatch.
const DefaultCarrier = "FedEx"

// SystemApprover attributes unattributed transitions.
const SystemApprover = "System"

// PurchaseOrder domain model. LineItems keep insertion order;
// ApprovalHistory is append-only.
type PurchaseOrder struct {
	ID               int64              `json:"id"`
	VendorID         int64              `json:"vendorId"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Priority         Priority           `json:"priority"`
	Status           Status             `json:"status"`
	LineItems        []LineItem         `json:"lineItems"`
	TotalAmount      float64            `json:"totalAmount"`
	ExpectedDelivery time.Time          `json:"expectedDelivery"`
	ActualDelivery   *time.Time         `json:"actualDelivery,omitempty"`
	ShippingAddress  string             `json:"shippingAddress"`
	ApprovalHistory  []TransitionRecord `json:"approvalHistory"`
	TrackingInfo     *TrackingInfo      `json:"trackingInfo,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// LineItem represents one priced unit of a purchase order. Amount is
// derived from Quantity and UnitPrice, never authoritative on its own.
type LineItem struct {
	ID          int64   `json:"-"`
	OrderID     int64   `json:"-"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// TransitionRecord is one entry of the approval history.
type TransitionRecord struct {
	ID       int64     `json:"-"`
	OrderID  int64     `json:"-"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Approver string    `json:"approver"`
	At       time.Time `json:"timestamp"`
	Notes    string    `json:"notes,omitempty"`
}

// TrackingInfo holds shipment metadata synthesised on dispatch.
type TrackingInfo struct {
	TrackingNumber    string     `json:"trackingNumber"`
	Carrier           string     `json:"carrier"`
	EstimatedDelivery time.Time  `json:"estimatedDelivery"`
	Status            string     `json:"status"`
	ActualDelivery    *time.Time `json:"actualDelivery,omitempty"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: purchase order not found")
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state for operation")
	// ErrInvalidTransition occurs when the target status is not reachable
	// from the current one.
	ErrInvalidTransition = errors.New("procurement: invalid status transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)

// transitions is the canonical forward order plus cancellation from any
// non-terminal state. Delivered and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusCancelled},
	StatusPending:   {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusOrdered, StatusCancelled},
	StatusOrdered:   {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the move from one status to another is
// allowed by the workflow.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ComputeTotal sums quantity times unit price over the line items,
// rounded to cents. Pure and side-effect free.
func ComputeTotal(items []LineItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return math.Round(total*100) / 100
}

// LineAmount computes a single line total rounded to cents.
func LineAmount(quantity int, unitPrice float64) float64 {
	return math.Round(float64(quantity)*unitPrice*100) / 100
}
