package procurement

import (
	"fmt"
	"time"
)

// LineItemInput describes one requested line.
type LineItemInput struct {
	Description string  `json:"description" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
}

// CreateOrderInput describes the creation payload.
type CreateOrderInput struct {
	VendorID         int64           `json:"vendorId" validate:"required,gt=0"`
	Title            string          `json:"title" validate:"required"`
	Description      string          `json:"description"`
	Priority         Priority        `json:"priority" validate:"omitempty,oneof=low medium high"`
	ExpectedDelivery time.Time       `json:"expectedDelivery" validate:"required"`
	ShippingAddress  string          `json:"shippingAddress"`
	LineItems        []LineItemInput `json:"lineItems" validate:"required,min=1,dive"`
}

// OrderPatch carries partial field changes for an existing order. Status,
// approval history, id, and creation time are deliberately not
// representable here; they change only through Transition or never.
type OrderPatch struct {
	VendorID         *int64          `json:"vendorId,omitempty"`
	Title            *string         `json:"title,omitempty"`
	Description      *string         `json:"description,omitempty"`
	Priority         *Priority       `json:"priority,omitempty"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery,omitempty"`
	ShippingAddress  *string         `json:"shippingAddress,omitempty"`
	LineItems        []LineItemInput `json:"lineItems,omitempty"`
}

// TransitionInput describes a requested status transition.
type TransitionInput struct {
	Target   Status `json:"status" validate:"required"`
	Approver string `json:"approver"`
	Notes    string `json:"notes"`
}

// ListFilters narrow order listings.
type ListFilters struct {
	Status   Status
	VendorID int64
	Search   string
	SortBy   string
	SortDir  string
}

func validateLines(lines []LineItemInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line item required", ErrValidation)
	}
	for i, line := range lines {
		if line.Description == "" {
			return fmt.Errorf("%w: line %d missing description", ErrValidation, i+1)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i+1)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: line %d unit price must not be negative", ErrValidation, i+1)
		}
	}
	return nil
}

func buildLineItems(orderID int64, lines []LineItemInput) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, LineItem{
			OrderID:     orderID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      LineAmount(line.Quantity, line.UnitPrice),
		})
	}
	return items
}
