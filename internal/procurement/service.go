package procurement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/atelier-studio/atelier-crm/internal/shared"
)

// VendorDirectory is the read-only lookup used to confirm a vendor
// reference before an order is created or repointed.
type VendorDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the purchase-order workflow.
type Service struct {
	repo        RepositoryPort
	vendors     VendorDirectory
	clock       shared.Clock
	audit       AuditPort
	notifier    Notifier
	idempotency IdempotencyPort
}

// NewService constructs the workflow service. Vendors, audit, notifier and
// idempotency may be nil; the repository and clock are required.
func NewService(repo RepositoryPort, vendors VendorDirectory, clock shared.Clock, audit AuditPort, notifier Notifier, idem IdempotencyPort) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, vendors: vendors, clock: clock, audit: audit, notifier: notifier, idempotency: idem}
}

// Create persists a new order in draft with an empty approval history and
// no tracking info. The total is derived from the supplied line items.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if err := validateLines(input.LineItems); err != nil {
		return PurchaseOrder{}, err
	}
	if input.VendorID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: vendor required", ErrValidation)
	}
	if input.Title == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if s.vendors != nil {
		ok, err := s.vendors.Exists(ctx, input.VendorID)
		if err != nil {
			return PurchaseOrder{}, err
		}
		if !ok {
			return PurchaseOrder{}, fmt.Errorf("%w: vendor %d unknown", ErrValidation, input.VendorID)
		}
	}

	now := s.clock.Now()
	po := PurchaseOrder{
		VendorID:         input.VendorID,
		Title:            input.Title,
		Description:      input.Description,
		Priority:         defaultPriority(input.Priority),
		Status:           StatusDraft,
		ExpectedDelivery: input.ExpectedDelivery,
		ShippingAddress:  input.ShippingAddress,
		TotalAmount:      ComputeTotal(buildLineItems(0, input.LineItems)),
		ApprovalHistory:  []TransitionRecord{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		po.LineItems = buildLineItems(id, input.LineItems)
		for _, line := range po.LineItems {
			if err := tx.InsertLineItem(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, SystemApprover, "PO_CREATE", po.ID, map[string]any{"vendor_id": po.VendorID, "total": po.TotalAmount})
	return po, nil
}

// Update merges the patch into an existing order. Status and approval
// history are untouchable here; only Transition changes them.
func (s *Service) Update(ctx context.Context, id int64, patch OrderPatch) (PurchaseOrder, error) {
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}

	if patch.VendorID != nil {
		if *patch.VendorID <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: vendor required", ErrValidation)
		}
		if s.vendors != nil {
			ok, err := s.vendors.Exists(ctx, *patch.VendorID)
			if err != nil {
				return PurchaseOrder{}, err
			}
			if !ok {
				return PurchaseOrder{}, fmt.Errorf("%w: vendor %d unknown", ErrValidation, *patch.VendorID)
			}
		}
		po.VendorID = *patch.VendorID
	}
	if patch.Title != nil {
		if *patch.Title == "" {
			return PurchaseOrder{}, fmt.Errorf("%w: title required", ErrValidation)
		}
		po.Title = *patch.Title
	}
	if patch.Description != nil {
		po.Description = *patch.Description
	}
	if patch.Priority != nil {
		switch *patch.Priority {
		case PriorityLow, PriorityMedium, PriorityHigh:
			po.Priority = *patch.Priority
		default:
			return PurchaseOrder{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, *patch.Priority)
		}
	}
	if patch.ExpectedDelivery != nil {
		po.ExpectedDelivery = *patch.ExpectedDelivery
	}
	if patch.ShippingAddress != nil {
		po.ShippingAddress = *patch.ShippingAddress
	}

	linesChanged := patch.LineItems != nil
	if linesChanged {
		if err := validateLines(patch.LineItems); err != nil {
			return PurchaseOrder{}, err
		}
		po.LineItems = buildLineItems(po.ID, patch.LineItems)
		po.TotalAmount = ComputeTotal(po.LineItems)
	}
	po.UpdatedAt = s.clock.Now()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderFields(ctx, po); err != nil {
			return err
		}
		if linesChanged {
			return tx.ReplaceLineItems(ctx, po.ID, po.LineItems)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, SystemApprover, "PO_UPDATE", po.ID, map[string]any{"total": po.TotalAmount})
	return po, nil
}

// Transition moves the order to the target status, appending a record to
// the approval history. Illegal jumps are rejected against the workflow
// transition table, and the status guard is repeated inside the
// transaction so two clients racing from the same snapshot cannot both
// append a record.
func (s *Service) Transition(ctx context.Context, id int64, input TransitionInput) (PurchaseOrder, error) {
	if !ValidStatus(input.Target) {
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", ErrValidation, input.Target)
	}
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !CanTransition(po.Status, input.Target) {
		return PurchaseOrder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, po.Status, input.Target)
	}

	now := s.clock.Now()
	approver := input.Approver
	if approver == "" {
		approver = SystemApprover
	}
	rec := TransitionRecord{
		OrderID:  po.ID,
		From:     po.Status,
		To:       input.Target,
		Approver: approver,
		At:       now,
		Notes:    input.Notes,
	}

	var tracking *TrackingInfo
	if input.Target == StatusOrdered {
		tracking = &TrackingInfo{
			TrackingNumber:    newTrackingNumber(),
			Carrier:           DefaultCarrier,
			EstimatedDelivery: po.ExpectedDelivery,
			Status:            TrackingShipped,
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, po.ID, po.Status, input.Target, now); err != nil {
			return err
		}
		if err := tx.AppendTransition(ctx, rec); err != nil {
			return err
		}
		if tracking != nil {
			if err := tx.SetTracking(ctx, po.ID, *tracking, now); err != nil {
				return err
			}
		}
		if input.Target == StatusDelivered {
			if err := tx.SetActualDelivery(ctx, po.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	po.Status = input.Target
	po.UpdatedAt = now
	po.ApprovalHistory = append(po.ApprovalHistory, rec)
	if tracking != nil {
		po.TrackingInfo = tracking
	}
	if input.Target == StatusDelivered {
		at := now
		po.ActualDelivery = &at
		if po.TrackingInfo != nil {
			po.TrackingInfo.Status = TrackingDelivered
			po.TrackingInfo.ActualDelivery = &at
		}
	}

	s.recordAudit(ctx, approver, "PO_TRANSITION", po.ID, map[string]any{"from": rec.From, "to": rec.To})
	if s.notifier != nil {
		evt := TransitionEvent{
			OrderID:  po.ID,
			VendorID: po.VendorID,
			Title:    po.Title,
			From:     rec.From,
			To:       rec.To,
			Approver: approver,
			At:       now,
		}
		if po.TrackingInfo != nil {
			evt.TrackingNumber = po.TrackingInfo.TrackingNumber
		}
		_ = s.notifier.NotifyTransition(ctx, evt)
	}
	return po, nil
}

// Delete removes a draft order. Orders that have entered the approval
// pipeline are permanent.
func (s *Service) Delete(ctx context.Context, id int64) error {
	po, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != StatusDraft {
		return fmt.Errorf("%w: cannot delete %s order", ErrInvalidState, po.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, SystemApprover, "PO_DELETE", id, nil)
	return nil
}

// Get returns one order aggregate.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders matching filters plus a total count.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	if filters.Status != "" && !ValidStatus(filters.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filters.Status)
	}
	return s.repo.ListOrders(ctx, limit, offset, filters)
}

// ListByStatus filters the collection by lifecycle status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]PurchaseOrder, error) {
	orders, _, err := s.List(ctx, 0, 0, ListFilters{Status: status})
	return orders, err
}

// ListByVendor filters the collection by vendor reference.
func (s *Service) ListByVendor(ctx context.Context, vendorID int64) ([]PurchaseOrder, error) {
	orders, _, err := s.repo.ListOrders(ctx, 0, 0, ListFilters{VendorID: vendorID})
	return orders, err
}

// CreateIdempotent wraps Create with an idempotency-key guard. A replayed
// key fails with shared.ErrIdempotencyConflict before any write happens.
func (s *Service) CreateIdempotent(ctx context.Context, key string, input CreateOrderInput) (PurchaseOrder, error) {
	if key == "" || s.idempotency == nil {
		return s.Create(ctx, input)
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.po"); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.Create(ctx, input)
	if err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = SystemApprover
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func defaultPriority(p Priority) Priority {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	default:
		return PriorityMedium
	}
}

func newTrackingNumber() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TRK-" + token[:8]
}
