package procurement

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelier-studio/atelier-crm/internal/shared"
)

type memoryOrderRepo struct {
	orders      map[int64]PurchaseOrder
	lines       map[int64][]LineItem
	transitions map[int64][]TransitionRecord
	nextID      int64
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders:      make(map[int64]PurchaseOrder),
		lines:       make(map[int64][]LineItem),
		transitions: make(map[int64][]TransitionRecord),
	}
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryOrderTx{repo: r})
}

func (r *memoryOrderRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.LineItems = append([]LineItem(nil), r.lines[id]...)
	po.ApprovalHistory = append([]TransitionRecord{}, r.transitions[id]...)
	return po, nil
}

func (r *memoryOrderRepo) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	var matched []PurchaseOrder
	for id := int64(1); id <= r.nextID; id++ {
		po, ok := r.orders[id]
		if !ok {
			continue
		}
		if filters.Status != "" && po.Status != filters.Status {
			continue
		}
		if filters.VendorID > 0 && po.VendorID != filters.VendorID {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(po.Title), strings.ToLower(filters.Search)) {
			continue
		}
		po.LineItems = append([]LineItem(nil), r.lines[id]...)
		po.ApprovalHistory = append([]TransitionRecord{}, r.transitions[id]...)
		matched = append(matched, po)
	}
	total := len(matched)
	if limit > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			end := offset + limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[offset:end]
		}
	}
	return matched, total, nil
}

func (tx *memoryOrderTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryOrderTx) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	id := tx.nextID()
	po.ID = id
	po.LineItems = nil
	po.ApprovalHistory = nil
	tx.repo.orders[id] = po
	return id, nil
}

func (tx *memoryOrderTx) InsertLineItem(ctx context.Context, line LineItem) error {
	line.ID = int64(len(tx.repo.lines[line.OrderID]) + 1)
	tx.repo.lines[line.OrderID] = append(tx.repo.lines[line.OrderID], line)
	return nil
}

func (tx *memoryOrderTx) ReplaceLineItems(ctx context.Context, orderID int64, lines []LineItem) error {
	tx.repo.lines[orderID] = nil
	for _, line := range lines {
		line.OrderID = orderID
		if err := tx.InsertLineItem(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryOrderTx) UpdateOrderFields(ctx context.Context, po PurchaseOrder) error {
	existing, ok := tx.repo.orders[po.ID]
	if !ok {
		return ErrNotFound
	}
	existing.VendorID = po.VendorID
	existing.Title = po.Title
	existing.Description = po.Description
	existing.Priority = po.Priority
	existing.TotalAmount = po.TotalAmount
	existing.ExpectedDelivery = po.ExpectedDelivery
	existing.ShippingAddress = po.ShippingAddress
	existing.UpdatedAt = po.UpdatedAt
	tx.repo.orders[po.ID] = existing
	return nil
}

func (tx *memoryOrderTx) UpdateStatus(ctx context.Context, id int64, from, to Status, updatedAt time.Time) error {
	po, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	if po.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	po.Status = to
	po.UpdatedAt = updatedAt
	tx.repo.orders[id] = po
	return nil
}

func (tx *memoryOrderTx) AppendTransition(ctx context.Context, rec TransitionRecord) error {
	rec.ID = int64(len(tx.repo.transitions[rec.OrderID]) + 1)
	tx.repo.transitions[rec.OrderID] = append(tx.repo.transitions[rec.OrderID], rec)
	return nil
}

func (tx *memoryOrderTx) SetTracking(ctx context.Context, orderID int64, info TrackingInfo, updatedAt time.Time) error {
	po, ok := tx.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	po.TrackingInfo = &info
	po.UpdatedAt = updatedAt
	tx.repo.orders[orderID] = po
	return nil
}

func (tx *memoryOrderTx) SetActualDelivery(ctx context.Context, orderID int64, at time.Time) error {
	po, ok := tx.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	delivered := at
	po.ActualDelivery = &delivered
	if po.TrackingInfo != nil {
		info := *po.TrackingInfo
		info.Status = TrackingDelivered
		info.ActualDelivery = &delivered
		po.TrackingInfo = &info
	}
	po.UpdatedAt = at
	tx.repo.orders[orderID] = po
	return nil
}

func (tx *memoryOrderTx) DeleteOrder(ctx context.Context, id int64) error {
	po, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	if po.Status != StatusDraft {
		return fmt.Errorf("%w: cannot delete %s order", ErrInvalidState, po.Status)
	}
	delete(tx.repo.orders, id)
	delete(tx.repo.lines, id)
	delete(tx.repo.transitions, id)
	return nil
}

// staleReadRepo serves a captured snapshot from GetOrder while the
// underlying store moves on, mimicking a client that read the order
// before a concurrent commit.
type staleReadRepo struct {
	*memoryOrderRepo
	stale PurchaseOrder
}

func (r *staleReadRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id == r.stale.ID {
		return r.stale, nil
	}
	return r.memoryOrderRepo.GetOrder(ctx, id)
}

type stubVendors struct {
	known map[int64]bool
}

func (s stubVendors) Exists(ctx context.Context, id int64) (bool, error) {
	return s.known[id], nil
}

type captureNotifier struct {
	events []TransitionEvent
}

func (n *captureNotifier) NotifyTransition(ctx context.Context, evt TransitionEvent) error {
	n.events = append(n.events, evt)
	return nil
}

type captureAudit struct {
	logs []shared.AuditLog
}

func (a *captureAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func testInput() CreateOrderInput {
	return CreateOrderInput{
		VendorID:         7,
		Title:            "Living room fit-out",
		Description:      "Phase one furniture",
		Priority:         PriorityHigh,
		ExpectedDelivery: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		ShippingAddress:  "12 Harbour Lane",
		LineItems: []LineItemInput{
			{Description: "Fabric swatch", Quantity: 2, UnitPrice: 50},
			{Description: "Console table", Quantity: 1, UnitPrice: 100},
		},
	}
}

func newTestService(repo *memoryOrderRepo, notifier Notifier) *Service {
	clock := shared.FixedClock{At: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
	return NewService(repo, stubVendors{known: map[int64]bool{7: true, 8: true}}, clock, nil, notifier, nil)
}

func TestCreateOrderDefaults(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)

	po, err := svc.Create(context.Background(), testInput())
	require.NoError(t, err)
	require.NotZero(t, po.ID)
	require.Equal(t, StatusDraft, po.Status)
	require.Equal(t, 200.0, po.TotalAmount)
	require.Empty(t, po.ApprovalHistory)
	require.NotNil(t, po.ApprovalHistory)
	require.Nil(t, po.TrackingInfo)
	require.Nil(t, po.ActualDelivery)
	require.Len(t, po.LineItems, 2)
	require.Equal(t, 100.0, po.LineItems[0].Amount)
	require.Equal(t, po.CreatedAt, po.UpdatedAt)
}

func TestCreateOrderDefaultsPriority(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)

	input := testInput()
	input.Priority = ""
	po, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, po.Priority)
}

func TestCreateOrderValidation(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	input := testInput()
	input.LineItems = nil
	_, err := svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = testInput()
	input.LineItems[0].Quantity = 0
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = testInput()
	input.Title = ""
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = testInput()
	input.VendorID = 99
	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestFullLifecycle(t *testing.T) {
	repo := newMemoryOrderRepo()
	notifier := &captureNotifier{}
	svc := newTestService(repo, notifier)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	po, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending, Approver: "Dana"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, po.Status)

	po, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusApproved, Approver: "Dana", Notes: "budget ok"})
	require.NoError(t, err)

	po, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusOrdered})
	require.NoError(t, err)
	require.NotNil(t, po.TrackingInfo)
	require.True(t, strings.HasPrefix(po.TrackingInfo.TrackingNumber, "TRK-"))
	require.Equal(t, DefaultCarrier, po.TrackingInfo.Carrier)
	require.Equal(t, TrackingShipped, po.TrackingInfo.Status)
	require.Equal(t, po.ExpectedDelivery, po.TrackingInfo.EstimatedDelivery)

	po, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusDelivered, Approver: "Dana"})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, po.Status)
	require.NotNil(t, po.ActualDelivery)
	require.Equal(t, TrackingDelivered, po.TrackingInfo.Status)
	require.NotNil(t, po.TrackingInfo.ActualDelivery)

	require.Len(t, po.ApprovalHistory, 4)
	require.Equal(t, StatusDraft, po.ApprovalHistory[0].From)
	require.Equal(t, StatusPending, po.ApprovalHistory[0].To)
	require.Equal(t, "budget ok", po.ApprovalHistory[1].Notes)
	require.Equal(t, SystemApprover, po.ApprovalHistory[2].Approver)
	require.Equal(t, StatusDelivered, po.ApprovalHistory[3].To)

	stored, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, stored.ApprovalHistory, 4)

	require.Len(t, notifier.events, 4)
	require.Equal(t, StatusOrdered, notifier.events[2].To)
	require.NotEmpty(t, notifier.events[2].TrackingNumber)
}

func TestTransitionRejectsIllegalJump(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusDelivered})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: "shipped"})
	require.ErrorIs(t, err, ErrValidation)

	stored, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
	require.Empty(t, stored.ApprovalHistory)
}

func TestTransitionTerminalStates(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	po, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusCancelled, Approver: "Dana"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, po.Status)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionStaleSnapshotRejected(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	snapshot, err := repo.GetOrder(ctx, po.ID)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending, Approver: "Dana"})
	require.NoError(t, err)

	// A second client that read the order while it was still draft loses
	// the race; its transition must not append a duplicate record.
	clock := shared.FixedClock{At: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
	staleSvc := NewService(&staleReadRepo{memoryOrderRepo: repo, stale: snapshot}, stubVendors{known: map[int64]bool{7: true}}, clock, nil, nil, nil)
	_, err = staleSvc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending})
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := repo.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Len(t, stored.ApprovalHistory, 1)
}

func TestDeleteStaleSnapshotRejected(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	snapshot, err := repo.GetOrder(ctx, po.ID)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending})
	require.NoError(t, err)

	// Deleting through a stale draft snapshot must not erase the audit
	// trail of an order already in the approval pipeline.
	clock := shared.FixedClock{At: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
	staleSvc := NewService(&staleReadRepo{memoryOrderRepo: repo, stale: snapshot}, stubVendors{known: map[int64]bool{7: true}}, clock, nil, nil, nil)
	require.ErrorIs(t, staleSvc.Delete(ctx, po.ID), ErrInvalidState)

	stored, err := repo.GetOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Len(t, stored.ApprovalHistory, 1)
}

func TestAuditActorFollowsApprover(t *testing.T) {
	repo := newMemoryOrderRepo()
	audit := &captureAudit{}
	clock := shared.FixedClock{At: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
	svc := NewService(repo, stubVendors{known: map[int64]bool{7: true}}, clock, audit, nil, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending, Approver: "Dana"})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusApproved})
	require.NoError(t, err)

	require.Len(t, audit.logs, 3)
	require.Equal(t, SystemApprover, audit.logs[0].Actor)
	require.Equal(t, "PO_CREATE", audit.logs[0].Action)
	require.Equal(t, "Dana", audit.logs[1].Actor)
	require.Equal(t, "PO_TRANSITION", audit.logs[1].Action)
	require.Equal(t, SystemApprover, audit.logs[2].Actor)
}

func TestTransitionNotFound(t *testing.T) {
	svc := newTestService(newMemoryOrderRepo(), nil)
	_, err := svc.Transition(context.Background(), 42, TransitionInput{Target: StatusPending})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMergesPatch(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	title := "Living room fit-out (rev 2)"
	priority := PriorityLow
	updated, err := svc.Update(ctx, po.ID, OrderPatch{Title: &title, Priority: &priority})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, PriorityLow, updated.Priority)
	require.Equal(t, po.Description, updated.Description)
	require.Equal(t, StatusDraft, updated.Status)
	require.Equal(t, 200.0, updated.TotalAmount)
}

func TestUpdateRecomputesTotal(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, po.ID, OrderPatch{
		LineItems: []LineItemInput{{Description: "Armchair", Quantity: 3, UnitPrice: 19.99}},
	})
	require.NoError(t, err)
	require.Equal(t, 59.97, updated.TotalAmount)
	require.Len(t, updated.LineItems, 1)

	stored, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, 59.97, stored.TotalAmount)
	require.Len(t, stored.LineItems, 1)
}

func TestUpdateValidation(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	bad := Priority("urgent")
	_, err = svc.Update(ctx, po.ID, OrderPatch{Priority: &bad})
	require.ErrorIs(t, err, ErrValidation)

	empty := ""
	_, err = svc.Update(ctx, po.ID, OrderPatch{Title: &empty})
	require.ErrorIs(t, err, ErrValidation)

	unknown := int64(99)
	_, err = svc.Update(ctx, po.ID, OrderPatch{VendorID: &unknown})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, 42, OrderPatch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDraftOnly(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	po, err := svc.Create(ctx, testInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, po.ID))
	_, err = svc.Get(ctx, po.ID)
	require.ErrorIs(t, err, ErrNotFound)

	po, err = svc.Create(ctx, testInput())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, TransitionInput{Target: StatusPending})
	require.NoError(t, err)
	err = svc.Delete(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	stored, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)

	require.ErrorIs(t, svc.Delete(ctx, 42), ErrNotFound)
}

func TestListFilters(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, testInput())
	require.NoError(t, err)

	second := testInput()
	second.VendorID = 8
	second.Title = "Studio lighting"
	_, err = svc.Create(ctx, second)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, first.ID, TransitionInput{Target: StatusPending})
	require.NoError(t, err)

	pending, err := svc.ListByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)

	byVendor, err := svc.ListByVendor(ctx, 8)
	require.NoError(t, err)
	require.Len(t, byVendor, 1)
	require.Equal(t, "Studio lighting", byVendor[0].Title)

	_, _, err = svc.List(ctx, 10, 0, ListFilters{Status: "bogus"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateIdempotent(t *testing.T) {
	repo := newMemoryOrderRepo()
	clock := shared.FixedClock{At: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
	store := &memoryIdempotency{}
	svc := NewService(repo, stubVendors{known: map[int64]bool{7: true}}, clock, nil, nil, store)
	ctx := context.Background()

	po, err := svc.CreateIdempotent(ctx, "req-1", testInput())
	require.NoError(t, err)
	require.NotZero(t, po.ID)

	_, err = svc.CreateIdempotent(ctx, "req-1", testInput())
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	// A failed create releases the key for retry.
	bad := testInput()
	bad.Title = ""
	_, err = svc.CreateIdempotent(ctx, "req-2", bad)
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateIdempotent(ctx, "req-2", testInput())
	require.NoError(t, err)
}
