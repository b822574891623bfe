package procurement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusPending},
		{StatusDraft, StatusCancelled},
		{StatusPending, StatusApproved},
		{StatusPending, StatusCancelled},
		{StatusApproved, StatusOrdered},
		{StatusApproved, StatusCancelled},
		{StatusOrdered, StatusDelivered},
		{StatusOrdered, StatusCancelled},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusDraft, StatusApproved},
		{StatusDraft, StatusOrdered},
		{StatusDraft, StatusDelivered},
		{StatusPending, StatusDraft},
		{StatusPending, StatusOrdered},
		{StatusApproved, StatusPending},
		{StatusOrdered, StatusApproved},
		{StatusDelivered, StatusCancelled},
		{StatusDelivered, StatusDraft},
		{StatusCancelled, StatusDraft},
		{StatusCancelled, StatusPending},
	}
	for _, tc := range denied {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusDelivered.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusDraft.Terminal())
	require.False(t, StatusOrdered.Terminal())
}

func TestValidStatus(t *testing.T) {
	require.True(t, ValidStatus(StatusDraft))
	require.True(t, ValidStatus(StatusDelivered))
	require.False(t, ValidStatus("shipped"))
	require.False(t, ValidStatus(""))
}

func TestComputeTotal(t *testing.T) {
	require.Zero(t, ComputeTotal(nil))

	items := []LineItem{
		{Quantity: 2, UnitPrice: 50},
		{Quantity: 1, UnitPrice: 100},
	}
	require.Equal(t, 200.0, ComputeTotal(items))

	// Float artifacts round away at cents precision.
	cents := []LineItem{
		{Quantity: 3, UnitPrice: 19.99},
		{Quantity: 1, UnitPrice: 0.1},
		{Quantity: 2, UnitPrice: 0.1},
	}
	require.Equal(t, 60.27, ComputeTotal(cents))
}

func TestLineAmount(t *testing.T) {
	require.Equal(t, 59.97, LineAmount(3, 19.99))
	require.Equal(t, 0.0, LineAmount(4, 0))
}
