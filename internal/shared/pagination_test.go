package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(1, 20, 45)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasMore)

	p = NewPagination(3, 20, 45)
	require.False(t, p.HasMore)

	// Zero values fall back to sane defaults.
	p = NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 3, p.TotalPages)

	p = NewPagination(1, 20, 0)
	require.Equal(t, 0, p.TotalPages)
	require.False(t, p.HasMore)
}
