package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNotifyTransitionTask(t *testing.T) {
	payload := NotifyTransitionPayload{
		OrderID:  12,
		VendorID: 7,
		Title:    "Living room fit-out",
		From:     "approved",
		To:       "ordered",
		Approver: "Dana",
		At:       time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
	}
	task, err := NewNotifyTransitionTask(payload)
	require.NoError(t, err)
	require.Equal(t, TaskPONotify, task.Type())

	handler := NewNotifyHandler(slog.Default())
	require.NoError(t, handler(context.Background(), task))
}

func TestNotifyHandlerSkipsBadPayload(t *testing.T) {
	handler := NewNotifyHandler(slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskPONotify, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
