package support

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conthop/backend/internal/app/domain/support"
	"github.com/conthop/backend/internal/app/storage/memory"
	svcerrors "github.com/conthop/backend/internal/errors"
)

func TestOpenTicketAndList(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	tk, err := svc.OpenTicket(ctx, 5, "I cannot see my contribution")
	require.NoError(t, err)
	assert.Equal(t, support.StatusPending, tk.Status)

	_, err = svc.OpenTicket(ctx, 5, "")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidArgument))

	list, err := svc.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Deleted User", list[0].UserName)
}

func TestFileReportAndList(t *testing.T) {
	store := memory.New()
	svc := New(store, store, nil)
	ctx := context.Background()

	_, err := svc.FileReport(ctx, 5, "Late payout", "")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidArgument))

	r, err := svc.FileReport(ctx, 5, "Late payout", "My withdrawal took two weeks")
	require.NoError(t, err)
	assert.Equal(t, "Late payout", r.Title)

	list, err := svc.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
