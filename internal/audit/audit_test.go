package audit

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suscribo/paygate/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	svc, err := NewService(ServiceParam{DB: db, Log: zap.NewNop()})
	require.NoError(t, err)
	return svc
}

func TestRecordAndHistoryByEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Record(ctx, "buyer@example.com", "stripe", "confirm_setup_intent", OutcomeSucceeded, map[string]any{
		"setup_intent": "seti_1",
	})
	svc.Record(ctx, "buyer@example.com", "dlocal", "create_plan", OutcomeFailed, nil)
	svc.Record(ctx, "other@example.com", "stripe", "confirm_setup_intent", OutcomeSucceeded, nil)

	attempts, info, err := svc.HistoryByEmail(ctx, "buyer@example.com", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.False(t, info.HasMore)
	for _, a := range attempts {
		assert.Equal(t, "buyer@example.com", a.Email)
		assert.NotZero(t, a.ID)
		assert.False(t, a.CreatedAt.IsZero())
	}
	// Newest first.
	assert.Equal(t, "create_plan", attempts[0].Action)
}

func TestHistoryByEmailPaging(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Record(ctx, "buyer@example.com", "stripe", "rotate_source", OutcomeSucceeded, nil)
	}

	first, info, err := svc.HistoryByEmail(ctx, "buyer@example.com", pagination.Params{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.True(t, info.HasMore)
	require.NotEmpty(t, info.NextPageToken)

	second, info, err := svc.HistoryByEmail(ctx, "buyer@example.com", pagination.Params{
		PageSize:  3,
		PageToken: info.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.False(t, info.HasMore)

	seen := map[int64]bool{}
	for _, a := range append(first, second...) {
		assert.False(t, seen[a.ID])
		seen[a.ID] = true
	}
}

func TestHistoryByEmailInvalidToken(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.HistoryByEmail(context.Background(), "buyer@example.com", pagination.Params{
		PageToken: "not a token",
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestHistoryByEmailEmpty(t *testing.T) {
	svc := newTestService(t)

	attempts, info, err := svc.HistoryByEmail(context.Background(), "nobody@example.com", pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
