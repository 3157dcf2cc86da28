package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
	"github.com/brelok-the-pok/summary-bot/internal/repository"
)

var _ repository.MessageStore = (*MemoryStore)(nil)

func TestMemoryStore_UpsertKeepsID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	id1, err := s.Insert(ctx, domain.NewVoiceRecord("42", 1, at, "", "hello"))
	require.NoError(t, err)
	id2, err := s.Insert(ctx, domain.NewVoiceRecord("42", 1, at.Add(time.Second), "", "again"))
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, 1, s.Len())

	contents, err := s.ListContentByUserDay(ctx, "42", "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, []string{"again"}, contents)
}

func TestMemoryStore_OrderAndExists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, domain.NewTextRecord("42", 2, at.Add(time.Minute), "second"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.NewTextRecord("42", 1, at, "first"))
	require.NoError(t, err)

	recs, err := s.ListByUserDay(ctx, "42", "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, domain.Contents(recs))

	ok, err := s.Exists(ctx, "42", "2024-01-01")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Exists(ctx, "42", "2024-01-02")
	require.NoError(t, err)
	require.False(t, ok)

	empty, err := s.ListByUserDay(ctx, "42", "2024-01-02")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestMemoryStore_Prune(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Insert(ctx, domain.NewTextRecord("42", 1, now.AddDate(0, 0, -10), "old"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.NewTextRecord("42", 2, now.AddDate(0, 0, -2), "new"))
	require.NoError(t, err)

	n, err := s.PruneOlderThan(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 1, s.Len())

	_, err = s.PruneOlderThan(ctx, -1)
	require.Error(t, err)
}
