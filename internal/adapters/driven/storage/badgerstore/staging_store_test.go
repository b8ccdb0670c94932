package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func raw(name string, observed time.Time) domain.RawSignal {
	return domain.RawSignal{
		SourceType: domain.SourceForum,
		RawName:    name,
		CityID:     "lisbon",
		Author:     "bob",
		Excerpt:    "great coffee",
		Sentiment:  domain.SentimentPositive,
		Coordinates: &domain.Coordinates{
			Lat: 38.71, Lon: -9.13,
		},
		ObservedAt: observed,
	}
}

func openTestStore(t *testing.T) *StagingStore {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestStagingStore_DeduplicatesAndOrders(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	n, err := store.Stage(ctx, "run-1", []domain.RawSignal{
		raw("B", base.Add(time.Hour)),
		raw("A", base),
		raw("Undated", time.Time{}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.Stage(ctx, "run-1", []domain.RawSignal{raw("A", base), raw("C", base)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "Undated", list[0].RawName)
	assert.Equal(t, "B", list[3].RawName)
	require.NotNil(t, list[3].Coordinates)
	assert.InDelta(t, 38.71, list[3].Coordinates.Lat, 1e-9)
	assert.Equal(t, "great coffee", list[3].Excerpt)

	count, err := store.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStagingStore_MatchesMemoryOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var signals []domain.RawSignal
	for i, name := range []string{"E", "D", "C", "B", "A"} {
		signals = append(signals, raw(name, base.Add(time.Duration(i%2)*time.Minute)))
	}
	_, err := store.Stage(ctx, "run-1", signals)
	require.NoError(t, err)

	want := append([]domain.RawSignal(nil), signals...)
	memory.SortStaged(want)

	got, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Fingerprint(), got[i].Fingerprint())
	}
}

func TestStagingStore_RunsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Stage(ctx, "run-1", []domain.RawSignal{raw("A", base)})
	require.NoError(t, err)
	_, err = store.Stage(ctx, "run-10", []domain.RawSignal{raw("A", base), raw("B", base)})
	require.NoError(t, err)

	count, err := store.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Clear(ctx, "run-1"))

	count, err = store.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Zero(t, count)
	list, err := store.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	count, err = store.Count(ctx, "run-10")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A cleared run can be staged again.
	n, err := store.Stage(ctx, "run-1", []domain.RawSignal{raw("A", base)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStagingStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	require.NoError(t, err)
	_, err = first.Stage(ctx, "run-1", []domain.RawSignal{raw("A", base), raw("B", base.Add(time.Second))})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(dir)
	require.NoError(t, err)
	defer second.Close()

	list, err := second.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].RawName)
}

func TestStagingStore_LargeBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	signals := make([]domain.RawSignal, maxBatch*2+7)
	for i := range signals {
		signals[i] = raw("Venue", base.Add(time.Duration(i)*time.Second))
	}
	n, err := store.Stage(ctx, "run-1", signals)
	require.NoError(t, err)
	assert.Equal(t, len(signals), n)

	count, err := store.Count(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, len(signals), count)
}

func TestStagingStore_CancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := store.Stage(ctx, "run-1", []domain.RawSignal{raw("A", base)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestStagedKeyIsChronological(t *testing.T) {
	early := string(stagedKey("r", time.Time{}, "ff"))
	mid := string(stagedKey("r", base, "00"))
	late := string(stagedKey("r", base.Add(time.Nanosecond), "00"))
	assert.Less(t, early, mid)
	assert.Less(t, mid, late)
}
