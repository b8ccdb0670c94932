package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

func seedSources(t *testing.T, specs ...domain.SourceSpec) *SourceStore {
	t.Helper()
	store := NewSourceStore()
	for _, spec := range specs {
		require.NoError(t, store.Save(context.Background(), spec))
	}
	return store
}

func TestSourceStore_RoundTrip(t *testing.T) {
	store := seedSources(t, domain.SourceSpec{
		ID:     "lx-eats",
		Type:   domain.SourceBlog,
		CityID: "lisbon",
		Config: map[string]string{"url": "https://example.com/lisbon"},
	})

	got, err := store.Get(context.Background(), "lx-eats")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceBlog, got.Type)
	assert.Equal(t, "https://example.com/lisbon", got.Config["url"])

	_, err = store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_SaveReplaces(t *testing.T) {
	store := seedSources(t,
		domain.SourceSpec{ID: "s", Name: "before"},
		domain.SourceSpec{ID: "s", Name: "after"},
	)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "after", all[0].Name)
}

func TestSourceStore_CopiesConfig(t *testing.T) {
	cfg := map[string]string{"url": "https://a"}
	store := seedSources(t, domain.SourceSpec{ID: "s", Config: cfg})
	cfg["url"] = "https://mutated"

	got, err := store.Get(context.Background(), "s")
	require.NoError(t, err)
	got.Config["url"] = "https://also-mutated"

	again, err := store.Get(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "https://a", again.Config["url"])
}

func TestSourceStore_Listing(t *testing.T) {
	store := seedSources(t,
		domain.SourceSpec{ID: "c", CityID: "lisbon"},
		domain.SourceSpec{ID: "a", CityID: "lisbon"},
		domain.SourceSpec{ID: "b", CityID: "porto"},
	)
	ids := func(specs []domain.SourceSpec) []string {
		out := make([]string, len(specs))
		for i, s := range specs {
			out[i] = s.ID
		}
		return out
	}

	tests := []struct {
		city string
		want []string
	}{
		{"", []string{"a", "b", "c"}},
		{"lisbon", []string{"a", "c"}},
		{"braga", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			var got []domain.SourceSpec
			var err error
			if tt.city == "" {
				got, err = store.List(context.Background())
			} else {
				got, err = store.ListByCity(context.Background(), tt.city)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSourceStore_DeleteIgnoresUnknown(t *testing.T) {
	store := seedSources(t, domain.SourceSpec{ID: "a"}, domain.SourceSpec{ID: "b"})
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "ghost"))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].ID)
}

func TestSourceStore_ParallelAccess(t *testing.T) {
	store := NewSourceStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i%8)
			_ = store.Save(ctx, domain.SourceSpec{ID: id, CityID: "porto"})
			_, _ = store.ListByCity(ctx, "porto")
		}()
	}
	wg.Wait()

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 8)
}
