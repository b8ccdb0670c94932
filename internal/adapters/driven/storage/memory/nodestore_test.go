package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newNode(id, city string) *domain.ActivityNode {
	return &domain.ActivityNode{
		ID:        id,
		Name:      "Blue Door Cafe",
		Category:  domain.CategoryCafe,
		CityID:    city,
		Active:    true,
		Tags:      map[string]domain.VibeTag{},
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func qsig(fp, nodeID string, st domain.SourceType, observed time.Time, excerpt string) domain.QualitySignal {
	s := domain.QualitySignal{
		Fingerprint: fp,
		NodeID:      nodeID,
		SourceType:  st,
		Authority:   st.Authority(),
		Sentiment:   domain.SentimentPositive,
		ObservedAt:  observed,
		ResolvedAt:  base,
	}
	if excerpt != "" {
		s.Excerpt = &excerpt
	}
	return s
}

func TestNodeStore_CreateAndAttach(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("fp1", "n1", domain.SourceForum, base, "")))
	err := store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("fp9", "n1", domain.SourceForum, base, ""))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	later := qsig("fp2", "n1", domain.SourceBlog, base, "")
	later.ResolvedAt = base.Add(time.Hour)
	require.NoError(t, store.AttachSignal(ctx, later))

	assert.ErrorIs(t, store.AttachSignal(ctx, later), domain.ErrAlreadyExists)
	assert.ErrorIs(t, store.AttachSignal(ctx, qsig("fp3", "missing", domain.SourceBlog, base, "")), domain.ErrNotFound)

	n, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), n.UpdatedAt)
	assert.Equal(t, int64(2), n.Version)

	has, err := store.HasSignal(ctx, "fp2")
	require.NoError(t, err)
	assert.True(t, has)

	sigs, err := store.ListSignals(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "fp1", sigs[0].Fingerprint)
}

func TestNodeStore_ListNodes_Filters(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNode(ctx, newNode("b", "lisbon"), qsig("f1", "b", domain.SourceForum, base, "")))
	require.NoError(t, store.CreateNode(ctx, newNode("a", "lisbon"), qsig("f2", "a", domain.SourceForum, base, "")))
	require.NoError(t, store.CreateNode(ctx, newNode("c", "porto"), qsig("f3", "c", domain.SourceForum, base, "")))
	require.NoError(t, store.SetActive(ctx, "b", false))

	all, err := store.ListNodes(ctx, domain.NodeFilter{CityID: "lisbon"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	active, err := store.ListNodes(ctx, domain.NodeFilter{CityID: "lisbon", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	byID, err := store.ListNodes(ctx, domain.NodeFilter{IDs: []string{"c"}})
	require.NoError(t, err)
	require.Len(t, byID, 1)

	ids, err := store.ListNodeIDs(ctx, "lisbon")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids, "retired nodes stay listed")
}

func TestNodeStore_UpsertTags_KeepsHigherConfidence(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("f1", "n1", domain.SourceForum, base, "")))

	require.NoError(t, store.UpsertTags(ctx, "n1", []domain.VibeTag{{Tag: "cozy", Confidence: 0.9, Source: domain.TagSourceClassifier}}))
	require.NoError(t, store.UpsertTags(ctx, "n1", []domain.VibeTag{{Tag: "cozy", Confidence: 0.8, Source: domain.TagSourceClassifier}}))

	n, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, n.Tags["cozy"].Confidence)

	require.NoError(t, store.UpsertTags(ctx, "n1", []domain.VibeTag{{Tag: "cozy", Confidence: 1, Source: domain.TagSourceRule}}))
	require.NoError(t, store.RemoveTags(ctx, "n1", []string{"quiet"}))
	n, err = store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.TagSourceRule, n.Tags["cozy"].Source)

	require.NoError(t, store.RemoveTags(ctx, "n1", []string{"cozy"}))
	n, err = store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, n.Tags)
}

func TestNodeStore_ScoresAndPublish(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("f1", "n1", domain.SourceForum, base, "")))

	scores := domain.Scores{Convergence: 0.7, Divergence: -0.4, Overrated: true, SourceCount: 3}
	require.NoError(t, store.UpdateScores(ctx, "n1", scores))
	require.NoError(t, store.MarkPublished(ctx, "n1", "hash-1", base))

	n, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 0.7, n.Convergence)
	assert.True(t, n.Overrated)
	assert.Equal(t, "hash-1", n.PublishedHash)

	assert.ErrorIs(t, store.UpdateScores(ctx, "missing", scores), domain.ErrNotFound)
}

func TestNodeStore_PurgeExcerpts(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()
	old := base.Add(-100 * 24 * time.Hour)
	require.NoError(t, store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("old-forum", "n1", domain.SourceForum, old, "great pastries")))
	require.NoError(t, store.AttachSignal(ctx, qsig("old-blog", "n1", domain.SourceBlog, old, "editorial text")))
	require.NoError(t, store.AttachSignal(ctx, qsig("new-forum", "n1", domain.SourceForum, base, "still fresh")))

	purged, err := store.PurgeExcerpts(ctx, domain.EphemeralSourceTypes(), base.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	sigs, err := store.ListSignals(ctx, "n1")
	require.NoError(t, err)
	for _, s := range sigs {
		switch s.Fingerprint {
		case "old-forum":
			assert.Nil(t, s.Excerpt)
		default:
			assert.NotNil(t, s.Excerpt)
		}
	}

	purged, err = store.PurgeExcerpts(ctx, domain.EphemeralSourceTypes(), base.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestNodeStore_ReturnsCopies(t *testing.T) {
	store := NewNodeStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNode(ctx, newNode("n1", "lisbon"), qsig("f1", "n1", domain.SourceForum, base, "text")))

	n, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	n.Name = "mutated"
	n.Tags["x"] = domain.VibeTag{Tag: "x"}

	sigs, err := store.ListSignals(ctx, "n1")
	require.NoError(t, err)
	*sigs[0].Excerpt = "mutated"

	again, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "Blue Door Cafe", again.Name)
	assert.Empty(t, again.Tags)
	sigs, err = store.ListSignals(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "text", *sigs[0].Excerpt)
}
