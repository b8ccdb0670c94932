package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

// Ensure NodeStore implements the interface.
var _ driven.NodeStore = (*NodeStore)(nil)

// NodeStore is an in-memory implementation of driven.NodeStore.
type NodeStore struct {
	mu      sync.RWMutex
	nodes   map[string]*domain.ActivityNode
	signals map[string]domain.QualitySignal
	byNode  map[string][]string
	now     func() time.Time
}

// NewNodeStore creates a new in-memory node store.
func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes:   make(map[string]*domain.ActivityNode),
		signals: make(map[string]domain.QualitySignal),
		byNode:  make(map[string][]string),
		now:     time.Now,
	}
}

// CreateNode stores a new node together with its first signal.
func (s *NodeStore) CreateNode(_ context.Context, node *domain.ActivityNode, first domain.QualitySignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[node.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.signals[first.Fingerprint]; ok {
		return domain.ErrAlreadyExists
	}
	n := node.Clone()
	n.Version = 1
	s.nodes[n.ID] = n
	first.NodeID = n.ID
	s.signals[first.Fingerprint] = cloneSignal(first)
	s.byNode[n.ID] = append(s.byNode[n.ID], first.Fingerprint)
	return nil
}

// AttachSignal adds a signal to an existing node.
func (s *NodeStore) AttachSignal(_ context.Context, signal domain.QualitySignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[signal.Fingerprint]; ok {
		return domain.ErrAlreadyExists
	}
	n, ok := s.nodes[signal.NodeID]
	if !ok {
		return domain.ErrNotFound
	}
	s.signals[signal.Fingerprint] = cloneSignal(signal)
	s.byNode[n.ID] = append(s.byNode[n.ID], signal.Fingerprint)
	n.UpdatedAt = signal.ResolvedAt
	n.Version++
	return nil
}

// HasSignal reports whether a fingerprint has already been resolved.
func (s *NodeStore) HasSignal(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.signals[fingerprint]
	return ok, nil
}

// GetNode retrieves a node by ID.
func (s *NodeStore) GetNode(_ context.Context, id string) (*domain.ActivityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n.Clone(), nil
}

// ListNodes returns nodes matching the filter ordered by ID.
func (s *NodeStore) ListNodes(_ context.Context, filter domain.NodeFilter) ([]domain.ActivityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]bool
	if len(filter.IDs) > 0 {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	result := make([]domain.ActivityNode, 0)
	for _, n := range s.nodes {
		if filter.CityID != "" && n.CityID != filter.CityID {
			continue
		}
		if ids != nil && !ids[n.ID] {
			continue
		}
		if filter.ActiveOnly && !n.Active {
			continue
		}
		if !filter.UpdatedSince.IsZero() && n.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		result = append(result, *n.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListNodeIDs returns every node ID of a city ordered.
func (s *NodeStore) ListNodeIDs(_ context.Context, cityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for _, n := range s.nodes {
		if n.CityID == cityID {
			ids = append(ids, n.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListSignals returns a node's signals ordered by fingerprint.
func (s *NodeStore) ListSignals(_ context.Context, nodeID string) ([]domain.QualitySignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fps := s.byNode[nodeID]
	result := make([]domain.QualitySignal, 0, len(fps))
	for _, fp := range fps {
		result = append(result, cloneSignal(s.signals[fp]))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Fingerprint < result[j].Fingerprint })
	return result, nil
}

// UpsertTags writes tags, keeping the higher confidence of old and new.
// At equal confidence a rule tag replaces a classifier tag.
func (s *NodeStore) UpsertTags(_ context.Context, nodeID string, tags []domain.VibeTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return domain.ErrNotFound
	}
	changed := false
	for _, tag := range tags {
		cur, exists := n.Tags[tag.Tag]
		if exists && !tag.Supersedes(cur) {
			continue
		}
		if n.Tags == nil {
			n.Tags = make(map[string]domain.VibeTag)
		}
		n.Tags[tag.Tag] = tag
		changed = true
	}
	if changed {
		s.touch(n)
	}
	return nil
}

// RemoveTags deletes tags from a node.
func (s *NodeStore) RemoveTags(_ context.Context, nodeID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return domain.ErrNotFound
	}
	changed := false
	for _, tag := range tags {
		if _, exists := n.Tags[tag]; exists {
			delete(n.Tags, tag)
			changed = true
		}
	}
	if changed {
		s.touch(n)
	}
	return nil
}

// UpdateScores writes derived scores.
func (s *NodeStore) UpdateScores(_ context.Context, nodeID string, scores domain.Scores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Convergence == scores.Convergence && n.Divergence == scores.Divergence &&
		n.Overrated == scores.Overrated && n.SourceCount == scores.SourceCount {
		return nil
	}
	n.Convergence = scores.Convergence
	n.Divergence = scores.Divergence
	n.Overrated = scores.Overrated
	n.SourceCount = scores.SourceCount
	s.touch(n)
	return nil
}

// MarkPublished records the content hash written to the vector index.
func (s *NodeStore) MarkPublished(_ context.Context, nodeID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return domain.ErrNotFound
	}
	n.PublishedHash = hash
	n.PublishedAt = at
	return nil
}

// SetActive flags a node active or retired.
func (s *NodeStore) SetActive(_ context.Context, nodeID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Active != active {
		n.Active = active
		s.touch(n)
	}
	return nil
}

// PurgeExcerpts nulls excerpts of the given source types observed before the
// cutoff. Undated signals age from when they were resolved.
func (s *NodeStore) PurgeExcerpts(_ context.Context, sourceTypes []domain.SourceType, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make(map[domain.SourceType]bool, len(sourceTypes))
	for _, t := range sourceTypes {
		types[t] = true
	}
	purged := 0
	for fp, sig := range s.signals {
		if sig.Excerpt == nil || !types[sig.SourceType] || !excerptAge(sig).Before(before) {
			continue
		}
		sig.Excerpt = nil
		s.signals[fp] = sig
		purged++
	}
	return purged, nil
}

// excerptAge is the time retention measures a signal's excerpt from.
func excerptAge(sig domain.QualitySignal) time.Time {
	if sig.ObservedAt.IsZero() {
		return sig.ResolvedAt
	}
	return sig.ObservedAt
}

func (s *NodeStore) touch(n *domain.ActivityNode) {
	n.UpdatedAt = s.now().UTC()
	n.Version++
}

func cloneSignal(sig domain.QualitySignal) domain.QualitySignal {
	if sig.Excerpt != nil {
		excerpt := *sig.Excerpt
		sig.Excerpt = &excerpt
	}
	return sig
}
