package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/cityseed/internal/connectors"
	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
	"github.com/custodia-labs/cityseed/internal/logger"
	"github.com/custodia-labs/cityseed/internal/metrics"
)

var _ driving.Publisher = (*Publisher)(nil)

// publishBatch is the number of nodes embedded per embedding call.
const publishBatch = 16

// Publisher writes activity nodes to the vector index and checks parity
// between the index and the canonical store.
type Publisher struct {
	nodes    driven.NodeStore
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	retrier  *connectors.Retrier
	timeout  time.Duration
	workers  int
	locks    *nodeLocks
	now      func() time.Time
}

// NewPublisher creates a publisher. embedder and index may be nil, in which
// case publication is disabled and Publish reports why.
func NewPublisher(
	nodes driven.NodeStore,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	settings *domain.PipelineSettings,
	retrier *connectors.Retrier,
) *Publisher {
	if settings == nil {
		defaults := domain.DefaultPipelineSettings()
		settings = &defaults
	}
	if retrier == nil {
		retrier = connectors.NewRetrier(settings.Retry, 0, nil)
	}
	return &Publisher{
		nodes:    nodes,
		embedder: embedder,
		index:    index,
		retrier:  retrier,
		timeout:  settings.PublishTimeout,
		workers:  settings.Workers,
		locks:    &nodeLocks{},
		now:      time.Now,
	}
}

// Enabled reports whether both the embedding service and the index are set.
func (p *Publisher) Enabled() bool {
	return p != nil && p.embedder != nil && p.index != nil
}

// Publish writes the selected nodes. Incremental mode skips nodes whose
// content hash matches the last published hash; full and targeted modes
// always write.
func (p *Publisher) Publish(ctx context.Context, req driving.PublishRequest) (*driving.PublishResult, error) {
	if req.CityID == "" {
		return nil, fmt.Errorf("%w: city is required", domain.ErrInvalidInput)
	}
	if p.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if p.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	nodes, err := p.selectNodes(ctx, req)
	if err != nil {
		return nil, err
	}

	pending := make([]*domain.ActivityNode, 0, len(nodes))
	hashes := make(map[string]string, len(nodes))
	unchanged := 0
	for i := range nodes {
		hash := ContentHash(&nodes[i])
		if req.Mode == driving.PublishIncremental && nodes[i].PublishedHash == hash {
			unchanged++
			continue
		}
		hashes[nodes[i].ID] = hash
		pending = append(pending, &nodes[i])
	}
	metrics.IndexUpserts.WithLabelValues("unchanged").Add(float64(unchanged))

	var upserted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.workers))
	for start := 0; start < len(pending); start += publishBatch {
		batch := pending[start:min(start+publishBatch, len(pending))]
		g.Go(func() error {
			n, err := p.writeBatch(gctx, batch, hashes)
			upserted.Add(int64(n))
			metrics.IndexUpserts.WithLabelValues("upserted").Add(float64(n))
			if err != nil {
				metrics.IndexUpserts.WithLabelValues("failed").Add(float64(len(batch) - n))
			}
			return err
		})
	}
	err = g.Wait()

	result := &driving.PublishResult{
		Considered: len(nodes),
		Upserted:   int(upserted.Load()),
		Unchanged:  unchanged,
	}
	if err != nil {
		return result, err
	}
	logger.Info("published %s/%s: %d considered, %d upserted, %d unchanged",
		req.CityID, req.Mode, result.Considered, result.Upserted, result.Unchanged)
	return result, nil
}

func (p *Publisher) selectNodes(ctx context.Context, req driving.PublishRequest) ([]domain.ActivityNode, error) {
	switch req.Mode {
	case driving.PublishFull, driving.PublishIncremental:
		return p.nodes.ListNodes(ctx, domain.NodeFilter{CityID: req.CityID})
	case driving.PublishTargeted:
		if len(req.NodeIDs) == 0 {
			return nil, fmt.Errorf("%w: targeted publish needs node ids", domain.ErrInvalidInput)
		}
		nodes, err := p.nodes.ListNodes(ctx, domain.NodeFilter{CityID: req.CityID, IDs: req.NodeIDs})
		if err != nil {
			return nil, err
		}
		found := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			found[n.ID] = true
		}
		for _, id := range req.NodeIDs {
			if !found[id] {
				return nil, fmt.Errorf("node %s in %s: %w", id, req.CityID, domain.ErrNotFound)
			}
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("%w: publish mode %q", domain.ErrInvalidInput, req.Mode)
	}
}

// writeBatch embeds the batch in one call, upserts each record and then
// records the published hashes. A retry re-embeds the whole batch. Returns
// how many nodes were marked published.
func (p *Publisher) writeBatch(ctx context.Context, batch []*domain.ActivityNode, hashes map[string]string) (int, error) {
	texts := make([]string, len(batch))
	for i, node := range batch {
		texts[i] = EmbeddingText(node)
	}
	_, err := p.retrier.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		vecs, err := p.embedder.Embed(callCtx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return domain.NewPermanentError("embed", fmt.Errorf("got %d vectors for %d nodes", len(vecs), len(batch)))
		}
		for i, node := range batch {
			record := driven.VectorRecord{NodeID: node.ID, CityID: node.CityID, Vector: vecs[i], Payload: Payload(node)}
			if err := p.index.Upsert(callCtx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("publish %d nodes from %s: %w", len(batch), batch[0].ID, err)
	}

	for i, node := range batch {
		if err := p.markPublished(ctx, node.ID, hashes[node.ID]); err != nil {
			return i, err
		}
	}
	return len(batch), nil
}

func (p *Publisher) markPublished(ctx context.Context, nodeID, hash string) error {
	unlock := p.locks.acquire(nodeID)
	defer unlock()
	if err := p.nodes.MarkPublished(ctx, nodeID, hash, p.now().UTC()); err != nil {
		return fmt.Errorf("mark node %s published: %w", nodeID, err)
	}
	return nil
}

// CheckParity compares every node id of the city (retired nodes included)
// with the ids in the index. Drift is reported, never repaired.
func (p *Publisher) CheckParity(ctx context.Context, cityID string) (*driving.ParityReport, error) {
	if p.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	storeIDs, err := p.nodes.ListNodeIDs(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("list store ids: %w", err)
	}
	indexIDs, err := p.index.ListIDs(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("list index ids: %w", err)
	}

	report := &driving.ParityReport{
		CityID:           cityID,
		StoreCount:       len(storeIDs),
		IndexCount:       len(indexIDs),
		MissingFromIndex: difference(storeIDs, indexIDs),
		OrphanedInIndex:  difference(indexIDs, storeIDs),
	}
	metrics.ParityDrift.WithLabelValues(cityID, "missing").Set(float64(len(report.MissingFromIndex)))
	metrics.ParityDrift.WithLabelValues(cityID, "orphaned").Set(float64(len(report.OrphanedInIndex)))
	return report, nil
}

// difference returns the elements of a not in b, sorted.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	out := make([]string, 0)
	for _, id := range a {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ContentHash fingerprints the node fields that feed the index record.
func ContentHash(node *domain.ActivityNode) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(node.Name)
	write(string(node.Category))
	for _, t := range node.SortedTags() {
		write(t.Tag)
	}
	write(strconv.FormatFloat(node.Convergence, 'g', -1, 64))
	write(strconv.FormatFloat(node.Divergence, 'g', -1, 64))
	write(strconv.FormatBool(node.Overrated))
	write(strconv.FormatBool(node.Active))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingText is the text embedded for a node.
func EmbeddingText(node *domain.ActivityNode) string {
	tags := make([]string, 0, len(node.Tags))
	for _, t := range node.SortedTags() {
		tags = append(tags, t.Tag)
	}
	text := node.Name + ". " + string(node.Category)
	if len(tags) > 0 {
		text += ". " + strings.Join(tags, ", ")
	}
	return text
}

// Payload is the filterable metadata stored with a node's vector.
func Payload(node *domain.ActivityNode) map[string]any {
	tags := make([]string, 0, len(node.Tags))
	for _, t := range node.SortedTags() {
		tags = append(tags, t.Tag)
	}
	payload := map[string]any{
		"name":         node.Name,
		"category":     string(node.Category),
		"city":         node.CityID,
		"tags":         tags,
		"convergence":  node.Convergence,
		"divergence":   node.Divergence,
		"overrated":    node.Overrated,
		"active":       node.Active,
		"source_count": node.SourceCount,
	}
	if node.Coordinates != nil {
		payload["lat"] = node.Coordinates.Lat
		payload["lon"] = node.Coordinates.Lon
	}
	return payload
}

// PublishStep writes changed nodes of the city to the index.
type PublishStep struct {
	publisher *Publisher
}

// Name implements Step.
func (s *PublishStep) Name() domain.StepName { return domain.StepPublish }

// Run implements Step. With publication disabled the step completes and
// records a drift warning, since the index cannot be in parity.
func (s *PublishStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	if !s.publisher.Enabled() {
		logger.Warn("index publication disabled for %s", run.CityID)
		run.AddDriftWarning("index publication disabled: no embedding service or vector index configured")
		return domain.Counters{}, nil
	}
	result, err := s.publisher.Publish(ctx, driving.PublishRequest{CityID: run.CityID, Mode: driving.PublishIncremental})
	var counters domain.Counters
	if result != nil {
		counters.IndexUpserts = result.Upserted
	}
	return counters, err
}

// VerifyStep checks parity after publication.
type VerifyStep struct {
	publisher *Publisher
}

// Name implements Step.
func (s *VerifyStep) Name() domain.StepName { return domain.StepVerify }

// Run implements Step. Drift does not fail the step; it is counted and
// carried into the run summary.
func (s *VerifyStep) Run(ctx context.Context, run *RunContext) (domain.Counters, error) {
	if !s.publisher.Enabled() {
		return domain.Counters{}, nil
	}
	report, err := s.publisher.CheckParity(ctx, run.CityID)
	if err != nil {
		return domain.Counters{}, err
	}
	if report.InParity() {
		logger.Info("index in parity for %s (%d nodes)", run.CityID, report.StoreCount)
		return domain.Counters{}, nil
	}

	drift := &domain.ParityDriftError{
		CityID:           run.CityID,
		MissingFromIndex: report.MissingFromIndex,
		OrphanedInIndex:  report.OrphanedInIndex,
	}
	logger.Warn("%v", drift)
	run.AddDriftWarning("%s", drift.Error())
	return domain.Counters{DriftDetected: len(report.MissingFromIndex) + len(report.OrphanedInIndex)}, nil
}
