package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

const DefaultThreshold = 0.7

// PairFailure records a pair that could not be compared.
type PairFailure struct {
	SourceID int64
	TargetID int64
	Err      error
}

func (f PairFailure) Error() string {
	return fmt.Sprintf("concepts %d-%d: %v", f.SourceID, f.TargetID, f.Err)
}

// Result summarises one linking run. Edges are the new connections found,
// sorted by (SourceID, TargetID); Persisted is how many of them the store
// actually inserted.
type Result struct {
	Concepts  int
	Compared  int
	Edges     []common.Connection
	Persisted int
	Failures  []PairFailure
}

// Linker creates similarity connections between concepts whose embeddings
// have a cosine similarity at or above a threshold.
//
// Pair evaluation is pure, so RelinkAll spreads rows across workers; the
// merged edge set does not depend on scheduling.
type Linker struct {
	store     Store
	threshold float64
	workers   int
	metrics   *metrics.Collector
}

type Option func(*Linker)

func WithThreshold(t float64) Option {
	return func(l *Linker) {
		l.threshold = t
	}
}

func WithWorkers(n int) Option {
	return func(l *Linker) {
		l.workers = n
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(l *Linker) {
		l.metrics = m
	}
}

func NewLinker(store Store, opts ...Option) *Linker {
	l := &Linker{
		store:     store,
		threshold: DefaultThreshold,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(l)
	}
	if l.workers <= 0 {
		l.workers = 1
	}
	return l
}

func (l *Linker) Threshold() float64 {
	return l.threshold
}

// Link compares concept against every other embedded concept and persists
// a connection for each pair at or above the threshold that is not
// connected yet. A concept without embedding yields an empty result.
func (l *Linker) Link(ctx context.Context, concept common.Concept) (Result, error) {
	if !concept.HasEmbedding() {
		logger.Debug("[Linker] Concept has no embedding, skipping", "concept_id", concept.ID)
		return Result{}, nil
	}

	candidates, err := l.store.ListEmbeddedConcepts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list embedded concepts: %w", err)
	}
	existing, err := l.store.ListConceptConnections(ctx, concept.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list connections of concept %d: %w", concept.ID, err)
	}
	linked := pairSet(existing)

	res := Result{Concepts: len(candidates)}
	for _, other := range candidates {
		if other.ID == concept.ID || !other.HasEmbedding() {
			continue
		}
		res.Compared++
		sim, err := Cosine(concept.Embedding, other.Embedding)
		if err != nil {
			res.Failures = append(res.Failures, PairFailure{SourceID: concept.ID, TargetID: other.ID, Err: err})
			continue
		}
		if sim < l.threshold {
			continue
		}
		if _, ok := linked[pairOf(concept.ID, other.ID)]; ok {
			continue
		}
		res.Edges = append(res.Edges, common.Connection{SourceID: concept.ID, TargetID: other.ID, Strength: sim})
	}
	sortConnections(res.Edges)

	return l.persist(ctx, res)
}

// RelinkAll compares every unordered pair of embedded concepts. Running it
// twice over the same embeddings creates nothing the second time.
//
// A threshold <= 0 means "use the linker's threshold" (WithThreshold, 0.7
// by default), so callers cannot ask for a zero cut-off here; build a
// linker with WithThreshold for that.
func (l *Linker) RelinkAll(ctx context.Context, threshold float64) (Result, error) {
	if threshold <= 0 {
		threshold = l.threshold
	}
	start := time.Now()

	concepts, err := l.store.ListEmbeddedConcepts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list embedded concepts: %w", err)
	}
	existing, err := l.store.ListConnections(ctx, 0)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list connections: %w", err)
	}
	linked := pairSet(existing)

	embedded := concepts[:0:0]
	for _, c := range concepts {
		if c.HasEmbedding() {
			embedded = append(embedded, c)
		}
	}
	sort.Slice(embedded, func(i, j int) bool { return embedded[i].ID < embedded[j].ID })

	n := len(embedded)
	logger.Info("[Linker] Relinking concepts", "concepts", n, "pairs", n*(n-1)/2, "threshold", threshold)

	rowEdges := make([][]common.Connection, n)
	rowFailures := make([][]PairFailure, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := embedded[i]
			for j := i + 1; j < n; j++ {
				b := embedded[j]
				sim, err := Cosine(a.Embedding, b.Embedding)
				if err != nil {
					rowFailures[i] = append(rowFailures[i], PairFailure{SourceID: a.ID, TargetID: b.ID, Err: err})
					continue
				}
				if sim < threshold {
					continue
				}
				if _, ok := linked[pairOf(a.ID, b.ID)]; ok {
					continue
				}
				rowEdges[i] = append(rowEdges[i], common.Connection{SourceID: a.ID, TargetID: b.ID, Strength: sim})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Concepts: n, Compared: n * (n - 1) / 2}
	for i := range rowEdges {
		res.Edges = append(res.Edges, rowEdges[i]...)
		res.Failures = append(res.Failures, rowFailures[i]...)
	}

	res, err = l.persist(ctx, res)
	logger.Info("[Linker] Relink finished",
		"edges", len(res.Edges),
		"persisted", res.Persisted,
		"failures", len(res.Failures),
		"duration", time.Since(start),
	)
	return res, err
}

func (l *Linker) persist(ctx context.Context, res Result) (Result, error) {
	for _, f := range res.Failures {
		logger.Warn("[Linker] Pair skipped", "source", f.SourceID, "target", f.TargetID, "err", f.Err)
	}
	l.metrics.PairFailures("linker", len(res.Failures))

	if len(res.Edges) == 0 {
		return res, nil
	}
	inserted, err := l.store.SaveConnections(ctx, res.Edges)
	if err != nil {
		return res, fmt.Errorf("failed to save %d connections: %w", len(res.Edges), err)
	}
	res.Persisted = inserted
	l.metrics.ConceptConnections(inserted)
	return res, nil
}

func sortConnections(conns []common.Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].SourceID != conns[j].SourceID {
			return conns[i].SourceID < conns[j].SourceID
		}
		return conns[i].TargetID < conns[j].TargetID
	})
}
