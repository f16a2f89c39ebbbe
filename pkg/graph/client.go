package graph

import (
	"context"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/extract"
	"github.com/knowledgesnode/backend/pkg/metrics"
	"github.com/knowledgesnode/backend/pkg/mirror"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/resolve"
	"github.com/knowledgesnode/backend/pkg/similarity"
	"github.com/knowledgesnode/backend/pkg/store"
)

const (
	defaultHintEvents   = 10
	defaultHintConcepts = 20
)

// Extractor analyses article text. *extract.Oracle implements it.
type Extractor interface {
	Extract(ctx context.Context, content string, hints common.ExtractionHints) (extract.Analysis, error)
}

// MirrorPublisher receives the graph batch of every processed article.
// *mirror.Publisher implements it.
type MirrorPublisher interface {
	Publish(batch mirror.Batch)
}

// RawArchive stores the raw oracle reply of an article.
type RawArchive interface {
	PutAnalysis(ctx context.Context, articleID int64, raw []byte) (string, error)
}

// GraphClient runs articles through extraction, resolution, linking and
// mirroring.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	store     store.KnowledgeStore
	extractor Extractor
	embedder  ai.Embedder
	resolver  *resolve.Resolver
	linker    *similarity.Linker
	builder   *relate.Builder
	publisher MirrorPublisher
	archive   RawArchive
	metrics   *metrics.Collector

	hintEvents   int
	hintConcepts int
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Store, Extractor and Embedder are required. Resolver, Linker and
// Builder default to instances over Store with default options.
// Publisher and Archive are optional.
type NewGraphClientParams struct {
	Store     store.KnowledgeStore
	Extractor Extractor
	Embedder  ai.Embedder
	Resolver  *resolve.Resolver
	Linker    *similarity.Linker
	Builder   *relate.Builder
	Publisher MirrorPublisher
	Archive   RawArchive
	Metrics   *metrics.Collector

	// HintEvents and HintConcepts bound the existing events and concepts
	// listed in the extraction prompt.
	HintEvents   int
	HintConcepts int
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Store:     pgStore,
//		Extractor: oracle,
//		Embedder:  embeddingCache,
//		Publisher: publisher,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("graph client requires a store")
	}
	if params.Extractor == nil {
		return nil, fmt.Errorf("graph client requires an extractor")
	}
	if params.Embedder == nil {
		return nil, fmt.Errorf("graph client requires an embedder")
	}
	g := &GraphClient{
		store:        params.Store,
		extractor:    params.Extractor,
		embedder:     params.Embedder,
		resolver:     params.Resolver,
		linker:       params.Linker,
		builder:      params.Builder,
		publisher:    params.Publisher,
		archive:      params.Archive,
		metrics:      params.Metrics,
		hintEvents:   params.HintEvents,
		hintConcepts: params.HintConcepts,
	}
	if g.resolver == nil {
		g.resolver = resolve.NewResolver(params.Store)
	}
	if g.linker == nil {
		g.linker = similarity.NewLinker(params.Store, similarity.WithMetrics(params.Metrics))
	}
	if g.builder == nil {
		g.builder = relate.NewBuilder(params.Store, relate.WithMetrics(params.Metrics))
	}
	if g.hintEvents <= 0 {
		g.hintEvents = defaultHintEvents
	}
	if g.hintConcepts <= 0 {
		g.hintConcepts = defaultHintConcepts
	}
	return g, nil
}

// Linker exposes the similarity linker, used by batch relinking.
func (g *GraphClient) Linker() *similarity.Linker {
	return g.linker
}
