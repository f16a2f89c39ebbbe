package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/similarity"
)

// RelinkOptions configures a full relink pass.
type RelinkOptions struct {
	// Backfill embeds concepts without embedding before comparing.
	Backfill  bool
	BatchSize int
	// Threshold defaults to the linker's threshold.
	Threshold float64
	// ReportThreshold and ReportTopPairs configure the strong connection
	// report; a zero ReportTopPairs skips it.
	ReportThreshold float64
	ReportTopPairs  int
}

type RelinkSummary struct {
	Embedded     int                     `json:"embedded"`
	Concepts     int                     `json:"concepts"`
	Compared     int                     `json:"compared"`
	Created      int                     `json:"created"`
	Failures     int                     `json:"failures"`
	Distribution []similarity.Bucket     `json:"distribution"`
	Report       *StrongConnectionReport `json:"report,omitempty"`
	Duration     time.Duration           `json:"duration"`
}

// Relink embeds missing concepts, compares every pair of embedded concepts
// and summarises the resulting connection strengths. Callers that may run
// concurrently must hold the relink lease.
func (g *GraphClient) Relink(ctx context.Context, opts RelinkOptions) (*RelinkSummary, error) {
	start := time.Now()
	sum := &RelinkSummary{}

	if opts.Backfill {
		n, err := similarity.Backfill(ctx, g.store, g.embedder, opts.BatchSize)
		sum.Embedded = n
		if err != nil {
			return sum, fmt.Errorf("failed to backfill embeddings: %w", err)
		}
	}

	res, err := g.linker.RelinkAll(ctx, opts.Threshold)
	if err != nil {
		return sum, fmt.Errorf("failed to relink concepts: %w", err)
	}
	sum.Concepts = res.Concepts
	sum.Compared = res.Compared
	sum.Created = res.Persisted
	sum.Failures = len(res.Failures)

	conns, err := g.store.ListConnections(ctx, 0)
	if err != nil {
		return sum, fmt.Errorf("failed to list connections: %w", err)
	}
	sum.Distribution = similarity.Distribution(conns)

	if opts.ReportTopPairs > 0 {
		report, err := g.StrongConnectionReport(ctx, opts.ReportThreshold, opts.ReportTopPairs)
		if err != nil {
			return sum, err
		}
		sum.Report = report
	}

	sum.Duration = time.Since(start)
	logger.Info("[Graph] Relink finished",
		"embedded", sum.Embedded,
		"concepts", sum.Concepts,
		"compared", sum.Compared,
		"created", sum.Created,
		"failures", sum.Failures,
		"total_connections", len(conns),
		"duration", sum.Duration,
	)
	return sum, nil
}
