package queue

import (
	"context"
	"errors"
	"time"

	"github.com/knowledgesnode/backend/pkg/graph"
	"github.com/knowledgesnode/backend/pkg/leaselock"
	"github.com/knowledgesnode/backend/pkg/logger"
)

// RelinkLeaseKey guards full relink passes across workers and the relink
// command.
const RelinkLeaseKey = "concept-relink"

type Relinker interface {
	Relink(ctx context.Context, opts graph.RelinkOptions) (*graph.RelinkSummary, error)
}

// RunRelink runs a relink pass under the relink lease. It returns
// leaselock.ErrBusy when another pass holds the lease.
func RunRelink(ctx context.Context, relinker Relinker, locks *leaselock.Client, opts graph.RelinkOptions) (*graph.RelinkSummary, error) {
	var sum *graph.RelinkSummary
	err := locks.WithLease(ctx, RelinkLeaseKey, leaselock.Options{TTL: 2 * time.Minute}, func(ctx context.Context) error {
		var err error
		sum, err = relinker.Relink(ctx, opts)
		return err
	})
	return sum, err
}

// ProcessRelinkMessage runs the requested relink pass. A pass that is
// already running elsewhere makes this request redundant.
func ProcessRelinkMessage(
	ctx context.Context,
	relinker Relinker,
	locks *leaselock.Client,
	msg string,
) error {
	data, err := decode[RelinkMsg](msg)
	if err != nil {
		logger.Error("[Queue] Dropping malformed relink message", "err", err)
		return nil
	}

	sum, err := RunRelink(ctx, relinker, locks, graph.RelinkOptions{
		Backfill:        data.Backfill,
		Threshold:       data.Threshold,
		ReportThreshold: data.ReportMinimum,
		ReportTopPairs:  data.TopPairs,
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Relink already running, skipping request")
		return nil
	}
	if err != nil {
		return err
	}
	for _, b := range sum.Distribution {
		logger.Info("[Queue] Connection strength", "min", b.Min, "max", b.Max, "count", b.Count)
	}
	return nil
}
