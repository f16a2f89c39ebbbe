package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/logger"
	"github.com/knowledgesnode/backend/pkg/metrics"

	"github.com/sony/gobreaker"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 30 * time.Second
)

// Publisher writes batches to a Sink in the background. Publish never
// blocks and never fails: a full queue drops the batch, and sink errors
// are logged and counted. A circuit breaker stops calling a sink that
// keeps failing until its timeout elapses.
type Publisher struct {
	sink    Sink
	cb      *gobreaker.CircuitBreaker
	queue   chan Batch
	timeout time.Duration
	metrics *metrics.Collector

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	wg        sync.WaitGroup
}

type PublisherParams struct {
	Sink      Sink
	QueueSize int
	// Timeout bounds one batch write.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker; OpenTimeout is how long it stays open.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Metrics          *metrics.Collector
}

func NewPublisher(params PublisherParams) *Publisher {
	if params.Sink == nil {
		params.Sink = Noop{}
	}
	if params.QueueSize <= 0 {
		params.QueueSize = defaultQueueSize
	}
	if params.Timeout <= 0 {
		params.Timeout = defaultTimeout
	}
	if params.FailureThreshold == 0 {
		params.FailureThreshold = 5
	}
	if params.OpenTimeout <= 0 {
		params.OpenTimeout = time.Minute
	}

	threshold := params.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-mirror",
		MaxRequests: 1,
		Timeout:     params.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[Mirror] Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Publisher{
		sink:    params.Sink,
		cb:      cb,
		queue:   make(chan Batch, params.QueueSize),
		timeout: params.Timeout,
		metrics: params.Metrics,
	}
}

// Start launches the background writer. It stops after Close once the
// queue is drained.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for batch := range p.queue {
				_ = p.Write(context.WithoutCancel(ctx), batch)
			}
		}()
	})
}

// Publish enqueues batch for the background writer. Batches published
// after Close are dropped.
func (p *Publisher) Publish(batch Batch) {
	if batch.Empty() {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		logger.Debug("[Mirror] Publisher closed, dropping batch", "nodes", len(batch.Nodes), "edges", len(batch.Edges))
		p.metrics.MirrorWrite("dropped")
		return
	}
	select {
	case p.queue <- batch:
	default:
		logger.Warn("[Mirror] Queue full, dropping batch", "nodes", len(batch.Nodes), "edges", len(batch.Edges))
		p.metrics.MirrorWrite("dropped")
	}
}

// Close stops accepting batches and waits for queued ones to be written.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Write sends batch synchronously through the breaker. The returned error
// wraps common.ErrMirrorSink; Publish callers never see it.
func (p *Publisher) Write(ctx context.Context, batch Batch) error {
	wCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.cb.Execute(func() (any, error) {
		return nil, writeBatch(wCtx, p.sink, batch)
	})
	switch {
	case err == nil:
		p.metrics.MirrorWrite("ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		p.metrics.MirrorWrite("rejected")
		logger.Debug("[Mirror] Breaker open, batch skipped", "nodes", len(batch.Nodes), "edges", len(batch.Edges))
	default:
		p.metrics.MirrorWrite("failed")
		logger.Warn("[Mirror] Batch write failed", "err", err)
	}
	return fmt.Errorf("%w: %v", common.ErrMirrorSink, err)
}

func writeBatch(ctx context.Context, sink Sink, batch Batch) error {
	if bs, ok := sink.(BatchSink); ok {
		return bs.WriteBatch(ctx, batch)
	}
	for _, n := range batch.Nodes {
		if err := sink.UpsertNode(ctx, n.Kind, n.ID, n.Props); err != nil {
			return fmt.Errorf("upsert %s %d: %w", n.Kind, n.ID, err)
		}
	}
	for _, e := range batch.Edges {
		if err := sink.UpsertEdge(ctx, e.Kind, e.SourceID, e.TargetID, e.Type, e.Props); err != nil {
			return fmt.Errorf("upsert %s %d->%d: %w", e.Type, e.SourceID, e.TargetID, err)
		}
	}
	return nil
}
