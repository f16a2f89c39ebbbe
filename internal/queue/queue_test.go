package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/graph"
	"github.com/knowledgesnode/backend/pkg/leaselock"
	"github.com/knowledgesnode/backend/pkg/relate"
	"github.com/knowledgesnode/backend/pkg/store/memory"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	target string
	body   []byte
}

type recordingSender struct {
	queues []sent
	topics []sent
	err    error
}

func (s *recordingSender) SendQueue(queueName string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.queues = append(s.queues, sent{queueName, data})
	return nil
}

func (s *recordingSender) SendTopic(topic string, data []byte) error {
	s.topics = append(s.topics, sent{topic, data})
	return nil
}

type stubProcessor struct {
	calls []int64
	res   *graph.ProcessResult
	err   error
}

func (p *stubProcessor) ProcessArticle(ctx context.Context, id int64) (*graph.ProcessResult, error) {
	p.calls = append(p.calls, id)
	return p.res, p.err
}

func TestProcessArticleMessage_PublishesEvent(t *testing.T) {
	proc := &stubProcessor{res: &graph.ProcessResult{
		ArticleID:   7,
		ConceptIDs:  []int64{1, 2},
		NewConcepts: []int64{2},
		Connections: []common.Connection{{SourceID: 2, TargetID: 1, Strength: 0.9}},
		Relations:   relate.Result{Edges: []common.ArticleRelationship{{SourceArticleID: 7, TargetArticleID: 3}}},
	}}
	sender := &recordingSender{}

	err := ProcessArticleMessage(context.Background(), proc, sender, `{"article_id":7}`)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, proc.calls)

	require.Len(t, sender.topics, 1)
	assert.Equal(t, ArticleProcessedTopic, sender.topics[0].target)
	var ev ArticleProcessedEvent
	require.NoError(t, json.Unmarshal(sender.topics[0].body, &ev))
	assert.Equal(t, ArticleProcessedEvent{ArticleID: 7, Concepts: 2, NewConcepts: 1, Connections: 1, ArticleEdges: 1}, ev)
}

func TestProcessArticleMessage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		err     error
		wantErr bool
	}{
		{"malformed", `not json`, nil, false},
		{"missing id", `{}`, nil, false},
		{"unknown article", `{"article_id":1}`, common.ErrNotFound, false},
		{"extraction failure", `{"article_id":1}`, fmt.Errorf("oracle: %w", common.ErrExtractionFailure), false},
		{"empty content", `{"article_id":1}`, fmt.Errorf("extract: %w: article content is empty", common.ErrInvalidInput), false},
		{"database down", `{"article_id":1}`, errors.New("connection refused"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sender := &recordingSender{}
			err := ProcessArticleMessage(context.Background(), &stubProcessor{err: tc.err}, sender, tc.msg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, sender.topics)
		})
	}
}

type stubRelinker struct {
	runs int
	opts graph.RelinkOptions
}

func (r *stubRelinker) Relink(ctx context.Context, opts graph.RelinkOptions) (*graph.RelinkSummary, error) {
	r.runs++
	r.opts = opts
	return &graph.RelinkSummary{Created: 1}, nil
}

func newLocks(t *testing.T) *leaselock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return leaselock.New(leaselock.NewRedis(client))
}

func TestProcessRelinkMessage(t *testing.T) {
	ctx := context.Background()
	locks := newLocks(t)
	r := &stubRelinker{}

	require.NoError(t, ProcessRelinkMessage(ctx, r, locks, `{"threshold":0.75,"backfill":true,"top_pairs":5}`))
	assert.Equal(t, 1, r.runs)
	assert.Equal(t, graph.RelinkOptions{Backfill: true, Threshold: 0.75, ReportTopPairs: 5}, r.opts)

	lease, err := locks.Acquire(ctx, RelinkLeaseKey, leaselock.Options{})
	require.NoError(t, err)
	defer lease.Release(ctx)

	require.NoError(t, ProcessRelinkMessage(ctx, r, locks, `{}`))
	assert.Equal(t, 1, r.runs, "a held lease skips the pass")

	_, err = RunRelink(ctx, r, locks, graph.RelinkOptions{})
	assert.ErrorIs(t, err, leaselock.ErrBusy)
}

func TestRecoverStaleArticles(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	var ids []int64
	for i, status := range []common.ProcessingStatus{
		common.StatusPending, common.StatusCompleted, common.StatusProcessing, common.StatusFailed,
	} {
		a, err := st.CreateArticle(ctx, common.Article{Title: fmt.Sprint(i), Status: status})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	sender := &recordingSender{}
	n, err := RecoverStaleArticles(ctx, sender, st, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sender.queues, 2)
	var got []int64
	for _, m := range sender.queues {
		assert.Equal(t, ArticleQueue, m.target)
		var msg ArticleMsg
		require.NoError(t, json.Unmarshal(m.body, &msg))
		got = append(got, msg.ArticleID)
	}
	assert.Equal(t, []int64{ids[2], ids[0]}, got)
}

type publishCall struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.calls = append(c.calls, publishCall{key, msg})
	return c.err
}

type fakeAck struct {
	acks, nacks int
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *fakeAck) Nack(tag uint64, multiple bool, requeue bool) error { a.nacks++; return nil }
func (a *fakeAck) Reject(tag uint64, requeue bool) error { a.nacks++; return nil }

func TestHandleProcessingError(t *testing.T) {
	t.Run("retry", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAck{}
		msg := amqp.Delivery{Acknowledger: ack, Body: []byte("x"), Headers: amqp.Table{"x-retries": int32(2)}}
		HandleProcessingError(ch, msg, ArticleQueue)

		require.Len(t, ch.calls, 1)
		assert.Equal(t, ArticleQueue+"_retry", ch.calls[0].key)
		assert.Equal(t, int32(3), ch.calls[0].msg.Headers["x-retries"])
		assert.Equal(t, int32(2), msg.Headers["x-retries"])
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("dead letter", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAck{}
		msg := amqp.Delivery{Acknowledger: ack, Headers: amqp.Table{"x-retries": int32(MaxRetries)}}
		HandleProcessingError(ch, msg, RelinkQueue)

		require.Len(t, ch.calls, 1)
		assert.Equal(t, RelinkQueue+"_dlq", ch.calls[0].key)
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("publish failure requeues", func(t *testing.T) {
		ch, ack := &fakeChannel{err: errors.New("closed")}, &fakeAck{}
		HandleProcessingError(ch, amqp.Delivery{Acknowledger: ack}, ArticleQueue)
		assert.Equal(t, 0, ack.acks)
		assert.Equal(t, 1, ack.nacks)
	})
}
