package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reply  string
	err    error
	delay  time.Duration
	prompt string
	calls  int
}

func (f *fakeClient) GenerateJSON(ctx context.Context, _, _, prompt string, _ any, _ ...ai.GenerateOption) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeClient) GenerateEmbedding(context.Context, []byte) ([]float32, error) { return nil, nil }
func (f *fakeClient) GenerateEmbeddings(context.Context, [][]byte) ([][]float32, error) {
	return nil, nil
}
func (f *fakeClient) ResetMetrics()               {}
func (f *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func TestExtract_ParsesReplyAndFillsPrompt(t *testing.T) {
	client := &fakeClient{reply: fullReply}
	o, err := NewOracle(NewOracleParams{Client: client})
	require.NoError(t, err)

	a, err := o.Extract(context.Background(), "기사 본문", common.ExtractionHints{
		RecentEvents:  []string{"SKT 유심 해킹 사건"},
		LeafDomains:   []string{"사이버_보안"},
		KnownConcepts: []string{"인공지능"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, client.calls)
	assert.Len(t, a.MainConcepts, 2)
	assert.Contains(t, client.prompt, "- SKT 유심 해킹 사건")
	assert.Contains(t, client.prompt, "- 사이버_보안")
	assert.Contains(t, client.prompt, "기사 본문")
	assert.True(t, strings.Contains(client.prompt, "Available domains:\n- (none)"))
}

func TestExtract_ClientErrorIsExtractionFailure(t *testing.T) {
	o, err := NewOracle(NewOracleParams{Client: &fakeClient{err: errors.New("connection refused")}})
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "본문", common.ExtractionHints{})
	assert.ErrorIs(t, err, common.ErrExtractionFailure)
}

func TestExtract_TimeoutIsExtractionFailure(t *testing.T) {
	client := &fakeClient{reply: `{}`, delay: time.Second}
	o, err := NewOracle(NewOracleParams{Client: client, Timeout: 10 * time.Millisecond})
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "본문", common.ExtractionHints{})
	assert.ErrorIs(t, err, common.ErrExtractionFailure)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExtract_NonJSONIsExtractionFailure(t *testing.T) {
	o, err := NewOracle(NewOracleParams{Client: &fakeClient{reply: "[]"}})
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "본문", common.ExtractionHints{})
	assert.ErrorIs(t, err, common.ErrExtractionFailure)
}

func TestExtract_EmptyContentIsInvalidInput(t *testing.T) {
	client := &fakeClient{reply: `{}`}
	o, err := NewOracle(NewOracleParams{Client: client})
	require.NoError(t, err)

	_, err = o.Extract(context.Background(), "   ", common.ExtractionHints{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, 0, client.calls)
}
