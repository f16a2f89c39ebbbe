package graph

import (
	"context"
	"testing"

	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStrongConnectionReport(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	article := func(title string) int64 {
		a, err := st.CreateArticle(ctx, common.Article{Title: title, URL: "https://example.com/" + title})
		require.NoError(t, err)
		return a.ID
	}
	concept := func(name string, articleID int64) int64 {
		c, _, err := st.CreateConceptIfAbsent(ctx, common.Concept{Name: name, Confidence: 0.5})
		require.NoError(t, err)
		require.NoError(t, st.UpsertArticleConcept(ctx, common.ArticleConcept{
			ArticleID: articleID, ConceptID: c.ID, Confidence: 0.5, IsKeyConcept: true,
		}))
		return c.ID
	}

	a1, a2, a3 := article("one"), article("two"), article("three")
	c1, c2 := concept("금리", a1), concept("물가", a1)
	c3 := concept("인플레이션", a2)
	c4 := concept("고용", a3)

	_, err := st.SaveConnections(ctx, []common.Connection{
		{SourceID: c1, TargetID: c2, Strength: 0.9},
		{SourceID: c1, TargetID: c3, Strength: 0.85},
		{SourceID: c2, TargetID: c3, Strength: 0.95},
		{SourceID: c3, TargetID: c4, Strength: 0.5},
		{SourceID: c2, TargetID: c4, Strength: 0.8},
	})
	require.NoError(t, err)

	report, err := BuildStrongConnectionReport(ctx, st, 0.8, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.8, report.Threshold)
	require.Len(t, report.Articles, 3)

	first := report.Articles[0]
	assert.Equal(t, a1, first.ArticleID)
	assert.Equal(t, "one", first.Title)
	require.Len(t, first.Internal, 1)
	assert.Equal(t, 0.9, first.Internal[0].Strength)
	require.Len(t, first.External, 3)
	assert.Equal(t, []float64{0.95, 0.85, 0.8}, []float64{
		first.External[0].Strength, first.External[1].Strength, first.External[2].Strength,
	})
	assert.Equal(t, "물가", first.External[0].Concept)
	assert.Equal(t, "인플레이션", first.External[0].Other)

	third := report.Articles[2]
	require.Len(t, third.External, 1)
	assert.Equal(t, c4, third.External[0].ConceptID)
	assert.Equal(t, c2, third.External[0].OtherID)

	require.Len(t, report.TopPairs, 2)
	assert.Equal(t, ArticlePair{
		SourceID: a1, SourceTitle: "one",
		TargetID: a2, TargetTitle: "two",
		Connections: 2,
	}, report.TopPairs[0])
	assert.Equal(t, 1, report.TopPairs[1].Connections)

	limited, err := BuildStrongConnectionReport(ctx, st, 0.8, 1)
	require.NoError(t, err)
	require.Len(t, limited.TopPairs, 1)
	assert.Equal(t, a2, limited.TopPairs[0].TargetID)
}

func TestBuildStrongConnectionReport_Empty(t *testing.T) {
	report, err := BuildStrongConnectionReport(context.Background(), memory.New(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultReportThreshold, report.Threshold)
	assert.Empty(t, report.Articles)
	assert.Empty(t, report.TopPairs)
}

func TestRelink_BackfillsAndSummarises(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for _, name := range []string{"반도체", "반도체 산업", "환율"} {
		_, _, err := h.store.CreateConceptIfAbsent(ctx, common.Concept{Name: name, Confidence: 0.5})
		require.NoError(t, err)
	}

	sum, err := h.client.Relink(ctx, RelinkOptions{Backfill: true, ReportTopPairs: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Embedded)
	assert.Equal(t, 3, sum.Concepts)
	assert.Equal(t, 3, sum.Compared)
	assert.Equal(t, 1, sum.Created)
	require.Len(t, sum.Distribution, 4)
	assert.Equal(t, 1, sum.Distribution[0].Count)
	require.NotNil(t, sum.Report)

	again, err := h.client.Relink(ctx, RelinkOptions{Backfill: true})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Embedded)
	assert.Equal(t, 0, again.Created)
	assert.Nil(t, again.Report)
}
