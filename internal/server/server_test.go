package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/knowledgesnode/backend/internal/queue"
	mid "github.com/knowledgesnode/backend/internal/server/middleware"
	"github.com/knowledgesnode/backend/pkg/common"
	"github.com/knowledgesnode/backend/pkg/mirror"
	"github.com/knowledgesnode/backend/pkg/store/memory"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "master-key"

type sent struct {
	name string
	data []byte
}

type recordingSender struct {
	mu    sync.Mutex
	queue []sent
	err   error
}

func (s *recordingSender) SendQueue(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.queue = append(s.queue, sent{name: name, data: data})
	return nil
}

func (s *recordingSender) SendTopic(string, []byte) error { return nil }

type fakeMirror struct {
	articles []mirror.SimilarArticle
	concepts []mirror.RelatedConcept
	err      error
}

func (f *fakeMirror) SimilarArticles(context.Context, int64, int) ([]mirror.SimilarArticle, error) {
	return f.articles, f.err
}

func (f *fakeMirror) RelatedConcepts(context.Context, string, int) ([]mirror.RelatedConcept, error) {
	return f.concepts, f.err
}

type harness struct {
	e      *echo.Echo
	store  *memory.Store
	sender *recordingSender
	app    *mid.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New()
	sender := &recordingSender{}
	app := &mid.App{
		Store:          st,
		Queue:          sender,
		MasterAPIKey:   testKey,
		MasterUserID:   1,
		MasterUserRole: "admin",
	}
	return &harness{e: NewEcho(app), store: st, sender: sender, app: app}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) article(t *testing.T, title, url string) common.Article {
	t.Helper()
	a, err := h.store.CreateArticle(context.Background(), common.Article{Title: title, URL: url, Content: "본문"})
	require.NoError(t, err)
	return a
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/domains", nil)
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/domains", nil)
	req.Header.Set("Authorization", "Bearer not-the-key")
	rec = httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateArticle_QueuesProcessing(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/articles",
		`{"title":" 반도체 수출 ","url":"https://news.example/1","content":"내용","source":"연합"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Article common.Article `json:"article"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "반도체 수출", resp.Article.Title)
	assert.Equal(t, common.StatusPending, resp.Article.Status)
	assert.Empty(t, resp.Article.Content)

	require.Len(t, h.sender.queue, 1)
	assert.Equal(t, queue.ArticleQueue, h.sender.queue[0].name)
	var msg queue.ArticleMsg
	require.NoError(t, json.Unmarshal(h.sender.queue[0].data, &msg))
	assert.Equal(t, resp.Article.ID, msg.ArticleID)
	assert.NotEmpty(t, msg.CorrelationID)

	stored, err := h.store.GetArticle(context.Background(), resp.Article.ID)
	require.NoError(t, err)
	assert.Equal(t, "내용", stored.Content)
}

func TestCreateArticle_DuplicateURLConflicts(t *testing.T) {
	h := newHarness(t)
	body := `{"title":"a","url":"https://news.example/1","content":"x"}`

	require.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/articles", body).Code)
	rec := h.do(http.MethodPost, "/api/articles", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.sender.queue, 1)
}

func TestCreateArticle_Validation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{"content":"x"}`},
		{"missing content", `{"title":"a"}`},
		{"blank content", `{"title":"a","content":"  \n\t "}`},
		{"blank title", `{"title":"   ","content":"x"}`},
		{"bad url", `{"title":"a","content":"x","url":"not a url"}`},
		{"bad json", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/articles", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, h.sender.queue)
}

func TestCreateArticle_EnqueueFailureStillAccepts(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("broker down")

	rec := h.do(http.MethodPost, "/api/articles", `{"title":"a","content":"x"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	ids, err := h.store.ListArticleIDsByStatus(context.Background(), common.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestGetArticle(t *testing.T) {
	h := newHarness(t)
	a := h.article(t, "제목", "https://news.example/2")

	rec := h.do(http.MethodGet, "/api/articles/"+itoa(a.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got common.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "제목", got.Title)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/articles/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/articles/abc", "").Code)
}

func TestGetRelatedArticles_MergesMirror(t *testing.T) {
	h := newHarness(t)
	a1 := h.article(t, "one", "https://news.example/a1")
	a2 := h.article(t, "two", "https://news.example/a2")
	a3 := h.article(t, "three", "https://news.example/a3")

	_, _, err := h.store.CreateArticleRelationship(context.Background(), common.ArticleRelationship{
		SourceArticleID:  a1.ID,
		TargetArticleID:  a2.ID,
		RelationshipType: common.RelatedTo,
		SimilarityScore:  0.8,
	})
	require.NoError(t, err)

	h.app.Mirror = &fakeMirror{articles: []mirror.SimilarArticle{
		{ArticleID: a2.ID, Title: "two", SharedEvents: 1},
		{ArticleID: a3.ID, Title: "three", SharedEvents: 2},
	}}

	rec := h.do(http.MethodGet, "/api/articles/"+itoa(a1.ID)+"/related", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []common.RelatedArticle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, a2.ID, got[0].ArticleID)
	assert.Equal(t, "relational", got[0].Origin)
	assert.InDelta(t, 0.8, got[0].SimilarityScore, 1e-9)
	assert.Equal(t, a3.ID, got[1].ArticleID)
	assert.Equal(t, "mirror", got[1].Origin)
}

func TestGetRelatedArticles_MirrorFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	a1 := h.article(t, "one", "")
	h.app.Mirror = &fakeMirror{err: errors.New("neo4j down")}

	rec := h.do(http.MethodGet, "/api/articles/"+itoa(a1.ID)+"/related", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetArticleGraph(t *testing.T) {
	h := newHarness(t)
	a := h.article(t, "one", "")
	ctx := context.Background()
	c, _, err := h.store.CreateConceptIfAbsent(ctx, common.Concept{Name: "수출", Confidence: 0.9})
	require.NoError(t, err)
	require.NoError(t, h.store.UpsertArticleConcept(ctx, common.ArticleConcept{
		ArticleID: a.ID, ConceptID: c.ID, Confidence: 0.9, IsKeyConcept: true,
	}))

	rec := h.do(http.MethodGet, "/api/articles/"+itoa(a.ID)+"/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var g common.Subgraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.GreaterOrEqual(t, len(g.Nodes), 2)
	assert.NotEmpty(t, g.Edges)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/articles/999/graph", "").Code)
}

func TestGetRelatedConcepts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c1, _, err := h.store.CreateConceptIfAbsent(ctx, common.Concept{Name: "반도체"})
	require.NoError(t, err)
	c2, _, err := h.store.CreateConceptIfAbsent(ctx, common.Concept{Name: "메모리"})
	require.NoError(t, err)
	_, err = h.store.SaveConnections(ctx, []common.Connection{{SourceID: c1.ID, TargetID: c2.ID, Strength: 0.91}})
	require.NoError(t, err)

	h.app.Mirror = &fakeMirror{concepts: []mirror.RelatedConcept{
		{ConceptID: c2.ID, Name: "메모리", Relationship: common.SimilarTo, Weight: 0.91},
		{ConceptID: 77, Name: "수출", Relationship: "DRIVES", Weight: 0.5},
	}}

	rec := h.do(http.MethodGet, "/api/concepts/"+itoa(c1.ID)+"/related?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Concept common.Concept          `json:"concept"`
		Related []common.RelatedConcept `json:"related"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "반도체", got.Concept.Name)
	require.Len(t, got.Related, 2)
	assert.Equal(t, c2.ID, got.Related[0].ConceptID)
	assert.Equal(t, common.SimilarTo, got.Related[0].Relationship)
	assert.Equal(t, int64(77), got.Related[1].ConceptID)

	rec = h.do(http.MethodGet, "/api/concepts/"+itoa(c1.ID)+"/related?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Related, 1)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/concepts/999/related", "").Code)
}

func TestCatalogEndpoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	parent, _, err := h.store.CreateDomainIfAbsent(ctx, common.Domain{Name: "기술", Active: true})
	require.NoError(t, err)
	_, _, err = h.store.CreateDomainIfAbsent(ctx, common.Domain{Name: "반도체", ParentID: &parent.ID, Active: true})
	require.NoError(t, err)
	_, _, err = h.store.CreateEntityIfAbsent(ctx, common.Entity{Name: "삼성전자", EntityType: "기업"})
	require.NoError(t, err)
	_, _, err = h.store.CreateEntityIfAbsent(ctx, common.Entity{Name: "서울", EntityType: "장소"})
	require.NoError(t, err)
	_, _, err = h.store.CreateEventIfAbsent(ctx, common.Event{Name: "반도체 수출 호조"})
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/domains", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tree []common.DomainNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "기술", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "반도체", tree[0].Children[0].Name)

	rec = h.do(http.MethodGet, "/api/entities?type="+url.QueryEscape("기업"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entities []common.EntitySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entities))
	require.Len(t, entities, 1)
	assert.Equal(t, "삼성전자", entities[0].Name)

	rec = h.do(http.MethodGet, "/api/events?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []common.EventSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].ArticleCount)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/events?limit=-1", "").Code)
}

func TestRelinkConcepts(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/concepts/relink", `{"threshold":0.75,"backfill":true,"top_pairs":20}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, h.sender.queue, 1)
	assert.Equal(t, queue.RelinkQueue, h.sender.queue[0].name)
	var msg queue.RelinkMsg
	require.NoError(t, json.Unmarshal(h.sender.queue[0].data, &msg))
	assert.InDelta(t, 0.75, msg.Threshold, 1e-9)
	assert.True(t, msg.Backfill)
	assert.Equal(t, 20, msg.TopPairs)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/concepts/relink", `{"threshold":1.5}`).Code)
	assert.Len(t, h.sender.queue, 1)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
