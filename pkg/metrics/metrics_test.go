package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ArticleProcessed("completed")
		c.ConceptConnections(3)
		c.MirrorWrite("ok")
	})
}

func TestCountersAccumulate(t *testing.T) {
	c := NewCollector("test")
	c.ConceptConnections(2)
	c.ConceptConnections(3)
	c.ConceptConnections(0)
	c.ArticleRelationship("RELATED_TO")
	c.ArticleRelationship("RELATED_TO")

	assert.Equal(t, 5.0, testutil.ToFloat64(c.conceptEdges))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.articleEdges.WithLabelValues("RELATED_TO")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	c := NewCollector("knowledgesnode")
	c.ArticleProcessed("failed")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `knowledgesnode_articles_processed_total{status="failed"} 1`))
}
