package queue

import (
	"encoding/json"
	"fmt"

	"github.com/knowledgesnode/backend/pkg/common"
)

// ArticleMsg asks a worker to process one stored article.
type ArticleMsg struct {
	ArticleID     int64  `json:"article_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RelinkMsg asks a worker to run a full relink pass.
type RelinkMsg struct {
	Threshold float64 `json:"threshold,omitempty"`
	Backfill  bool    `json:"backfill"`
	// TopPairs > 0 adds the strong connection report to the log output.
	TopPairs      int     `json:"top_pairs,omitempty"`
	ReportMinimum float64 `json:"report_minimum,omitempty"`
}

// ArticleProcessedEvent is published on ArticleProcessedTopic.
type ArticleProcessedEvent struct {
	ArticleID    int64 `json:"article_id"`
	Concepts     int   `json:"concepts"`
	NewConcepts  int   `json:"new_concepts"`
	Entities     int   `json:"entities"`
	Events       int   `json:"events"`
	Connections  int   `json:"connections"`
	ArticleEdges int   `json:"article_edges"`
}

func decode[T any](msg string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(msg), &v); err != nil {
		return v, fmt.Errorf("failed to decode message: %w: %w", common.ErrInvalidInput, err)
	}
	return v, nil
}

// EnqueueArticle publishes an ArticleMsg for id.
func EnqueueArticle(sender Sender, id int64, correlationID string) error {
	data, err := json.Marshal(ArticleMsg{ArticleID: id, CorrelationID: correlationID})
	if err != nil {
		return err
	}
	return sender.SendQueue(ArticleQueue, data)
}

func EnqueueRelink(sender Sender, msg RelinkMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return sender.SendQueue(RelinkQueue, data)
}
