package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/knowledgesnode/backend/pkg/common"
)

const (
	DefaultReportThreshold = 0.8
	DefaultReportTopPairs  = 20
)

// ReportStore is what BuildStrongConnectionReport reads.
type ReportStore interface {
	ListConnections(ctx context.Context, minStrength float64) ([]common.Connection, error)
	ArticleConceptIndex(ctx context.Context) (map[int64][]int64, error)
	ArticleTitles(ctx context.Context, ids []int64) (map[int64]string, error)
	GetConcepts(ctx context.Context, ids []int64) ([]common.Concept, error)
}

// ConceptLink is a strong connection seen from one article. Concept is
// always the side that belongs to the article.
type ConceptLink struct {
	ConceptID int64   `json:"concept_id"`
	Concept   string  `json:"concept"`
	OtherID   int64   `json:"other_id"`
	Other     string  `json:"other"`
	Strength  float64 `json:"strength"`
}

// ArticleConnections splits the strong connections touching an article
// into internal ones, between two of its own concepts, and external ones.
type ArticleConnections struct {
	ArticleID int64         `json:"article_id"`
	Title     string        `json:"title"`
	Internal  []ConceptLink `json:"internal"`
	External  []ConceptLink `json:"external"`
}

// ArticlePair counts strong connections between the concepts of two
// articles.
type ArticlePair struct {
	SourceID    int64  `json:"source_id"`
	SourceTitle string `json:"source_title"`
	TargetID    int64  `json:"target_id"`
	TargetTitle string `json:"target_title"`
	Connections int    `json:"connections"`
}

type StrongConnectionReport struct {
	Threshold float64              `json:"threshold"`
	Articles  []ArticleConnections `json:"articles"`
	TopPairs  []ArticlePair        `json:"top_pairs"`
}

// StrongConnectionReport reports connections at or above threshold.
func (g *GraphClient) StrongConnectionReport(ctx context.Context, threshold float64, topPairs int) (*StrongConnectionReport, error) {
	return BuildStrongConnectionReport(ctx, g.store, threshold, topPairs)
}

func BuildStrongConnectionReport(ctx context.Context, st ReportStore, threshold float64, topPairs int) (*StrongConnectionReport, error) {
	if threshold <= 0 {
		threshold = DefaultReportThreshold
	}
	if topPairs <= 0 {
		topPairs = DefaultReportTopPairs
	}

	conns, err := st.ListConnections(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	index, err := st.ArticleConceptIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load article concept index: %w", err)
	}

	conceptIDs := make(map[int64]struct{})
	for _, c := range conns {
		conceptIDs[c.SourceID] = struct{}{}
		conceptIDs[c.TargetID] = struct{}{}
	}
	names, err := conceptNames(ctx, st, conceptIDs)
	if err != nil {
		return nil, err
	}

	byArticle := make(map[int64]map[int64]struct{})
	for conceptID, articles := range index {
		for _, a := range articles {
			set, ok := byArticle[a]
			if !ok {
				set = make(map[int64]struct{})
				byArticle[a] = set
			}
			set[conceptID] = struct{}{}
		}
	}
	articleIDs := make([]int64, 0, len(byArticle))
	for id := range byArticle {
		articleIDs = append(articleIDs, id)
	}
	sort.Slice(articleIDs, func(i, j int) bool { return articleIDs[i] < articleIDs[j] })

	titles, err := st.ArticleTitles(ctx, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load article titles: %w", err)
	}

	report := &StrongConnectionReport{Threshold: threshold}
	for _, id := range articleIDs {
		own := byArticle[id]
		ac := ArticleConnections{ArticleID: id, Title: titles[id]}
		for _, c := range conns {
			_, src := own[c.SourceID]
			_, dst := own[c.TargetID]
			switch {
			case src && dst:
				ac.Internal = append(ac.Internal, link(c.SourceID, c.TargetID, c.Strength, names))
			case src:
				ac.External = append(ac.External, link(c.SourceID, c.TargetID, c.Strength, names))
			case dst:
				ac.External = append(ac.External, link(c.TargetID, c.SourceID, c.Strength, names))
			}
		}
		if len(ac.Internal) == 0 && len(ac.External) == 0 {
			continue
		}
		sortLinks(ac.Internal)
		sortLinks(ac.External)
		report.Articles = append(report.Articles, ac)
	}

	report.TopPairs = topArticlePairs(conns, index, titles, topPairs)
	return report, nil
}

func conceptNames(ctx context.Context, st ReportStore, ids map[int64]struct{}) (map[int64]string, error) {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	concepts, err := st.GetConcepts(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("failed to load concepts: %w", err)
	}
	names := make(map[int64]string, len(concepts))
	for _, c := range concepts {
		names[c.ID] = c.Name
	}
	return names, nil
}

func link(own, other int64, strength float64, names map[int64]string) ConceptLink {
	return ConceptLink{ConceptID: own, Concept: names[own], OtherID: other, Other: names[other], Strength: strength}
}

func sortLinks(links []ConceptLink) {
	sort.SliceStable(links, func(i, j int) bool { return links[i].Strength > links[j].Strength })
}

func topArticlePairs(conns []common.Connection, index map[int64][]int64, titles map[int64]string, n int) []ArticlePair {
	type key struct{ lo, hi int64 }
	counts := make(map[key]int)
	for _, c := range conns {
		seen := make(map[key]struct{})
		for _, a := range index[c.SourceID] {
			for _, b := range index[c.TargetID] {
				if a == b {
					continue
				}
				k := key{min(a, b), max(a, b)}
				if _, ok := seen[k]; ok {
					continue
				}
				seen[k] = struct{}{}
				counts[k]++
			}
		}
	}

	pairs := make([]ArticlePair, 0, len(counts))
	for k, cnt := range counts {
		pairs = append(pairs, ArticlePair{
			SourceID: k.lo, SourceTitle: titles[k.lo],
			TargetID: k.hi, TargetTitle: titles[k.hi],
			Connections: cnt,
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Connections != pairs[j].Connections {
			return pairs[i].Connections > pairs[j].Connections
		}
		if pairs[i].SourceID != pairs[j].SourceID {
			return pairs[i].SourceID < pairs[j].SourceID
		}
		return pairs[i].TargetID < pairs[j].TargetID
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}
