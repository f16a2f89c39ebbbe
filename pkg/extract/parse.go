package extract

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/ai"
	"github.com/knowledgesnode/backend/pkg/common"

	"github.com/tidwall/gjson"
)

const (
	defaultRelationType   = common.RelatedTo
	defaultRelationWeight = 0.5
	defaultMentionCount   = 1
	dateLayout            = "2006-01-02"
)

var categorySeparators = []string{">", "/"}

// Parse turns oracle output into an Analysis. Only output that cannot be
// read as a JSON object is an error; every key is optional and wrongly
// typed values are dropped.
func Parse(raw string) (Analysis, error) {
	repaired, err := ai.RepairJSON(raw)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", common.ErrExtractionFailure, err)
	}
	doc := gjson.Parse(repaired)
	if !doc.IsObject() {
		return Analysis{}, fmt.Errorf("%w: oracle reply is not a JSON object", common.ErrExtractionFailure)
	}

	a := Analysis{
		Categories:              parseCategories(doc.Get("category")),
		CoreThemes:              parseNames(doc.Get("core_themes")),
		MainConcepts:            parseConcepts(doc.Get("main_concepts")),
		Entities:                parseEntities(doc.Get("entities")),
		Event:                   parseEvent(doc.Get("event_info")),
		RelatedConcepts:         parseConcepts(doc.Get("related_concepts")),
		ConceptRelationships:    parseRelations(doc.Get("concept_relationships")),
		Summary:                 text(doc.Get("summary")),
		RelatedToExistingEvents: parseNames(doc.Get("related_to_existing_events")),
		Raw:                     repaired,
	}
	return a, nil
}

// ParseEventDate accepts only a strict, real YYYY-MM-DD date.
func ParseEventDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if len(value) != len(dateLayout) {
		return nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

// NormalizeConfidence maps the oracle's 0-100 scale onto [0,1], so 1
// means one percent. Out of range values are clamped.
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(v/100, 1)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return util.NormalizeName(r.String())
	default:
		return ""
	}
}

// items returns r as a list. A scalar is treated as a one element list.
func items(r gjson.Result) []gjson.Result {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if r.IsArray() {
		return r.Array()
	}
	return []gjson.Result{r}
}

func nameOf(r gjson.Result) string {
	switch {
	case r.IsObject():
		return text(r.Get("name"))
	case r.Type == gjson.String:
		return text(r)
	default:
		return ""
	}
}

func parseNames(r gjson.Result) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, it := range items(r) {
		name := nameOf(it)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func parseCategories(r gjson.Result) []Category {
	var out []Category
	seen := make(map[Category]struct{})
	for _, name := range parseNames(r) {
		c := Category{Name: name}
		for _, sep := range categorySeparators {
			parent, child, ok := strings.Cut(name, sep)
			if !ok {
				continue
			}
			parent, child = strings.TrimSpace(parent), strings.TrimSpace(child)
			if parent != "" && child != "" && parent != child {
				c = Category{Name: child, Parent: parent}
			}
			break
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func parseConcepts(r gjson.Result) []Concept {
	var out []Concept
	for _, it := range items(r) {
		name := nameOf(it)
		if name == "" {
			continue
		}
		c := Concept{Name: name}
		if it.IsObject() {
			c.Description = text(it.Get("description"))
			c.Confidence = NormalizeConfidence(it.Get("confidence").Float())
		}
		out = append(out, c)
	}
	return out
}

func parseEntities(r gjson.Result) []Entity {
	var out []Entity
	for _, it := range items(r) {
		name := nameOf(it)
		if name == "" {
			continue
		}
		e := Entity{Name: name, EntityType: common.DefaultEntityType, MentionCount: defaultMentionCount}
		if it.IsObject() {
			if t := text(it.Get("entity_type")); t != "" {
				e.EntityType = t
			}
			e.Description = text(it.Get("description"))
			if mc := it.Get("mention_count"); mc.Type == gjson.Number && mc.Int() > 0 {
				e.MentionCount = int(mc.Int())
			}
		}
		out = append(out, e)
	}
	return out
}

func parseEvent(r gjson.Result) *EventInfo {
	if !r.IsObject() {
		return nil
	}
	name := text(r.Get("event_name"))
	if name == "" {
		return nil
	}
	return &EventInfo{
		Name:        name,
		Date:        ParseEventDate(r.Get("event_date").String()),
		EventType:   text(r.Get("event_type")),
		Description: text(r.Get("description")),
	}
}

func parseRelations(r gjson.Result) []ConceptRelation {
	var out []ConceptRelation
	for _, it := range items(r) {
		if !it.IsObject() {
			continue
		}
		rel := ConceptRelation{
			Source:           text(it.Get("source")),
			Target:           text(it.Get("target")),
			RelationshipType: strings.ToUpper(text(it.Get("relationship_type"))),
			Weight:           defaultRelationWeight,
		}
		if rel.Source == "" || rel.Target == "" {
			continue
		}
		if rel.RelationshipType == "" {
			rel.RelationshipType = defaultRelationType
		}
		if w := it.Get("weight"); w.Type == gjson.Number {
			rel.Weight = clampUnit(w.Float())
		}
		out = append(out, rel)
	}
	return out
}
