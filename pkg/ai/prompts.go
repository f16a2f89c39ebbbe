package ai

// ExtractionSystemPrompt is sent ahead of ExtractionPrompt.
const ExtractionSystemPrompt = "You analyse the given text and answer only with structured JSON written in Korean."

// ExtractionPrompt takes, in order: existing event names, all domain names,
// existing concept names, leaf domain names and the article text.
const ExtractionPrompt = `
# Task Context
You extract structured knowledge from a news or technical article for a knowledge graph. Every value you write must be in Korean; the JSON keys stay in English exactly as listed.

# Background Data
Existing events (pick from these for related_to_existing_events):
%s

Available domains:
%s

Concepts already known (reuse a name when you mean the same idea):
%s

Leaf domains (the most specific domains, preferred for category):
%s

# Detailed Task Description & Rules
- category: content categories such as 기술, 과학, 경제, 교육. Use "parent > child" to place a new category under an existing domain.
- core_themes: the 2-5 main themes.
- main_concepts: key concepts with a short description and a confidence from 0 to 100.
- entities: organisations, people, products or technologies with entity_type (조직/인물/제품/기술) and how often they are mentioned.
- event_info: the event the article covers. event_date must be an exact YYYY-MM-DD date or an empty string.
- related_concepts: concepts not mentioned directly but closely related, with a confidence from 0 to 100.
- concept_relationships: relations between concepts (RELATED_TO, IS_A, PART_OF) with a weight between 0 and 1.
- summary: 3-5 sentences.
- related_to_existing_events: names from the existing events list this article relates to. Never invent names.

# Output Formatting
Return one JSON object:
{
  "category": [],
  "core_themes": [],
  "main_concepts": [{"name": "", "description": "", "confidence": 95}],
  "entities": [{"name": "", "entity_type": "", "mention_count": 1}],
  "event_info": {"event_name": "", "event_date": "", "event_type": "", "description": ""},
  "related_concepts": [{"name": "", "confidence": 80}],
  "concept_relationships": [{"source": "", "target": "", "relationship_type": "RELATED_TO", "weight": 0.9}],
  "summary": "",
  "related_to_existing_events": []
}

# Text
%s
`
