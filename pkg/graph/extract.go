package graph

import (
	"context"
	"fmt"

	"github.com/studyontology/backend/pkg/ai"
	"github.com/studyontology/backend/pkg/ontology"
)

type extractEntity struct {
	ID          string `json:"id" jsonschema_description:"Stable kebab-case ID carrying the lowercase type prefix, e.g. concept:spaced-repetition"`
	Type        string `json:"type" jsonschema_description:"One of the provided entity types"`
	Name        string `json:"name" jsonschema_description:"Human-readable name of the entity"`
	Description string `json:"description" jsonschema_description:"One or two sentence description grounded in the document text"`
}

type extractRelationship struct {
	Subject    string  `json:"subject" jsonschema_description:"ID of the subject entity, as listed in the entities array"`
	Predicate  string  `json:"predicate" jsonschema_description:"One of the allowed relationship types"`
	Object     string  `json:"object" jsonschema_description:"ID of the object entity, as listed in the entities array"`
	Confidence float64 `json:"confidence" jsonschema_description:"How directly the document supports this relationship, between 0 and 1"`
	Notes      string  `json:"notes" jsonschema_description:"Short quote or pointer into the document backing this relationship"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the document"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the document"`
}

// extractCandidates runs one structured extraction call over the document
// text and returns the raw entity and relationship candidates. When
// priorErrors is non-empty the prompt carries the previous attempt's
// validation errors so the model can correct them.
func extractCandidates(
	ctx context.Context,
	client ai.GraphAIClient,
	systemPrompt string,
	text string,
	priorErrors []string,
) ([]ontology.Candidate, []ontology.Candidate, error) {
	prompt := text
	if len(priorErrors) > 0 {
		var joined string
		for _, e := range priorErrors {
			joined += "- " + e + "\n"
		}
		prompt = text + fmt.Sprintf(RetryPrompt, joined)
	}

	var res extractResponse
	err := client.GenerateCompletionWithFormat(
		ctx,
		"extract_knowledge_graph",
		"Extract typed entities and relationships from academic study material.",
		prompt,
		&res,
		ai.WithSystemPrompts(systemPrompt),
	)
	if err != nil {
		return nil, nil, err
	}

	entities := make([]ontology.Candidate, 0, len(res.Entities))
	for _, e := range res.Entities {
		entities = append(entities, ontology.Candidate{
			"id":          e.ID,
			"type":        e.Type,
			"name":        e.Name,
			"description": e.Description,
		})
	}

	relationships := make([]ontology.Candidate, 0, len(res.Relationships))
	for _, r := range res.Relationships {
		relationships = append(relationships, ontology.Candidate{
			"subject":    r.Subject,
			"predicate":  r.Predicate,
			"object":     r.Object,
			"confidence": r.Confidence,
			"notes":      r.Notes,
		})
	}

	return entities, relationships, nil
}
