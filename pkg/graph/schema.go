package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/studyontology/backend/pkg/ai"
	"github.com/studyontology/backend/pkg/ontology"
)

// buildSystemPrompt renders the extraction system prompt: the fixed entity
// type options with their ID prefixes, the allowed predicates, and the
// JSON schema of the expected response.
func buildSystemPrompt() (string, error) {
	var types strings.Builder
	for _, t := range ontology.EntityTypes {
		fmt.Fprintf(&types, "- %s (IDs start with %q)\n", t, t.Tag()+":")
	}

	preds := make([]string, 0, len(ontology.RelationshipTypes))
	for _, t := range ontology.RelationshipTypes {
		preds = append(preds, string(t))
	}

	schema := ai.GenerateSchema(&extractResponse{})
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render response schema: %w", err)
	}

	return fmt.Sprintf(
		ExtractPrompt,
		strings.TrimRight(types.String(), "\n"),
		strings.Join(preds, ", "),
		string(schemaJSON),
	), nil
}
