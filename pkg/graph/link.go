package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyontology/backend/pkg/ai"
	"github.com/studyontology/backend/pkg/ontology"
)

type linkRelationship struct {
	Subject    string  `json:"subject" jsonschema_description:"ID of the subject, from the provided lists"`
	Predicate  string  `json:"predicate" jsonschema_description:"COVERS or ASSESSED_BY"`
	Object     string  `json:"object" jsonschema_description:"ID of the object, from the provided lists"`
	Confidence float64 `json:"confidence" jsonschema_description:"How sure you are about this link, between 0 and 1"`
}

type linkResponse struct {
	Relationships []linkRelationship `json:"relationships" jsonschema_description:"Links between assignments and extracted entities"`
}

// linkAssignments runs the second model pass that connects assignment
// nodes to the extracted entities. Proposals outside the allowed
// predicates, or whose endpoints are not an (assignment, entity) pair
// from the provided pools, are dropped before they join the candidate
// pool. A model failure returns an empty contribution, never an error
// that would sink the pipeline.
func linkAssignments(
	ctx context.Context,
	client ai.GraphAIClient,
	assignments []ontology.Entity,
	entities []ontology.Candidate,
) ([]ontology.Candidate, error) {
	if len(assignments) == 0 {
		return nil, nil
	}

	assignmentIDs := make(map[string]struct{}, len(assignments))
	var assignmentList strings.Builder
	for _, a := range assignments {
		assignmentIDs[a.ID] = struct{}{}
		fmt.Fprintf(&assignmentList, "- %s: %s\n", a.ID, a.Name)
	}

	entityIDs := make(map[string]struct{}, len(entities))
	var entityList strings.Builder
	for _, c := range entities {
		id, _ := c["id"].(string)
		if id == "" {
			continue
		}
		if _, isAssignment := assignmentIDs[id]; isAssignment {
			continue
		}
		entityIDs[id] = struct{}{}
		name, _ := c["name"].(string)
		fmt.Fprintf(&entityList, "- %s: %s\n", id, name)
	}
	if len(entityIDs) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(LinkPrompt, assignmentList.String(), entityList.String())

	var res linkResponse
	err := client.GenerateCompletionWithFormat(
		ctx,
		"link_assignments",
		"Link course assignments to the entities they cover or assess.",
		prompt,
		&res,
	)
	if err != nil {
		return nil, err
	}

	var out []ontology.Candidate
	for _, r := range res.Relationships {
		switch ontology.RelationshipType(r.Predicate) {
		case ontology.RelCovers:
			// assignment -> entity
			if _, ok := assignmentIDs[r.Subject]; !ok {
				continue
			}
			if _, ok := entityIDs[r.Object]; !ok {
				continue
			}
		case ontology.RelAssessedBy:
			// entity -> assignment
			if _, ok := entityIDs[r.Subject]; !ok {
				continue
			}
			if _, ok := assignmentIDs[r.Object]; !ok {
				continue
			}
		default:
			continue
		}

		out = append(out, ontology.Candidate{
			"subject":    r.Subject,
			"predicate":  r.Predicate,
			"object":     r.Object,
			"confidence": r.Confidence,
		})
	}

	return out, nil
}
