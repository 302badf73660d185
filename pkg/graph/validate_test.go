package graph

import (
	"strings"
	"testing"

	"github.com/studyontology/backend/pkg/ontology"
)

func TestValidate_CleanGraph(t *testing.T) {
	entities := []ontology.Candidate{
		{"id": "concept:a", "type": "Concept", "name": "A"},
		{"id": "assignment:1", "type": "Assignment", "name": "Essay 1"},
	}
	relationships := []ontology.Candidate{
		{"subject": "assignment:1", "predicate": "COVERS", "object": "concept:a", "confidence": 0.9},
	}
	if errs := Validate(entities, relationships); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestValidate_EntityRules(t *testing.T) {
	tests := []struct {
		name     string
		entities []ontology.Candidate
		want     string
	}{
		{
			name:     "missing id",
			entities: []ontology.Candidate{{"type": "Concept", "name": "X"}},
			want:     "missing an id",
		},
		{
			name:     "assignment without name",
			entities: []ontology.Candidate{{"id": "assignment:1", "type": "Assignment"}},
			want:     "missing a name",
		},
		{
			name: "duplicate id",
			entities: []ontology.Candidate{
				{"id": "concept:a", "type": "Concept", "name": "A"},
				{"id": "concept:a", "type": "Concept", "name": "A again"},
			},
			want: "duplicate entity id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(tc.entities, nil)
			if len(errs) == 0 {
				t.Fatal("expected violations, got none")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a violation containing %q, got %v", tc.want, errs)
			}
		})
	}
}

func TestValidate_RelationshipRules(t *testing.T) {
	entities := []ontology.Candidate{
		{"id": "concept:a", "type": "Concept", "name": "A"},
		{"id": "concept:b", "type": "Concept", "name": "B"},
	}

	tests := []struct {
		name          string
		relationships []ontology.Candidate
		want          string
	}{
		{
			name:          "missing subject",
			relationships: []ontology.Candidate{{"predicate": "COVERS", "object": "concept:a"}},
			want:          "missing a subject",
		},
		{
			name:          "unresolved subject",
			relationships: []ontology.Candidate{{"subject": "concept:ghost", "predicate": "COVERS", "object": "concept:a", "confidence": 0.9}},
			want:          `subject "concept:ghost" does not resolve`,
		},
		{
			name:          "missing object",
			relationships: []ontology.Candidate{{"subject": "concept:a", "predicate": "COVERS"}},
			want:          "missing an object",
		},
		{
			name:          "unresolved object",
			relationships: []ontology.Candidate{{"subject": "concept:a", "predicate": "COVERS", "object": "concept:ghost", "confidence": 0.9}},
			want:          `object "concept:ghost" does not resolve`,
		},
		{
			name:          "unknown predicate",
			relationships: []ontology.Candidate{{"subject": "concept:a", "predicate": "FRIENDS_WITH", "object": "concept:b"}},
			want:          "unknown predicate",
		},
		{
			name:          "confidence above range",
			relationships: []ontology.Candidate{{"subject": "concept:a", "predicate": "COVERS", "object": "concept:b", "confidence": 1.2}},
			want:          "invalid confidence",
		},
		{
			name:          "non-numeric confidence",
			relationships: []ontology.Candidate{{"subject": "concept:a", "predicate": "COVERS", "object": "concept:b", "confidence": "high"}},
			want:          "invalid confidence",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(entities, tc.relationships)
			if len(errs) == 0 {
				t.Fatal("expected violations, got none")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected a violation containing %q, got %v", tc.want, errs)
			}
		})
	}
}

func TestValidate_AccumulatesAllViolations(t *testing.T) {
	entities := []ontology.Candidate{
		{"type": "Concept"},
		{"id": "assignment:1", "type": "Assignment"},
	}
	relationships := []ontology.Candidate{
		{"predicate": "COVERS", "object": "concept:a"},
		{"subject": "concept:a", "predicate": "NOPE", "object": "concept:b"},
	}
	errs := Validate(entities, relationships)
	if len(errs) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(errs), errs)
	}
}

func TestValidate_NilConfidenceAllowed(t *testing.T) {
	entities := []ontology.Candidate{
		{"id": "concept:a", "type": "Concept", "name": "A"},
		{"id": "concept:b", "type": "Concept", "name": "B"},
	}
	relationships := []ontology.Candidate{
		{"subject": "concept:a", "predicate": "COVERS", "object": "concept:b"},
		{"subject": "concept:a", "predicate": "EXPANDS_ON", "object": "concept:b", "confidence": nil},
	}
	if errs := Validate(entities, relationships); len(errs) != 0 {
		t.Fatalf("expected no violations for absent confidence, got %v", errs)
	}
}
