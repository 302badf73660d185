package query

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/studyontology/backend/pkg/ontology"
)

// memoryBackend is an in-memory Backend with the same ordering contract
// as the database implementation.
type memoryBackend struct {
	entities      []ontology.Entity
	sources       []ontology.Source
	relationships []ontology.Relationship
}

func orderRelationships(in []ontology.Relationship) []ontology.Relationship {
	out := append([]ontology.Relationship(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Confidence, out[j].Confidence
		switch {
		case ci != nil && cj != nil && *ci != *cj:
			return *ci > *cj
		case ci != nil && cj == nil:
			return true
		case ci == nil && cj != nil:
			return false
		}
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Object < out[j].Object
	})
	return out
}

func (b *memoryBackend) ResolveEntity(ctx context.Context, ref string) (*ontology.Entity, error) {
	for _, e := range b.entities {
		if e.ID == ref {
			return &e, nil
		}
	}
	for _, e := range b.entities {
		if strings.EqualFold(e.Name, ref) {
			return &e, nil
		}
	}
	return nil, nil
}

func (b *memoryBackend) RelationshipsByConfidence(ctx context.Context, minConfidence, maxConfidence *float64) ([]ontology.Relationship, error) {
	var out []ontology.Relationship
	for _, r := range b.relationships {
		if minConfidence != nil && (r.Confidence == nil || *r.Confidence < *minConfidence) {
			continue
		}
		if maxConfidence != nil && (r.Confidence == nil || *r.Confidence > *maxConfidence) {
			continue
		}
		out = append(out, r)
	}
	return orderRelationships(out), nil
}

func (b *memoryBackend) RelationshipsByEntity(ctx context.Context, entityID string) ([]ontology.Relationship, error) {
	var out []ontology.Relationship
	for _, r := range b.relationships {
		if r.Subject == entityID || r.Object == entityID {
			out = append(out, r)
		}
	}
	return orderRelationships(out), nil
}

func (b *memoryBackend) RelationshipsByType(ctx context.Context, predicate ontology.RelationshipType) ([]ontology.Relationship, error) {
	var out []ontology.Relationship
	for _, r := range b.relationships {
		if r.Predicate == predicate {
			out = append(out, r)
		}
	}
	return orderRelationships(out), nil
}

func (b *memoryBackend) RelationshipsAmong(ctx context.Context, entityIDs []string) ([]ontology.Relationship, error) {
	set := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		set[id] = struct{}{}
	}
	var out []ontology.Relationship
	for _, r := range b.relationships {
		if _, ok := set[r.Subject]; !ok {
			continue
		}
		if _, ok := set[r.Object]; !ok {
			continue
		}
		out = append(out, r)
	}
	return orderRelationships(out), nil
}

func (b *memoryBackend) AllRelationships(ctx context.Context) ([]ontology.Relationship, error) {
	return orderRelationships(b.relationships), nil
}

func (b *memoryBackend) EntitiesByTypes(ctx context.Context, types []ontology.EntityType) ([]ontology.Entity, error) {
	set := make(map[ontology.EntityType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	var out []ontology.Entity
	for _, e := range b.entities {
		if _, ok := set[e.Type]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *memoryBackend) EntitiesByIDs(ctx context.Context, ids []string) ([]ontology.Entity, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []ontology.Entity
	for _, e := range b.entities {
		if _, ok := set[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *memoryBackend) SourcesByIDs(ctx context.Context, ids []string) ([]ontology.Source, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	var out []ontology.Source
	for _, s := range b.sources {
		if _, ok := set[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }

func testBackend() *memoryBackend {
	return &memoryBackend{
		entities: []ontology.Entity{
			{ID: "concept:spacing", Type: ontology.EntityTypeConcept, Name: "Spacing Effect"},
			{ID: "concept:recall", Type: ontology.EntityTypeConcept, Name: "Active Recall"},
			{ID: "person:ebbinghaus", Type: ontology.EntityTypePerson, Name: "Hermann Ebbinghaus"},
			{ID: "assignment:1", Type: ontology.EntityTypeAssignment, Name: "Essay 1"},
		},
		sources: []ontology.Source{
			{ID: "source:textbook", Name: "Learning Textbook"},
			{ID: "source:paper", Name: "Spacing Paper"},
		},
		relationships: []ontology.Relationship{
			{
				Subject: "concept:spacing", Predicate: ontology.RelProposedBy, Object: "person:ebbinghaus",
				Confidence: ptr(0.9), ReferencedSourceIDs: []string{"source:paper"},
			},
			{
				Subject: "concept:spacing", Predicate: ontology.RelExpandsOn, Object: "concept:recall",
				Confidence: ptr(0.6),
			},
			{
				Subject: "assignment:1", Predicate: ontology.RelCovers, Object: "concept:recall",
				Confidence: ptr(0.8),
			},
			{
				Subject: "concept:recall", Predicate: ontology.RelAppliesTo, Object: "person:ebbinghaus",
			},
		},
	}
}

func TestByConfidence_WindowAndTotals(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByConfidence(context.Background(), ConfidenceRequest{
		MinConfidence: ptr(0.7),
		MaxConfidence: ptr(1.0),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 2 {
		t.Fatalf("expected 2 matching relationships, got %d", res.TotalRelationships)
	}
	for _, r := range res.Relationships {
		if r.Confidence == nil || *r.Confidence < 0.7 || *r.Confidence > 1.0 {
			t.Fatalf("relationship outside window: %+v", r)
		}
	}
	// Descending by confidence.
	if *res.Relationships[0].Confidence < *res.Relationships[1].Confidence {
		t.Fatal("expected descending confidence order")
	}
}

func TestByConfidence_TotalsIndependentOfPage(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByConfidence(context.Background(), ConfidenceRequest{
		Page: Page{Limit: 1, Offset: 1},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 4 {
		t.Fatalf("expected total 4, got %d", res.TotalRelationships)
	}
	if len(res.Relationships) != 1 {
		t.Fatalf("expected page of 1, got %d", len(res.Relationships))
	}
	if res.Limit != 1 || res.Offset != 1 {
		t.Fatalf("unexpected echo of page window: %+v", res)
	}
}

func TestByConfidence_NullsLast(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByConfidence(context.Background(), ConfidenceRequest{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	last := res.Relationships[len(res.Relationships)-1]
	if last.Confidence != nil {
		t.Fatalf("expected null-confidence relationship last, got %+v", last)
	}
}

func TestByConfidence_InvalidWindow(t *testing.T) {
	e := NewEngine(testBackend())

	_, err := e.ByConfidence(context.Background(), ConfidenceRequest{
		MinConfidence: ptr(0.9),
		MaxConfidence: ptr(0.1),
	})
	if err == nil {
		t.Fatal("expected error for inverted window")
	}
}

func TestByEntity_ByID(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByEntity(context.Background(), EntityRequest{Entity: "concept:spacing"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 2 {
		t.Fatalf("expected 2 relationships, got %d", res.TotalRelationships)
	}
	found := false
	for _, ent := range res.Entities {
		if ent.ID == "concept:spacing" {
			found = true
		}
	}
	if !found {
		t.Fatal("resolved entity must appear in the response")
	}
}

func TestByEntity_CaseInsensitiveName(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByEntity(context.Background(), EntityRequest{Entity: "spacing effect"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 2 {
		t.Fatalf("expected 2 relationships, got %d", res.TotalRelationships)
	}
}

func TestByEntity_NotFound(t *testing.T) {
	e := NewEngine(testBackend())

	_, err := e.ByEntity(context.Background(), EntityRequest{Entity: "concept:ghost"})
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestByRelationshipType(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByRelationshipType(context.Background(), RelationshipTypeRequest{
		RelationshipType: "COVERS",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 1 {
		t.Fatalf("expected 1 relationship, got %d", res.TotalRelationships)
	}
	if res.Relationships[0].Predicate != ontology.RelCovers {
		t.Fatalf("unexpected predicate %v", res.Relationships[0].Predicate)
	}
}

func TestByRelationshipType_UnknownRejected(t *testing.T) {
	e := NewEngine(testBackend())

	if _, err := e.ByRelationshipType(context.Background(), RelationshipTypeRequest{
		RelationshipType: "FRIENDS_WITH",
	}); err == nil {
		t.Fatal("expected error for unknown relationship type")
	}
}

func TestByEntityTypes_TwoHop(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByEntityTypes(context.Background(), EntityTypesRequest{
		EntityTypes: []string{"Concept"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	// Only concept-to-concept edges qualify.
	if res.TotalRelationships != 1 {
		t.Fatalf("expected 1 relationship, got %d: %+v", res.TotalRelationships, res.Relationships)
	}
	r := res.Relationships[0]
	if r.Subject != "concept:spacing" || r.Object != "concept:recall" {
		t.Fatalf("unexpected relationship %+v", r)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("expected both concepts in the response, got %d", len(res.Entities))
	}
}

func TestByEntityTypes_Bounds(t *testing.T) {
	e := NewEngine(testBackend())

	if _, err := e.ByEntityTypes(context.Background(), EntityTypesRequest{}); err == nil {
		t.Fatal("expected error for empty entity_types")
	}
	if _, err := e.ByEntityTypes(context.Background(), EntityTypesRequest{
		EntityTypes: []string{"Planet"},
	}); err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestBySources_MaterializedReferences(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.BySources(context.Background(), SourcesRequest{
		SourceIDs: []string{"source:paper"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 1 {
		t.Fatalf("expected 1 relationship, got %d", res.TotalRelationships)
	}
	if res.Relationships[0].Predicate != ontology.RelProposedBy {
		t.Fatalf("unexpected relationship %+v", res.Relationships[0])
	}
	found := false
	for _, s := range res.Sources {
		if s.ID == "source:paper" {
			found = true
		}
	}
	if !found {
		t.Fatal("requested source must appear in the response")
	}
}

func TestBySources_DeeplyNestedProvenance(t *testing.T) {
	b := testBackend()
	b.relationships = append(b.relationships, ontology.Relationship{
		Subject:   "concept:recall",
		Predicate: ontology.RelContrastsWith,
		Object:    "concept:spacing",
		Confidence: ptr(0.5),
		Attributes: map[string]any{
			"provenance": []any{
				map[string]any{
					"sources": []any{
						map[string]any{"source_id": "source:textbook"},
					},
				},
			},
		},
	})
	e := NewEngine(b)

	res, err := e.BySources(context.Background(), SourcesRequest{
		SourceIDs: []string{"source:textbook"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 1 {
		t.Fatalf("expected the nested-provenance relationship, got %d", res.TotalRelationships)
	}
	if res.Relationships[0].Predicate != ontology.RelContrastsWith {
		t.Fatalf("unexpected relationship %+v", res.Relationships[0])
	}
}

func TestBySources_FilterBeforePagination(t *testing.T) {
	b := testBackend()
	// Several edges referencing the same source, so pagination matters.
	for _, pair := range [][2]string{
		{"concept:spacing", "concept:recall"},
		{"concept:recall", "person:ebbinghaus"},
		{"assignment:1", "concept:spacing"},
	} {
		b.relationships = append(b.relationships, ontology.Relationship{
			Subject: pair[0], Predicate: ontology.RelAppliesTo, Object: pair[1],
			Confidence:          ptr(0.4),
			ReferencedSourceIDs: []string{"source:textbook"},
		})
	}
	e := NewEngine(b)

	res, err := e.BySources(context.Background(), SourcesRequest{
		Page:      Page{Limit: 2},
		SourceIDs: []string{"source:textbook"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.TotalRelationships != 3 {
		t.Fatalf("expected exact total 3, got %d", res.TotalRelationships)
	}
	if len(res.Relationships) != 2 {
		t.Fatalf("expected page of 2, got %d", len(res.Relationships))
	}
}

func TestBySources_Bounds(t *testing.T) {
	e := NewEngine(testBackend())

	if _, err := e.BySources(context.Background(), SourcesRequest{}); err == nil {
		t.Fatal("expected error for empty source_ids")
	}

	tooMany := make([]string, 101)
	for i := range tooMany {
		tooMany[i] = "source:x"
	}
	if _, err := e.BySources(context.Background(), SourcesRequest{SourceIDs: tooMany}); err == nil {
		t.Fatal("expected error for too many source_ids")
	}
}

func TestPage_Bounds(t *testing.T) {
	tests := []struct {
		name string
		page Page
		ok   bool
	}{
		{"default", Page{}, true},
		{"max", Page{Limit: 1000}, true},
		{"over max", Page{Limit: 1001}, false},
		{"negative limit", Page{Limit: -1}, false},
		{"negative offset", Page{Offset: -1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.page
			err := p.Normalize()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
			if tc.ok && tc.page.Limit == 0 && p.Limit != DefaultLimit {
				t.Fatalf("expected default limit, got %d", p.Limit)
			}
		})
	}
}

func TestAssemble_OffsetBeyondTotal(t *testing.T) {
	e := NewEngine(testBackend())

	res, err := e.ByConfidence(context.Background(), ConfidenceRequest{
		Page: Page{Offset: 100},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(res.Relationships) != 0 {
		t.Fatalf("expected empty page, got %d", len(res.Relationships))
	}
	if res.TotalRelationships != 4 {
		t.Fatalf("total must stay exact, got %d", res.TotalRelationships)
	}
}
