package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/studyontology/backend/pkg/ai"
	"github.com/studyontology/backend/pkg/ontology"
)

// fakeAIClient serves queued extraction responses and an optional link
// response, so pipeline tests run without a model.
type fakeAIClient struct {
	extractions []extractResponse
	extractErrs []error
	linkRes     *linkResponse
	linkErr     error

	extractCalls int
	linkCalls    int
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	switch target := out.(type) {
	case *extractResponse:
		i := f.extractCalls
		f.extractCalls++
		if i < len(f.extractErrs) && f.extractErrs[i] != nil {
			return f.extractErrs[i]
		}
		if i >= len(f.extractions) {
			i = len(f.extractions) - 1
		}
		if i < 0 {
			return errors.New("no extraction queued")
		}
		*target = f.extractions[i]
		return nil
	case *linkResponse:
		f.linkCalls++
		if f.linkErr != nil {
			return f.linkErr
		}
		if f.linkRes != nil {
			*target = *f.linkRes
		}
		return nil
	default:
		return errors.New("unexpected output type")
	}
}

func (f *fakeAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error { return nil }
func (f *fakeAIClient) ResetMetrics()                                                  {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics                                    { return ai.ModelMetrics{} }

type fakeEnricher struct {
	contribution Contribution
	err          error
	calls        int
	gotKnownIDs  map[string]struct{}
}

func (f *fakeEnricher) Enrich(ctx context.Context, entities []ontology.Candidate, knownIDs map[string]struct{}) (Contribution, error) {
	f.calls++
	f.gotKnownIDs = knownIDs
	return f.contribution, f.err
}

func validExtraction() extractResponse {
	return extractResponse{
		Entities: []extractEntity{
			{ID: "concept:spacing", Type: "Concept", Name: "Spacing Effect"},
			{ID: "person:ebbinghaus", Type: "Person", Name: "Hermann Ebbinghaus"},
		},
		Relationships: []extractRelationship{
			{Subject: "concept:spacing", Predicate: "PROPOSED_BY", Object: "person:ebbinghaus", Confidence: 0.9},
		},
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "some study material", RunOptions{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Failed {
		t.Fatal("expected run to succeed")
	}
	if res.Retries != 0 {
		t.Fatalf("expected 0 retries, got %d", res.Retries)
	}
	if client.extractCalls != 1 {
		t.Fatalf("expected 1 extraction call, got %d", client.extractCalls)
	}
	if len(res.Graph.Concepts) != 1 || len(res.Graph.Persons) != 1 {
		t.Fatalf("unexpected graph buckets %+v", res.Graph)
	}
	if len(res.Graph.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(res.Graph.Relationships))
	}
}

func TestPipeline_RetryThenSucceed(t *testing.T) {
	bad := extractResponse{
		Entities: []extractEntity{{Type: "Concept", Name: "no id"}},
	}
	client := &fakeAIClient{extractions: []extractResponse{bad, validExtraction()}}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Failed {
		t.Fatal("expected run to succeed after retry")
	}
	if res.Retries != 1 {
		t.Fatalf("expected 1 retry, got %d", res.Retries)
	}
	if client.extractCalls != 2 {
		t.Fatalf("expected 2 extraction calls, got %d", client.extractCalls)
	}
	if len(res.ValidationErrors) != 0 {
		t.Fatalf("expected no residual validation errors, got %v", res.ValidationErrors)
	}
}

func TestPipeline_FailOpenAfterRetries(t *testing.T) {
	bad := extractResponse{
		Entities: []extractEntity{
			{Type: "Concept", Name: "still no id"},
			{ID: "concept:a", Type: "Concept", Name: "A"},
		},
	}
	client := &fakeAIClient{extractions: []extractResponse{bad}}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.Failed {
		t.Fatal("expected fail-open result")
	}
	if res.Retries != MaxRetries {
		t.Fatalf("expected %d retries, got %d", MaxRetries, res.Retries)
	}
	if client.extractCalls != MaxRetries+1 {
		t.Fatalf("expected %d extraction calls, got %d", MaxRetries+1, client.extractCalls)
	}
	if len(res.ValidationErrors) == 0 {
		t.Fatal("expected residual validation errors")
	}
	// The coercible part of the best attempt still materializes.
	if len(res.Graph.Concepts) != 1 {
		t.Fatalf("expected best-attempt concept to survive, got %+v", res.Graph)
	}
}

func TestPipeline_ExtractorFailureDegrades(t *testing.T) {
	client := &fakeAIClient{
		extractions: []extractResponse{{}, validExtraction()},
		extractErrs: []error{errors.New("model unavailable")},
	}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Failed {
		t.Fatal("expected recovery on retry after extractor failure")
	}
	if res.Retries != 1 {
		t.Fatalf("expected 1 retry, got %d", res.Retries)
	}
}

func TestPipeline_PersistentExtractorFailureMaterializesSideInputs(t *testing.T) {
	failure := errors.New("model unavailable")
	client := &fakeAIClient{
		extractErrs: []error{failure, failure, failure, failure},
	}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{
		SourceDocument: &ontology.Source{ID: "source:doc", Name: "doc.json"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.Failed {
		t.Fatal("expected failed run")
	}
	if len(res.Graph.SourceDocuments) != 1 {
		t.Fatal("side-input source document should still materialize")
	}
}

func TestPipeline_FailOpenSkipsGates(t *testing.T) {
	bad := extractResponse{
		Entities: []extractEntity{{Type: "Concept", Name: "still no id"}},
	}
	enricher := &fakeEnricher{}
	client := &fakeAIClient{
		extractions: []extractResponse{bad},
		linkRes: &linkResponse{
			Relationships: []linkRelationship{
				{Subject: "assignment:1", Predicate: "COVERS", Object: "concept:a", Confidence: 0.8},
			},
		},
	}
	p := NewPipeline(client, enricher)

	res, err := p.Run(context.Background(), "text", RunOptions{
		QueryEnrichment: true,
		QueryCourseLink: true,
		Assignments: []ontology.Entity{
			{ID: "assignment:1", Type: ontology.EntityTypeAssignment, Name: "Essay 1"},
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !res.Failed {
		t.Fatal("expected fail-open result")
	}
	if enricher.calls != 0 {
		t.Fatalf("enricher must not run on a failed attempt, got %d calls", enricher.calls)
	}
	if client.linkCalls != 0 {
		t.Fatalf("link pass must not run on a failed attempt, got %d calls", client.linkCalls)
	}
	// Side inputs still materialize on the fail-open path.
	if len(res.Graph.Assignments) != 1 {
		t.Fatalf("expected side-input assignment to survive, got %+v", res.Graph)
	}
}

func TestPipeline_EnrichGate(t *testing.T) {
	enricher := &fakeEnricher{
		contribution: Contribution{
			Entities: []ontology.Candidate{
				{"id": "concept:external", "type": "Concept", "name": "External"},
			},
			Relationships: []ontology.Candidate{
				{"subject": "concept:spacing", "predicate": "EXPANDS_ON", "object": "concept:external", "confidence": 0.75},
			},
		},
	}
	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, enricher)

	res, err := p.Run(context.Background(), "text", RunOptions{QueryEnrichment: true})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if enricher.calls != 1 {
		t.Fatalf("expected 1 enrich call, got %d", enricher.calls)
	}
	if _, ok := enricher.gotKnownIDs["concept:spacing"]; !ok {
		t.Fatal("enricher should see extracted IDs")
	}
	if len(res.Graph.Concepts) != 2 {
		t.Fatalf("expected enriched concept in graph, got %d concepts", len(res.Graph.Concepts))
	}
	if len(res.Graph.Relationships) != 2 {
		t.Fatalf("expected enriched relationship in graph, got %d", len(res.Graph.Relationships))
	}
}

func TestPipeline_EnrichGateDisabled(t *testing.T) {
	enricher := &fakeEnricher{}
	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, enricher)

	if _, err := p.Run(context.Background(), "text", RunOptions{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if enricher.calls != 0 {
		t.Fatalf("enricher must not run when the gate is off, got %d calls", enricher.calls)
	}
}

func TestPipeline_EnrichFailureContinues(t *testing.T) {
	enricher := &fakeEnricher{err: errors.New("knowledge base down")}
	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, enricher)

	res, err := p.Run(context.Background(), "text", RunOptions{QueryEnrichment: true})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Failed {
		t.Fatal("enrichment failure must not fail the run")
	}
	if len(res.Graph.Concepts) != 1 {
		t.Fatalf("expected base extraction to survive, got %d concepts", len(res.Graph.Concepts))
	}
}

func TestPipeline_LinkGate(t *testing.T) {
	client := &fakeAIClient{
		extractions: []extractResponse{validExtraction()},
		linkRes: &linkResponse{
			Relationships: []linkRelationship{
				{Subject: "assignment:1", Predicate: "COVERS", Object: "concept:spacing", Confidence: 0.8},
			},
		},
	}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{
		QueryCourseLink: true,
		Assignments: []ontology.Entity{
			{ID: "assignment:1", Type: ontology.EntityTypeAssignment, Name: "Essay 1"},
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if client.linkCalls != 1 {
		t.Fatalf("expected 1 link call, got %d", client.linkCalls)
	}
	found := false
	for _, r := range res.Graph.Relationships {
		if r.Predicate == ontology.RelCovers && r.Subject == "assignment:1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected COVERS relationship, got %+v", res.Graph.Relationships)
	}
}

func TestPipeline_LinkGateSkippedWithoutAssignments(t *testing.T) {
	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, nil)

	if _, err := p.Run(context.Background(), "text", RunOptions{QueryCourseLink: true}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if client.linkCalls != 0 {
		t.Fatalf("link pass must be skipped without assignments, got %d calls", client.linkCalls)
	}
}

func TestPipeline_LinkFailureContinues(t *testing.T) {
	client := &fakeAIClient{
		extractions: []extractResponse{validExtraction()},
		linkErr:     errors.New("model unavailable"),
	}
	p := NewPipeline(client, nil)

	res, err := p.Run(context.Background(), "text", RunOptions{
		QueryCourseLink: true,
		Assignments: []ontology.Entity{
			{ID: "assignment:1", Type: ontology.EntityTypeAssignment, Name: "Essay 1"},
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Failed {
		t.Fatal("link failure must not fail the run")
	}
	if len(res.Graph.Relationships) != 1 {
		t.Fatalf("expected base relationship only, got %d", len(res.Graph.Relationships))
	}
}

func TestPipeline_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeAIClient{extractions: []extractResponse{validExtraction()}}
	p := NewPipeline(client, nil)

	if _, err := p.Run(ctx, "text", RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
