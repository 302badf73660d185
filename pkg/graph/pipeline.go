package graph

import (
	"context"
	"fmt"

	"github.com/studyontology/backend/pkg/ai"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"

	"golang.org/x/sync/errgroup"
)

// MaxRetries bounds how often extraction is re-run with validation
// feedback before the pipeline gives up and materializes what it has.
const MaxRetries = 3

type stage string

const (
	stageInjectSchema stage = "INJECT_SCHEMA"
	stageExtract      stage = "EXTRACT"
	stageValidate     stage = "VALIDATE"
	stageEnrich       stage = "ENRICH"
	stageLink         stage = "LINK"
	stageMaterialize  stage = "MATERIALIZE"
	stageDone         stage = "DONE"
)

// Contribution is a batch of candidates contributed by an external
// knowledge adapter.
type Contribution struct {
	Entities      []ontology.Candidate
	Relationships []ontology.Candidate
}

// Enricher contributes candidates derived from an external knowledge
// base. knownIDs holds every entity ID already in the candidate pool so
// the enricher can avoid proposing duplicates.
type Enricher interface {
	Enrich(ctx context.Context, entities []ontology.Candidate, knownIDs map[string]struct{}) (Contribution, error)
}

// RunOptions configures a single pipeline run.
type RunOptions struct {
	// QueryEnrichment enables the external enrichment gate.
	QueryEnrichment bool
	// QueryCourseLink enables the assignment-linking model pass. The pass
	// only runs when at least one assignment entity is present.
	QueryCourseLink bool

	// Assignments are side-input assignment entities merged into the graph
	// (last write wins on ID collisions).
	Assignments []ontology.Entity
	// SourceDocument records the ingested document as a source node.
	SourceDocument *ontology.Source

	// ChunkTokens, when positive, splits the document into token-bounded
	// chunks extracted in parallel. ChunkWorkers bounds the fan-out
	// (default 4).
	ChunkTokens  int
	ChunkWorkers int
}

// RunResult is the outcome of a pipeline run. Failed means validation
// errors survived all retries; the graph is still materialized from the
// best attempt.
type RunResult struct {
	Graph            *ontology.Graph
	Stats            Stats
	ValidationErrors []string
	Retries          int
	Failed           bool
}

// Pipeline turns document text into a validated knowledge graph through a
// fixed sequence of stages: schema injection, extraction, validation with
// bounded retries, optional enrichment and assignment linking, and
// materialization.
type Pipeline struct {
	client   ai.GraphAIClient
	enricher Enricher
}

// NewPipeline creates a pipeline around the given extraction client.
// enricher may be nil, which disables the enrichment gate.
func NewPipeline(client ai.GraphAIClient, enricher Enricher) *Pipeline {
	return &Pipeline{
		client:   client,
		enricher: enricher,
	}
}

// Run executes the pipeline over the document text. It returns an error
// only for context cancellation or a graph that cannot be serialized;
// extractor and adapter failures degrade to empty contributions and are
// reflected in the result instead.
func (p *Pipeline) Run(ctx context.Context, text string, opts RunOptions) (*RunResult, error) {
	var (
		systemPrompt  string
		entities      []ontology.Candidate
		relationships []ontology.Candidate
		attemptErrors []string
		retries       int
		failed        bool
	)

	result := &RunResult{}

	current := stageInjectSchema
	for current != stageDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch current {
		case stageInjectSchema:
			sp, err := buildSystemPrompt()
			if err != nil {
				return nil, err
			}
			systemPrompt = sp
			current = stageExtract

		case stageExtract:
			logger.Debug("[Pipeline] extracting", "attempt", retries+1, "chunked", opts.ChunkTokens > 0)
			ents, rels, err := p.extract(ctx, systemPrompt, text, attemptErrors, opts)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Error("[Pipeline] extractor failed", "err", err)
				ents, rels = nil, nil
				attemptErrors = append(attemptErrors, fmt.Sprintf("extractor failed: %v", err))
				entities, relationships = ents, rels
				current = stageValidate
				break
			}
			entities, relationships = ents, rels
			attemptErrors = nil
			current = stageValidate

		case stageValidate:
			errs := Validate(entities, relationships)
			attemptErrors = append(attemptErrors, errs...)
			if len(attemptErrors) == 0 {
				current = stageEnrich
				break
			}
			if retries < MaxRetries {
				retries++
				logger.Warn("[Pipeline] validation failed, retrying",
					"errors", len(attemptErrors), "retry", retries)
				current = stageExtract
				break
			}
			// Retries exhausted: keep what we have and materialize anyway.
			// The enrich and link gates only run on validated output.
			logger.Warn("[Pipeline] validation failed after retries, materializing best attempt",
				"errors", len(attemptErrors))
			failed = true
			result.ValidationErrors = attemptErrors
			current = stageMaterialize

		case stageEnrich:
			if !opts.QueryEnrichment || p.enricher == nil {
				current = stageLink
				break
			}
			contribution, err := p.enricher.Enrich(ctx, entities, candidateIDs(entities, opts.Assignments))
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Error("[Pipeline] enrichment failed, continuing without it", "err", err)
				current = stageLink
				break
			}
			entities = append(entities, contribution.Entities...)
			relationships = append(relationships, contribution.Relationships...)
			current = stageLink

		case stageLink:
			if !opts.QueryCourseLink {
				current = stageMaterialize
				break
			}
			assignments := gatherAssignments(entities, opts.Assignments)
			if len(assignments) == 0 {
				current = stageMaterialize
				break
			}
			linked, err := linkAssignments(ctx, p.client, assignments, entities)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Error("[Pipeline] assignment linking failed, continuing without it", "err", err)
				current = stageMaterialize
				break
			}
			relationships = append(relationships, linked...)
			current = stageMaterialize

		case stageMaterialize:
			g, stats, err := Materialize(MaterializeInput{
				Entities:       entities,
				Relationships:  relationships,
				Assignments:    opts.Assignments,
				SourceDocument: opts.SourceDocument,
			})
			if err != nil {
				return nil, err
			}
			result.Graph = g
			result.Stats = stats
			current = stageDone
		}
	}

	result.Retries = retries
	result.Failed = failed
	return result, nil
}

func (p *Pipeline) extract(
	ctx context.Context,
	systemPrompt string,
	text string,
	priorErrors []string,
	opts RunOptions,
) ([]ontology.Candidate, []ontology.Candidate, error) {
	if opts.ChunkTokens <= 0 {
		return extractCandidates(ctx, p.client, systemPrompt, text, priorErrors)
	}

	chunks, err := splitByTokens(text, opts.ChunkTokens)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 1 {
		return extractCandidates(ctx, p.client, systemPrompt, chunks[0], priorErrors)
	}

	workers := opts.ChunkWorkers
	if workers <= 0 {
		workers = 4
	}

	entityBatches := make([][]ontology.Candidate, len(chunks))
	relationshipBatches := make([][]ontology.Candidate, len(chunks))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, chunk := range chunks {
		eg.Go(func() error {
			ents, rels, err := extractCandidates(ectx, p.client, systemPrompt, chunk, priorErrors)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			entityBatches[i] = ents
			relationshipBatches[i] = rels
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var entities, relationships []ontology.Candidate
	for i := range chunks {
		entities = append(entities, entityBatches[i]...)
		relationships = append(relationships, relationshipBatches[i]...)
	}
	return entities, relationships, nil
}

// candidateIDs collects the IDs already present in the candidate pool and
// the side-input assignments.
func candidateIDs(entities []ontology.Candidate, assignments []ontology.Entity) map[string]struct{} {
	ids := make(map[string]struct{}, len(entities)+len(assignments))
	for _, c := range entities {
		if id, _ := c["id"].(string); id != "" {
			ids[id] = struct{}{}
		}
	}
	for _, a := range assignments {
		ids[a.ID] = struct{}{}
	}
	return ids
}

// gatherAssignments merges side-input assignments with assignment-typed
// candidates from extraction, deduplicated by ID.
func gatherAssignments(entities []ontology.Candidate, sideInput []ontology.Entity) []ontology.Entity {
	out := make([]ontology.Entity, 0, len(sideInput))
	seen := make(map[string]struct{}, len(sideInput))
	for _, a := range sideInput {
		if a.ID == "" {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	for _, c := range entities {
		if typ, _ := c["type"].(string); typ != string(ontology.EntityTypeAssignment) {
			continue
		}
		e, err := ontology.CoerceEntity(c)
		if err != nil {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
