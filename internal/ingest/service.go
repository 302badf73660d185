package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyontology/backend/internal/artifact"
	"github.com/studyontology/backend/pkg/graph"
	"github.com/studyontology/backend/pkg/leaselock"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"
	"github.com/studyontology/backend/pkg/store"
)

// ErrBadArtifact marks failures caused by the artifact itself, an
// unreadable path or an invalid payload, rather than by downstream
// processing.
var ErrBadArtifact = errors.New("bad artifact")

// Request asks for one artifact to be turned into graph rows.
type Request struct {
	ArtifactPath    string `json:"artifact_path" validate:"required"`
	QueryCourseLink bool   `json:"query_course_link"`
	QueryEnrichment bool   `json:"query_enrichment"`
}

// SourceSummary names one source document the ingestion produced.
type SourceSummary struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
}

// Response reports what an ingestion did. AlreadyProcessed means the
// artifact was ingested before and nothing was written.
type Response struct {
	ArtifactPath       string          `json:"artifact_path"`
	ContentHash        string          `json:"content_hash"`
	AlreadyProcessed   bool            `json:"already_processed"`
	AddedEntities      int64           `json:"added_entities"`
	AddedRelationships int64           `json:"added_relationships"`
	Sources            []SourceSummary `json:"sources"`
	ValidationErrors   []string        `json:"validation_errors,omitempty"`
}

type pipelineRunner interface {
	Run(ctx context.Context, text string, opts graph.RunOptions) (*graph.RunResult, error)
}

type assignmentFetcher interface {
	FetchAssignments(ctx context.Context) ([]ontology.Entity, error)
}

type leaser interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Service runs the full ingestion path: artifact load, idempotency
// check, per-artifact lease, pipeline run, transactional upsert plus
// ledger mark.
type Service struct {
	storage     store.GraphStorage
	reader      artifact.Reader
	pipeline    pipelineRunner
	assignments assignmentFetcher
	locks       leaser
}

// NewService creates an ingestion service. assignments and locks may be
// nil: without an assignment source the course-link option degrades to
// extracted assignments only, and without a lock client concurrent
// ingestions of the same artifact fall back to the in-transaction
// ledger check.
func NewService(
	storage store.GraphStorage,
	reader artifact.Reader,
	pipeline pipelineRunner,
	assignments assignmentFetcher,
	locks leaser,
) *Service {
	return &Service{
		storage:     storage,
		reader:      reader,
		pipeline:    pipeline,
		assignments: assignments,
		locks:       locks,
	}
}

// Ingest processes one artifact end to end. Re-ingesting a byte-identical
// artifact short-circuits with AlreadyProcessed=true and writes nothing.
func (s *Service) Ingest(ctx context.Context, req Request) (*Response, error) {
	data, err := s.reader.ReadArtifact(ctx, req.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArtifact, err)
	}
	a, err := artifact.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArtifact, err)
	}

	summary := []SourceSummary{{SourceID: sourceID(a), SourceName: a.SourceName}}

	processed, err := s.storage.IsProcessed(ctx, req.ArtifactPath, a.SHA256)
	if err != nil {
		return nil, err
	}
	if processed != nil {
		return &Response{
			ArtifactPath:     req.ArtifactPath,
			ContentHash:      a.SHA256,
			AlreadyProcessed: true,
			Sources:          summary,
		}, nil
	}

	var res *Response
	run := func(ctx context.Context) error {
		res, err = s.ingestLocked(ctx, req, a)
		return err
	}

	if s.locks != nil {
		key := fmt.Sprintf("ingest:%s:%s", req.ArtifactPath, a.SHA256)
		err = s.locks.WithLease(ctx, key, leaselock.Options{
			TTL:  5 * time.Minute,
			Wait: true,
		}, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) ingestLocked(ctx context.Context, req Request, a *artifact.Artifact) (*Response, error) {
	summary := []SourceSummary{{SourceID: sourceID(a), SourceName: a.SourceName}}

	// The lease may have been acquired after another worker finished.
	processed, err := s.storage.IsProcessed(ctx, req.ArtifactPath, a.SHA256)
	if err != nil {
		return nil, err
	}
	if processed != nil {
		return &Response{
			ArtifactPath:     req.ArtifactPath,
			ContentHash:      a.SHA256,
			AlreadyProcessed: true,
			Sources:          summary,
		}, nil
	}

	var assignments []ontology.Entity
	if req.QueryCourseLink && s.assignments != nil {
		assignments, err = s.assignments.FetchAssignments(ctx)
		if err != nil {
			logger.Warn("[Ingest] assignment fetch failed, linking extracted assignments only", "err", err)
			assignments = nil
		}
	}

	result, err := s.pipeline.Run(ctx, a.ExtractedText, graph.RunOptions{
		QueryEnrichment: req.QueryEnrichment,
		QueryCourseLink: req.QueryCourseLink,
		Assignments:     assignments,
		SourceDocument: &ontology.Source{
			ID:   sourceID(a),
			Name: a.SourceName,
			Data: map[string]any{
				"original_filename": a.OriginalFilename,
				"artifact_path":     req.ArtifactPath,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Failed {
		logger.Warn("[Ingest] validation exhausted retries, storing best attempt",
			"artifact", req.ArtifactPath, "errors", len(result.ValidationErrors))
	}

	outcome, err := s.storage.UpsertGraphForArtifact(ctx, result.Graph, store.ProcessedArtifact{
		ArtifactPath: req.ArtifactPath,
		ContentHash:  a.SHA256,
		SourceID:     sourceID(a),
		SourceName:   a.SourceName,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("[Ingest] done",
		"artifact", req.ArtifactPath,
		"already_processed", outcome.AlreadyProcessed,
		"added_entities", outcome.AddedEntities,
		"added_relationships", outcome.AddedRelationships,
		"retries", result.Retries)

	return &Response{
		ArtifactPath:       req.ArtifactPath,
		ContentHash:        a.SHA256,
		AlreadyProcessed:   outcome.AlreadyProcessed,
		AddedEntities:      outcome.AddedEntities,
		AddedRelationships: outcome.AddedRelationships,
		Sources:            summary,
		ValidationErrors:   result.ValidationErrors,
	}, nil
}

// sourceID gives the artifact's source document its canonical prefixed
// id.
func sourceID(a *artifact.Artifact) string {
	return "source:" + a.SourceID
}
