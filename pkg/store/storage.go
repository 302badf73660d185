package store

import (
	"context"
	"time"

	"github.com/studyontology/backend/pkg/ontology"
)

// ProcessedArtifact is one row of the idempotency ledger. An artifact is
// identified by its path and the hash of its content, so a changed file
// at the same path is processed again.
type ProcessedArtifact struct {
	ArtifactPath string    `json:"artifact_path"`
	ContentHash  string    `json:"content_hash"`
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// UpsertOutcome reports what an artifact-scoped upsert did.
type UpsertOutcome struct {
	AlreadyProcessed  bool
	AddedEntities     int64
	AddedRelationships int64
}

// GraphStorage defines the interface for persisting and counting
// knowledge graphs. Writes are transactional; a failed upsert leaves the
// store untouched.
type GraphStorage interface {
	// InitializeSchema creates tables and indexes and seeds the fixed
	// entity and relationship type enumerations. Safe to call repeatedly.
	InitializeSchema(ctx context.Context) error

	// UpsertGraph persists the graph in a single transaction using
	// replace-on-conflict semantics keyed by entity id and by the
	// relationship triple.
	UpsertGraph(ctx context.Context, graph *ontology.Graph) error

	// UpsertGraphForArtifact persists the graph and marks the artifact as
	// processed inside the same transaction. It re-checks the ledger in
	// the transaction, so a concurrent ingestion of the same artifact
	// results in exactly one write and AlreadyProcessed=true for the
	// loser.
	UpsertGraphForArtifact(
		ctx context.Context,
		graph *ontology.Graph,
		artifact ProcessedArtifact,
	) (UpsertOutcome, error)

	// IsProcessed returns the ledger row for the artifact, or nil when it
	// has not been ingested.
	IsProcessed(ctx context.Context, artifactPath string, contentHash string) (*ProcessedArtifact, error)

	CountEntities(ctx context.Context) (int64, error)
	CountRelationships(ctx context.Context) (int64, error)
}
