package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studyontology/backend/internal/util"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"
	"github.com/studyontology/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GraphStorage and the query backend on
// PostgreSQL. Entities and relationships are replaced wholesale on
// conflict, keyed by entity id and by the (subject, predicate, object)
// triple.
type GraphDBStorage struct {
	conn pgxIConn
}

// NewGraphDBStorageWithConnection creates a storage over an existing
// connection or pool.
func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entity_types (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS relationship_types (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS entities (
	entity_id   TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type_ref    TEXT NOT NULL REFERENCES entity_types(name),
	payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	source_id   TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relationships (
	-- No FK on the endpoints: a subject or object may live in the
	-- sources table instead of entities.
	subject_id            TEXT NOT NULL,
	type_id               TEXT NOT NULL REFERENCES relationship_types(name),
	object_id             TEXT NOT NULL,
	confidence            DOUBLE PRECISION,
	notes                 TEXT NOT NULL DEFAULT '',
	referenced_source_ids TEXT[] NOT NULL DEFAULT '{}',
	payload               JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (subject_id, object_id, type_id)
);

CREATE TABLE IF NOT EXISTS processed_artifacts (
	artifact_path TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	source_id     TEXT NOT NULL DEFAULT '',
	source_name   TEXT NOT NULL DEFAULT '',
	processed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (artifact_path, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type_ref);
CREATE INDEX IF NOT EXISTS idx_entities_name_lower ON entities (lower(name));
CREATE INDEX IF NOT EXISTS idx_relationships_subject ON relationships (subject_id);
CREATE INDEX IF NOT EXISTS idx_relationships_object ON relationships (object_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships (type_id);
CREATE INDEX IF NOT EXISTS idx_relationships_confidence ON relationships (confidence DESC NULLS LAST);
`

// InitializeSchema creates the base tables and indexes and seeds the
// fixed type enumerations. Every statement is idempotent.
func (s *GraphDBStorage) InitializeSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	for _, t := range ontology.EntityTypes {
		if _, err := s.conn.Exec(ctx,
			`INSERT INTO entity_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			string(t),
		); err != nil {
			return fmt.Errorf("failed to seed entity type %s: %w", t, err)
		}
	}
	for _, t := range ontology.RelationshipTypes {
		if _, err := s.conn.Exec(ctx,
			`INSERT INTO relationship_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			string(t),
		); err != nil {
			return fmt.Errorf("failed to seed relationship type %s: %w", t, err)
		}
	}

	logger.Debug("[Store] schema initialized")
	return nil
}

// UpsertGraph persists the graph in one transaction.
func (s *GraphDBStorage) UpsertGraph(ctx context.Context, graph *ontology.Graph) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertGraphTx(ctx, tx, graph); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertGraphForArtifact persists the graph and marks the artifact as
// processed in the same transaction. The ledger insert runs first with
// conflict detection, so concurrent ingestions of the same artifact
// leave exactly one writer.
func (s *GraphDBStorage) UpsertGraphForArtifact(
	ctx context.Context,
	graph *ontology.Graph,
	artifact store.ProcessedArtifact,
) (store.UpsertOutcome, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return store.UpsertOutcome{}, err
	}
	defer tx.Rollback(ctx)

	entitiesBefore, err := countRows(ctx, tx, "entities")
	if err != nil {
		return store.UpsertOutcome{}, err
	}
	relationshipsBefore, err := countRows(ctx, tx, "relationships")
	if err != nil {
		return store.UpsertOutcome{}, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_artifacts (artifact_path, content_hash, source_id, source_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (artifact_path, content_hash) DO NOTHING`,
		artifact.ArtifactPath, artifact.ContentHash, artifact.SourceID, artifact.SourceName,
	)
	if err != nil {
		return store.UpsertOutcome{}, fmt.Errorf("failed to mark artifact processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent or earlier ingestion already processed this artifact.
		return store.UpsertOutcome{AlreadyProcessed: true}, nil
	}

	if err := upsertGraphTx(ctx, tx, graph); err != nil {
		return store.UpsertOutcome{}, err
	}

	entitiesAfter, err := countRows(ctx, tx, "entities")
	if err != nil {
		return store.UpsertOutcome{}, err
	}
	relationshipsAfter, err := countRows(ctx, tx, "relationships")
	if err != nil {
		return store.UpsertOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.UpsertOutcome{}, err
	}

	return store.UpsertOutcome{
		AddedEntities:      entitiesAfter - entitiesBefore,
		AddedRelationships: relationshipsAfter - relationshipsBefore,
	}, nil
}

type entityRecord struct {
	EntityID string          `json:"entity_id"`
	Name     string          `json:"name"`
	TypeRef  string          `json:"type_ref"`
	Payload  json.RawMessage `json:"payload"`
}

type relationshipRecord struct {
	SubjectID           string          `json:"subject_id"`
	TypeID              string          `json:"type_id"`
	ObjectID            string          `json:"object_id"`
	Confidence          *float64        `json:"confidence"`
	Notes               string          `json:"notes"`
	ReferencedSourceIDs []string        `json:"referenced_source_ids"`
	Payload             json.RawMessage `json:"payload"`
}

func upsertGraphTx(ctx context.Context, tx pgxv5.Tx, graph *ontology.Graph) error {
	entities := graph.Entities()
	entityChunk := 250

	err := store.ChunkRange(len(entities), entityChunk, func(start, end int) error {
		part := entities[start:end]
		logger.Debug("[Store][UpsertGraph] Saving entity chunk", "entities", len(part))

		records := make([]entityRecord, 0, len(part))
		for _, e := range part {
			if e.ID == "" {
				return fmt.Errorf("entity id is empty")
			}
			payload, err := entityPayload(e)
			if err != nil {
				return err
			}
			records = append(records, entityRecord{
				EntityID: e.ID,
				Name:     util.SanitizePostgresText(e.Name),
				TypeRef:  string(e.Type),
				Payload:  payload,
			})
		}
		batch, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to encode entity batch: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO entities (entity_id, name, type_ref, payload)
			SELECT r.entity_id, r.name, r.type_ref, coalesce(r.payload, '{}'::jsonb)
			FROM jsonb_to_recordset($1::jsonb)
				AS r(entity_id text, name text, type_ref text, payload jsonb)
			ON CONFLICT (entity_id) DO UPDATE SET
				name = EXCLUDED.name,
				type_ref = EXCLUDED.type_ref,
				payload = EXCLUDED.payload,
				updated_at = now()`,
			string(batch),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert entities: %w", err)
	}

	for _, src := range graph.SourceDocuments {
		if src.ID == "" {
			return fmt.Errorf("source id is empty")
		}
		payload, err := json.Marshal(src.Data)
		if err != nil {
			return fmt.Errorf("failed to encode source payload: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO sources (source_id, name, payload)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_id) DO UPDATE SET
				name = EXCLUDED.name,
				payload = EXCLUDED.payload,
				updated_at = now()`,
			src.ID, util.SanitizePostgresText(src.Name), payload,
		); err != nil {
			return fmt.Errorf("failed to upsert source %s: %w", src.ID, err)
		}
	}

	relationshipChunk := 500
	err = store.ChunkRange(len(graph.Relationships), relationshipChunk, func(start, end int) error {
		part := graph.Relationships[start:end]
		logger.Debug("[Store][UpsertGraph] Saving relationship chunk", "relationships", len(part))

		records := make([]relationshipRecord, 0, len(part))
		for _, r := range part {
			payload, err := json.Marshal(r.Attributes)
			if err != nil {
				return fmt.Errorf("failed to encode relationship payload: %w", err)
			}
			refs := r.ReferencedSourceIDs
			if refs == nil {
				refs = []string{}
			}
			records = append(records, relationshipRecord{
				SubjectID:           r.Subject,
				TypeID:              string(r.Predicate),
				ObjectID:            r.Object,
				Confidence:          r.Confidence,
				Notes:               util.SanitizePostgresText(r.Notes),
				ReferencedSourceIDs: refs,
				Payload:             payload,
			})
		}
		batch, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to encode relationship batch: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO relationships
				(subject_id, type_id, object_id, confidence, notes, referenced_source_ids, payload)
			SELECT
				r.subject_id,
				r.type_id,
				r.object_id,
				r.confidence,
				coalesce(r.notes, ''),
				coalesce(ARRAY(SELECT jsonb_array_elements_text(r.referenced_source_ids)), '{}'),
				coalesce(r.payload, '{}'::jsonb)
			FROM jsonb_to_recordset($1::jsonb)
				AS r(subject_id text, type_id text, object_id text,
					confidence double precision, notes text,
					referenced_source_ids jsonb, payload jsonb)
			ON CONFLICT (subject_id, object_id, type_id) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				notes = EXCLUDED.notes,
				referenced_source_ids = EXCLUDED.referenced_source_ids,
				payload = EXCLUDED.payload,
				updated_at = now()`,
			string(batch),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationships: %w", err)
	}

	return nil
}

func entityPayload(e ontology.Entity) ([]byte, error) {
	payload := map[string]any{}
	for k, v := range e.Attributes {
		payload[k] = v
	}
	if e.Description != "" {
		payload["description"] = util.SanitizePostgresText(e.Description)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity payload: %w", err)
	}
	return out, nil
}

// IsProcessed returns the ledger row for the artifact, or nil.
func (s *GraphDBStorage) IsProcessed(
	ctx context.Context,
	artifactPath string,
	contentHash string,
) (*store.ProcessedArtifact, error) {
	var row store.ProcessedArtifact
	err := s.conn.QueryRow(ctx, `
		SELECT artifact_path, content_hash, source_id, source_name, processed_at
		FROM processed_artifacts
		WHERE artifact_path = $1 AND content_hash = $2`,
		artifactPath, contentHash,
	).Scan(&row.ArtifactPath, &row.ContentHash, &row.SourceID, &row.SourceName, &row.ProcessedAt)
	if err == pgxv5.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GraphDBStorage) CountEntities(ctx context.Context) (int64, error) {
	return countRows(ctx, s.conn, "entities")
}

func (s *GraphDBStorage) CountRelationships(ctx context.Context) (int64, error) {
	return countRows(ctx, s.conn, "relationships")
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

func countRows(ctx context.Context, conn rowQuerier, table string) (int64, error) {
	var count int64
	// table is one of the fixed schema table names, never user input.
	err := conn.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&count)
	return count, err
}
