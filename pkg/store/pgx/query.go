package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studyontology/backend/pkg/ontology"

	pgxv5 "github.com/jackc/pgx/v5"
)

const relationshipColumns = `
	subject_id, type_id, object_id, confidence, notes, referenced_source_ids, payload`

// relationshipOrder keeps pages deterministic: strongest edges first,
// unscored edges last, ties broken by the endpoint pair.
const relationshipOrder = `
	ORDER BY confidence DESC NULLS LAST, subject_id ASC, object_id ASC`

// ResolveEntity resolves an id or case-insensitive name to an entity.
// Exact id matches win over name matches; nil means no match.
func (s *GraphDBStorage) ResolveEntity(ctx context.Context, ref string) (*ontology.Entity, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT entity_id, name, type_ref, payload
		FROM entities
		WHERE entity_id = $1 OR lower(name) = lower($1)
		ORDER BY (entity_id = $1) DESC, entity_id ASC
		LIMIT 1`,
		ref,
	)
	e, err := scanEntityRow(row)
	if err == pgxv5.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GraphDBStorage) RelationshipsByConfidence(
	ctx context.Context,
	minConfidence, maxConfidence *float64,
) ([]ontology.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE ($1::double precision IS NULL OR confidence >= $1)
		  AND ($2::double precision IS NULL OR confidence <= $2)
		`+relationshipOrder,
		minConfidence, maxConfidence,
	)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func (s *GraphDBStorage) RelationshipsByEntity(ctx context.Context, entityID string) ([]ontology.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE subject_id = $1 OR object_id = $1
		`+relationshipOrder,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func (s *GraphDBStorage) RelationshipsByType(
	ctx context.Context,
	predicate ontology.RelationshipType,
) ([]ontology.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE type_id = $1
		`+relationshipOrder,
		string(predicate),
	)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func (s *GraphDBStorage) RelationshipsAmong(ctx context.Context, entityIDs []string) ([]ontology.Relationship, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		WHERE subject_id = ANY($1) AND object_id = ANY($1)
		`+relationshipOrder,
		entityIDs,
	)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func (s *GraphDBStorage) AllRelationships(ctx context.Context) ([]ontology.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+relationshipColumns+`
		FROM relationships
		`+relationshipOrder,
	)
	if err != nil {
		return nil, err
	}
	return scanRelationships(rows)
}

func (s *GraphDBStorage) EntitiesByTypes(ctx context.Context, types []ontology.EntityType) ([]ontology.Entity, error) {
	if len(types) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, name, type_ref, payload
		FROM entities
		WHERE type_ref = ANY($1)
		ORDER BY entity_id ASC`,
		names,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *GraphDBStorage) EntitiesByIDs(ctx context.Context, ids []string) ([]ontology.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, name, type_ref, payload
		FROM entities
		WHERE entity_id = ANY($1)
		ORDER BY entity_id ASC`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *GraphDBStorage) SourcesByIDs(ctx context.Context, ids []string) ([]ontology.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, name, payload
		FROM sources
		WHERE source_id = ANY($1)
		ORDER BY source_id ASC`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ontology.Source
	for rows.Next() {
		var (
			src     ontology.Source
			payload []byte
		)
		if err := rows.Scan(&src.ID, &src.Name, &payload); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &src.Data); err != nil {
				return nil, fmt.Errorf("failed to decode source payload for %s: %w", src.ID, err)
			}
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntityRow(row rowScanner) (ontology.Entity, error) {
	var (
		e       ontology.Entity
		typeRef string
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &typeRef, &payload); err != nil {
		return ontology.Entity{}, err
	}
	e.Type = ontology.EntityType(typeRef)
	if len(payload) > 0 {
		var attrs map[string]any
		if err := json.Unmarshal(payload, &attrs); err != nil {
			return ontology.Entity{}, fmt.Errorf("failed to decode entity payload for %s: %w", e.ID, err)
		}
		if desc, ok := attrs["description"].(string); ok {
			e.Description = desc
			delete(attrs, "description")
		}
		if len(attrs) > 0 {
			e.Attributes = attrs
		}
	}
	return e, nil
}

func scanEntities(rows pgxv5.Rows) ([]ontology.Entity, error) {
	defer rows.Close()

	var out []ontology.Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRelationships(rows pgxv5.Rows) ([]ontology.Relationship, error) {
	defer rows.Close()

	var out []ontology.Relationship
	for rows.Next() {
		var (
			r         ontology.Relationship
			predicate string
			payload   []byte
		)
		if err := rows.Scan(
			&r.Subject, &predicate, &r.Object,
			&r.Confidence, &r.Notes, &r.ReferencedSourceIDs, &payload,
		); err != nil {
			return nil, err
		}
		r.Predicate = ontology.RelationshipType(predicate)
		if len(payload) > 0 {
			var attrs map[string]any
			if err := json.Unmarshal(payload, &attrs); err != nil {
				return nil, fmt.Errorf("failed to decode relationship payload: %w", err)
			}
			if len(attrs) > 0 {
				r.Attributes = attrs
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
