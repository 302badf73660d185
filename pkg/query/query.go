package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyontology/backend/pkg/ontology"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	maxSourceIDs   = 100
	maxEntityTypes = 20
)

// ErrEntityNotFound is returned when an entity reference resolves to
// nothing in the store.
var ErrEntityNotFound = errors.New("entity not found")

// Page carries the shared pagination window of every subgraph query.
type Page struct {
	Limit  int `json:"limit" query:"limit"`
	Offset int `json:"offset" query:"offset"`
}

// Normalize applies defaults and validates the window bounds.
func (p *Page) Normalize() error {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	if p.Offset < 0 {
		return errors.New("offset must not be negative")
	}
	return nil
}

// ConfidenceRequest selects relationships whose confidence lies inside
// an optional [min, max] window.
type ConfidenceRequest struct {
	Page
	MinConfidence *float64 `json:"min_confidence" query:"min_confidence"`
	MaxConfidence *float64 `json:"max_confidence" query:"max_confidence"`
}

func (r *ConfidenceRequest) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}
	if r.MinConfidence != nil && (*r.MinConfidence < 0 || *r.MinConfidence > 1) {
		return errors.New("min_confidence must be between 0 and 1")
	}
	if r.MaxConfidence != nil && (*r.MaxConfidence < 0 || *r.MaxConfidence > 1) {
		return errors.New("max_confidence must be between 0 and 1")
	}
	if r.MinConfidence != nil && r.MaxConfidence != nil && *r.MinConfidence > *r.MaxConfidence {
		return errors.New("min_confidence must not exceed max_confidence")
	}
	return nil
}

// EntityRequest selects the neighborhood of one entity, referenced by id
// or by case-insensitive name.
type EntityRequest struct {
	Page
	Entity string `json:"entity" query:"entity"`
}

func (r *EntityRequest) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}
	if r.Entity == "" {
		return errors.New("entity reference is empty")
	}
	return nil
}

// RelationshipTypeRequest selects relationships with an exact predicate.
type RelationshipTypeRequest struct {
	Page
	RelationshipType string `json:"relationship_type" query:"relationship_type"`
}

func (r *RelationshipTypeRequest) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}
	if _, ok := ontology.ParseRelationshipType(r.RelationshipType); !ok {
		return fmt.Errorf("unknown relationship type %q", r.RelationshipType)
	}
	return nil
}

// EntityTypesRequest selects the subgraph induced by a set of entity
// types: entities of those types plus relationships with both endpoints
// inside that entity set.
type EntityTypesRequest struct {
	Page
	EntityTypes []string `json:"entity_types" query:"entity_types"`
}

func (r *EntityTypesRequest) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}
	if len(r.EntityTypes) < 1 || len(r.EntityTypes) > maxEntityTypes {
		return fmt.Errorf("entity_types must have between 1 and %d entries", maxEntityTypes)
	}
	for _, t := range r.EntityTypes {
		if _, ok := ontology.ParseEntityType(t); !ok {
			return fmt.Errorf("unknown entity type %q", t)
		}
	}
	return nil
}

// SourcesRequest selects relationships whose provenance references at
// least one of the requested source documents.
type SourcesRequest struct {
	Page
	SourceIDs []string `json:"source_ids" query:"source_ids"`
}

func (r *SourcesRequest) Validate() error {
	if err := r.Normalize(); err != nil {
		return err
	}
	if len(r.SourceIDs) < 1 || len(r.SourceIDs) > maxSourceIDs {
		return fmt.Errorf("source_ids must have between 1 and %d entries", maxSourceIDs)
	}
	for _, id := range r.SourceIDs {
		if id == "" {
			return errors.New("source_ids must not contain empty ids")
		}
	}
	return nil
}

// Response is the shared shape of every subgraph query result. Totals
// for relationships are computed before pagination, so they are exact
// regardless of the page window.
type Response struct {
	Entities      []ontology.Entity       `json:"entities"`
	Relationships []ontology.Relationship `json:"relationships"`
	Sources       []ontology.Source       `json:"sources"`

	TotalEntities      int `json:"total_entities"`
	TotalRelationships int `json:"total_relationships"`
	TotalSources       int `json:"total_sources"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Backend provides the storage primitives the engine composes queries
// from. Relationship-returning calls order by confidence descending with
// nulls last, then by (subject, object) for determinism.
type Backend interface {
	// ResolveEntity resolves an id or case-insensitive name to an entity,
	// or nil when nothing matches.
	ResolveEntity(ctx context.Context, ref string) (*ontology.Entity, error)

	RelationshipsByConfidence(ctx context.Context, minConfidence, maxConfidence *float64) ([]ontology.Relationship, error)
	RelationshipsByEntity(ctx context.Context, entityID string) ([]ontology.Relationship, error)
	RelationshipsByType(ctx context.Context, predicate ontology.RelationshipType) ([]ontology.Relationship, error)
	RelationshipsAmong(ctx context.Context, entityIDs []string) ([]ontology.Relationship, error)
	AllRelationships(ctx context.Context) ([]ontology.Relationship, error)

	EntitiesByTypes(ctx context.Context, types []ontology.EntityType) ([]ontology.Entity, error)
	EntitiesByIDs(ctx context.Context, ids []string) ([]ontology.Entity, error)
	SourcesByIDs(ctx context.Context, ids []string) ([]ontology.Source, error)
}
