package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/studyontology/backend/pkg/ontology"
	"github.com/studyontology/backend/pkg/store"
)

// Engine answers paginated subgraph queries on top of a storage Backend.
// The backend returns complete ordered filter results; the engine applies
// in-process filters (source sets), paginates, and assembles the entity
// and source sets belonging to the relationship page.
type Engine struct {
	backend Backend
}

// NewEngine creates an engine over the given backend.
func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend}
}

// ByConfidence returns the relationships whose confidence lies inside
// the requested window.
func (e *Engine) ByConfidence(ctx context.Context, req ConfidenceRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	relationships, err := e.backend.RelationshipsByConfidence(ctx, req.MinConfidence, req.MaxConfidence)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, relationships, req.Page, nil, nil)
}

// ByEntity resolves an id or case-insensitive name and returns every
// relationship touching the resolved entity.
func (e *Engine) ByEntity(ctx context.Context, req EntityRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entity, err := e.backend.ResolveEntity(ctx, req.Entity)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, req.Entity)
	}
	relationships, err := e.backend.RelationshipsByEntity(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, relationships, req.Page, []ontology.Entity{*entity}, nil)
}

// ByRelationshipType returns relationships with the exact predicate.
func (e *Engine) ByRelationshipType(ctx context.Context, req RelationshipTypeRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	predicate, _ := ontology.ParseRelationshipType(req.RelationshipType)
	relationships, err := e.backend.RelationshipsByType(ctx, predicate)
	if err != nil {
		return nil, err
	}
	return e.assemble(ctx, relationships, req.Page, nil, nil)
}

// ByEntityTypes returns the subgraph induced by a set of entity types:
// first the entities of those types, then the relationships whose both
// endpoints fall inside that entity set.
func (e *Engine) ByEntityTypes(ctx context.Context, req EntityTypesRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	types := make([]ontology.EntityType, 0, len(req.EntityTypes))
	for _, t := range req.EntityTypes {
		parsed, _ := ontology.ParseEntityType(t)
		types = append(types, parsed)
	}

	entities, err := e.backend.EntitiesByTypes(ctx, types)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entities))
	for _, ent := range entities {
		ids = append(ids, ent.ID)
	}

	var relationships []ontology.Relationship
	if len(ids) > 0 {
		relationships, err = e.backend.RelationshipsAmong(ctx, ids)
		if err != nil {
			return nil, err
		}
	}
	return e.assemble(ctx, relationships, req.Page, entities, nil)
}

// BySources returns relationships whose provenance references at least
// one of the requested source documents. Filtering happens before
// pagination, so totals are exact.
func (e *Engine) BySources(ctx context.Context, req SourcesRequest) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	all, err := e.backend.AllRelationships(ctx)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]struct{}, len(req.SourceIDs))
	for _, id := range req.SourceIDs {
		requested[id] = struct{}{}
	}

	var matched []ontology.Relationship
	for _, r := range all {
		if referencesAny(r, requested) {
			matched = append(matched, r)
		}
	}
	return e.assemble(ctx, matched, req.Page, nil, req.SourceIDs)
}

// referencesAny reports whether the relationship mentions one of the
// requested source ids, either in its materialized reference list or
// nested anywhere inside a legacy provenance payload.
func referencesAny(r ontology.Relationship, requested map[string]struct{}) bool {
	for _, id := range r.ReferencedSourceIDs {
		if _, ok := requested[id]; ok {
			return true
		}
	}
	for _, id := range ontology.CollectSourceIDs(r.Attributes) {
		if _, ok := requested[id]; ok {
			return true
		}
	}
	return false
}

// assemble paginates the filtered relationship list and batch-fetches
// the entities and sources belonging to the page. extraEntities are
// included regardless of the page (the resolved entity of an entity
// query, the typed entity set of an entity-types query); forcedSources
// are always fetched alongside the sources referenced by the page.
func (e *Engine) assemble(
	ctx context.Context,
	relationships []ontology.Relationship,
	page Page,
	extraEntities []ontology.Entity,
	forcedSources []string,
) (*Response, error) {
	total := len(relationships)

	start := min(page.Offset, total)
	end := min(start+page.Limit, total)
	pageRelationships := relationships[start:end]

	entityIDs := make([]string, 0, len(pageRelationships)*2)
	have := make(map[string]struct{}, len(extraEntities))
	for _, ent := range extraEntities {
		have[ent.ID] = struct{}{}
	}
	for _, r := range pageRelationships {
		if _, ok := have[r.Subject]; !ok {
			entityIDs = append(entityIDs, r.Subject)
		}
		if _, ok := have[r.Object]; !ok {
			entityIDs = append(entityIDs, r.Object)
		}
	}
	entityIDs = store.DedupeStrings(entityIDs)

	entities := append([]ontology.Entity(nil), extraEntities...)
	if len(entityIDs) > 0 {
		fetched, err := e.backend.EntitiesByIDs(ctx, entityIDs)
		if err != nil {
			return nil, err
		}
		entities = append(entities, fetched...)
	}

	sourceIDs := append([]string(nil), forcedSources...)
	for _, r := range pageRelationships {
		sourceIDs = append(sourceIDs, r.ReferencedSourceIDs...)
		sourceIDs = append(sourceIDs, ontology.CollectSourceIDs(r.Attributes)...)
	}
	for _, ent := range entities {
		sourceIDs = append(sourceIDs, ontology.CollectSourceIDs(ent.Attributes)...)
	}
	sourceIDs = store.DedupeStrings(sourceIDs)
	sort.Strings(sourceIDs)

	var sources []ontology.Source
	if len(sourceIDs) > 0 {
		fetched, err := e.backend.SourcesByIDs(ctx, sourceIDs)
		if err != nil {
			return nil, err
		}
		sources = fetched
	}

	return &Response{
		Entities:           entities,
		Relationships:      pageRelationships,
		Sources:            sources,
		TotalEntities:      len(entities),
		TotalRelationships: total,
		TotalSources:       len(sources),
		Limit:              page.Limit,
		Offset:             page.Offset,
	}, nil
}
