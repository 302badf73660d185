package ontology

// EntityType classifies a node in the knowledge graph. The set is fixed;
// every entity ID carries the lowercase tag of its type as a prefix
// (for example "concept:spaced-repetition").
type EntityType string

const (
	EntityTypeConcept        EntityType = "Concept"
	EntityTypeTheory         EntityType = "Theory"
	EntityTypePerson         EntityType = "Person"
	EntityTypeMethod         EntityType = "Method"
	EntityTypeAssignment     EntityType = "Assignment"
	EntityTypeSourceDocument EntityType = "SourceDocument"
)

// EntityTypes lists all valid entity types in declaration order.
var EntityTypes = []EntityType{
	EntityTypeConcept,
	EntityTypeTheory,
	EntityTypePerson,
	EntityTypeMethod,
	EntityTypeAssignment,
	EntityTypeSourceDocument,
}

var entityTypeTags = map[EntityType]string{
	EntityTypeConcept:        "concept",
	EntityTypeTheory:         "theory",
	EntityTypePerson:         "person",
	EntityTypeMethod:         "method",
	EntityTypeAssignment:     "assignment",
	EntityTypeSourceDocument: "source",
}

// ParseEntityType returns the EntityType matching s, or false when s is not
// one of the fixed types.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(s)
	_, ok := entityTypeTags[t]
	return t, ok
}

// Valid reports whether t is one of the fixed entity types.
func (t EntityType) Valid() bool {
	_, ok := entityTypeTags[t]
	return ok
}

// Tag returns the lowercase ID prefix tag for t, without the colon.
func (t EntityType) Tag() string {
	return entityTypeTags[t]
}

// RelationshipType classifies a directed edge between two entities.
type RelationshipType string

const (
	RelPrerequisiteOf RelationshipType = "PREREQUISITE_OF"
	RelExpandsOn      RelationshipType = "EXPANDS_ON"
	RelContrastsWith  RelationshipType = "CONTRASTS_WITH"
	RelAppliesTo      RelationshipType = "APPLIES_TO"
	RelProposedBy     RelationshipType = "PROPOSED_BY"
	RelUsesMethod     RelationshipType = "USES_METHOD"
	RelCovers         RelationshipType = "COVERS"
	RelAssessedBy     RelationshipType = "ASSESSED_BY"
)

// RelationshipTypes lists all valid relationship types in declaration order.
var RelationshipTypes = []RelationshipType{
	RelPrerequisiteOf,
	RelExpandsOn,
	RelContrastsWith,
	RelAppliesTo,
	RelProposedBy,
	RelUsesMethod,
	RelCovers,
	RelAssessedBy,
}

var relationshipTypeSet = func() map[RelationshipType]struct{} {
	m := make(map[RelationshipType]struct{}, len(RelationshipTypes))
	for _, t := range RelationshipTypes {
		m[t] = struct{}{}
	}
	return m
}()

// ParseRelationshipType returns the RelationshipType matching s, or false
// when s is not one of the fixed predicates.
func ParseRelationshipType(s string) (RelationshipType, bool) {
	t := RelationshipType(s)
	_, ok := relationshipTypeSet[t]
	return t, ok
}

// Valid reports whether t is one of the fixed relationship types.
func (t RelationshipType) Valid() bool {
	_, ok := relationshipTypeSet[t]
	return ok
}

// Entity represents a node in the knowledge graph. The Type field
// discriminates which bucket of the graph the entity belongs to.
// Attributes carries any extra payload fields that survived coercion.
type Entity struct {
	ID          string         `json:"id"`
	Type        EntityType     `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Source represents a source document the graph references for provenance.
type Source struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// Relationship represents a directed, typed edge between two entities.
// Confidence is optional; nil means the extractor gave no score.
// ReferencedSourceIDs lists the source documents this edge is attributed to.
type Relationship struct {
	Subject             string           `json:"subject"`
	Predicate           RelationshipType `json:"predicate"`
	Object              string           `json:"object"`
	Confidence          *float64         `json:"confidence,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	ReferencedSourceIDs []string         `json:"referenced_source_ids,omitempty"`
	Attributes          map[string]any   `json:"attributes,omitempty"`
}

// Graph is the validated, typed knowledge graph produced by
// materialization. Entities are bucketed by type; source documents are
// kept apart from the entity buckets because they are stored separately.
type Graph struct {
	Concepts        []Entity       `json:"concepts"`
	Theories        []Entity       `json:"theories"`
	Persons         []Entity       `json:"persons"`
	Methods         []Entity       `json:"methods"`
	Assignments     []Entity       `json:"assignments"`
	SourceDocuments []Source       `json:"source_documents"`
	Relationships   []Relationship `json:"relationships"`
}

// Entities returns all entities across the typed buckets, in bucket order.
func (g *Graph) Entities() []Entity {
	out := make([]Entity, 0,
		len(g.Concepts)+len(g.Theories)+len(g.Persons)+len(g.Methods)+len(g.Assignments))
	out = append(out, g.Concepts...)
	out = append(out, g.Theories...)
	out = append(out, g.Persons...)
	out = append(out, g.Methods...)
	out = append(out, g.Assignments...)
	return out
}

// EntityIDs returns the closure of known node IDs: every bucketed entity
// plus every source document.
func (g *Graph) EntityIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, e := range g.Entities() {
		ids[e.ID] = struct{}{}
	}
	for _, s := range g.SourceDocuments {
		ids[s.ID] = struct{}{}
	}
	return ids
}

// Bucket returns a pointer to the entity slice for the given type, or nil
// for EntityTypeSourceDocument, which lives in SourceDocuments instead.
func (g *Graph) Bucket(t EntityType) *[]Entity {
	switch t {
	case EntityTypeConcept:
		return &g.Concepts
	case EntityTypeTheory:
		return &g.Theories
	case EntityTypePerson:
		return &g.Persons
	case EntityTypeMethod:
		return &g.Methods
	case EntityTypeAssignment:
		return &g.Assignments
	}
	return nil
}
