package ontology

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is an untyped node or edge proposal, usually decoded straight
// from extractor output or an external adapter. Coercion turns candidates
// into typed values or rejects them.
type Candidate = map[string]any

func candidateString(c Candidate, keys ...string) string {
	for _, k := range keys {
		if v, ok := c[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func candidateNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func leftoverAttributes(c Candidate, consumed ...string) map[string]any {
	skip := make(map[string]struct{}, len(consumed))
	for _, k := range consumed {
		skip[k] = struct{}{}
	}
	var attrs map[string]any
	for k, v := range c {
		if _, ok := skip[k]; ok {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]any)
		}
		attrs[k] = v
	}
	return attrs
}

// CoerceEntity converts a candidate into a typed Entity. It fails when the
// ID is empty, the type is not one of the fixed entity types, or the ID
// does not carry the type's tag prefix. Unconsumed payload fields are kept
// in Attributes.
func CoerceEntity(c Candidate) (Entity, error) {
	id := candidateString(c, "id", "entity_id")
	if id == "" {
		return Entity{}, fmt.Errorf("entity candidate has no id")
	}

	typeStr := candidateString(c, "type", "entity_type")
	t, ok := ParseEntityType(typeStr)
	if !ok {
		return Entity{}, fmt.Errorf("entity %q has unknown type %q", id, typeStr)
	}

	if !strings.HasPrefix(id, t.Tag()+":") {
		return Entity{}, fmt.Errorf("entity %q id does not start with %q", id, t.Tag()+":")
	}

	return Entity{
		ID:          id,
		Type:        t,
		Name:        candidateString(c, "name"),
		Description: candidateString(c, "description"),
		Attributes:  leftoverAttributes(c, "id", "entity_id", "type", "entity_type", "name", "description"),
	}, nil
}

// CoerceSource converts a candidate into a Source document. Source IDs
// carry the "source:" prefix like any other node ID.
func CoerceSource(c Candidate) (Source, error) {
	id := candidateString(c, "id", "entity_id", "source_id")
	if id == "" {
		return Source{}, fmt.Errorf("source candidate has no id")
	}
	if !strings.HasPrefix(id, EntityTypeSourceDocument.Tag()+":") {
		return Source{}, fmt.Errorf("source %q id does not start with %q", id, EntityTypeSourceDocument.Tag()+":")
	}

	return Source{
		ID:   id,
		Name: candidateString(c, "name", "title"),
		Data: leftoverAttributes(c, "id", "entity_id", "source_id", "type", "entity_type", "name", "title"),
	}, nil
}

// CoerceRelationship converts a candidate into a typed Relationship. It
// fails on a missing endpoint, an unknown predicate, or a confidence that
// is present but non-numeric or outside [0, 1]. Provenance fields stay in
// Attributes so source attribution can be recovered later.
func CoerceRelationship(c Candidate) (Relationship, error) {
	subject := candidateString(c, "subject", "source_entity")
	if subject == "" {
		return Relationship{}, fmt.Errorf("relationship candidate has no subject")
	}
	object := candidateString(c, "object", "target_entity")
	if object == "" {
		return Relationship{}, fmt.Errorf("relationship candidate has no object")
	}

	predStr := candidateString(c, "predicate", "relationship_type")
	pred, ok := ParseRelationshipType(predStr)
	if !ok {
		return Relationship{}, fmt.Errorf("relationship %s->%s has unknown predicate %q", subject, object, predStr)
	}

	var confidence *float64
	if raw, present := c["confidence"]; present && raw != nil {
		f, ok := candidateNumber(raw)
		if !ok {
			return Relationship{}, fmt.Errorf("relationship %s-[%s]->%s has non-numeric confidence", subject, pred, object)
		}
		if f < 0 || f > 1 {
			return Relationship{}, fmt.Errorf("relationship %s-[%s]->%s confidence %v outside [0,1]", subject, pred, object, f)
		}
		confidence = &f
	}

	return Relationship{
		Subject:    subject,
		Predicate:  pred,
		Object:     object,
		Confidence: confidence,
		Notes:      candidateString(c, "notes"),
		Attributes: leftoverAttributes(c, "subject", "source_entity", "object", "target_entity",
			"predicate", "relationship_type", "confidence", "notes"),
	}, nil
}
