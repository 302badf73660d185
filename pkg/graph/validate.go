package graph

import (
	"fmt"
	"strings"

	"github.com/studyontology/backend/pkg/ontology"
)

// Validate checks raw entity and relationship candidates against the
// graph's structural rules and returns every violation as a human-readable
// string. It never stops at the first problem; the full list is fed back
// to the extractor on retry.
//
// Rules, in order:
//  1. every entity has a non-empty id
//  2. every Assignment entity has a name
//  3. entity ids are unique
//  4. every relationship subject resolves to a known entity id
//  5. every relationship object resolves to a known entity id
//  6. the predicate is one of the fixed relationship types
//  7. a present confidence lies within [0, 1]
func Validate(entities, relationships []ontology.Candidate) []string {
	var errs []string

	seen := make(map[string]struct{}, len(entities))
	for i, c := range entities {
		id, _ := c["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			name, _ := c["name"].(string)
			errs = append(errs, fmt.Sprintf("entity %d (%q) is missing an id", i, name))
			continue
		}

		if typ, _ := c["type"].(string); typ == string(ontology.EntityTypeAssignment) {
			if name, _ := c["name"].(string); strings.TrimSpace(name) == "" {
				errs = append(errs, fmt.Sprintf("assignment %q is missing a name", id))
			}
		}

		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("duplicate entity id %q", id))
		}
		seen[id] = struct{}{}
	}

	for i, c := range relationships {
		subject, _ := c["subject"].(string)
		subject = strings.TrimSpace(subject)
		if subject == "" {
			errs = append(errs, fmt.Sprintf("relationship %d is missing a subject", i))
			continue
		}
		if _, known := seen[subject]; !known {
			errs = append(errs, fmt.Sprintf("relationship %d subject %q does not resolve to a known entity id", i, subject))
			continue
		}

		object, _ := c["object"].(string)
		object = strings.TrimSpace(object)
		if object == "" {
			errs = append(errs, fmt.Sprintf("relationship %d (%s) is missing an object", i, subject))
			continue
		}
		if _, known := seen[object]; !known {
			errs = append(errs, fmt.Sprintf("relationship %d object %q does not resolve to a known entity id", i, object))
			continue
		}

		predicate, _ := c["predicate"].(string)
		if _, ok := ontology.ParseRelationshipType(predicate); !ok {
			errs = append(errs, fmt.Sprintf("relationship %s->%s has unknown predicate %q", subject, object, predicate))
		}

		if raw, present := c["confidence"]; present && raw != nil {
			f, ok := confidenceValue(raw)
			if !ok || f < 0 || f > 1 {
				errs = append(errs, fmt.Sprintf("relationship %s->%s has invalid confidence %v", subject, object, raw))
			}
		}
	}

	return errs
}

func confidenceValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
