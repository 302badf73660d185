package graph

import (
	"encoding/json"
	"fmt"

	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"
)

// Stats counts what materialization kept and what it dropped. Dropped
// records are logged and counted, never fatal.
type Stats struct {
	Entities        int `json:"entities"`
	Relationships   int `json:"relationships"`
	SourceDocuments int `json:"source_documents"`

	SkippedUncoercibleEntities      int `json:"skipped_uncoercible_entities"`
	SkippedUncoercibleRelationships int `json:"skipped_uncoercible_relationships"`
	SkippedSelfReference            int `json:"skipped_self_reference"`
	SkippedZeroConfidence           int `json:"skipped_zero_confidence"`
	SkippedMissingEndpoint          int `json:"skipped_missing_endpoint"`
	SkippedDuplicate                int `json:"skipped_duplicate"`
}

// MaterializeInput carries the candidate pools and side inputs that feed
// one materialization pass.
type MaterializeInput struct {
	Entities      []ontology.Candidate
	Relationships []ontology.Candidate

	// Assignments are side-input entities (for example fetched from the
	// course system). They are merged after the extracted entities and win
	// on ID collisions.
	Assignments []ontology.Entity

	// SourceDocument is the document the candidates were extracted from,
	// if the caller wants it recorded as a source node.
	SourceDocument *ontology.Source
}

// Materialize turns candidate pools into a validated, typed graph.
//
// Entities are coerced and bucketed by type; candidates that do not
// coerce are dropped and counted. Side-input assignments are merged last
// and win on ID collisions. Relationships are coerced and then filtered:
// self references, zero-confidence edges, edges with an endpoint outside
// the graph's ID closure, and duplicate (subject, predicate, object)
// triples are dropped in that order, first occurrence wins.
//
// The only fatal path is a graph that cannot be serialized.
func Materialize(in MaterializeInput) (*ontology.Graph, Stats, error) {
	g := &ontology.Graph{}
	var stats Stats

	seenEntity := make(map[string]struct{})
	for _, c := range in.Entities {
		if typ, _ := c["type"].(string); typ == string(ontology.EntityTypeSourceDocument) {
			src, err := ontology.CoerceSource(c)
			if err != nil {
				stats.SkippedUncoercibleEntities++
				logger.Debug("[Materialize] dropping source candidate", "err", err)
				continue
			}
			if _, dup := seenEntity[src.ID]; dup {
				continue
			}
			seenEntity[src.ID] = struct{}{}
			g.SourceDocuments = append(g.SourceDocuments, src)
			continue
		}

		e, err := ontology.CoerceEntity(c)
		if err != nil {
			stats.SkippedUncoercibleEntities++
			logger.Debug("[Materialize] dropping entity candidate", "err", err)
			continue
		}
		if _, dup := seenEntity[e.ID]; dup {
			continue
		}
		seenEntity[e.ID] = struct{}{}
		*g.Bucket(e.Type) = append(*g.Bucket(e.Type), e)
	}

	// Side-input assignments merge last and win on collisions.
	for _, a := range in.Assignments {
		if a.Type == "" {
			a.Type = ontology.EntityTypeAssignment
		}
		replaced := false
		for i, existing := range g.Assignments {
			if existing.ID == a.ID {
				g.Assignments[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			g.Assignments = append(g.Assignments, a)
			seenEntity[a.ID] = struct{}{}
		}
	}

	if in.SourceDocument != nil && in.SourceDocument.ID != "" {
		if _, dup := seenEntity[in.SourceDocument.ID]; !dup {
			g.SourceDocuments = append(g.SourceDocuments, *in.SourceDocument)
		}
	}

	knownIDs := g.EntityIDs()

	seenTriple := make(map[[3]string]struct{}, len(in.Relationships))
	for _, c := range in.Relationships {
		r, err := ontology.CoerceRelationship(c)
		if err != nil {
			stats.SkippedUncoercibleRelationships++
			logger.Debug("[Materialize] dropping relationship candidate", "err", err)
			continue
		}

		if r.Subject == r.Object {
			stats.SkippedSelfReference++
			continue
		}
		if r.Confidence != nil && *r.Confidence == 0 {
			stats.SkippedZeroConfidence++
			continue
		}
		if _, ok := knownIDs[r.Subject]; !ok {
			stats.SkippedMissingEndpoint++
			continue
		}
		if _, ok := knownIDs[r.Object]; !ok {
			stats.SkippedMissingEndpoint++
			continue
		}

		triple := [3]string{r.Subject, string(r.Predicate), r.Object}
		if _, dup := seenTriple[triple]; dup {
			stats.SkippedDuplicate++
			continue
		}
		seenTriple[triple] = struct{}{}

		r.ReferencedSourceIDs = ontology.CollectSourceIDs(c)
		g.Relationships = append(g.Relationships, r)
	}

	stats.Entities = len(g.Entities())
	stats.Relationships = len(g.Relationships)
	stats.SourceDocuments = len(g.SourceDocuments)

	if _, err := json.Marshal(g); err != nil {
		return nil, stats, fmt.Errorf("materialized graph is not serializable: %w", err)
	}

	return g, stats, nil
}
