package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studyontology/backend/internal/util"
	"github.com/studyontology/backend/pkg/graph"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"
)

const defaultOpenAlexURL = "https://api.openalex.org"

// OpenAlexEnricher contributes concept ancestors, peer concepts and
// top-cited papers from the OpenAlex catalog for every extracted concept.
type OpenAlexEnricher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type openAlexRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexConcept struct {
	ID              string        `json:"id"`
	DisplayName     string        `json:"display_name"`
	Ancestors       []openAlexRef `json:"ancestors"`
	RelatedConcepts []openAlexRef `json:"related_concepts"`
}

type openAlexWork struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	DOI          string `json:"doi"`
	CitedByCount int    `json:"cited_by_count"`
}

// NewOpenAlexEnricher creates an enricher from the OPENALEX_URL and
// OPENALEX_API_KEY environment variables. The API key is optional; the
// catalog serves unauthenticated requests at a lower rate limit.
func NewOpenAlexEnricher() *OpenAlexEnricher {
	return &OpenAlexEnricher{
		baseURL:    util.GetEnvString("OPENALEX_URL", defaultOpenAlexURL),
		apiKey:     util.GetEnvString("OPENALEX_API_KEY", ""),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enrich implements graph.Enricher. Every concept-typed candidate is
// looked up by name; lookup failures skip that concept instead of
// failing the batch. Contributions whose IDs already exist in the
// candidate pool are dropped.
func (e *OpenAlexEnricher) Enrich(
	ctx context.Context,
	entities []ontology.Candidate,
	knownIDs map[string]struct{},
) (graph.Contribution, error) {
	var contribution graph.Contribution

	seen := make(map[string]struct{})
	for id := range knownIDs {
		seen[id] = struct{}{}
	}

	for _, c := range entities {
		if err := ctx.Err(); err != nil {
			return graph.Contribution{}, err
		}
		typ, _ := c["type"].(string)
		if typ != string(ontology.EntityTypeConcept) {
			continue
		}
		id, _ := c["id"].(string)
		name, _ := c["name"].(string)
		if id == "" || name == "" {
			continue
		}

		ents, rels, err := e.enrichConcept(ctx, id, name)
		if err != nil {
			logger.Warn("[OpenAlex] concept lookup failed, skipping", "concept", name, "err", err)
			continue
		}
		for _, ent := range ents {
			eid, _ := ent["id"].(string)
			if _, dup := seen[eid]; dup {
				continue
			}
			seen[eid] = struct{}{}
			contribution.Entities = append(contribution.Entities, ent)
		}
		contribution.Relationships = append(contribution.Relationships, rels...)
	}

	logger.Info("[OpenAlex] enrichment done",
		"entities", len(contribution.Entities),
		"relationships", len(contribution.Relationships))
	return contribution, nil
}

func (e *OpenAlexEnricher) enrichConcept(
	ctx context.Context,
	conceptID string,
	conceptName string,
) ([]ontology.Candidate, []ontology.Candidate, error) {
	concept, err := e.searchConcept(ctx, conceptName)
	if err != nil {
		return nil, nil, err
	}
	if concept == nil {
		return nil, nil, nil
	}

	provenanceSourceID := "source:openalex:" + shortID(concept.ID)

	var entities, relationships []ontology.Candidate

	// Ancestors are broader topics the student should know first.
	for _, ancestor := range concept.Ancestors {
		if ancestor.DisplayName == "" {
			continue
		}
		ancestorID := "concept:openalex:" + shortID(ancestor.ID)
		entities = append(entities, ontology.Candidate{
			"id":          ancestorID,
			"type":        string(ontology.EntityTypeConcept),
			"name":        ancestor.DisplayName,
			"description": fmt.Sprintf("Broader topic related to %s (from OpenAlex)", conceptName),
		})
		relationships = append(relationships, ontology.Candidate{
			"subject":    ancestorID,
			"predicate":  string(ontology.RelPrerequisiteOf),
			"object":     conceptID,
			"confidence": 0.75,
			"notes":      fmt.Sprintf("OpenAlex ancestor concept of %s", conceptName),
			"provenance": map[string]any{"source_id": provenanceSourceID},
		})
	}

	// Peer concepts at the same hierarchy level, capped at five.
	related := concept.RelatedConcepts
	if len(related) > 5 {
		related = related[:5]
	}
	for _, peer := range related {
		if peer.DisplayName == "" {
			continue
		}
		peerID := "concept:openalex:" + shortID(peer.ID)
		entities = append(entities, ontology.Candidate{
			"id":          peerID,
			"type":        string(ontology.EntityTypeConcept),
			"name":        peer.DisplayName,
			"description": fmt.Sprintf("Peer concept related to %s (from OpenAlex)", conceptName),
		})
		relationships = append(relationships, ontology.Candidate{
			"subject":    peerID,
			"predicate":  string(ontology.RelContrastsWith),
			"object":     conceptID,
			"confidence": 0.65,
			"notes":      fmt.Sprintf("OpenAlex related concept of %s", conceptName),
			"provenance": map[string]any{"source_id": provenanceSourceID},
		})
	}

	works, err := e.topWorks(ctx, concept.ID, 3)
	if err != nil {
		logger.Warn("[OpenAlex] works lookup failed, keeping concept enrichment", "concept", conceptName, "err", err)
		works = nil
	}
	for _, work := range works {
		title := work.DisplayName
		if title == "" {
			title = "Untitled Paper"
		}
		paperID := "source:openalex:" + shortID(work.ID)
		entities = append(entities, ontology.Candidate{
			"id":          paperID,
			"type":        string(ontology.EntityTypeSourceDocument),
			"name":        title,
			"description": fmt.Sprintf("Academic paper cited %d times. Source: OpenAlex.", work.CitedByCount),
			"doi":         work.DOI,
		})
		relationships = append(relationships, ontology.Candidate{
			"subject":    paperID,
			"predicate":  string(ontology.RelAppliesTo),
			"object":     conceptID,
			"confidence": 0.9,
			"notes":      fmt.Sprintf("Cited %d times on OpenAlex", work.CitedByCount),
			"provenance": map[string]any{"source_id": paperID},
		})
	}

	return entities, relationships, nil
}

// searchConcept returns the top match for a concept name, or nil when
// the catalog has no result.
func (e *OpenAlexEnricher) searchConcept(ctx context.Context, name string) (*openAlexConcept, error) {
	params := url.Values{}
	params.Set("search", name)
	params.Set("per-page", "1")

	var res struct {
		Results []openAlexConcept `json:"results"`
	}
	if err := e.get(ctx, "/concepts", params, &res); err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return &res.Results[0], nil
}

// topWorks returns the most-cited papers tagged with the concept.
func (e *OpenAlexEnricher) topWorks(ctx context.Context, conceptID string, limit int) ([]openAlexWork, error) {
	params := url.Values{}
	params.Set("filter", "concepts.id:"+conceptID)
	params.Set("sort", "cited_by_count:desc")
	params.Set("per-page", fmt.Sprintf("%d", limit))

	var res struct {
		Results []openAlexWork `json:"results"`
	}
	if err := e.get(ctx, "/works", params, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (e *OpenAlexEnricher) get(ctx context.Context, path string, params url.Values, out any) error {
	if e.apiKey != "" {
		params.Set("api_key", e.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "StudyOntology/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach openalex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openalex returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode openalex response: %w", err)
	}
	return nil
}

// shortID trims an OpenAlex URL identifier down to its trailing key,
// e.g. https://openalex.org/C41008148 -> C41008148.
func shortID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
