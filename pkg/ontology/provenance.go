package ontology

import (
	"sort"
	"strings"
)

// provenanceKeys are the payload field names under which extractors and
// older graph payloads record source attribution.
var provenanceKeys = map[string]struct{}{
	"source_id":           {},
	"source_document_id":  {},
	"source_ids":          {},
	"source_document_ids": {},
	"sources":             {},
	"provenance":          {},
}

// CollectSourceIDs walks an arbitrary payload value and gathers every
// string found under a provenance key, at any nesting depth. The result
// preserves first-seen order and contains no duplicates.
func CollectSourceIDs(v any) []string {
	var out []string
	seen := make(map[string]struct{})
	collectSourceIDs(v, false, &out, seen)
	return out
}

func collectSourceIDs(v any, underKey bool, out *[]string, seen map[string]struct{}) {
	switch val := v.(type) {
	case string:
		if !underKey {
			return
		}
		s := strings.TrimSpace(val)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		*out = append(*out, s)
	case map[string]any:
		// Sorted keys keep the result deterministic.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, isProv := provenanceKeys[k]
			collectSourceIDs(val[k], isProv, out, seen)
		}
	case []any:
		for _, child := range val {
			collectSourceIDs(child, underKey, out, seen)
		}
	case []string:
		for _, child := range val {
			collectSourceIDs(child, underKey, out, seen)
		}
	}
}
