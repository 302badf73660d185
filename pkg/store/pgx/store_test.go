package pgx

import (
	"strings"
	"testing"
)

// Relationship endpoints may name source documents, which live in the
// sources table rather than entities. The schema must accept such rows,
// so the endpoint columns cannot carry a foreign key into entities.
func TestSchemaAllowsSourceDocumentEndpoints(t *testing.T) {
	start := strings.Index(schemaDDL, "CREATE TABLE IF NOT EXISTS relationships")
	if start < 0 {
		t.Fatal("relationships table missing from schema")
	}
	length := strings.Index(schemaDDL[start:], ");")
	if length < 0 {
		t.Fatal("relationships table definition not terminated")
	}
	table := schemaDDL[start : start+length]

	if strings.Contains(table, "REFERENCES entities") {
		t.Fatalf("relationship endpoints must not reference entities:\n%s", table)
	}
	if !strings.Contains(table, "REFERENCES relationship_types") {
		t.Fatalf("predicate column must stay constrained to the seeded enum:\n%s", table)
	}
}
