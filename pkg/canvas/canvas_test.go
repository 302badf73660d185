package canvas

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studyontology/backend/pkg/ontology"
)

func canvasServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[
			{"id":1,"name":"Cognitive Psychology","workflow_state":"available"},
			{"id":2,"name":"Old Course","workflow_state":"completed"},
			{"id":3,"name":"","workflow_state":"available"}
		]`))
	})
	mux.HandleFunc("/api/v1/courses/1/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":10,"name":"Essay 1","description":"Write about memory","due_at":"2026-09-15T23:59:00Z","points_possible":100,"published":true,"submission_types":["online_upload"]},
			{"id":0,"name":"broken"},
			{"id":11,"name":""}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchAssignments(t *testing.T) {
	server := canvasServer(t)
	t.Setenv("CANVAS_URL", server.URL)
	t.Setenv("CANVAS_API_KEY", "test-key")

	c := NewClient()
	assignments, err := c.FetchAssignments(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d: %+v", len(assignments), assignments)
	}

	first := assignments[0]
	if first.ID != "assignment:10" {
		t.Fatalf("expected assignment:10, got %q", first.ID)
	}
	if first.Type != ontology.EntityTypeAssignment {
		t.Fatalf("expected assignment type, got %v", first.Type)
	}
	if first.Name != "Essay 1" {
		t.Fatalf("unexpected name %q", first.Name)
	}
	if first.Attributes["course_name"] != "Cognitive Psychology" {
		t.Fatalf("unexpected course name %v", first.Attributes["course_name"])
	}

	if assignments[1].Name != "Untitled" {
		t.Fatalf("nameless assignments should fall back to Untitled, got %q", assignments[1].Name)
	}
}

func TestFetchAssignments_SkipsUnavailableCourses(t *testing.T) {
	server := canvasServer(t)
	t.Setenv("CANVAS_URL", server.URL)
	t.Setenv("CANVAS_API_KEY", "test-key")

	c := NewClient()
	assignments, err := c.FetchAssignments(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, a := range assignments {
		if a.Attributes["course_id"] != "1" {
			t.Fatalf("only the available named course should contribute, got %+v", a)
		}
	}
}

func TestFetchAssignments_DisabledWithoutConfig(t *testing.T) {
	t.Setenv("CANVAS_URL", "")
	t.Setenv("CANVAS_API_KEY", "")

	c := NewClient()
	if c.Enabled() {
		t.Fatal("client must not be enabled without configuration")
	}
	assignments, err := c.FetchAssignments(context.Background())
	if err != nil {
		t.Fatalf("missing configuration must degrade silently, got %v", err)
	}
	if assignments != nil {
		t.Fatalf("expected nil assignments, got %+v", assignments)
	}
}

func TestFetchAssignments_AuthFailure(t *testing.T) {
	server := canvasServer(t)
	t.Setenv("CANVAS_URL", server.URL)
	t.Setenv("CANVAS_API_KEY", "wrong-key")

	c := NewClient()
	if _, err := c.FetchAssignments(context.Background()); err == nil {
		t.Fatal("expected error on rejected credentials")
	}
}
