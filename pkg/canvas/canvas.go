package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/studyontology/backend/internal/util"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/ontology"
)

// Client talks to the Canvas LMS REST API and turns published course
// assignments into assignment entities for graph ingestion.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type course struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	WorkflowState string `json:"workflow_state"`
}

type assignment struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	DueAt           string   `json:"due_at"`
	PointsPossible  float64  `json:"points_possible"`
	HTMLURL         string   `json:"html_url"`
	Published       bool     `json:"published"`
	SubmissionTypes []string `json:"submission_types"`
}

// NewClient creates a client from the CANVAS_URL and CANVAS_API_KEY
// environment variables.
func NewClient() *Client {
	return &Client{
		baseURL:    util.GetEnvString("CANVAS_URL", ""),
		apiKey:     util.GetEnvString("CANVAS_API_KEY", ""),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether the client has enough configuration to reach
// a Canvas instance.
func (c *Client) Enabled() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// FetchAssignments collects the assignments of every available course
// as assignment entities. A missing configuration degrades to an empty
// result so ingestion keeps working without Canvas.
func (c *Client) FetchAssignments(ctx context.Context) ([]ontology.Entity, error) {
	if !c.Enabled() {
		logger.Debug("[Canvas] skipped, no CANVAS_URL or CANVAS_API_KEY configured")
		return nil, nil
	}

	courses, err := c.courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch courses: %w", err)
	}

	var out []ontology.Entity
	for _, course := range courses {
		if course.WorkflowState != "available" || course.Name == "" {
			continue
		}
		assignments, err := c.assignments(ctx, course.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch assignments for course %d: %w", course.ID, err)
		}
		for _, a := range assignments {
			if a.ID == 0 {
				continue
			}
			name := a.Name
			if name == "" {
				name = "Untitled"
			}
			out = append(out, ontology.Entity{
				ID:          fmt.Sprintf("assignment:%d", a.ID),
				Type:        ontology.EntityTypeAssignment,
				Name:        name,
				Description: a.Description,
				Attributes: map[string]any{
					"course_id":        fmt.Sprintf("%d", course.ID),
					"course_name":      course.Name,
					"due_date":         a.DueAt,
					"points_possible":  a.PointsPossible,
					"html_url":         a.HTMLURL,
					"is_published":     a.Published,
					"submission_types": a.SubmissionTypes,
				},
			})
		}
	}

	logger.Info("[Canvas] fetched assignments", "count", len(out))
	return out, nil
}

func (c *Client) courses(ctx context.Context) ([]course, error) {
	var out []course
	if err := c.get(ctx, "/api/v1/courses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) assignments(ctx context.Context, courseID int) ([]assignment, error) {
	var out []assignment
	if err := c.get(ctx, fmt.Sprintf("/api/v1/courses/%d/assignments", courseID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach canvas: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("canvas returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode canvas response: %w", err)
	}
	return nil
}
