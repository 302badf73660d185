package routes

import (
	"errors"
	"net/http"
	"os"

	"github.com/studyontology/backend/internal/ingest"
	"github.com/studyontology/backend/internal/queue"
	"github.com/studyontology/backend/internal/server/middleware"
	"github.com/studyontology/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// IngestHandler runs a full ingestion synchronously and returns the
// outcome. Re-posting a byte-identical artifact returns 200 with
// already_processed set instead of writing anything.
func IngestHandler(c echo.Context) error {
	data := new(ingest.Request)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Ingest.Ingest(ctx, *data)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jsonError(c, http.StatusNotFound, "artifact_not_found", "Artifact does not exist")
		}
		if errors.Is(err, ingest.ErrBadArtifact) {
			return jsonError(c, http.StatusBadRequest, "invalid_artifact", err.Error())
		}
		logger.Error("Ingestion failed", "artifact", data.ArtifactPath, "err", err)
		return jsonError(c, http.StatusInternalServerError, "ingest_failed", "Failed to process artifact")
	}

	status := http.StatusCreated
	if res.AlreadyProcessed {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// IngestAsyncHandler enqueues an ingestion job for the worker and
// returns immediately.
func IngestAsyncHandler(c echo.Context) error {
	type ingestAsyncResponse struct {
		Message      string `json:"message"`
		ArtifactPath string `json:"artifact_path"`
	}

	data := new(ingest.Request)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := c.Validate(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishIngestJob(app.Queue, data); err != nil {
		logger.Error("Failed to enqueue ingest job", "artifact", data.ArtifactPath, "err", err)
		return jsonError(c, http.StatusInternalServerError, "enqueue_failed", "Failed to enqueue ingestion")
	}

	return c.JSON(http.StatusAccepted, ingestAsyncResponse{
		Message:      "Ingestion queued",
		ArtifactPath: data.ArtifactPath,
	})
}
