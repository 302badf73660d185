package routes

import (
	"net/http"

	"github.com/studyontology/backend/internal/server/middleware"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

// GetRelationshipsByConfidenceHandler returns the relationships whose
// confidence lies inside an optional [min, max] window, ordered by
// confidence descending with unscored relationships last.
func GetRelationshipsByConfidenceHandler(c echo.Context) error {
	data := new(query.ConfidenceRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.ByConfidence(ctx, *data)
	if err != nil {
		logger.Error("Confidence query failed", "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query relationships")
	}
	return c.JSON(http.StatusOK, res)
}

// GetSourcesSubgraphHandler returns the relationships whose provenance
// references at least one of the requested source documents.
func GetSourcesSubgraphHandler(c echo.Context) error {
	data := new(query.SourcesRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.BySources(ctx, *data)
	if err != nil {
		logger.Error("Sources query failed", "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query subgraph")
	}
	return c.JSON(http.StatusOK, res)
}

// GetEntityTypesSubgraphHandler returns the subgraph induced by a set
// of entity types: the typed entities plus relationships with both
// endpoints inside that set.
func GetEntityTypesSubgraphHandler(c echo.Context) error {
	data := new(query.EntityTypesRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.ByEntityTypes(ctx, *data)
	if err != nil {
		logger.Error("Entity types query failed", "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query subgraph")
	}
	return c.JSON(http.StatusOK, res)
}
