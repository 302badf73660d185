package routes

import (
	"errors"
	"net/http"

	"github.com/studyontology/backend/internal/server/middleware"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/query"

	"github.com/labstack/echo/v4"
)

// GetEntitySubgraphHandler returns the neighborhood of one entity,
// referenced by id or by case-insensitive name.
func GetEntitySubgraphHandler(c echo.Context) error {
	data := new(query.EntityRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid query parameters")
	}
	data.Entity = c.Param("id")
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.ByEntity(ctx, *data)
	if err != nil {
		if errors.Is(err, query.ErrEntityNotFound) {
			return jsonError(c, http.StatusNotFound, "entity_not_found", "Entity does not exist")
		}
		logger.Error("Entity query failed", "entity", data.Entity, "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query subgraph")
	}
	return c.JSON(http.StatusOK, res)
}

// GetSourceSubgraphHandler returns the relationships traced to a single
// source document. It is the single-id form of the sources route.
func GetSourceSubgraphHandler(c echo.Context) error {
	data := new(query.SourcesRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid query parameters")
	}
	data.SourceIDs = []string{c.Param("id")}
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.BySources(ctx, *data)
	if err != nil {
		logger.Error("Source query failed", "source", c.Param("id"), "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query subgraph")
	}
	return c.JSON(http.StatusOK, res)
}

// GetRelationshipTypeSubgraphHandler returns the relationships carrying
// an exact predicate.
func GetRelationshipTypeSubgraphHandler(c echo.Context) error {
	data := new(query.RelationshipTypeRequest)
	if err := c.Bind(data); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", "Invalid query parameters")
	}
	data.RelationshipType = c.Param("type")
	if err := data.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	res, err := app.Engine.ByRelationshipType(ctx, *data)
	if err != nil {
		logger.Error("Relationship type query failed", "type", data.RelationshipType, "err", err)
		return jsonError(c, http.StatusInternalServerError, "query_failed", "Failed to query subgraph")
	}
	return c.JSON(http.StatusOK, res)
}
