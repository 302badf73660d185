package server

import (
	"github.com/studyontology/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Ingestion routes
	apiRoutes.POST("/ingest", routes.IngestHandler)
	apiRoutes.POST("/ingest/async", routes.IngestAsyncHandler)

	// Subgraph query routes
	apiRoutes.POST("/graph/relationships", routes.GetRelationshipsByConfidenceHandler)
	apiRoutes.GET("/graph/subgraph/relationship-type/:type", routes.GetRelationshipTypeSubgraphHandler)
	apiRoutes.GET("/graph/subgraph/entity/:id", routes.GetEntitySubgraphHandler)
	apiRoutes.GET("/graph/subgraph/source/:id", routes.GetSourceSubgraphHandler)
	apiRoutes.POST("/graph/subgraph/sources", routes.GetSourcesSubgraphHandler)
	apiRoutes.POST("/graph/subgraph/entity-types", routes.GetEntityTypesSubgraphHandler)
}
