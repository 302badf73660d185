package routes

import (
	"github.com/labstack/echo/v4"
)

// errorResponse is the envelope every handler uses for failures.
type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func jsonError(c echo.Context, status int, code string, message string) error {
	return c.JSON(status, errorResponse{
		ErrorCode: code,
		Message:   message,
	})
}
