package controller

import (
	"net/http"

	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Success writes data as the JSON body of a 200 response.
func Success(c router.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// Created writes data as the JSON body of a 201 response.
func Created(c router.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContent sends a successful response with HTTP 204 No Content.
func NoContent(c router.Context) error {
	c.Response().WriteHeader(http.StatusNoContent)
	return nil
}

// Error sends an error response with the appropriate HTTP status code.
// The request id is echoed in the X-Request-ID header as well.
func Error(c router.Context, err error) error {
	statusCode, errorResponse := MapError(c.Request().Context(), err)
	if errorResponse.RequestID != "" {
		c.Response().Header().Set("X-Request-ID", errorResponse.RequestID)
	}
	return c.JSON(statusCode, errorResponse)
}
