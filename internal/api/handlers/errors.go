package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/costcast/internal/middleware"
	"github.com/irfndi/costcast/internal/services"
	"github.com/irfndi/costcast/internal/utils"
)

// respondError maps service errors to HTTP status codes. Unexpected errors
// are recorded on the request span and hidden from the client.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		middleware.RecordError(c, err, fallback)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
