package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/repository"
)

// respondError maps a domain error onto its HTTP status: bad input is 400,
// a held run lease is 409, schema problems are 422, unreachable integrations
// are 502, missing records are 404, everything else is 500.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrTaskAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsSchema(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case domain.IsConnection(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case repository.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
