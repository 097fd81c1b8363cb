package handlers

import (
	"errors"
	"net/http"

	"jatri-ovijog-backend/pipeline"
	"jatri-ovijog-backend/supabase"

	"github.com/gin-gonic/gin"
)

// Handlers represents the HTTP handlers
type Handlers struct {
	svc *pipeline.Service
}

// NewHandlers creates new HTTP handlers
func NewHandlers(svc *pipeline.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "jatri-ovijog-backend",
	})
}

// writeError maps pipeline errors onto HTTP statuses. Validation problems are
// the caller's fault; zero-row writes mean a wrong id or a blocked row;
// everything else is an upstream datastore failure.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, supabase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
