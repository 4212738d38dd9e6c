package api

import (
	"errors"
	"net/http"

	"zapbot-backend/internal/store"

	"github.com/gin-gonic/gin"
)

// respondStoreError maps the store failure taxonomy onto HTTP statuses:
// missing entities are 404, illegal transitions 409, the rest 500.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
