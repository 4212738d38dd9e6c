package api

import (
	"net/http"

	"zapbot-backend/internal/stats"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	Stats *stats.Aggregator
}

func NewStatsHandler(aggregator *stats.Aggregator) *StatsHandler {
	return &StatsHandler{Stats: aggregator}
}

func (h *StatsHandler) GetStatistics(c *gin.Context) {
	snap, err := h.Stats.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
