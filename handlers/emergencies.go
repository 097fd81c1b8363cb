package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEmergencies returns all emergency reports.
func (h *Handlers) GetEmergencies(c *gin.Context) {
	rows, err := h.svc.Store().GetEmergencies(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetEmergenciesSummary returns emergency reports without media payloads.
func (h *Handlers) GetEmergenciesSummary(c *gin.Context) {
	rows, err := h.svc.Store().GetEmergenciesSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateEmergency inserts an emergency report. Fields are whitelisted to
// prevent mass-assignment; the mobile client sends media either as URLs or
// inline base64 under the short keys.
func (h *Handlers) CreateEmergency(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	fixed := map[string]any{}
	copyKey := func(dst string, srcs ...string) {
		for _, src := range srcs {
			if v, ok := payload[src]; ok {
				fixed[dst] = v
			}
		}
	}
	copyKey("audio_url", "audioUrl", "audio")
	copyKey("image_url", "imageUrl", "image")
	copyKey("user_id", "userId")
	copyKey("latitude", "latitude")
	copyKey("longitude", "longitude")
	copyKey("accuracy", "accuracy")
	copyKey("label", "label")
	copyKey("notes", "notes")

	row, err := h.svc.Store().CreateEmergency(c.Request.Context(), fixed)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}
