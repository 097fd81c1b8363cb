package handlers

import (
	"net/http"
	"strconv"

	"jatri-ovijog-backend/models"

	"github.com/gin-gonic/gin"
)

// GetComplaints returns all complaints.
func (h *Handlers) GetComplaints(c *gin.Context) {
	rows, err := h.svc.Store().GetComplaints(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetComplaintsSummary returns complaints without the image payload.
func (h *Handlers) GetComplaintsSummary(c *gin.Context) {
	rows, err := h.svc.Store().GetComplaintsSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetHistoryByBus returns every complaint ever filed against a bus number.
func (h *Handlers) GetHistoryByBus(c *gin.Context) {
	rows, err := h.svc.Store().HistoryByBus(c.Request.Context(), c.Param("busNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// CreateComplaint runs a submission through the ingestion pipeline and
// returns the inserted row, or the updated parent row on a duplicate merge.
// Authorization is optional here: anonymous reporters are first-class.
func (h *Handlers) CreateComplaint(c *gin.Context) {
	var sub models.ComplaintSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	row, err := h.svc.CreateComplaint(c.Request.Context(), sub, c.GetHeader("Authorization"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// UpdateComplaintStatus validates and applies a status transition.
func (h *Handlers) UpdateComplaintStatus(c *gin.Context) {
	id, ok := complaintID(c)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	row, err := h.svc.UpdateStatus(c.Request.Context(), id, body.Status, body.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// UpdateComplaint applies a partial update. Protected fields are stripped
// before the write.
func (h *Handlers) UpdateComplaint(c *gin.Context) {
	id, ok := complaintID(c)
	if !ok {
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	delete(payload, "id")
	delete(payload, "user_id")
	delete(payload, "created_at")

	row, err := h.svc.Store().UpdateComplaint(c.Request.Context(), id, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// DeleteComplaint removes a complaint. Administrative operation, not part of
// the pipeline lifecycle.
func (h *Handlers) DeleteComplaint(c *gin.Context) {
	id, ok := complaintID(c)
	if !ok {
		return
	}
	if err := h.svc.Store().DeleteComplaint(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolveComplaint marks a complaint resolved and notifies the reporter.
func (h *Handlers) ResolveComplaint(c *gin.Context) {
	id, ok := complaintID(c)
	if !ok {
		return
	}

	var body struct {
		ActionTaken string `json:"actionTaken"`
		BusName     string `json:"busName"`
		Category    string `json:"category"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	row, err := h.svc.ResolveComplaint(c.Request.Context(), id, body.ActionTaken, body.BusName, body.Category)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// ParseChat extracts structured complaint fields from a free-text story.
func (h *Handlers) ParseChat(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No text provided"})
		return
	}

	form, err := h.svc.ParseChat(c.Request.Context(), body.Text)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "Failed to parse"})
		return
	}
	c.JSON(http.StatusOK, form)
}

func complaintID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid complaint id"})
		return 0, false
	}
	return id, true
}
