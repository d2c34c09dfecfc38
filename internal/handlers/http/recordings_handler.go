package http

import (
	"net/http"

	"paircall/internal/core/services"

	"github.com/gin-gonic/gin"
)

// RecordingsHandler serves the combined-artifact listing for the
// authenticated user.
type RecordingsHandler struct {
	recordings *services.RecordingsService
}

func NewRecordingsHandler(recordings *services.RecordingsService) *RecordingsHandler {
	return &RecordingsHandler{recordings: recordings}
}

func (h *RecordingsHandler) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(auth)
	{
		api.GET("/recordings", h.ListRecordings)
	}
}

// ListRecordings returns the caller's combined recordings with signed
// download URLs. The owner is taken from the validated token, never
// from the request.
func (h *RecordingsHandler) ListRecordings(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	owner, ok := userIDVal.(string)
	if !ok || owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user context"})
		return
	}

	recordings, err := h.recordings.List(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recordings": recordings,
	})
}
