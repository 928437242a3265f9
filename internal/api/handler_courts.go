package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type openBlockResponse struct {
	ID    string `json:"id"`
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type courtResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Category   string              `json:"category"`
	Type       string              `json:"type"`
	Features   []string            `json:"features"`
	Location   string              `json:"location,omitempty"`
	OpenBlocks []openBlockResponse `json:"openBlocks"`
}

// GetCourts handles GET /api/courts: every known court with the blocks the watcher last saw open.
func (h *Handler) GetCourts(c *gin.Context) {
	courts, err := h.store.ListCourts(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve courts"})
		return
	}

	responses := make([]courtResponse, 0, len(courts))
	for _, court := range courts {
		resp := courtResponse{
			ID:         court.ID,
			Name:       court.Name,
			Category:   court.Category,
			Type:       court.Type,
			Features:   court.Features,
			Location:   court.Location,
			OpenBlocks: make([]openBlockResponse, 0, len(court.OpenBlocks)),
		}
		if resp.Features == nil {
			resp.Features = []string{}
		}
		for _, b := range court.OpenBlocks {
			resp.OpenBlocks = append(resp.OpenBlocks, openBlockResponse{ID: b.ID, Day: b.Day, Start: b.Start, End: b.End})
		}
		responses = append(responses, resp)
	}
	c.JSON(http.StatusOK, responses)
}
