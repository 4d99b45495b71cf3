package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KrzysztofW02/ZTP/internal/api/dto"
)

// PublishJobs handles POST /api/v1/jobs/publish
// Publishes one job per image in the configured folder
func (h *JobHandler) PublishJobs(c *gin.Context) {
	h.logger.Info("PublishJobs called",
		slog.String("folder", h.folder),
		slog.String("exchange", h.exchange),
	)

	n, err := h.publisher.PublishFolder(c.Request.Context(), h.folder)
	if err != nil {
		h.logger.Error("Failed to publish jobs",
			slog.Int("published", n),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Failed to publish jobs",
			"published": n,
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.PublishResponse{
		Folder:    h.folder,
		Exchange:  h.exchange,
		Published: n,
	})
}
