package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KrzysztofW02/ZTP/internal/api/dto"
	"github.com/KrzysztofW02/ZTP/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListResults handles GET /api/v1/results
// Lists recorded results newest first with cursor pagination
func (h *ResultHandler) ListResults(c *gin.Context) {
	var req dto.ListResultsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeResultCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	results, err := h.results.ListResults(c.Request.Context(), storage.ResultFilter{
		RunID:    req.RunID,
		Backend:  req.Backend,
		FileName: req.FileName,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list results", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list results",
		})
		return
	}

	hasMore := len(results) > req.PageSize
	if hasMore {
		results = results[:req.PageSize]
	}

	resp := dto.ListResultsResponse{Results: make([]dto.ResultDTO, len(results))}
	for i, r := range results {
		resp.Results[i] = dto.ResultDTO{
			ID:         r.ID,
			RunID:      r.RunID,
			FileName:   r.FileName,
			Backend:    r.Backend,
			ElapsedMs:  r.ElapsedMs,
			ReceivedAt: r.ReceivedAt.Format(time.RFC3339Nano),
		}
	}

	if hasMore {
		last := results[len(results)-1]
		resp.NextCursor = EncodeResultCursor(&storage.ResultCursor{ReceivedAt: last.ReceivedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}

// GetSummary handles GET /api/v1/results/summary
// Compares backends by count and convolution time
func (h *ResultHandler) GetSummary(c *gin.Context) {
	var req dto.SummaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	summaries, err := h.results.Summarize(c.Request.Context(), req.RunID)
	if err != nil {
		h.logger.Error("Failed to summarize results", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to summarize results",
		})
		return
	}

	resp := dto.SummaryResponse{RunID: req.RunID, Backends: make([]dto.BackendSummaryDTO, len(summaries))}
	for i, s := range summaries {
		resp.Backends[i] = dto.BackendSummaryDTO{
			Backend:        s.Backend,
			Count:          s.Count,
			TotalElapsedMs: s.TotalElapsedMs,
			AvgElapsedMs:   s.AvgElapsedMs,
			MinElapsedMs:   s.MinElapsedMs,
			MaxElapsedMs:   s.MaxElapsedMs,
		}
	}

	c.JSON(http.StatusOK, resp)
}
