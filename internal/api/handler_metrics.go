package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"room-status-backend/internal/export"
	"room-status-backend/internal/metrics"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type summaryResponse struct {
	metrics.Summary
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	AvgWait     string     `json:"avg_wait"`
	AvgProvider string     `json:"avg_provider"`
	AvgCleaning string     `json:"avg_cleaning"`
}

// GetMetricsSummary handles GET /api/metrics/summary?start=&end=.
func (h *Handler) GetMetricsSummary(c *gin.Context) {
	w, err := metrics.ParseWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.metrics.Summary(c.Request.Context(), w)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{
		Summary:     s,
		Start:       w.Start,
		End:         w.End,
		AvgWait:     metrics.FormatMMSS(s.AvgWaitSeconds),
		AvgProvider: metrics.FormatMMSS(s.AvgProviderSeconds),
		AvgCleaning: metrics.FormatMMSS(s.AvgCleaningSeconds),
	})
}

// ExportHistory handles GET /api/export.xlsx?start=&end=.
func (h *Handler) ExportHistory(c *gin.Context) {
	w, err := metrics.ParseWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := export.Collect(c.Request.Context(), h.history, h.metrics, w)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	body, err := export.Workbook(data)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("room_history_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, body)
}
