package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/repository"
)

// CalendarHandler handles calendar inspection endpoints.
type CalendarHandler struct {
	calendar *repository.CalendarRepository
	assets   *repository.AssetRepository
}

// NewCalendarHandler creates a new calendar handler.
// Parameters:
//   - calendar: calendar repository instance.
//   - assets: asset repository instance.
// Returns:
//   - *CalendarHandler: initialized handler.
func NewCalendarHandler(calendar *repository.CalendarRepository, assets *repository.AssetRepository) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, assets: assets}
}

// WeekItemView pairs a calendar item with its live content version.
type WeekItemView struct {
	Item  domain.CalendarItem  `json:"item"`
	Asset *domain.ContentAsset `json:"asset,omitempty"`
}

// ListWeekItems handles GET /api/v1/weeks/:id/items.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CalendarHandler) ListWeekItems(c *gin.Context) {
	ctx := c.Request.Context()

	items, err := h.calendar.ListItemsByWeek(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Lookup failed: " + err.Error(),
		})
		return
	}

	views := make([]WeekItemView, len(items))
	for i, item := range items {
		views[i] = WeekItemView{Item: item}
		if asset, err := h.assets.GetActiveByItem(ctx, item.ID); err == nil {
			views[i].Asset = asset
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"week_id": c.Param("id"),
		"items":   views,
		"count":   len(views),
	})
}
