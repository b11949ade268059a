package api

import (
	"net/http"
	"strconv"

	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/service"
	"nexusdrive/internal/server/session"

	"github.com/labstack/echo/v4"
)

type dashboardResponse struct {
	Stats    database.Totals     `json:"stats"`
	Logs     []activityView      `json:"logs"`
	Page     int                 `json:"page"`
	Pages    int                 `json:"pages"`
	Limit    int                 `json:"limit"`
	Total    int64               `json:"total"`
	Shares   []service.ShareView `json:"shares"`
	Flashes  []session.Flash     `json:"flashes"`
	IsMobile bool                `json:"is_mobile"`
}

type activityView struct {
	ID        int64  `json:"id"`
	Subject   string `json:"subject"`
	IP        string `json:"ip"`
	Location  string `json:"location"`
	Device    string `json:"device"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// HandleDashboard handles GET /admin.
// Totals are archived plus live counts, computed on every request.
func (h *Handler) HandleDashboard(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	totals, err := h.activity.Totals(ctx)
	if err != nil {
		return mapServiceError(c, err)
	}
	logs, err := h.activity.List(ctx, page, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	shares, err := h.shares.List(ctx, h.publicBaseURL(c))
	if err != nil {
		return mapServiceError(c, err)
	}

	views := make([]activityView, 0, len(logs.Entries))
	for _, e := range logs.Entries {
		views = append(views, activityView{
			ID:        e.ID,
			Subject:   e.Subject,
			IP:        e.IP,
			Location:  e.Location,
			Device:    e.Device,
			Action:    e.Action,
			Timestamp: e.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	actor := actorFrom(c)
	return c.JSON(http.StatusOK, dashboardResponse{
		Stats:    totals,
		Logs:     views,
		Page:     logs.Page,
		Pages:    logs.Pages,
		Limit:    logs.Limit,
		Total:    logs.Total,
		Shares:   shares,
		Flashes:  h.popFlashes(c),
		IsMobile: service.IsMobile(actor.UserAgent, actor.ForceMobile),
	})
}

// HandleClearLogs handles POST /admin/logs/clear.
// Folds the live counts into the archived totals, then empties the log.
func (h *Handler) HandleClearLogs(c echo.Context) error {
	folded, err := h.activity.ArchiveAndClear(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"archived": folded,
	})
}
