package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/service"
	"nexusdrive/internal/server/session"

	"github.com/labstack/echo/v4"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Files    *service.FileService
	Shares   *service.ShareService
	Activity *service.ActivityService
	Auth     *service.AuthService
	Tracker  *service.Tracker
	Sessions *session.Manager
	DB       *database.DB
	// BaseURL prefixes public share links. Empty means derive it from the
	// request.
	BaseURL string
}

// Handler contains the HTTP handlers.
type Handler struct {
	files    *service.FileService
	shares   *service.ShareService
	activity *service.ActivityService
	auth     *service.AuthService
	tracker  *service.Tracker
	sessions *session.Manager
	db       *database.DB
	baseURL  string
}

// NewHandler creates a new handler from its dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		files:    d.Files,
		shares:   d.Shares,
		activity: d.Activity,
		auth:     d.Auth,
		tracker:  d.Tracker,
		sessions: d.Sessions,
		db:       d.DB,
		baseURL:  d.BaseURL,
	}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

func (h *Handler) publicBaseURL(c echo.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

func (h *Handler) track(c echo.Context, subject, action string) {
	h.tracker.Track(actorFrom(c), subject, action)
}

// saveSession persists the request's session. A failed save is logged; the
// response still goes out.
func (h *Handler) saveSession(c echo.Context) {
	if s := sessionFrom(c); s != nil {
		if err := h.sessions.Save(c.Request().Context(), c.Response(), s); err != nil {
			slog.Error("failed to save session", "error", err)
		}
	}
}

// flashRedirect queues a message and redirects, for form-based page flows.
func (h *Handler) flashRedirect(c echo.Context, category, message, to string) error {
	if s := sessionFrom(c); s != nil {
		s.AddFlash(category, message)
		h.saveSession(c)
	}
	return c.Redirect(http.StatusFound, to)
}

func (h *Handler) popFlashes(c echo.Context) []session.Flash {
	s := sessionFrom(c)
	if s == nil || len(s.Flashes) == 0 {
		return []session.Flash{}
	}
	flashes := s.PopFlashes()
	h.saveSession(c)
	return flashes
}

// pathParam returns the wildcard path of the route, unescaped.
func pathParam(c echo.Context) string {
	p := c.Param("*")
	if c.Request().URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(p); err == nil {
			p = unescaped
		}
	}
	return strings.Trim(p, "/")
}

// safeNext limits post-login redirects to local paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	return next
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidPath):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid path"})
	case errors.Is(err, service.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid name"})
	case errors.Is(err, service.ErrInvalidSlug):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "slug must be 1-50 letters, digits, '-' or '_'",
		})
	case errors.Is(err, service.ErrInvalidSize):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": fmt.Sprintf("size must be between %d and %d", service.MinQRSize, service.MaxQRSize),
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrAlreadyExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "name already exists"})
	case errors.Is(err, service.ErrSlugConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slug already in use"})
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "share link has expired"})
	case errors.Is(err, service.ErrFileMissing):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "shared file has been moved or deleted"})
	case errors.Is(err, service.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "permission denied"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "incorrect password"})
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// flashMessage is the page-flow counterpart of mapServiceError.
func flashMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "file not found"
	case errors.Is(err, service.ErrSlugConflict):
		return "slug already in use, choose another"
	case errors.Is(err, service.ErrInvalidSlug):
		return "slug must be 1-50 letters, digits, '-' or '_'"
	case errors.Is(err, service.ErrInvalidPath):
		return "invalid path"
	default:
		slog.Error("page operation failed", "error", err)
		return "operation failed"
	}
}
