package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"nexusdrive/internal/server/database"
	"nexusdrive/internal/server/service"
	"nexusdrive/internal/server/storage"

	"github.com/labstack/echo/v4"
)

type browseResponse struct {
	*storage.Listing
	IsAdmin  bool `json:"is_admin"`
	IsMobile bool `json:"is_mobile"`
}

// HandleIndex handles GET / and GET /<path>.
// A path matching a share slug is served to anyone; everything else needs
// general access and is either listed (directories) or downloaded (files).
func (h *Handler) HandleIndex(c echo.Context) error {
	reqPath := pathParam(c)

	if service.ValidSlug(reqPath) {
		resolved, err := h.shares.Resolve(c.Request().Context(), reqPath, actorFrom(c))
		switch {
		case err == nil:
			return c.Attachment(resolved.FullPath, resolved.Name)
		case !errors.Is(err, service.ErrNotFound):
			return mapServiceError(c, err)
		}
	}

	a := authFrom(c)
	if !a.Verified {
		return redirectToLogin(c, "/login")
	}

	info, _, err := h.files.Stat(reqPath)
	if err != nil {
		return mapServiceError(c, err)
	}
	if !info.IsDir() {
		return h.serveFile(c, reqPath, true)
	}

	listing, err := h.files.Browse(reqPath)
	if err != nil {
		return mapServiceError(c, err)
	}
	actor := actorFrom(c)
	return c.JSON(http.StatusOK, browseResponse{
		Listing:  listing,
		IsAdmin:  a.Admin,
		IsMobile: service.IsMobile(actor.UserAgent, actor.ForceMobile),
	})
}

// HandleDownload handles GET /download/<path>.
// Files are sent as attachments; directories are streamed as a ZIP archive.
func (h *Handler) HandleDownload(c echo.Context) error {
	return h.serveFile(c, pathParam(c), true)
}

// HandleView handles GET /view/<path>.
func (h *Handler) HandleView(c echo.Context) error {
	return h.serveFile(c, pathParam(c), false)
}

// HandleSearch handles GET /api/search?q=.
func (h *Handler) HandleSearch(c echo.Context) error {
	results, err := h.files.Search(c.QueryParam("q"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) serveFile(c echo.Context, rel string, attachment bool) error {
	info, full, err := h.files.Stat(rel)
	if err != nil {
		return mapServiceError(c, err)
	}

	if info.IsDir() {
		if !attachment {
			return mapServiceError(c, service.ErrNotFound)
		}
		return h.serveZip(c, rel, info.Name())
	}

	if attachment {
		h.track(c, rel, database.ActionDownload)
		return c.Attachment(full, info.Name())
	}
	h.track(c, rel, database.ActionView)
	return c.Inline(full, info.Name())
}

func (h *Handler) serveZip(c echo.Context, rel, name string) error {
	if rel == "" {
		name = "shares"
	}
	h.track(c, rel+"/", database.ActionDownload)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(path.Base(name)+".zip")))
	res.WriteHeader(http.StatusOK)

	// Headers are gone by now, so a failure can only be logged.
	if err := h.files.WriteZip(rel, res); err != nil {
		slog.Error("failed to stream archive", "path", rel, "error", err)
	}
	return nil
}
