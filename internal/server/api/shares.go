package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"nexusdrive/internal/server/service"

	"github.com/labstack/echo/v4"
)

// durationField accepts a JSON number or string, so {"duration": 7} and
// {"duration": "forever"} both bind.
type durationField string

func (d *durationField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = durationField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = durationField(n.String())
	return nil
}

type createShareRequest struct {
	FilePath string        `json:"file_path" form:"file_path"`
	Slug     string        `json:"slug" form:"slug"`
	Duration durationField `json:"duration" form:"duration"`
}

type editShareRequest struct {
	ID       int64         `json:"id" form:"id"`
	Slug     string        `json:"slug" form:"slug"`
	Duration durationField `json:"duration" form:"duration"`
}

// HandleShareCreate handles POST /admin/share/create.
// JSON callers get the public URL back; form posts are redirected to the
// dashboard with a flash message.
func (h *Handler) HandleShareCreate(c echo.Context) error {
	var req createShareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.shares.Create(c.Request().Context(), service.CreateShareInput{
		FilePath: req.FilePath,
		Slug:     req.Slug,
		Duration: string(req.Duration),
	}, h.publicBaseURL(c))

	if !wantsJSON(c) {
		if err != nil {
			return h.flashRedirect(c, "error", flashMessage(err), "/admin")
		}
		return h.flashRedirect(c, "success", "share link created", "/admin")
	}
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":   true,
		"id":        result.ID,
		"slug":      result.Slug,
		"url":       result.URL,
		"expire_at": result.ExpireAt,
	})
}

// HandleShareEdit handles POST /admin/share/edit.
func (h *Handler) HandleShareEdit(c echo.Context) error {
	var req editShareRequest
	if err := c.Bind(&req); err != nil {
		if !wantsJSON(c) {
			return h.flashRedirect(c, "error", "invalid request", "/admin")
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.shares.Edit(c.Request().Context(), service.EditShareInput{
		ID:       req.ID,
		Slug:     req.Slug,
		Duration: string(req.Duration),
	}, h.publicBaseURL(c))

	if !wantsJSON(c) {
		if err != nil {
			return h.flashRedirect(c, "error", flashMessage(err), "/admin")
		}
		return h.flashRedirect(c, "success", "share link updated", "/admin")
	}
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"id":        result.ID,
		"slug":      result.Slug,
		"url":       result.URL,
		"expire_at": result.ExpireAt,
	})
}

// HandleShareDelete handles GET /admin/share/delete/:id.
func (h *Handler) HandleShareDelete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return mapServiceError(c, service.ErrNotFound)
	}

	if err := h.shares.Delete(c.Request().Context(), id); err != nil {
		if wantsJSON(c) {
			return mapServiceError(c, err)
		}
		return h.flashRedirect(c, "error", flashMessage(err), "/admin")
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
	return h.flashRedirect(c, "success", "share link deleted", "/admin")
}

// HandleShareQR handles GET /admin/share/qr/:id.
// Returns a PNG QR code of the public URL. Accepts an optional "size" query
// param in pixels.
func (h *Handler) HandleShareQR(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return mapServiceError(c, service.ErrNotFound)
	}

	size := 0
	if s := c.QueryParam("size"); s != "" {
		size, err = strconv.Atoi(s)
		if err != nil {
			return mapServiceError(c, service.ErrInvalidSize)
		}
	}

	png, err := h.shares.QRCode(c.Request().Context(), id, h.publicBaseURL(c), size)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
