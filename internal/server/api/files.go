package api

import (
	"errors"
	"io"
	"net/http"

	"nexusdrive/internal/server/service"

	"github.com/labstack/echo/v4"
)

type mkdirRequest struct {
	Path string `json:"path" form:"path"`
	Name string `json:"name" form:"name"`
}

type renameRequest struct {
	Path    string `json:"path" form:"path"`
	OldName string `json:"old_name" form:"old_name"`
	NewName string `json:"new_name" form:"new_name"`
}

type deleteRequest struct {
	Path      string   `json:"path" form:"path"`
	Filenames []string `json:"filenames" form:"filenames"`
}

// HandleMkdir handles POST /admin/file/mkdir.
func (h *Handler) HandleMkdir(c echo.Context) error {
	var req mkdirRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.files.CreateFolder(req.Path, req.Name); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleUpload handles POST /admin/file/upload.
// Accepts a multipart form with a "path" field and any number of "files".
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
				"error": "upload exceeds maximum allowed size",
			})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart form with 'files' is required",
		})
	}

	var rel string
	if v := form.Value["path"]; len(v) > 0 {
		rel = v[0]
	}

	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.UploadFile{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	count, err := h.files.Upload(rel, files)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": count})
}

// HandleRename handles POST /admin/file/rename.
func (h *Handler) HandleRename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.files.Rename(req.Path, req.OldName, req.NewName); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleDeleteItems handles POST /admin/file/delete.
// A partial failure still answers 200, with success=false and the joined
// per-item errors in "msg".
func (h *Handler) HandleDeleteItems(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.Filenames) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "filenames is required"})
	}

	report, err := h.files.Delete(req.Path, req.Filenames)
	if err != nil {
		return mapServiceError(c, err)
	}
	if !report.OK() {
		return c.JSON(http.StatusOK, echo.Map{
			"success": false,
			"deleted": report.Deleted,
			"msg":     report.Message,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"deleted": report.Deleted,
		"skipped": report.Skipped,
	})
}
