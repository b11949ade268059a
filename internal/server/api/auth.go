package api

import (
	"errors"
	"net/http"
	"net/url"

	"nexusdrive/internal/server/service"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

type loginPrompt struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Next     string `json:"next,omitempty"`
	Flashes  any    `json:"flashes"`
}

// HandleLoginPage handles GET /login.
func (h *Handler) HandleLoginPage(c echo.Context) error {
	return c.JSON(http.StatusOK, loginPrompt{
		Title:    "Secure access",
		Subtitle: "Enter the access password to continue",
		Next:     c.QueryParam("next"),
		Flashes:  h.popFlashes(c),
	})
}

// HandleLogin handles POST /login.
func (h *Handler) HandleLogin(c echo.Context) error {
	return h.login(c, service.TierUser, "/login", safeNext(c.QueryParam("next")))
}

// HandleAdminLoginPage handles GET /admin/login. Admins go straight to the
// dashboard.
func (h *Handler) HandleAdminLoginPage(c echo.Context) error {
	if authFrom(c).Admin {
		return c.Redirect(http.StatusFound, "/admin")
	}
	return c.JSON(http.StatusOK, loginPrompt{
		Title:    "Admin console",
		Subtitle: "Enter the admin password",
		Next:     c.QueryParam("next"),
		Flashes:  h.popFlashes(c),
	})
}

// HandleAdminLogin handles POST /admin/login.
func (h *Handler) HandleAdminLogin(c echo.Context) error {
	if authFrom(c).Admin {
		return c.Redirect(http.StatusFound, "/admin")
	}
	next := c.QueryParam("next")
	if next == "" {
		next = "/admin"
	}
	return h.login(c, service.TierAdmin, "/admin/login", safeNext(next))
}

func (h *Handler) login(c echo.Context, tier service.Tier, loginPath, next string) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	err := h.auth.Login(tier, req.Password, actorFrom(c))
	if errors.Is(err, service.ErrInvalidCredentials) {
		if wantsJSON(c) {
			return mapServiceError(c, err)
		}
		back := loginPath
		if q := c.QueryParam("next"); q != "" {
			back += "?next=" + url.QueryEscape(q)
		}
		return h.flashRedirect(c, "error", "incorrect password", back)
	}
	if err != nil {
		return mapServiceError(c, err)
	}

	s := sessionFrom(c)
	h.sessions.Renew(c.Request().Context(), s)
	if tier == service.TierAdmin {
		s.Admin = true
	} else {
		s.Verified = true
	}
	h.saveSession(c)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "next": next})
	}
	return c.Redirect(http.StatusFound, next)
}

// HandleLogout handles GET /logout. Both flags are cleared whatever was set.
func (h *Handler) HandleLogout(c echo.Context) error {
	a := authFrom(c)
	h.auth.Logout(a.Verified, a.Admin, actorFrom(c))

	if s := sessionFrom(c); s != nil {
		if err := h.sessions.Destroy(c.Request().Context(), c.Response(), s); err != nil {
			return mapServiceError(c, err)
		}
	}
	return c.Redirect(http.StatusFound, "/login")
}
