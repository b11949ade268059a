package api

import (
	"strconv"

	"nexusdrive/internal/server/config"
	"nexusdrive/internal/server/session"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, sessions *session.Manager, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(RequestLogger())
	e.Use(SessionMiddleware(sessions))

	// Rate limiter on login endpoints only
	loginLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	verified := RequireVerified()
	adminPage := RequireAdmin(false)
	adminAPI := RequireAdmin(true)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Credential exchange
	e.GET("/login", handler.HandleLoginPage)
	e.POST("/login", handler.HandleLogin, loginLimiter.Middleware())
	e.GET("/admin/login", handler.HandleAdminLoginPage)
	e.POST("/admin/login", handler.HandleAdminLogin, loginLimiter.Middleware())
	e.GET("/logout", handler.HandleLogout)

	// Explicit serving and search
	e.GET("/download/*", handler.HandleDownload, verified)
	e.GET("/view/*", handler.HandleView, verified)
	e.GET("/api/search", handler.HandleSearch, verified)

	// Admin dashboard and log archival
	e.GET("/admin", handler.HandleDashboard, adminPage)
	e.POST("/admin/logs/clear", handler.HandleClearLogs, adminAPI)

	// File mutations
	e.POST("/admin/file/mkdir", handler.HandleMkdir, adminAPI)
	e.POST("/admin/file/upload", handler.HandleUpload, uploadMiddleware(adminAPI, cfg.MaxUpload)...)
	e.POST("/admin/file/rename", handler.HandleRename, adminAPI)
	e.POST("/admin/file/delete", handler.HandleDeleteItems, adminAPI)

	// Share management
	e.POST("/admin/share/create", handler.HandleShareCreate, adminPage)
	e.POST("/admin/share/edit", handler.HandleShareEdit, adminPage)
	e.GET("/admin/share/delete/:id", handler.HandleShareDelete, adminPage)
	e.GET("/admin/share/qr/:id", handler.HandleShareQR, adminPage)

	// Share resolution, browsing and file serving. Registered last so every
	// named route above wins.
	e.GET("/", handler.HandleIndex)
	e.GET("/*", handler.HandleIndex)

	return e
}

// uploadMiddleware appends a body limit of maxUpload bytes to mw. Zero or
// less means no limit.
func uploadMiddleware(mw echo.MiddlewareFunc, maxUpload int64) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{mw}
	if maxUpload > 0 {
		chain = append(chain, middleware.BodyLimit(strconv.FormatInt(maxUpload, 10)+"B"))
	}
	return chain
}
