package rest

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Handler serves the internal liveness endpoints. The operator-facing API
// lives in a separate deployment; this listener only answers cluster probes.
type Handler struct {
	db      *gorm.DB
	version string
}

func NewHandler(db *gorm.DB, version string) *Handler {
	return &Handler{db: db, version: version}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/internal/health", h.health)
	e.GET("/internal/info", h.info)
}

func (h *Handler) health(c echo.Context) error {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status": "DOWN",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "UP"})
}

func (h *Handler) info(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"name":    "metaregistry",
		"version": h.version,
	})
}
