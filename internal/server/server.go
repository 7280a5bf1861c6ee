// Package server exposes the REST surface over the core: settings
// management, automation control, manual triggers and catalog reads.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vidharvest/pkg/logger"
	"vidharvest/pkg/metadata"
	"vidharvest/pkg/settings"
)

type (
	// AutomationService is the coordinator surface the handlers drive
	AutomationService interface {
		Start()
		Stop()
		Reschedule(minutes int)
		RunOnce(account string, maxDownloads int) bool
		Active() bool
	}

	// SettingsStore is the persisted settings surface
	SettingsStore interface {
		All() (map[string]string, error)
		Set(key, value string) error
		TargetAccount() (string, error)
		MaxDownloads() (int, error)
	}

	// ContentStore is the paged catalog read surface
	ContentStore interface {
		List(limit, offset int, sourceType string) ([]metadata.Record, error)
	}

	// Server wires the echo router to the core services
	Server struct {
		echo       *echo.Echo
		automation AutomationService
		settings   SettingsStore
		content    ContentStore
		logger     logger.Logger
	}
)

// New creates the HTTP server and registers its routes
func New(automation AutomationService, store SettingsStore, content ContentStore, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		automation: automation,
		settings:   store,
		content:    content,
		logger:     log,
	}

	api := e.Group("/api")
	api.GET("/settings", s.getSettings)
	api.PUT("/settings/:key", s.updateSetting)
	api.POST("/automation/start", s.startAutomation)
	api.POST("/automation/stop", s.stopAutomation)
	api.POST("/automation/interval/:minutes", s.changeInterval)
	api.POST("/scrape", s.triggerScrape)
	api.GET("/content", s.listContent)

	return s
}

// Start begins serving on addr; blocks until shutdown
func (s *Server) Start(addr string) error {
	s.logger.InfoWithFields("http server listening", map[string]interface{}{
		"address": addr,
	})
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) getSettings(c echo.Context) error {
	all, err := s.settings.All()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, all)
}

type updateSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) updateSetting(c echo.Context) error {
	key := c.Param("key")
	if !settings.IsValidKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported setting "+key)
	}

	var req updateSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.settings.Set(key, req.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// interval changes take effect immediately
	if key == settings.KeyScrapeInterval {
		if minutes, err := strconv.Atoi(req.Value); err == nil {
			s.automation.Reschedule(minutes)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated", key: req.Value})
}

func (s *Server) startAutomation(c echo.Context) error {
	s.automation.Start()
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) stopAutomation(c echo.Context) error {
	s.automation.Stop()
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) changeInterval(c echo.Context) error {
	minutes, err := strconv.Atoi(c.Param("minutes"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "minutes must be an integer")
	}

	if err := s.settings.Set(settings.KeyScrapeInterval, strconv.Itoa(minutes)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.automation.Reschedule(minutes)

	return c.JSON(http.StatusOK, map[string]interface{}{"status": "rescheduled", "minutes": minutes})
}

type triggerScrapeRequest struct {
	Account      string `json:"account"`
	MaxDownloads int    `json:"max_downloads"`
}

// triggerScrape enqueues a manual run without waiting for completion
func (s *Server) triggerScrape(c echo.Context) error {
	var req triggerScrapeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Account == "" {
		account, err := s.settings.TargetAccount()
		if err != nil || account == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no account given and no target account configured")
		}
		req.Account = account
	}
	if req.MaxDownloads <= 0 {
		maxDownloads, err := s.settings.MaxDownloads()
		if err != nil || maxDownloads <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no valid download budget configured")
		}
		req.MaxDownloads = maxDownloads
	}

	accepted := s.automation.RunOnce(req.Account, req.MaxDownloads)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"accepted": accepted,
		"account":  req.Account,
	})
}

func (s *Server) listContent(c echo.Context) error {
	limit := 50
	offset := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	sourceType := c.QueryParam("source_type")

	records, err := s.content.List(limit, offset, sourceType)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}
