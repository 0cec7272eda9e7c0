// Package api exposes the calendar operations over HTTP. Requests identify their
// user with the X-User-Id header.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"remindcal/internal/access"
	"remindcal/internal/analysis"
	"remindcal/internal/models"
	"remindcal/internal/reconcile"
	"remindcal/internal/syncer"

	"github.com/gofiber/fiber/v2"
)

const userHeader = "X-User-Id"

// Scheduler is the part of the reminder scheduler the API controls.
type Scheduler interface {
	Start()
	Stop(ctx context.Context) error
	Running() bool
}

// Importer runs an import for one owner.
type Importer interface {
	SyncOwner(ctx context.Context, ownerID int64) ([]syncer.Result, error)
}

// Deps are the services behind the routes. Importer and Scheduler are optional.
type Deps struct {
	Engine    *reconcile.Engine
	Gate      *access.Gate
	Analyzer  *analysis.Analyzer
	Importer  Importer
	Scheduler Scheduler
}

type Server struct {
	logger *slog.Logger
	app    *fiber.App
	deps   Deps
}

func New(logger *slog.Logger, deps Deps) *Server {
	s := &Server{logger: logger, deps: deps}
	s.app = fiber.New(fiber.Config{
		AppName:               "remindcal",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP API listening.", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	events := s.app.Group("/events")
	events.Get("/", s.listEvents)
	events.Post("/", s.createEvent)
	events.Get("/:id", s.getEvent)
	events.Put("/:id", s.editEvent)
	events.Delete("/:id", s.deleteEvent)
	events.Put("/:id/reminder", s.setReminder)
	events.Put("/:id/reminders", s.setRemindersEnabled)

	s.app.Get("/owners/:owner/events", s.listReadableEvents)
	s.app.Get("/observed", s.observedOwners)
	s.app.Put("/grants/:observer", s.grant)
	s.app.Delete("/grants/:observer", s.revoke)

	s.app.Get("/analysis/week", s.analyzeWeek)
	s.app.Post("/import", s.runImport)

	s.app.Get("/scheduler", s.schedulerStatus)
	s.app.Post("/scheduler/start", s.startScheduler)
	s.app.Post("/scheduler/stop", s.stopScheduler)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	began := time.Now()
	err := c.Next()
	s.logger.Debug("HTTP request", "method", c.Method(), "path", c.Path(),
		"status", c.Response().StatusCode(), "duration", time.Since(began), "error", err)
	return err
}

// handleError maps domain errors to status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, models.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidEvent),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrSelfGrant),
		errors.Is(err, models.ErrIDAssigned):
		code = fiber.StatusBadRequest
	case errors.Is(err, models.ErrPermissionDenied):
		code = fiber.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		code = fiber.StatusConflict
	case errors.Is(err, models.ErrNotAuthenticated):
		code = fiber.StatusUnauthorized
	case errors.Is(err, models.ErrStoreUnavailable):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

func requester(c *fiber.Ctx) (int64, error) {
	raw := strings.TrimSpace(c.Get(userHeader))
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusUnauthorized, userHeader+" header is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "invalid "+userHeader+" header")
	}
	return id, nil
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// timeRange reads the optional from/to query parameters (RFC 3339). ok is false
// when neither is given.
func timeRange(c *fiber.Ctx) (start, end time.Time, ok bool, err error) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, false, fiber.NewError(fiber.StatusBadRequest, "from and to must be given together")
	}
	if start, err = time.Parse(time.RFC3339, from); err != nil {
		return time.Time{}, time.Time{}, false, fiber.NewError(fiber.StatusBadRequest, "invalid from")
	}
	if end, err = time.Parse(time.RFC3339, to); err != nil {
		return time.Time{}, time.Time{}, false, fiber.NewError(fiber.StatusBadRequest, "invalid to")
	}
	return start, end, true, nil
}
