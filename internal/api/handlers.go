package api

import (
	"remindcal/internal/reconcile"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) listEvents(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	start, end, ranged, err := timeRange(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if ranged {
		events, err := s.deps.Engine.ListBetween(ctx, start, end, owner)
		if err != nil {
			return err
		}
		return c.JSON(toResponses(events))
	}
	events, err := s.deps.Engine.ListForOwner(ctx, owner)
	if err != nil {
		return err
	}
	return c.JSON(toResponses(events))
}

func (s *Server) createEvent(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event payload")
	}

	ev, outcome, err := s.deps.Engine.Reconcile(c.UserContext(), req.toEvent(), owner)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if outcome == reconcile.OutcomeCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(reconcileResponse{Outcome: outcome.String(), Event: toResponse(ev)})
}

func (s *Server) getEvent(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	ev, err := s.deps.Engine.Get(c.UserContext(), c.Params("id"), owner)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(ev))
}

func (s *Server) editEvent(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event payload")
	}

	edited := req.toEvent()
	edited.ID = c.Params("id")
	ev, err := s.deps.Engine.ApplyEdit(c.UserContext(), edited, owner)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(ev))
}

func (s *Server) deleteEvent(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	if err := s.deps.Engine.Delete(c.UserContext(), c.Params("id"), owner); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setReminder(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	var req reminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid reminder payload")
	}
	ev, err := s.deps.Engine.SetReminder(c.UserContext(), c.Params("id"), owner, req.At)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(ev))
}

func (s *Server) setRemindersEnabled(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	var req remindersEnabledRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return fiber.NewError(fiber.StatusBadRequest, "enabled is required")
	}
	ev, err := s.deps.Engine.SetRemindersEnabled(c.UserContext(), c.Params("id"), owner, *req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(ev))
}

func (s *Server) listReadableEvents(c *fiber.Ctx) error {
	observer, err := requester(c)
	if err != nil {
		return err
	}
	owner, err := paramID(c, "owner")
	if err != nil {
		return err
	}
	start, end, ranged, err := timeRange(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if ranged {
		events, err := s.deps.Gate.ListReadableBetween(ctx, observer, owner, start, end)
		if err != nil {
			return err
		}
		return c.JSON(toResponses(events))
	}
	events, err := s.deps.Gate.ListReadableEvents(ctx, observer, owner)
	if err != nil {
		return err
	}
	return c.JSON(toResponses(events))
}

func (s *Server) observedOwners(c *fiber.Ctx) error {
	observer, err := requester(c)
	if err != nil {
		return err
	}
	owners, err := s.deps.Gate.ObservedOwners(c.UserContext(), observer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"owners": owners})
}

func (s *Server) grant(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	observer, err := paramID(c, "observer")
	if err != nil {
		return err
	}
	if err := s.deps.Gate.Grant(c.UserContext(), owner, observer); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) revoke(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	observer, err := paramID(c, "observer")
	if err != nil {
		return err
	}
	if err := s.deps.Gate.Revoke(c.UserContext(), owner, observer); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) analyzeWeek(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	report, err := s.deps.Analyzer.CurrentWeek(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) runImport(c *fiber.Ctx) error {
	owner, err := requester(c)
	if err != nil {
		return err
	}
	if s.deps.Importer == nil {
		return fiber.NewError(fiber.StatusNotFound, "importing is not configured")
	}
	results, err := s.deps.Importer.SyncOwner(c.UserContext(), owner)
	if err != nil && len(results) == 0 {
		return err
	}

	type resultJSON struct {
		Source    string `json:"source"`
		Fetched   int    `json:"fetched"`
		Created   int    `json:"created"`
		Updated   int    `json:"updated"`
		Unchanged int    `json:"unchanged"`
		Failed    int    `json:"failed"`
		Error     string `json:"error,omitempty"`
	}
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		rj := resultJSON{Source: r.Source, Fetched: r.Fetched, Created: r.Created,
			Updated: r.Updated, Unchanged: r.Unchanged, Failed: r.Failed}
		if r.Err != nil {
			rj.Error = r.Err.Error()
		}
		out = append(out, rj)
	}
	return c.JSON(fiber.Map{"results": out})
}

func (s *Server) schedulerStatus(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return fiber.NewError(fiber.StatusNotFound, "scheduler is not configured")
	}
	return c.JSON(fiber.Map{"running": s.deps.Scheduler.Running()})
}

func (s *Server) startScheduler(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return fiber.NewError(fiber.StatusNotFound, "scheduler is not configured")
	}
	s.deps.Scheduler.Start()
	return c.JSON(fiber.Map{"running": s.deps.Scheduler.Running()})
}

func (s *Server) stopScheduler(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return fiber.NewError(fiber.StatusNotFound, "scheduler is not configured")
	}
	if err := s.deps.Scheduler.Stop(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"running": s.deps.Scheduler.Running()})
}
