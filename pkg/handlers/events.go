package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/calendar"
	"github.com/sharmaanmol256/new-calendar/pkg/logger"
	"github.com/sharmaanmol256/new-calendar/pkg/middleware"
	"github.com/sharmaanmol256/new-calendar/pkg/models"
)

// CalendarProxy is the provider-facing side of the event endpoints.
type CalendarProxy interface {
	List(ctx context.Context, accessToken string) ([]*gcal.Event, error)
	Create(ctx context.Context, accessToken string, in calendar.EventInput) (*gcal.Event, error)
	Update(ctx context.Context, accessToken, eventID string, in calendar.EventInput) (*gcal.Event, error)
	Delete(ctx context.Context, accessToken, eventID string) error
}

// EventMirror is the local copy of events created here.
type EventMirror interface {
	Save(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, userID uint, googleEventID string) error
	ListByUser(ctx context.Context, userID uint) ([]models.Event, error)
}

type EventsHandler struct {
	proxy  CalendarProxy
	mirror EventMirror
	log    *zap.Logger
}

func NewEventsHandler(proxy CalendarProxy, mirror EventMirror, log *zap.Logger) *EventsHandler {
	return &EventsHandler{proxy: proxy, mirror: mirror, log: log}
}

func (h *EventsHandler) List(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	events, err := h.proxy.List(c.UserContext(), user.AccessToken)
	if err != nil {
		return err
	}
	logger.WithEmail(h.log, user.Email).Debug("fetched events", zap.Int("count", len(events)))
	return c.JSON(events)
}

// History lists the local mirror of events created through this service.
func (h *EventsHandler) History(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	events, err := h.mirror.ListByUser(c.UserContext(), user.ID)
	if err != nil {
		return apperr.Wrap(apperr.ErrInternal, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(events)
}

func (h *EventsHandler) Create(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	in, err := parseInput(c)
	if err != nil {
		return err
	}

	created, err := h.proxy.Create(c.UserContext(), user.AccessToken, in)
	if err != nil {
		return err
	}
	logger.WithEmail(h.log, user.Email).Info("event created", zap.String("event_id", created.Id))
	h.remember(c.UserContext(), user, created.Id, in)

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *EventsHandler) Update(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	eventID := c.Params("eventId")
	in, err := parseInput(c)
	if err != nil {
		return err
	}

	updated, err := h.proxy.Update(c.UserContext(), user.AccessToken, eventID, in)
	if err != nil {
		return err
	}
	logger.WithEmail(h.log, user.Email).Info("event updated", zap.String("event_id", eventID))
	h.remember(c.UserContext(), user, updated.Id, in)

	return c.JSON(updated)
}

func (h *EventsHandler) Delete(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	eventID := c.Params("eventId")

	if err := h.proxy.Delete(c.UserContext(), user.AccessToken, eventID); err != nil {
		return err
	}
	if err := h.mirror.Delete(c.UserContext(), user.ID, eventID); err != nil {
		h.log.Warn("failed to drop event mirror", zap.String("event_id", eventID), zap.Error(err))
	}
	logger.WithEmail(h.log, user.Email).Info("event deleted", zap.String("event_id", eventID))

	return c.JSON(fiber.Map{"success": true, "message": "Event deleted successfully"})
}

// remember writes the mirror row. The provider already has the event, so
// failures are logged and otherwise ignored.
func (h *EventsHandler) remember(ctx context.Context, user *models.User, eventID string, in calendar.EventInput) {
	start, end := in.Times()
	err := h.mirror.Save(ctx, &models.Event{
		UserID:        user.ID,
		GoogleEventID: eventID,
		Summary:       in.Summary,
		StartTime:     start,
		EndTime:       end,
	})
	if err != nil {
		h.log.Warn("failed to store event mirror", zap.String("event_id", eventID), zap.Error(err))
	}
}

// parseInput decodes the body as JSON whatever the Content-Type header
// says, matching identity.BodyEmail.
func parseInput(c *fiber.Ctx) (calendar.EventInput, error) {
	var in calendar.EventInput
	body := c.Body()
	if len(body) == 0 {
		return in, apperr.WithMessage(apperr.ErrValidation, "Request body is required")
	}
	if err := c.App().Config().JSONDecoder(body, &in); err != nil {
		return in, apperr.WithMessage(apperr.ErrValidation, "Request body must be a JSON object")
	}
	return in, nil
}
