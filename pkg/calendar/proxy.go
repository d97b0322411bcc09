// Package calendar proxies event operations to the Google Calendar API on
// behalf of a signed-in user.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/validator"
)

const (
	calendarID = "primary"
	// PageSize bounds the upcoming-events list.
	PageSize = 10
)

// EventInput is the create/update payload accepted from clients.
type EventInput struct {
	Summary       string   `json:"summary" validate:"notblank"`
	Description   string   `json:"description"`
	StartDateTime string   `json:"startDateTime" validate:"required,rfc3339"`
	EndDateTime   string   `json:"endDateTime" validate:"required,rfc3339"`
	Attendees     []string `json:"attendees" validate:"omitempty,dive,email"`
	TimeZone      string   `json:"timeZone"`
}

// Validate checks required fields, formats and ordering before any
// provider call.
func (in EventInput) Validate() error {
	if err := validator.Struct(in); err != nil {
		return err
	}
	start, end := in.Times()
	if !end.After(start) {
		return apperr.WithMessage(apperr.ErrValidation, "endDateTime must be after startDateTime")
	}
	return nil
}

// Times returns the parsed start and end. Call Validate first.
func (in EventInput) Times() (time.Time, time.Time) {
	start, _ := time.Parse(time.RFC3339, in.StartDateTime)
	end, _ := time.Parse(time.RFC3339, in.EndDateTime)
	return start, end
}

// Proxy talks to the calendar API with the caller's access token.
type Proxy struct {
	log      *zap.Logger
	timeZone string
	options  []option.ClientOption
	now      func() time.Time
}

type Option func(*Proxy)

// WithClientOptions appends options to every calendar client, e.g. a test
// endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Proxy) { p.options = append(p.options, opts...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) { p.now = now }
}

// NewProxy builds a proxy. timeZone is used when a request does not name
// one; empty means the server's local zone.
func NewProxy(log *zap.Logger, timeZone string, opts ...Option) *Proxy {
	p := &Proxy{
		log:      log,
		timeZone: resolveTimeZone(timeZone),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func resolveTimeZone(tz string) string {
	if tz != "" {
		return tz
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}

func (p *Proxy) service(ctx context.Context, accessToken string) (*gcal.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.options...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// List returns up to PageSize upcoming single events ordered by start time.
func (p *Proxy) List(ctx context.Context, accessToken string) ([]*gcal.Event, error) {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Events.List(calendarID).
		TimeMin(p.now().Format(time.RFC3339)).
		MaxResults(PageSize).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.mapError("list", err)
	}
	if resp.Items == nil {
		return []*gcal.Event{}, nil
	}
	return resp.Items, nil
}

func (p *Proxy) Create(ctx context.Context, accessToken string, in EventInput) (*gcal.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	created, err := svc.Events.Insert(calendarID, p.payload(in)).
		SendUpdates(sendUpdates(in)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.mapError("create", err)
	}
	return created, nil
}

func (p *Proxy) Update(ctx context.Context, accessToken, eventID string, in EventInput) (*gcal.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	updated, err := svc.Events.Update(calendarID, eventID, p.payload(in)).
		SendUpdates(sendUpdates(in)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.mapError("update", err)
	}
	return updated, nil
}

func (p *Proxy) Delete(ctx context.Context, accessToken, eventID string) error {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return p.mapError("delete", err)
	}
	return nil
}

func (p *Proxy) payload(in EventInput) *gcal.Event {
	tz := in.TimeZone
	if tz == "" {
		tz = p.timeZone
	}
	event := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &gcal.EventDateTime{DateTime: in.StartDateTime, TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: in.EndDateTime, TimeZone: tz},
	}
	for _, email := range in.Attendees {
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: email})
	}
	return event
}

func sendUpdates(in EventInput) string {
	if len(in.Attendees) > 0 {
		return "all"
	}
	return "none"
}

func (p *Proxy) mapError(op string, err error) error {
	mapped := MapError(err)
	if apperr.Status(mapped) >= http.StatusInternalServerError {
		p.log.Error("calendar call failed", zap.String("op", op), zap.Error(err))
	} else {
		p.log.Info("calendar call rejected", zap.String("op", op), zap.Error(err))
	}
	return mapped
}

// MapError translates a calendar API failure into the application taxonomy.
func MapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperr.Wrap(apperr.ErrInternal, err)
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return apperr.Wrap(apperr.ErrTokenExpired, err)
	case http.StatusForbidden:
		return apperr.Wrap(apperr.ErrForbidden, err)
	case http.StatusNotFound, http.StatusGone:
		return apperr.Wrap(apperr.ErrNotFound, err)
	case http.StatusBadRequest:
		msg := gerr.Message
		if msg == "" {
			msg = apperr.ErrValidation.Message
		}
		return &apperr.Error{Status: http.StatusBadRequest, Message: msg, Err: err}
	default:
		return apperr.Wrap(apperr.ErrInternal, err)
	}
}
