package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/campus-presence/internal/application"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/model"
)

// Core is the subset of the orchestrator the handlers drive.
type Core interface {
	Snapshot() application.Snapshot
	Subscribe() (<-chan struct{}, func())

	SignIn(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, payload backend.SettingsPayload) error

	CreateEvent(ctx context.Context, draft backend.EventDraft) error
	JoinEvent(ctx context.Context, eventID string) error
	DeleteEvent(ctx context.Context, eventID string) error
	SyncEvents(ctx context.Context) ([]model.Event, error)
	OpenEventChat(ctx context.Context, ev model.Event) error

	MessagePerson(ctx context.Context, m model.Member) error
	LeaveChannel(ctx context.Context, id string) error
	SelectChannel(id string) error
	SetSurface(s model.Surface) error

	ToggleCheckIn(ctx context.Context, loc model.Location) error
	RefreshLocations(ctx context.Context) error
}

var _ Core = (*application.Orchestrator)(nil)

// Handler serves the intent endpoints.
type Handler struct {
	core      Core
	logger    *slog.Logger
	responder responder
}

// NewHandler constructs a Handler.
func NewHandler(core Core, logger *slog.Logger) *Handler {
	logger = defaultLogger(logger)
	return &Handler{core: core, logger: logger, responder: newResponder(logger)}
}

type sessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

type eventRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Type         string     `json:"type"`
	LocationName string     `json:"location_name"`
	StartTime    *time.Time `json:"start_time"`
	IsMajor      bool       `json:"is_major"`
	ImageURL     string     `json:"image_url"`
}

type directRequest struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

type channelRequest struct {
	ID string `json:"id"`
}

type surfaceRequest struct {
	Surface string `json:"surface"`
}

// Health answers liveness probes.
func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// State returns the current snapshot.
func (h *Handler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, h.core.Snapshot())
}

func (h *Handler) SignIn(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	ctx := c.Request().Context()
	handlerLogger(ctx, h.logger, "SignIn").DebugContext(ctx, "signing in", "email", req.Email)
	return h.respond(c, h.core.SignIn(ctx, req.Email, req.Password))
}

func (h *Handler) SignOut(c echo.Context) error {
	return h.respond(c, h.core.Logout(c.Request().Context()))
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	payload := backend.SettingsPayload{
		Username:  req.Username,
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
	}
	return h.respond(c, h.core.UpdateProfile(c.Request().Context(), payload))
}

func (h *Handler) CreateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	draft := backend.EventDraft{
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		LocationName: req.LocationName,
		IsMajor:      req.IsMajor,
		ImageURL:     req.ImageURL,
	}
	if req.StartTime != nil {
		draft.StartTime = *req.StartTime
	}
	return h.respond(c, h.core.CreateEvent(c.Request().Context(), draft))
}

func (h *Handler) SyncEvents(c echo.Context) error {
	_, err := h.core.SyncEvents(c.Request().Context())
	return h.respond(c, err)
}

func (h *Handler) JoinEvent(c echo.Context) error {
	return h.respond(c, h.core.JoinEvent(c.Request().Context(), c.Param("id")))
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	return h.respond(c, h.core.DeleteEvent(c.Request().Context(), c.Param("id")))
}

func (h *Handler) OpenEventChat(c echo.Context) error {
	ev, ok := h.findEvent(c.Param("id"))
	if !ok {
		return h.responder.writeError(c, http.StatusNotFound, errUnknownEvent)
	}
	return h.respond(c, h.core.OpenEventChat(c.Request().Context(), ev))
}

func (h *Handler) RefreshLocations(c echo.Context) error {
	return h.respond(c, h.core.RefreshLocations(c.Request().Context()))
}

func (h *Handler) ToggleLocation(c echo.Context) error {
	loc, ok := h.findLocation(c.Param("id"))
	if !ok {
		return h.responder.writeError(c, http.StatusNotFound, errUnknownLocation)
	}
	return h.respond(c, h.core.ToggleCheckIn(c.Request().Context(), loc))
}

func (h *Handler) MessagePerson(c echo.Context) error {
	var req directRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	member := model.Member{ID: strings.TrimSpace(req.MemberID), Name: strings.TrimSpace(req.Name)}
	return h.respond(c, h.core.MessagePerson(c.Request().Context(), member))
}

func (h *Handler) SelectChannel(c echo.Context) error {
	var req channelRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	return h.respond(c, h.core.SelectChannel(req.ID))
}

func (h *Handler) LeaveChannel(c echo.Context) error {
	return h.respond(c, h.core.LeaveChannel(c.Request().Context(), c.Param("id")))
}

func (h *Handler) SetSurface(c echo.Context) error {
	var req surfaceRequest
	if err := c.Bind(&req); err != nil {
		return h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
	}
	return h.respond(c, h.core.SetSurface(model.Surface(req.Surface)))
}

func (h *Handler) respond(c echo.Context, err error) error {
	if err != nil {
		return h.responder.handleIntentError(c, err)
	}
	return c.JSON(http.StatusOK, h.core.Snapshot())
}

func (h *Handler) findEvent(id string) (model.Event, bool) {
	for _, ev := range h.core.Snapshot().Events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

func (h *Handler) findLocation(id string) (model.Location, bool) {
	for _, loc := range h.core.Snapshot().Locations {
		if loc.ID == id {
			return loc, true
		}
	}
	return model.Location{}, false
}
