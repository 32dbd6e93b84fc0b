package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

// EventQuerier reads the security event log
type EventQuerier interface {
	Query(ctx context.Context, filter models.EventFilter, page, pageSize int) (*models.EventPage, error)
}

// ThreatEvaluator produces a current threat assessment
type ThreatEvaluator interface {
	Evaluate(ctx context.Context) (*models.ThreatAssessment, error)
}

// AlertManager lists alerts and moves them through their lifecycle
type AlertManager interface {
	List(ctx context.Context, status models.AlertStatus, page, pageSize int) (*models.AlertPage, error)
	Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error)
	Resolve(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error)
}

// SecurityHandler serves the admin security dashboard
type SecurityHandler struct {
	events EventQuerier
	threat ThreatEvaluator
	alerts AlertManager
	logger *slog.Logger
}

func NewSecurityHandler(events EventQuerier, threat ThreatEvaluator, alerts AlertManager, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{events: events, threat: threat, alerts: alerts, logger: logger}
}

// EventQueryParams are the accepted filters on GET /admin/security/events
type EventQueryParams struct {
	Identity  string `validate:"omitempty,max=254"`
	EventType string `validate:"omitempty,max=64"`
	DateFrom  string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DateTo    string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page      int    `validate:"gte=0,lte=10000"`
	PageSize  int    `validate:"gte=0,lte=100"`
}

// AlertQueryParams are the accepted filters on GET /admin/security/alerts
type AlertQueryParams struct {
	Status   string `validate:"omitempty,oneof=new acknowledged resolved"`
	Page     int    `validate:"gte=0,lte=10000"`
	PageSize int    `validate:"gte=0,lte=100"`
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	// already checked by the datetime validator
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func parsePaging(q url.Values) (page, pageSize int, err error) {
	if page, err = queryInt(q, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(q, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// ListEvents returns a filtered page of security events, newest first
// @Router /admin/security/events [get]
func (h *SecurityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, err := parsePaging(q)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	params := EventQueryParams{
		Identity:  q.Get("identity"),
		EventType: q.Get("event_type"),
		DateFrom:  q.Get("date_from"),
		DateTo:    q.Get("date_to"),
		Page:      page,
		PageSize:  pageSize,
	}
	if err := ValidateRequest(params); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	filter := models.EventFilter{
		Identity:  params.Identity,
		EventType: models.EventType(params.EventType),
		DateFrom:  parseTimestamp(params.DateFrom),
		DateTo:    parseTimestamp(params.DateTo),
	}

	result, err := h.events.Query(r.Context(), filter, params.Page, params.PageSize)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid event filter")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to query security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Threat returns the current assessment over the configured lookback
// @Router /admin/security/threat [get]
func (h *SecurityHandler) Threat(w http.ResponseWriter, r *http.Request) {
	assessment, err := h.threat.Evaluate(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to evaluate threat level", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, assessment)
}

// ListAlerts returns a page of alerts, optionally filtered by status
// @Router /admin/security/alerts [get]
func (h *SecurityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, pageSize, err := parsePaging(q)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	params := AlertQueryParams{Status: q.Get("status"), Page: page, PageSize: pageSize}
	if err := ValidateRequest(params); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.alerts.List(r.Context(), models.AlertStatus(params.Status), params.Page, params.PageSize)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list security alerts", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// AcknowledgeAlert moves a new alert to acknowledged
// @Router /admin/security/alerts/{id}/acknowledge [post]
func (h *SecurityHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Acknowledge)
}

// ResolveAlert moves a new or acknowledged alert to resolved
// @Router /admin/security/alerts/{id}/resolve [post]
func (h *SecurityHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Resolve)
}

type alertTransition func(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error)

func (h *SecurityHandler) transitionAlert(w http.ResponseWriter, r *http.Request, apply alertTransition) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid alert ID")
		return
	}

	actor := auth.SessionFromContext(r.Context()).IdentityOrEmpty()

	alert, err := apply(r.Context(), id, actor)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Alert not found")
		case errors.Is(err, models.ErrAlreadyResolved):
			pkghttp.WriteConflict(w, "Alert is already resolved")
		case errors.Is(err, models.ErrInvalidTransition):
			pkghttp.WriteConflict(w, "Alert cannot move to that status")
		default:
			h.logger.ErrorContext(r.Context(), "failed to update security alert",
				slog.String("alert_id", id.String()),
				slog.Any("error", err),
			)
			pkghttp.WriteInternalError(w, "An unexpected error occurred")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, alert)
}
