package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// CDS Hooks types (HL7 spec)
// ---------------------------------------------------------------------------

// Card indicators.
const (
	IndicatorInfo     = "info"
	IndicatorWarning  = "warning"
	IndicatorCritical = "critical"
)

// Suggestion action types.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// CDSService describes a single CDS service returned in discovery.
type CDSService struct {
	Hook              string            `json:"hook"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description"`
	ID                string            `json:"id"`
	Prefetch          map[string]string `json:"prefetch,omitempty"`
	UsageRequirements string            `json:"usageRequirements,omitempty"`
}

// CDSHookRequest is the payload POSTed to invoke a hook. Context and prefetch
// entries stay raw so each service decodes only the keys it understands.
type CDSHookRequest struct {
	Hook         string                     `json:"hook"`
	HookInstance string                     `json:"hookInstance"`
	FHIRServer   string                     `json:"fhirServer,omitempty"`
	FHIRAuth     *CDSFHIRAuth               `json:"fhirAuthorization,omitempty"`
	Context      map[string]json.RawMessage `json:"context"`
	Prefetch     map[string]json.RawMessage `json:"prefetch,omitempty"`
}

// CDSFHIRAuth carries FHIR authorization details from the EHR.
type CDSFHIRAuth struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Subject     string `json:"subject"`
}

// CDSCard is a single card in the hook response.
type CDSCard struct {
	UUID              string          `json:"uuid,omitempty"`
	Summary           string          `json:"summary"`
	Detail            string          `json:"detail,omitempty"`
	Indicator         string          `json:"indicator"`
	Source            CDSSource       `json:"source"`
	Suggestions       []CDSSuggestion `json:"suggestions,omitempty"`
	Links             []CDSLink       `json:"links,omitempty"`
	OverrideReasons   []CDSCoding     `json:"overrideReasons,omitempty"`
	SelectionBehavior string          `json:"selectionBehavior,omitempty"`
}

// CDSSource identifies the source of a card.
type CDSSource struct {
	Label string     `json:"label"`
	URL   string     `json:"url,omitempty"`
	Icon  string     `json:"icon,omitempty"`
	Topic *CDSCoding `json:"topic,omitempty"`
}

// CDSSuggestion is a suggested action within a card.
type CDSSuggestion struct {
	Label         string      `json:"label"`
	UUID          string      `json:"uuid,omitempty"`
	IsRecommended bool        `json:"isRecommended,omitempty"`
	Actions       []CDSAction `json:"actions,omitempty"`
}

// CDSAction is an individual action within a suggestion.
type CDSAction struct {
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Resource    interface{} `json:"resource,omitempty"`
}

// CDSLink is an external link within a card.
type CDSLink struct {
	Label      string `json:"label"`
	URL        string `json:"url"`
	Type       string `json:"type"`
	AppContext string `json:"appContext,omitempty"`
}

// CDSCoding is a code/system/display triple used in CDS Hooks.
type CDSCoding struct {
	Code    string `json:"code"`
	System  string `json:"system,omitempty"`
	Display string `json:"display,omitempty"`
}

// CDSHookResponse is returned from hook invocation.
type CDSHookResponse struct {
	Cards         []CDSCard   `json:"cards"`
	SystemActions []CDSAction `json:"systemActions,omitempty"`
}

// CDSAcceptedSuggestion references a suggestion the user applied.
type CDSAcceptedSuggestion struct {
	ID string `json:"id"`
}

// CDSFeedbackRequest records what the user did with a card.
type CDSFeedbackRequest struct {
	Card                string                  `json:"card"`
	Outcome             string                  `json:"outcome"`
	AcceptedSuggestions []CDSAcceptedSuggestion `json:"acceptedSuggestions,omitempty"`
	OverrideReasons     []CDSCoding             `json:"overrideReasons,omitempty"`
	OutcomeTimestamp    string                  `json:"outcomeTimestamp,omitempty"`
}

// CDSFeedbackBatch is the feedback endpoint body.
type CDSFeedbackBatch struct {
	Feedback []CDSFeedbackRequest `json:"feedback"`
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// BadRequestError reports hook context or prefetch data that does not have
// the shape a service requires. HandleHook maps it to a 400 OperationOutcome.
type BadRequestError struct {
	Expression string
	Message    string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Expression, e.Message)
}

// NewBadRequest creates a BadRequestError for the given location.
func NewBadRequest(expression, format string, args ...interface{}) *BadRequestError {
	return &BadRequestError{Expression: expression, Message: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Handler function types
// ---------------------------------------------------------------------------

// ServiceHandler processes a CDS hook request and returns cards.
type ServiceHandler func(ctx context.Context, req CDSHookRequest) (*CDSHookResponse, error)

// FeedbackHandler processes feedback for a service.
type FeedbackHandler func(ctx context.Context, serviceID string, fb CDSFeedbackRequest) error

// ---------------------------------------------------------------------------
// CDSHooksHandler
// ---------------------------------------------------------------------------

var (
	jsonMediaType     = contenttype.NewMediaType("application/json")
	fhirJSONMediaType = contenttype.NewMediaType("application/fhir+json")
)

// CDSHooksHandler implements the CDS Hooks REST API. Services are registered
// at startup and only read while serving.
type CDSHooksHandler struct {
	services         map[string]CDSService
	handlers         map[string]ServiceHandler
	feedbackHandlers map[string]FeedbackHandler
	hookAliases      map[string][]string
	order            []string
	logger           zerolog.Logger
}

// NewCDSHooksHandler creates a new CDSHooksHandler.
func NewCDSHooksHandler(logger zerolog.Logger) *CDSHooksHandler {
	return &CDSHooksHandler{
		services:         make(map[string]CDSService),
		handlers:         make(map[string]ServiceHandler),
		feedbackHandlers: make(map[string]FeedbackHandler),
		hookAliases:      make(map[string][]string),
		logger:           logger,
	}
}

// RegisterService registers a CDS service and its handler.
func (h *CDSHooksHandler) RegisterService(svc CDSService, handler ServiceHandler) {
	if _, exists := h.services[svc.ID]; !exists {
		h.order = append(h.order, svc.ID)
	}
	h.services[svc.ID] = svc
	h.handlers[svc.ID] = handler
}

// RegisterHookAlias lets requests naming alias be served by services
// advertising hook. Older hook versions used different names for the same
// workflow point (medication-prescribe became order-select).
func (h *CDSHooksHandler) RegisterHookAlias(hook, alias string) {
	h.hookAliases[hook] = append(h.hookAliases[hook], alias)
}

// RegisterFeedbackHandler registers an optional feedback handler for a service.
func (h *CDSHooksHandler) RegisterFeedbackHandler(serviceID string, handler FeedbackHandler) {
	h.feedbackHandlers[serviceID] = handler
}

// RegisterRoutes registers CDS Hooks routes on the root Echo instance.
func (h *CDSHooksHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/cds-services", h.Discovery)
	e.POST("/cds-services/:id", h.HandleHook)
	e.POST("/cds-services/:id/feedback", h.HandleFeedback)
}

// Services returns the registered services in registration order. The
// returned descriptors are copies; callers cannot alter the catalog.
func (h *CDSHooksHandler) Services() []CDSService {
	services := make([]CDSService, 0, len(h.order))
	for _, id := range h.order {
		svc, ok := h.services[id]
		if !ok {
			continue
		}
		if svc.Prefetch != nil {
			prefetch := make(map[string]string, len(svc.Prefetch))
			for k, v := range svc.Prefetch {
				prefetch[k] = v
			}
			svc.Prefetch = prefetch
		}
		services = append(services, svc)
	}
	return services
}

// Discovery handles GET /cds-services and lists the registered services.
func (h *CDSHooksHandler) Discovery(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]CDSService{
		"services": h.Services(),
	})
}

// HandleHook handles POST /cds-services/:id and invokes a CDS hook.
func (h *CDSHooksHandler) HandleHook(c echo.Context) error {
	serviceID := c.Param("id")

	svc, ok := h.services[serviceID]
	if !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("CDS Service", serviceID))
	}

	if !isJSONRequest(c.Request()) {
		return c.JSON(http.StatusUnsupportedMediaType, NotSupportedOutcome("content-type must be application/json"))
	}

	var req CDSHookRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return c.JSON(http.StatusBadRequest, ErrorOutcome(fmt.Sprintf("invalid request body: %v", err)))
	}

	if req.Hook != "" && !h.servesHook(svc, req.Hook) {
		return c.JSON(http.StatusBadRequest, ErrorOutcome(
			fmt.Sprintf("hook mismatch: request hook %q does not match service hook %q", req.Hook, svc.Hook),
		))
	}

	handler, ok := h.handlers[serviceID]
	if !ok {
		return c.JSON(http.StatusInternalServerError, InternalErrorOutcome("no handler registered for service"))
	}

	resp, err := handler(c.Request().Context(), req)
	if err != nil {
		var bad *BadRequestError
		if errors.As(err, &bad) {
			h.logger.Warn().
				Str("service", serviceID).
				Str("hook_instance", req.HookInstance).
				Str("expression", bad.Expression).
				Msg(bad.Message)
			return c.JSON(http.StatusBadRequest, ValidationOutcome(bad.Expression, bad.Message))
		}
		h.logger.Error().Err(err).
			Str("service", serviceID).
			Str("hook_instance", req.HookInstance).
			Msg("cds service failed")
		return c.JSON(http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
	}

	if resp == nil {
		resp = &CDSHookResponse{}
	}
	if resp.Cards == nil {
		resp.Cards = []CDSCard{}
	}

	h.logger.Debug().
		Str("service", serviceID).
		Str("hook_instance", req.HookInstance).
		Int("cards", len(resp.Cards)).
		Msg("cds hook evaluated")

	return c.JSON(http.StatusOK, resp)
}

// HandleFeedback handles POST /cds-services/:id/feedback.
func (h *CDSHooksHandler) HandleFeedback(c echo.Context) error {
	serviceID := c.Param("id")

	if _, ok := h.services[serviceID]; !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("CDS Service", serviceID))
	}

	if !isJSONRequest(c.Request()) {
		return c.JSON(http.StatusUnsupportedMediaType, NotSupportedOutcome("content-type must be application/json"))
	}

	var batch CDSFeedbackBatch
	if err := json.NewDecoder(c.Request().Body).Decode(&batch); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return c.JSON(http.StatusBadRequest, ErrorOutcome(fmt.Sprintf("invalid feedback body: %v", err)))
	}
	for i, fb := range batch.Feedback {
		if fb.Card == "" {
			return c.JSON(http.StatusBadRequest, RequiredFieldOutcome(fmt.Sprintf("feedback[%d].card", i)))
		}
		if fb.Outcome != "accepted" && fb.Outcome != "overridden" {
			return c.JSON(http.StatusBadRequest, ValidationOutcome(
				fmt.Sprintf("feedback[%d].outcome", i), "must be accepted or overridden"))
		}
	}

	handler, ok := h.feedbackHandlers[serviceID]
	if !ok {
		// No feedback handler registered, accept as a no-op
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	for _, fb := range batch.Feedback {
		if err := handler(c.Request().Context(), serviceID, fb); err != nil {
			return c.JSON(http.StatusInternalServerError, InternalErrorOutcome(err.Error()))
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CDSHooksHandler) servesHook(svc CDSService, hook string) bool {
	if hook == svc.Hook {
		return true
	}
	for _, alias := range h.hookAliases[svc.Hook] {
		if hook == alias {
			return true
		}
	}
	return false
}

// isJSONRequest reports whether the request body is declared as JSON. A
// missing Content-Type is tolerated; EHR clients frequently omit it.
func isJSONRequest(r *http.Request) bool {
	if r.Header.Get(echo.HeaderContentType) == "" {
		return true
	}
	ctype, err := contenttype.GetMediaType(r)
	if err != nil {
		return false
	}
	return ctype.Matches(jsonMediaType) || ctype.Matches(fhirJSONMediaType)
}
